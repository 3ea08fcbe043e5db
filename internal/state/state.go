package state

import (
	"slices"
	"strings"
	"sync"
	"sync/atomic"
	"time"
)

// ConnState is a feed connection's lifecycle state.
type ConnState string

const (
	Connecting ConnState = "connecting"
	Streaming  ConnState = "streaming"
	Backoff    ConnState = "backoff"
	Stopped    ConnState = "stopped"
)

// FeedStatus is a point-in-time view of one symbol's feed.
type FeedStatus struct {
	Symbol       string    `json:"symbol"`
	State        ConnState `json:"state"`
	Since        time.Time `json:"since"`
	LastEvent    time.Time `json:"lastEvent"`
	Events       int64     `json:"events"`
	Reconnects   int64     `json:"reconnects"`
	DecodeErrors int64     `json:"decodeErrors"`
	LastError    string    `json:"lastError,omitempty"`
}

// Connected reports whether the feed is streaming.
func (f FeedStatus) Connected() bool { return f.State == Streaming }

// Gap is how long the feed has gone without an event. A feed that has never
// delivered reports the time since it entered its current state.
func (f FeedStatus) Gap(now time.Time) time.Duration {
	if f.LastEvent.IsZero() {
		return now.Sub(f.Since)
	}
	return now.Sub(f.LastEvent)
}

// Registry tracks every symbol's feed so data gaps stay observable.
type Registry struct {
	mu    sync.RWMutex
	feeds map[string]*FeedStatus

	alerts atomic.Int64
}

func NewRegistry() *Registry {
	return &Registry{feeds: make(map[string]*FeedStatus)}
}

func canon(sym string) string { return strings.ToUpper(strings.TrimSpace(sym)) }

func (r *Registry) get(sym string) *FeedStatus {
	k := canon(sym)
	f, ok := r.feeds[k]
	if !ok {
		f = &FeedStatus{Symbol: k, State: Stopped}
		r.feeds[k] = f
	}
	return f
}

// Track registers sym without changing its state.
func (r *Registry) Track(sym string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.get(sym)
}

func (r *Registry) SetState(sym string, st ConnState, now time.Time) {
	r.mu.Lock()
	defer r.mu.Unlock()
	f := r.get(sym)
	if f.State == st {
		return
	}
	if st == Connecting && f.State == Backoff {
		f.Reconnects++
	}
	f.State = st
	f.Since = now
}

// Observe records a delivered event.
func (r *Registry) Observe(sym string, at time.Time) {
	r.mu.Lock()
	defer r.mu.Unlock()
	f := r.get(sym)
	f.Events++
	if at.After(f.LastEvent) {
		f.LastEvent = at
	}
}

func (r *Registry) RecordError(sym string, err error, decode bool) {
	if err == nil {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	f := r.get(sym)
	f.LastError = err.Error()
	if decode {
		f.DecodeErrors++
	}
}

func (r *Registry) Status(sym string) (FeedStatus, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	f, ok := r.feeds[canon(sym)]
	if !ok {
		return FeedStatus{}, false
	}
	return *f, true
}

// Snapshot returns every feed sorted by symbol.
func (r *Registry) Snapshot() []FeedStatus {
	r.mu.RLock()
	out := make([]FeedStatus, 0, len(r.feeds))
	for _, f := range r.feeds {
		out = append(out, *f)
	}
	r.mu.RUnlock()
	slices.SortFunc(out, func(a, b FeedStatus) int { return strings.Compare(a.Symbol, b.Symbol) })
	return out
}

// Connected reports whether at least one feed is streaming.
func (r *Registry) Connected() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, f := range r.feeds {
		if f.State == Streaming {
			return true
		}
	}
	return false
}

func (r *Registry) AddAlerts(n int) { r.alerts.Add(int64(n)) }
func (r *Registry) Alerts() int64   { return r.alerts.Load() }

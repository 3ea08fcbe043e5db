package state

import (
	"errors"
	"testing"
	"time"
)

func TestSymbolNormalization(t *testing.T) {
	r := NewRegistry()
	r.Track(" btcusdt ")
	if _, ok := r.Status("BTCUSDT"); !ok {
		t.Fatal("symbol not canonicalized")
	}
	if got := r.Snapshot(); len(got) != 1 || got[0].Symbol != "BTCUSDT" || got[0].State != Stopped {
		t.Fatalf("snapshot got %+v", got)
	}
}

func TestReconnectCounting(t *testing.T) {
	r := NewRegistry()
	now := time.Now()
	r.SetState("ETHUSDT", Connecting, now)
	r.SetState("ETHUSDT", Streaming, now)
	if !r.Connected() {
		t.Fatal("expected connected")
	}
	r.SetState("ETHUSDT", Backoff, now)
	r.SetState("ETHUSDT", Connecting, now)
	r.SetState("ETHUSDT", Connecting, now) // no-op
	st, _ := r.Status("ETHUSDT")
	if st.Reconnects != 1 {
		t.Fatalf("reconnects got %d want 1", st.Reconnects)
	}
	if r.Connected() {
		t.Fatal("should not be connected while reconnecting")
	}
}

func TestGapIsObservable(t *testing.T) {
	r := NewRegistry()
	t0 := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	r.SetState("SOLUSDT", Streaming, t0)
	st, _ := r.Status("SOLUSDT")
	if gap := st.Gap(t0.Add(10 * time.Second)); gap != 10*time.Second {
		t.Fatalf("gap without events got %v", gap)
	}
	r.Observe("SOLUSDT", t0.Add(3*time.Second))
	r.Observe("SOLUSDT", t0.Add(2*time.Second)) // out of order timestamps don't rewind
	st, _ = r.Status("SOLUSDT")
	if st.Events != 2 {
		t.Fatalf("events got %d", st.Events)
	}
	if gap := st.Gap(t0.Add(10 * time.Second)); gap != 7*time.Second {
		t.Fatalf("gap got %v want 7s", gap)
	}
}

func TestRecordError(t *testing.T) {
	r := NewRegistry()
	r.RecordError("DOGEUSDT", errors.New("bad json"), true)
	r.RecordError("DOGEUSDT", errors.New("eof"), false)
	r.RecordError("DOGEUSDT", nil, true)
	st, _ := r.Status("DOGEUSDT")
	if st.DecodeErrors != 1 || st.LastError != "eof" {
		t.Fatalf("got %+v", st)
	}
}

func TestAlertsCounter(t *testing.T) {
	r := NewRegistry()
	r.AddAlerts(2)
	r.AddAlerts(3)
	if r.Alerts() != 5 {
		t.Fatalf("alerts got %d", r.Alerts())
	}
}

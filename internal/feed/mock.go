package feed

import (
	"context"
	"io"
	"sync"
)

// ---------- Test/mock transport (handy for integration tests & demos) ----------

// MockFrame is one scripted read: a message or an error.
type MockFrame struct {
	Data []byte
	Err  error
}

// MockSession scripts one dial. DialErr fails the dial itself. When Frames
// run out the stream returns io.EOF, or blocks until cancelled if Hold.
type MockSession struct {
	DialErr error
	Frames  []MockFrame
	Hold    bool
}

// MockDialer hands out scripted sessions in order. Once they are used up,
// Dial blocks until ctx is done.
type MockDialer struct {
	mu       sync.Mutex
	sessions []MockSession
	dials    []string
}

func NewMockDialer(sessions ...MockSession) *MockDialer {
	return &MockDialer{sessions: sessions}
}

func (m *MockDialer) Dial(ctx context.Context, url string) (Stream, error) {
	m.mu.Lock()
	m.dials = append(m.dials, url)
	if len(m.sessions) == 0 {
		m.mu.Unlock()
		<-ctx.Done()
		return nil, ctx.Err()
	}
	s := m.sessions[0]
	m.sessions = m.sessions[1:]
	m.mu.Unlock()

	if s.DialErr != nil {
		return nil, s.DialErr
	}
	return &mockStream{frames: s.Frames, hold: s.Hold, done: make(chan struct{})}, nil
}

// Dials returns the URLs dialled so far.
func (m *MockDialer) Dials() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.dials...)
}

type mockStream struct {
	frames []MockFrame
	hold   bool

	once sync.Once
	done chan struct{}
}

func (s *mockStream) Next(ctx context.Context) ([]byte, error) {
	select {
	case <-s.done:
		return nil, ErrClosed
	default:
	}
	if len(s.frames) == 0 {
		if !s.hold {
			return nil, io.EOF
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-s.done:
			return nil, ErrClosed
		}
	}
	f := s.frames[0]
	s.frames = s.frames[1:]
	if f.Err != nil {
		return nil, f.Err
	}
	return f.Data, nil
}

func (s *mockStream) Close() error {
	s.once.Do(func() { close(s.done) })
	return nil
}

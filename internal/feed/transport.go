package feed

import (
	"context"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// Stream is a lazy sequence of raw feed messages.
type Stream interface {
	// Next blocks until the next message arrives or the stream fails.
	Next(ctx context.Context) ([]byte, error)
	Close() error
}

// Dialer opens a Stream for a feed URL.
type Dialer interface {
	Dial(ctx context.Context, url string) (Stream, error)
}

// StreamURL fills the {symbol} placeholder with the lower-cased symbol.
func StreamURL(template, symbol string) string {
	return strings.ReplaceAll(template, "{symbol}", strings.ToLower(strings.TrimSpace(symbol)))
}

// WSDialer dials websocket feeds with gorilla/websocket.
type WSDialer struct {
	HandshakeTimeout time.Duration
	ReadTimeout      time.Duration // refreshed by every message and pong
	PingInterval     time.Duration
	ReadLimit        int64
	Header           http.Header
}

func NewWSDialer() *WSDialer {
	return &WSDialer{
		HandshakeTimeout: 10 * time.Second,
		ReadTimeout:      60 * time.Second,
		PingInterval:     25 * time.Second,
		ReadLimit:        1 << 20,
	}
}

func (d *WSDialer) Dial(ctx context.Context, url string) (Stream, error) {
	dialer := websocket.Dialer{HandshakeTimeout: d.HandshakeTimeout}
	conn, _, err := dialer.DialContext(ctx, url, d.Header)
	if err != nil {
		return nil, err
	}
	s := &wsStream{
		conn:        conn,
		readTimeout: d.ReadTimeout,
		done:        make(chan struct{}),
	}
	if d.ReadLimit > 0 {
		conn.SetReadLimit(d.ReadLimit)
	}
	s.extendDeadline()
	conn.SetPongHandler(func(string) error {
		s.extendDeadline()
		return nil
	})

	// Closing the socket is the only way to unblock a pending ReadMessage.
	go func() {
		select {
		case <-ctx.Done():
			_ = s.Close()
		case <-s.done:
		}
	}()
	if d.PingInterval > 0 {
		go s.pingLoop(d.PingInterval)
	}
	return s, nil
}

type wsStream struct {
	conn        *websocket.Conn
	readTimeout time.Duration

	writeMu   sync.Mutex
	closeOnce sync.Once
	done      chan struct{}
}

func (s *wsStream) extendDeadline() {
	if s.readTimeout > 0 {
		_ = s.conn.SetReadDeadline(time.Now().Add(s.readTimeout))
	}
}

func (s *wsStream) pingLoop(every time.Duration) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		select {
		case <-s.done:
			return
		case <-ticker.C:
			s.writeMu.Lock()
			err := s.conn.WriteControl(websocket.PingMessage, []byte("ping"), time.Now().Add(5*time.Second))
			s.writeMu.Unlock()
			if err != nil {
				return
			}
		}
	}
}

func (s *wsStream) Next(ctx context.Context) ([]byte, error) {
	select {
	case <-s.done:
		return nil, ErrClosed
	default:
	}
	_, data, err := s.conn.ReadMessage()
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, err
	}
	s.extendDeadline()
	return data, nil
}

func (s *wsStream) Close() error {
	var err error
	s.closeOnce.Do(func() {
		close(s.done)
		s.writeMu.Lock()
		_ = s.conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(time.Second))
		s.writeMu.Unlock()
		err = s.conn.Close()
	})
	return err
}

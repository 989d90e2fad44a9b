package asr

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// SocketOptions bound the websocket I/O of every provider connection.
type SocketOptions struct {
	HandshakeTimeout time.Duration
	WriteTimeout     time.Duration
	PingInterval     time.Duration
}

// DefaultSocketOptions mirrors the configured defaults.
func DefaultSocketOptions() SocketOptions {
	return SocketOptions{
		HandshakeTimeout: 10 * time.Second,
		WriteTimeout:     5 * time.Second,
		PingInterval:     20 * time.Second,
	}
}

func (o SocketOptions) withDefaults() SocketOptions {
	def := DefaultSocketOptions()
	if o.HandshakeTimeout <= 0 {
		o.HandshakeTimeout = def.HandshakeTimeout
	}
	if o.WriteTimeout <= 0 {
		o.WriteTimeout = def.WriteTimeout
	}
	if o.PingInterval <= 0 {
		o.PingInterval = def.PingInterval
	}
	return o
}

// socket wraps a websocket with serialized writes, a keep-alive loop and an
// idempotent close.
type socket struct {
	conn *websocket.Conn
	opts SocketOptions

	writeMu   sync.Mutex
	closeOnce sync.Once
	done      chan struct{}
}

func dialSocket(ctx context.Context, url string, header http.Header, opts SocketOptions) (*socket, *http.Response, error) {
	opts = opts.withDefaults()

	dialer := &websocket.Dialer{
		HandshakeTimeout: opts.HandshakeTimeout,
	}

	dialCtx, cancel := context.WithTimeout(ctx, opts.HandshakeTimeout)
	defer cancel()

	conn, resp, err := dialer.DialContext(dialCtx, url, header)
	if err != nil {
		if resp != nil {
			return nil, resp, fmt.Errorf("websocket dial failed (status %d): %w", resp.StatusCode, err)
		}
		return nil, nil, fmt.Errorf("websocket dial failed: %w", err)
	}

	s := &socket{
		conn: conn,
		opts: opts,
		done: make(chan struct{}),
	}
	go s.pingLoop()

	return s, resp, nil
}

// write sends one message under the write lock. The deadline is the earlier
// of the context deadline and the configured write timeout.
func (s *socket) write(ctx context.Context, messageType int, data []byte) error {
	if s.isClosed() {
		return ErrDisconnected
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	deadline := time.Now().Add(s.opts.WriteTimeout)
	if ctxDeadline, ok := ctx.Deadline(); ok && ctxDeadline.Before(deadline) {
		deadline = ctxDeadline
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	if err := s.conn.SetWriteDeadline(deadline); err != nil {
		return err
	}
	if err := s.conn.WriteMessage(messageType, data); err != nil {
		if s.isClosed() {
			return ErrDisconnected
		}
		return err
	}
	return nil
}

func (s *socket) read() (int, []byte, error) {
	return s.conn.ReadMessage()
}

// pingLoop keeps idle provider streams open between utterances.
func (s *socket) pingLoop() {
	ticker := time.NewTicker(s.opts.PingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-s.done:
			return
		case <-ticker.C:
			s.writeMu.Lock()
			err := s.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(s.opts.WriteTimeout))
			s.writeMu.Unlock()
			if err != nil {
				return
			}
		}
	}
}

func (s *socket) isClosed() bool {
	select {
	case <-s.done:
		return true
	default:
		return false
	}
}

// close sends a close frame and tears down the connection. Only the first
// call has any effect.
func (s *socket) close() error {
	var err error
	s.closeOnce.Do(func() {
		close(s.done)

		s.writeMu.Lock()
		_ = s.conn.WriteControl(
			websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(s.opts.WriteTimeout),
		)
		s.writeMu.Unlock()

		err = s.conn.Close()
	})
	return err
}

// isExpectedClose reports read errors that simply mean the stream ended.
func isExpectedClose(err error) bool {
	if err == nil {
		return false
	}
	if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
		return true
	}
	return errors.Is(err, websocket.ErrCloseSent)
}

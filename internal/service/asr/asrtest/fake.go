// Package asrtest provides an in-memory asr.Connection for tests.
package asrtest

import (
	"context"
	"sync"
	"time"

	"github.com/parley-ai/parley/backend/internal/service/asr"
)

// Frame is one recorded Send call.
type Frame struct {
	Data       []byte
	SampleRate int
}

// Conn records calls and lets tests push provider events.
type Conn struct {
	SessionID string

	mu          sync.Mutex
	handler     asr.EventHandler
	frames      []Frame
	commits     int
	disconnects int
	closed      bool
	sendErr     error
	commitErr   error
}

var _ asr.Connection = (*Conn)(nil)

// NewConn creates a fake connection for sessionID.
func NewConn(sessionID string) *Conn {
	return &Conn{SessionID: sessionID}
}

func (c *Conn) Send(_ context.Context, frame []byte, sampleRate int) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return asr.ErrDisconnected
	}
	if c.sendErr != nil {
		return c.sendErr
	}
	data := make([]byte, len(frame))
	copy(data, frame)
	c.frames = append(c.frames, Frame{Data: data, SampleRate: sampleRate})
	return nil
}

func (c *Conn) Commit(context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return asr.ErrDisconnected
	}
	if c.commitErr != nil {
		return c.commitErr
	}
	c.commits++
	return nil
}

func (c *Conn) Listen(handler asr.EventHandler) {
	c.mu.Lock()
	c.handler = handler
	c.mu.Unlock()
}

func (c *Conn) Disconnect() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.disconnects++
	c.closed = true
	return nil
}

// Emit delivers ev synchronously to the registered handler. Events emitted
// before Listen are dropped, as a real adapter would not deliver them.
func (c *Conn) Emit(ev asr.Event) {
	c.mu.Lock()
	handler := c.handler
	c.mu.Unlock()

	if handler == nil {
		return
	}
	if ev.ReceivedAt.IsZero() {
		ev.ReceivedAt = time.Now()
	}
	handler(ev)
}

// EmitPartial delivers a partial transcript.
func (c *Conn) EmitPartial(text string) {
	c.Emit(asr.Event{Kind: asr.EventPartial, Payload: asr.TextPayload(text)})
}

// EmitCommitted delivers a committed transcript.
func (c *Conn) EmitCommitted(text string) {
	c.Emit(asr.Event{Kind: asr.EventCommitted, Payload: asr.TextPayload(text)})
}

// EmitFault delivers a provider fault of the given kind.
func (c *Conn) EmitFault(kind asr.EventKind, message string) {
	c.Emit(asr.Event{Kind: kind, Message: message})
}

// SetSendErr makes subsequent Send calls fail with err.
func (c *Conn) SetSendErr(err error) {
	c.mu.Lock()
	c.sendErr = err
	c.mu.Unlock()
}

// SetCommitErr makes subsequent Commit calls fail with err.
func (c *Conn) SetCommitErr(err error) {
	c.mu.Lock()
	c.commitErr = err
	c.mu.Unlock()
}

func (c *Conn) Frames() []Frame {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]Frame, len(c.frames))
	copy(out, c.frames)
	return out
}

func (c *Conn) Commits() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.commits
}

func (c *Conn) Disconnects() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.disconnects
}

func (c *Conn) Listening() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.handler != nil
}

// Dialer hands out fake connections and remembers them by session id.
type Dialer struct {
	// Err, when set, fails every Dial.
	Err error

	mu    sync.Mutex
	conns map[string]*Conn
	last  *Conn
}

var _ asr.Dialer = (*Dialer)(nil)

func NewDialer() *Dialer {
	return &Dialer{conns: make(map[string]*Conn)}
}

func (d *Dialer) Dial(_ context.Context, sessionID string) (asr.Connection, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.Err != nil {
		return nil, d.Err
	}
	if d.conns == nil {
		d.conns = make(map[string]*Conn)
	}
	conn := NewConn(sessionID)
	d.conns[sessionID] = conn
	d.last = conn
	return conn, nil
}

// Conn returns the connection dialed for sessionID, or nil.
func (d *Dialer) Conn(sessionID string) *Conn {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.conns[sessionID]
}

// Last returns the most recently dialed connection.
func (d *Dialer) Last() *Conn {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.last
}

// Dials reports how many connections were created.
func (d *Dialer) Dials() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.conns)
}

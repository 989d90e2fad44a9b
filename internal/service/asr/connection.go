package asr

import (
	"context"
	"errors"
	"fmt"
)

var (
	// ErrTransport marks a send/commit that failed on the wire. It never ends a session.
	ErrTransport = errors.New("asr transport failure")
	// ErrDisconnected is returned for operations on a connection after Disconnect.
	ErrDisconnected = errors.New("asr connection disconnected")
	// ErrNotConfigured means the provider credentials are missing.
	ErrNotConfigured = errors.New("asr provider not configured")
)

// Connection is one live streaming session with a speech-to-text provider.
type Connection interface {
	// Send forwards a PCM16 mono frame. It does not wait for transcripts.
	Send(ctx context.Context, frame []byte, sampleRate int) error
	// Commit asks the provider to finalize whatever speech is buffered. The
	// resulting text arrives later as an event.
	Commit(ctx context.Context) error
	// Listen attaches the subscriber and starts event delivery. Events are
	// never delivered before Listen is called.
	Listen(handler EventHandler)
	// Disconnect closes the provider stream. Repeated calls are no-ops.
	Disconnect() error
}

// Dialer constructs provider connections.
type Dialer interface {
	Dial(ctx context.Context, sessionID string) (Connection, error)
}

func transportError(op string, err error) error {
	return fmt.Errorf("%s: %w: %v", op, ErrTransport, err)
}

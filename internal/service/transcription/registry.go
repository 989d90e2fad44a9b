package transcription

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"sync/atomic"
	"time"

	"github.com/charmbracelet/log"
	"github.com/google/uuid"

	"github.com/parley-ai/parley/backend/internal/service/asr"
)

var (
	ErrSessionNotFound = errors.New("session not found")
	ErrOpenFailed      = errors.New("failed to open transcription session")
)

// DefaultSessionTimeout is the inactivity threshold used when none is configured.
const DefaultSessionTimeout = 5 * time.Minute

// Options tune a Registry.
type Options struct {
	SessionTimeout   time.Duration
	SweepMinInterval time.Duration
	PartialWindow    time.Duration
	Logger           *log.Logger
}

// Registry owns every live session in the process. Sessions are only shared
// within a single instance; scaling out would need an external store.
type Registry struct {
	dialer     asr.Dialer
	reconciler *Reconciler
	logger     *log.Logger
	now        func() time.Time

	timeout          time.Duration
	sweepMinInterval time.Duration
	lastSweep        atomic.Int64
	// afterScan runs between candidate collection and removal; tests only
	afterScan func()

	mu       sync.RWMutex
	sessions map[string]*Session
}

// NewRegistry builds an empty registry that dials provider connections with dialer.
func NewRegistry(dialer asr.Dialer, opts Options) *Registry {
	logger := opts.Logger
	if logger == nil {
		logger = log.New(io.Discard)
	}

	timeout := opts.SessionTimeout
	if timeout <= 0 {
		timeout = DefaultSessionTimeout
	}

	r := &Registry{
		dialer:           dialer,
		reconciler:       NewReconciler(opts.PartialWindow, logger),
		logger:           logger,
		now:              time.Now,
		timeout:          timeout,
		sweepMinInterval: opts.SweepMinInterval,
		sessions:         make(map[string]*Session),
	}
	// the reconciler shares the registry clock
	r.reconciler.now = func() time.Time { return r.now() }
	return r
}

// Open dials a provider connection and registers a new session for it. The
// session is visible before events are wired so early events are not lost.
func (r *Registry) Open(ctx context.Context) (string, error) {
	id := uuid.NewString()

	conn, err := r.dialer.Dial(ctx, id)
	if err != nil {
		r.logger.Error("provider dial failed", "session", id, "err", err)
		return "", fmt.Errorf("%w: %w", ErrOpenFailed, err)
	}

	session := newSession(id, conn, r.now())

	r.mu.Lock()
	r.sessions[id] = session
	r.mu.Unlock()

	conn.Listen(func(ev asr.Event) {
		r.dispatch(id, ev)
	})

	r.logger.Info("session opened", "session", id)
	return id, nil
}

// Get returns the session registered under id.
func (r *Registry) Get(id string) (*Session, error) {
	r.mu.RLock()
	session, ok := r.sessions[id]
	r.mu.RUnlock()

	if !ok {
		return nil, ErrSessionNotFound
	}
	return session, nil
}

// Remove unregisters the session and disconnects its provider connection.
// It reports whether this call performed the removal.
func (r *Registry) Remove(id string) bool {
	r.mu.Lock()
	session, ok := r.sessions[id]
	if ok {
		delete(r.sessions, id)
	}
	r.mu.Unlock()

	if !ok {
		return false
	}

	r.disconnect(session, "closed")
	return true
}

// Len reports the number of live sessions.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}

// CloseAll disconnects and removes every session.
func (r *Registry) CloseAll() {
	r.mu.Lock()
	sessions := r.sessions
	r.sessions = make(map[string]*Session)
	r.mu.Unlock()

	for _, session := range sessions {
		r.disconnect(session, "shutdown")
	}
}

func (r *Registry) dispatch(id string, ev asr.Event) {
	session, err := r.Get(id)
	if err != nil {
		r.logger.Debug("dropping event for closed session", "session", id, "kind", ev.Kind)
		return
	}

	if text, ok := r.reconciler.Apply(session, ev); ok {
		r.logger.Info("hear", "session", id, "txt", text)
	}
}

func (r *Registry) disconnect(session *Session, reason string) {
	if err := session.conn.Disconnect(); err != nil {
		r.logger.Warn("provider disconnect failed", "session", session.id, "reason", reason, "err", err)
		return
	}
	r.logger.Info("session closed", "session", session.id, "reason", reason, "age", r.now().Sub(session.createdAt).Round(time.Second))
}

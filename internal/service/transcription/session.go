package transcription

import (
	"sync"
	"time"

	"github.com/parley-ai/parley/backend/internal/service/asr"
)

// ProviderFault is the latest failure the provider reported for a session.
type ProviderFault struct {
	Kind    asr.EventKind `json:"kind"`
	Message string        `json:"message"`
	At      time.Time     `json:"at"`
}

type partialGuess struct {
	text       string
	observedAt time.Time
}

// Session binds one browser call to one provider connection and the
// transcript state accumulated from its events.
type Session struct {
	id        string
	conn      asr.Connection
	createdAt time.Time

	mu                sync.Mutex
	transcripts       []string
	pending           *partialGuess
	lastActivity      time.Time
	fault             *ProviderFault
	providerSessionID string
}

func newSession(id string, conn asr.Connection, now time.Time) *Session {
	return &Session{
		id:           id,
		conn:         conn,
		createdAt:    now,
		transcripts:  make([]string, 0, 16),
		lastActivity: now,
	}
}

// ID returns the opaque session identifier.
func (s *Session) ID() string {
	return s.id
}

// Transcripts returns a copy of the finalized segments in order.
func (s *Session) Transcripts() []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	copied := make([]string, len(s.transcripts))
	copy(copied, s.transcripts)
	return copied
}

// LastActivity returns the most recent touch.
func (s *Session) LastActivity() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastActivity
}

// Fault returns the latest provider fault, if any.
func (s *Session) Fault() *ProviderFault {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.fault == nil {
		return nil
	}
	fault := *s.fault
	return &fault
}

// ProviderSessionID returns the vendor-side session id announced on start.
func (s *Session) ProviderSessionID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.providerSessionID
}

func (s *Session) touch(now time.Time) {
	s.mu.Lock()
	s.touchLocked(now)
	s.mu.Unlock()
}

// touchLocked never moves lastActivity backwards.
func (s *Session) touchLocked(now time.Time) {
	if now.After(s.lastActivity) {
		s.lastActivity = now
	}
}

func (s *Session) idleLongerThan(now time.Time, timeout time.Duration) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return now.Sub(s.lastActivity) > timeout
}

func (s *Session) pendingPartial() (string, time.Time, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.pending == nil {
		return "", time.Time{}, false
	}
	return s.pending.text, s.pending.observedAt, true
}

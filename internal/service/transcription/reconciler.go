package transcription

import (
	"encoding/json"
	"io"
	"strings"
	"time"

	"github.com/charmbracelet/log"

	"github.com/parley-ai/parley/backend/internal/service/asr"
)

// DefaultPartialWindow bounds how stale a partial may be when it stands in for
// an empty committed transcript.
const DefaultPartialWindow = 2 * time.Second

// Reconciler folds provider events into a session's transcript list.
type Reconciler struct {
	window time.Duration
	now    func() time.Time
	logger *log.Logger
}

// NewReconciler creates a reconciler with the given partial substitution window.
func NewReconciler(window time.Duration, logger *log.Logger) *Reconciler {
	if window <= 0 {
		window = DefaultPartialWindow
	}
	if logger == nil {
		logger = log.New(io.Discard)
	}
	return &Reconciler{
		window: window,
		now:    time.Now,
		logger: logger,
	}
}

// Apply updates the session for one event. It returns the appended segment
// and whether anything was appended.
func (r *Reconciler) Apply(s *Session, ev asr.Event) (string, bool) {
	now := r.now()

	s.mu.Lock()
	defer s.mu.Unlock()
	defer s.touchLocked(now)

	switch ev.Kind {
	case asr.EventPartial:
		text := ev.Text()
		if strings.TrimSpace(text) == "" {
			return "", false
		}
		s.pending = &partialGuess{text: text, observedAt: now}
		return "", false

	case asr.EventCommitted:
		text := ev.Text()
		if strings.TrimSpace(text) == "" {
			if s.pending == nil || now.Sub(s.pending.observedAt) >= r.window {
				return "", false
			}
			text = s.pending.text
			r.logger.Debug("recovered empty commit from partial", "session", s.id, "text", text)
		}
		return r.appendLocked(s, text), true

	case asr.EventCommittedWithTimestamps:
		text := ev.Text()
		if strings.TrimSpace(text) == "" {
			return "", false
		}
		return r.appendLocked(s, text), true

	case asr.EventStarted:
		if id := providerSessionID(ev.Payload); id != "" {
			s.providerSessionID = id
		}
		return "", false

	case asr.EventError, asr.EventAuthError, asr.EventQuotaExceeded:
		s.fault = &ProviderFault{Kind: ev.Kind, Message: ev.Message, At: now}
		r.logger.Warn("provider fault", "session", s.id, "kind", ev.Kind, "message", ev.Message)
		return "", false

	default:
		r.logger.Debug("ignoring event", "session", s.id, "kind", ev.Kind)
		return "", false
	}
}

// appendLocked records a finalized segment. A finalized segment supersedes any
// pending partial.
func (r *Reconciler) appendLocked(s *Session, text string) string {
	s.transcripts = append(s.transcripts, text)
	s.pending = nil
	return text
}

func providerSessionID(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}
	var body struct {
		SessionID string `json:"session_id"`
	}
	if err := json.Unmarshal(raw, &body); err != nil {
		return ""
	}
	return body.SessionID
}

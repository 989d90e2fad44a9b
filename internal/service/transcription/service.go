package transcription

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"

	"github.com/parley-ai/parley/backend/internal/service/asr"
)

// DefaultSampleRate applies when a caller omits the sample rate.
const DefaultSampleRate = 16000

var ErrInvalidAudio = errors.New("invalid audio frame")

// Snapshot is the read view of a session.
type Snapshot struct {
	SessionID     string
	Transcripts   []string
	ProviderFault *ProviderFault
}

// Service exposes the session operations used by the HTTP layer.
type Service struct {
	registry *Registry
}

// NewService wraps a registry.
func NewService(registry *Registry) *Service {
	return &Service{registry: registry}
}

// Registry returns the underlying registry.
func (s *Service) Registry() *Registry {
	return s.registry
}

// Open creates a session bound to a fresh provider connection.
func (s *Service) Open(ctx context.Context) (string, error) {
	s.registry.MaybeSweep()
	return s.registry.Open(ctx)
}

// SendAudio forwards one base64 PCM frame to the session's provider. The
// returned warning carries the latest provider fault, if one was recorded.
func (s *Service) SendAudio(ctx context.Context, sessionID, audioBase64 string, sampleRate int) (string, error) {
	s.registry.MaybeSweep()

	session, err := s.registry.Get(sessionID)
	if err != nil {
		return "", err
	}

	frame, err := base64.StdEncoding.DecodeString(strings.TrimSpace(audioBase64))
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidAudio, err)
	}

	if sampleRate <= 0 {
		sampleRate = DefaultSampleRate
	}

	session.touch(s.registry.now())

	if err := session.conn.Send(ctx, frame, sampleRate); err != nil {
		if errors.Is(err, asr.ErrDisconnected) {
			// evicted between lookup and send
			return "", ErrSessionNotFound
		}
		s.registry.logger.Warn("send audio failed", "session", sessionID, "err", err)
		return "", err
	}

	return warningFor(session.Fault()), nil
}

// Commit asks the provider to finalize buffered audio. New text, if any,
// arrives asynchronously and shows up on a later read.
func (s *Service) Commit(ctx context.Context, sessionID string) error {
	s.registry.MaybeSweep()

	session, err := s.registry.Get(sessionID)
	if err != nil {
		return err
	}

	session.touch(s.registry.now())

	if err := session.conn.Commit(ctx); err != nil {
		if errors.Is(err, asr.ErrDisconnected) {
			return ErrSessionNotFound
		}
		s.registry.logger.Warn("commit failed", "session", sessionID, "err", err)
		return err
	}

	s.registry.logger.Debug("commit sent", "session", sessionID)
	return nil
}

// Transcripts returns every committed segment for the session in order.
func (s *Service) Transcripts(sessionID string) (Snapshot, error) {
	s.registry.MaybeSweep()

	session, err := s.registry.Get(sessionID)
	if err != nil {
		return Snapshot{}, err
	}

	session.touch(s.registry.now())

	return Snapshot{
		SessionID:     sessionID,
		Transcripts:   session.Transcripts(),
		ProviderFault: session.Fault(),
	}, nil
}

// Conversation returns the session's transcripts, or nil for an unknown session.
func (s *Service) Conversation(sessionID string) []string {
	if sessionID == "" {
		return nil
	}
	session, err := s.registry.Get(sessionID)
	if err != nil {
		return nil
	}
	return session.Transcripts()
}

// Close tears the session down. Closing an unknown session is not an error.
func (s *Service) Close(sessionID string) {
	if !s.registry.Remove(sessionID) {
		s.registry.logger.Debug("close for unknown session", "session", sessionID)
	}
	s.registry.MaybeSweep()
}

func warningFor(fault *ProviderFault) string {
	if fault == nil {
		return ""
	}
	if fault.Message == "" {
		return string(fault.Kind)
	}
	return fmt.Sprintf("%s: %s", fault.Kind, fault.Message)
}

package asr

import (
	"fmt"

	"github.com/charmbracelet/log"

	"github.com/parley-ai/parley/backend/internal/config"
)

// NewDialer returns the dialer for the configured provider.
func NewDialer(cfg config.TranscriptionConfig, logger *log.Logger) (Dialer, error) {
	opts := SocketOptions{
		HandshakeTimeout: cfg.DialTimeout,
		WriteTimeout:     cfg.WriteTimeout,
	}

	switch cfg.Provider {
	case config.ProviderElevenLabs, "":
		return NewElevenLabsDialer(cfg.ElevenLabs, opts, logger), nil
	case config.ProviderVolcengine:
		return NewVolcengineDialer(cfg.Volcengine, opts, logger), nil
	default:
		return nil, fmt.Errorf("unknown transcription provider %q", cfg.Provider)
	}
}

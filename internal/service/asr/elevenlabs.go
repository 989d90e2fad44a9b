package asr

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/gorilla/websocket"

	"github.com/parley-ai/parley/backend/internal/config"
)

const elevenLabsDefaultSampleRate = 16000

// ElevenLabsDialer opens realtime speech-to-text sockets against ElevenLabs.
type ElevenLabsDialer struct {
	cfg    config.ElevenLabsConfig
	opts   SocketOptions
	logger *log.Logger
}

// NewElevenLabsDialer creates a dialer for the given account settings.
func NewElevenLabsDialer(cfg config.ElevenLabsConfig, opts SocketOptions, logger *log.Logger) *ElevenLabsDialer {
	if logger == nil {
		logger = log.New(io.Discard)
	}
	return &ElevenLabsDialer{cfg: cfg, opts: opts, logger: logger}
}

// Dial implements Dialer.
func (d *ElevenLabsDialer) Dial(ctx context.Context, sessionID string) (Connection, error) {
	if !d.cfg.Enabled() {
		return nil, fmt.Errorf("elevenlabs: %w: ELEVENLABS_API_KEY is empty", ErrNotConfigured)
	}

	endpoint, err := d.endpoint(elevenLabsDefaultSampleRate)
	if err != nil {
		return nil, err
	}

	header := http.Header{}
	header.Set("xi-api-key", d.cfg.APIKey)

	sock, _, err := dialSocket(ctx, endpoint, header, d.opts)
	if err != nil {
		return nil, fmt.Errorf("elevenlabs: %w", err)
	}

	d.logger.Debug("elevenlabs socket open", "session", sessionID, "model", d.cfg.ModelID)

	return &elevenLabsConn{
		sessionID: sessionID,
		sock:      sock,
		logger:    d.logger,
	}, nil
}

func (d *ElevenLabsDialer) endpoint(sampleRate int) (string, error) {
	u, err := url.Parse(d.cfg.URL)
	if err != nil {
		return "", fmt.Errorf("elevenlabs: invalid url %q: %w", d.cfg.URL, err)
	}

	q := u.Query()
	q.Set("model_id", d.cfg.ModelID)
	q.Set("audio_format", "pcm_"+strconv.Itoa(sampleRate))
	q.Set("commit_strategy", "manual")
	if d.cfg.LanguageCode != "" {
		q.Set("language_code", d.cfg.LanguageCode)
	}
	if d.cfg.IncludeTimestamps {
		q.Set("include_timestamps", "true")
	}
	u.RawQuery = q.Encode()

	return u.String(), nil
}

type elevenLabsConn struct {
	sessionID string
	sock      *socket
	logger    *log.Logger

	listenOnce sync.Once
}

type elevenLabsAudioChunk struct {
	MessageType string `json:"message_type"`
	AudioBase64 string `json:"audio_base_64"`
	Commit      bool   `json:"commit"`
	SampleRate  int    `json:"sample_rate"`
}

type elevenLabsServerMessage struct {
	MessageType string `json:"message_type"`
	Text        string `json:"text"`
	SessionID   string `json:"session_id"`
	Error       string `json:"error"`
	Message     string `json:"message"`
}

func (c *elevenLabsConn) Send(ctx context.Context, frame []byte, sampleRate int) error {
	if sampleRate <= 0 {
		sampleRate = elevenLabsDefaultSampleRate
	}
	return c.writeChunk(ctx, "send", elevenLabsAudioChunk{
		MessageType: "input_audio_chunk",
		AudioBase64: base64.StdEncoding.EncodeToString(frame),
		SampleRate:  sampleRate,
	})
}

func (c *elevenLabsConn) Commit(ctx context.Context) error {
	return c.writeChunk(ctx, "commit", elevenLabsAudioChunk{
		MessageType: "input_audio_chunk",
		Commit:      true,
		SampleRate:  elevenLabsDefaultSampleRate,
	})
}

func (c *elevenLabsConn) writeChunk(ctx context.Context, op string, chunk elevenLabsAudioChunk) error {
	data, err := json.Marshal(chunk)
	if err != nil {
		return fmt.Errorf("elevenlabs %s: marshal: %w", op, err)
	}

	if err := c.sock.write(ctx, websocket.TextMessage, data); err != nil {
		if errors.Is(err, ErrDisconnected) {
			return ErrDisconnected
		}
		return transportError("elevenlabs "+op, err)
	}
	return nil
}

func (c *elevenLabsConn) Listen(handler EventHandler) {
	c.listenOnce.Do(func() {
		go c.readLoop(handler)
	})
}

func (c *elevenLabsConn) Disconnect() error {
	return c.sock.close()
}

func (c *elevenLabsConn) readLoop(handler EventHandler) {
	for {
		messageType, data, err := c.sock.read()
		if err != nil {
			if c.sock.isClosed() || isExpectedClose(err) {
				c.logger.Debug("elevenlabs read loop finished", "session", c.sessionID)
				return
			}
			c.logger.Warn("elevenlabs read failed", "session", c.sessionID, "err", err)
			handler(Event{Kind: EventError, Message: err.Error(), ReceivedAt: time.Now()})
			return
		}

		if messageType != websocket.TextMessage {
			continue
		}

		ev, ok := decodeElevenLabsMessage(data)
		if !ok {
			c.logger.Debug("elevenlabs message ignored", "session", c.sessionID, "body", string(data))
			continue
		}
		handler(ev)
	}
}

// decodeElevenLabsMessage maps a server message onto a normalized event.
func decodeElevenLabsMessage(data []byte) (Event, bool) {
	var msg elevenLabsServerMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return Event{}, false
	}

	ev := Event{
		Payload:    json.RawMessage(data),
		ReceivedAt: time.Now(),
	}

	switch msg.MessageType {
	case "session_started":
		ev.Kind = EventStarted
	case "partial_transcript":
		ev.Kind = EventPartial
	case "committed_transcript":
		ev.Kind = EventCommitted
	case "committed_transcript_with_timestamps":
		ev.Kind = EventCommittedWithTimestamps
	case "auth_error":
		ev.Kind = EventAuthError
	case "quota_exceeded":
		ev.Kind = EventQuotaExceeded
	case "rate_limited", "commit_throttled":
		ev.Kind = EventError
	default:
		if !strings.Contains(msg.MessageType, "error") {
			return Event{}, false
		}
		ev.Kind = EventError
	}

	if ev.Kind.IsFault() {
		ev.Message = msg.Error
		if ev.Message == "" {
			ev.Message = msg.Message
		}
		if ev.Message == "" {
			ev.Message = msg.MessageType
		}
	}

	return ev, true
}

package asr

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/parley-ai/parley/backend/internal/config"
	"github.com/parley-ai/parley/backend/internal/service/asr/volcproto"
)

const (
	volcSuccessCode    = 20000000
	volcServerBusyCode = 55000031
)

// VolcengineDialer opens streaming recognition sessions against the
// Volcengine bigmodel recognizer.
type VolcengineDialer struct {
	cfg    config.VolcengineConfig
	opts   SocketOptions
	logger *log.Logger
}

// NewVolcengineDialer creates a dialer for the given credentials.
func NewVolcengineDialer(cfg config.VolcengineConfig, opts SocketOptions, logger *log.Logger) *VolcengineDialer {
	if logger == nil {
		logger = log.New(io.Discard)
	}
	return &VolcengineDialer{cfg: cfg, opts: opts, logger: logger}
}

// Dial implements Dialer. The first vendor stream is opened eagerly so bad
// credentials fail the open.
func (d *VolcengineDialer) Dial(ctx context.Context, sessionID string) (Connection, error) {
	if !d.cfg.Enabled() {
		return nil, fmt.Errorf("volcengine: %w: SPEECH_APP_ID or SPEECH_ACCESS_TOKEN is empty", ErrNotConfigured)
	}

	c := &volcengineConn{
		sessionID: sessionID,
		dialer:    d,
		logger:    d.logger,
		streams:   make(map[*volcStream]struct{}),
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if _, err := c.openLocked(ctx); err != nil {
		return nil, err
	}
	return c, nil
}

// volcRequest is the full client request that opens a recognition stream.
type volcRequest struct {
	User struct {
		UID string `json:"uid,omitempty"`
	} `json:"user"`
	Audio struct {
		Language string `json:"language,omitempty"`
		Format   string `json:"format"`
		Codec    string `json:"codec,omitempty"`
		Rate     int    `json:"rate"`
		Bits     int    `json:"bits"`
		Channel  int    `json:"channel"`
	} `json:"audio"`
	Request struct {
		ModelName      string `json:"model_name"`
		EnableITN      bool   `json:"enable_itn,omitempty"`
		EnablePunc     bool   `json:"enable_punc,omitempty"`
		ShowUtterances bool   `json:"show_utterances,omitempty"`
		ResultType     string `json:"result_type,omitempty"`
		EndWindowSize  int    `json:"end_window_size,omitempty"`
	} `json:"request"`
}

type volcUtterance struct {
	Text      string `json:"text"`
	StartTime int64  `json:"start_time"`
	EndTime   int64  `json:"end_time"`
	Definite  bool   `json:"definite"`
}

type volcResponse struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Result  struct {
		Text       string          `json:"text"`
		Utterances []volcUtterance `json:"utterances,omitempty"`
	} `json:"result"`
	AudioInfo struct {
		Duration int64 `json:"duration"`
	} `json:"audio_info"`
}

func (d *VolcengineDialer) buildRequest(sessionID string) volcRequest {
	var req volcRequest
	req.User.UID = sessionID

	req.Audio.Language = d.cfg.Language
	req.Audio.Format = "pcm"
	req.Audio.Codec = "raw"
	req.Audio.Rate = 16000
	req.Audio.Bits = 16
	req.Audio.Channel = 1

	req.Request.ModelName = "bigmodel"
	req.Request.EnableITN = true
	req.Request.EnablePunc = true
	req.Request.ShowUtterances = true
	req.Request.ResultType = "full"
	req.Request.EndWindowSize = 800

	return req
}

// volcStream is one vendor websocket. A session goes through a new stream
// after every commit.
type volcStream struct {
	sock      *socket
	connectID string
	sequence  int32
	finishing bool
}

type volcengineConn struct {
	sessionID string
	dialer    *VolcengineDialer
	logger    *log.Logger

	mu      sync.Mutex
	current *volcStream
	streams map[*volcStream]struct{}
	handler EventHandler
	closed  bool

	// serializes handler calls across overlapping streams
	emitMu sync.Mutex
}

func (c *volcengineConn) openLocked(ctx context.Context) (*volcStream, error) {
	d := c.dialer
	connectID := uuid.NewString()

	header := http.Header{}
	header.Set("X-Api-App-Key", d.cfg.AppID)
	header.Set("X-Api-Access-Key", d.cfg.AccessToken)
	header.Set("X-Api-Resource-Id", d.cfg.ResourceID)
	header.Set("X-Api-Connect-Id", connectID)

	sock, resp, err := dialSocket(ctx, d.cfg.URL, header, d.opts)
	if err != nil {
		return nil, fmt.Errorf("volcengine: %w", err)
	}
	if resp != nil {
		if logID := resp.Header.Get("X-Tt-Logid"); logID != "" {
			c.logger.Debug("volcengine stream open", "session", c.sessionID, "logid", logID)
		}
	}

	payload, err := json.Marshal(d.buildRequest(c.sessionID))
	if err != nil {
		sock.close()
		return nil, fmt.Errorf("volcengine: marshal request: %w", err)
	}
	compressed, err := volcproto.Compress(payload, volcproto.GzipCompression)
	if err != nil {
		sock.close()
		return nil, fmt.Errorf("volcengine: %w", err)
	}

	frame := volcproto.NewFullClientRequest(compressed, volcproto.GzipCompression)
	if err := sock.write(ctx, websocket.BinaryMessage, volcproto.Encode(frame)); err != nil {
		sock.close()
		return nil, fmt.Errorf("volcengine: send full client request: %w", err)
	}

	// the full client request takes sequence 1
	stream := &volcStream{sock: sock, connectID: connectID, sequence: 1}
	c.current = stream
	c.streams[stream] = struct{}{}

	if c.handler != nil {
		go c.readLoop(stream, c.handler)
	}
	return stream, nil
}

func (c *volcengineConn) Send(ctx context.Context, frame []byte, _ int) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return ErrDisconnected
	}

	stream := c.current
	if stream == nil {
		var err error
		if stream, err = c.openLocked(ctx); err != nil {
			return transportError("volcengine send", err)
		}
	}

	compressed, err := volcproto.Compress(frame, volcproto.GzipCompression)
	if err != nil {
		return fmt.Errorf("volcengine send: %w", err)
	}

	stream.sequence++
	msg := volcproto.NewAudioRequest(compressed, stream.sequence, false, volcproto.GzipCompression)
	if err := stream.sock.write(ctx, websocket.BinaryMessage, volcproto.Encode(msg)); err != nil {
		return transportError("volcengine send", err)
	}
	return nil
}

// Commit ends the current vendor stream. Its final response flushes the
// trailing utterance, and the next Send opens a fresh stream.
func (c *volcengineConn) Commit(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return ErrDisconnected
	}

	stream := c.current
	if stream == nil {
		// nothing sent since the last commit
		return nil
	}

	stream.sequence++
	msg := volcproto.NewAudioRequest(nil, stream.sequence, true, volcproto.GzipCompression)
	if err := stream.sock.write(ctx, websocket.BinaryMessage, volcproto.Encode(msg)); err != nil {
		return transportError("volcengine commit", err)
	}

	stream.finishing = true
	c.current = nil
	return nil
}

func (c *volcengineConn) Listen(handler EventHandler) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.handler != nil || c.closed {
		return
	}
	c.handler = handler
	for stream := range c.streams {
		go c.readLoop(stream, handler)
	}
}

func (c *volcengineConn) Disconnect() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	streams := c.streams
	c.streams = make(map[*volcStream]struct{})
	c.current = nil
	c.mu.Unlock()

	var errs []error
	for stream := range streams {
		if err := stream.sock.close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (c *volcengineConn) emit(handler EventHandler, ev Event) {
	c.emitMu.Lock()
	defer c.emitMu.Unlock()
	handler(ev)
}

func (c *volcengineConn) release(stream *volcStream) {
	c.mu.Lock()
	delete(c.streams, stream)
	if c.current == stream {
		c.current = nil
	}
	c.mu.Unlock()
	stream.sock.close()
}

func (c *volcengineConn) readLoop(stream *volcStream, handler EventHandler) {
	defer c.release(stream)

	started, _ := json.Marshal(map[string]string{"session_id": stream.connectID})
	c.emit(handler, Event{Kind: EventStarted, Payload: started, ReceivedAt: time.Now()})

	emitted := 0
	for {
		_, data, err := stream.sock.read()
		if err != nil {
			if stream.sock.isClosed() || isExpectedClose(err) {
				return
			}
			c.logger.Warn("volcengine read failed", "session", c.sessionID, "err", err)
			c.emit(handler, Event{Kind: EventError, Message: err.Error(), ReceivedAt: time.Now()})
			return
		}

		frame, err := volcproto.Decode(bytes.NewReader(data))
		if err != nil {
			c.logger.Warn("volcengine decode failed", "session", c.sessionID, "err", err)
			continue
		}

		if frame.IsError() {
			body, _ := frame.Body()
			c.emit(handler, volcFault(int(frame.ErrorCode), string(body)))
			return
		}

		if frame.Header.Type != volcproto.FullServerResponse {
			continue
		}

		body, err := frame.Body()
		if err != nil {
			c.logger.Warn("volcengine payload decode failed", "session", c.sessionID, "err", err)
			continue
		}

		var resp volcResponse
		if err := json.Unmarshal(body, &resp); err != nil {
			c.logger.Debug("volcengine response ignored", "session", c.sessionID, "err", err)
			continue
		}
		if resp.Code != 0 && resp.Code != volcSuccessCode {
			c.emit(handler, volcFault(resp.Code, resp.Message))
			return
		}

		var events []Event
		events, emitted = volcEvents(resp.Result.Utterances, emitted, frame.IsLast())
		for _, ev := range events {
			c.emit(handler, ev)
		}

		if frame.IsLast() {
			return
		}
	}
}

// volcEvents turns a full utterance list into events. Definite utterances
// past the emitted index become commits; the remaining tail becomes a partial,
// or a commit when the stream is ending.
func volcEvents(utterances []volcUtterance, emitted int, last bool) ([]Event, int) {
	now := time.Now()
	events := make([]Event, 0, 2)

	for emitted < len(utterances) && utterances[emitted].Definite {
		events = append(events, Event{
			Kind:       EventCommitted,
			Payload:    TextPayload(utterances[emitted].Text),
			ReceivedAt: now,
		})
		emitted++
	}

	tail := make([]string, 0, len(utterances)-emitted)
	for _, u := range utterances[emitted:] {
		if text := strings.TrimSpace(u.Text); text != "" {
			tail = append(tail, text)
		}
	}
	text := strings.Join(tail, " ")

	switch {
	case last:
		// may be empty, which lets the reconciler fall back to the last partial
		events = append(events, Event{Kind: EventCommitted, Payload: TextPayload(text), ReceivedAt: now})
		emitted = len(utterances)
	case text != "":
		events = append(events, Event{Kind: EventPartial, Payload: TextPayload(text), ReceivedAt: now})
	}

	return events, emitted
}

func volcFault(code int, message string) Event {
	ev := Event{Kind: EventError, Message: fmt.Sprintf("%d: %s", code, message), ReceivedAt: time.Now()}

	lower := strings.ToLower(message)
	switch {
	case strings.Contains(lower, "auth") || strings.Contains(lower, "token") || strings.Contains(lower, "permission"):
		ev.Kind = EventAuthError
	case code == volcServerBusyCode || strings.Contains(lower, "quota") || strings.Contains(lower, "limit"):
		ev.Kind = EventQuotaExceeded
	}
	return ev
}

package transcription

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"

	model "github.com/parley-ai/parley/backend/internal/model/transcription"
	"github.com/parley-ai/parley/backend/internal/service/asr"
	"github.com/parley-ai/parley/backend/internal/service/asr/asrtest"
	service "github.com/parley-ai/parley/backend/internal/service/transcription"
)

func newTestRouter(t *testing.T) (http.Handler, *asrtest.Dialer) {
	t.Helper()

	dialer := asrtest.NewDialer()
	registry := service.NewRegistry(dialer, service.Options{})
	t.Cleanup(registry.CloseAll)

	r := chi.NewRouter()
	New(service.NewService(registry), nil).RegisterRoutes(r)
	return r, dialer
}

func doJSON(t *testing.T, h http.Handler, method, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	}

	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	return rr
}

func openSession(t *testing.T, h http.Handler) string {
	t.Helper()

	rr := doJSON(t, h, http.MethodPost, "/connect", nil)
	if rr.Code != http.StatusCreated {
		t.Fatalf("connect status: %d body=%s", rr.Code, rr.Body.String())
	}

	var resp model.ConnectResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode connect: %v", err)
	}
	if resp.SessionID == "" {
		t.Fatal("expected session id")
	}
	return resp.SessionID
}

func TestSessionLifecycle(t *testing.T) {
	h, dialer := newTestRouter(t)
	id := openSession(t, h)
	conn := dialer.Conn(id)

	frame := base64.StdEncoding.EncodeToString(make([]byte, 640))
	rr := doJSON(t, h, http.MethodPost, "/audio", model.AudioRequest{SessionID: id, AudioBase64: frame, SampleRate: 16000})
	if rr.Code != http.StatusOK {
		t.Fatalf("audio status: %d body=%s", rr.Code, rr.Body.String())
	}

	conn.EmitPartial("hel")
	conn.EmitPartial("hello")

	rr = doJSON(t, h, http.MethodPost, "/commit", model.SessionRequest{SessionID: id})
	if rr.Code != http.StatusOK {
		t.Fatalf("commit status: %d", rr.Code)
	}
	conn.EmitCommitted("")
	conn.EmitCommitted("Yes, that works.")

	rr = doJSON(t, h, http.MethodGet, "/transcripts?sessionId="+id, nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("transcripts status: %d", rr.Code)
	}
	var snap model.TranscriptsResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &snap); err != nil {
		t.Fatalf("decode transcripts: %v", err)
	}
	if snap.Count != 2 || snap.Transcripts[0] != "hello" || snap.Transcripts[1] != "Yes, that works." {
		t.Fatalf("unexpected transcripts: %+v", snap)
	}
	if snap.ProviderError != nil {
		t.Fatalf("unexpected provider error: %+v", snap.ProviderError)
	}

	rr = doJSON(t, h, http.MethodPost, "/disconnect", model.SessionRequest{SessionID: id})
	if rr.Code != http.StatusOK {
		t.Fatalf("disconnect status: %d", rr.Code)
	}
	if conn.Disconnects() != 1 {
		t.Fatalf("expected one disconnect, got %d", conn.Disconnects())
	}

	rr = doJSON(t, h, http.MethodGet, "/transcripts?sessionId="+id, nil)
	if rr.Code != http.StatusNotFound {
		t.Fatalf("expected 404 after disconnect, got %d", rr.Code)
	}
}

func TestAudioAcceptsFrameAlias(t *testing.T) {
	h, dialer := newTestRouter(t)
	id := openSession(t, h)

	rr := doJSON(t, h, http.MethodPost, "/audio", map[string]interface{}{
		"sessionId":  id,
		"audioFrame": base64.StdEncoding.EncodeToString([]byte{1, 2}),
	})
	if rr.Code != http.StatusOK {
		t.Fatalf("audio status: %d body=%s", rr.Code, rr.Body.String())
	}

	frames := dialer.Conn(id).Frames()
	if len(frames) != 1 || frames[0].SampleRate != service.DefaultSampleRate {
		t.Fatalf("unexpected frames: %+v", frames)
	}
}

func TestAudioErrors(t *testing.T) {
	h, dialer := newTestRouter(t)
	id := openSession(t, h)

	cases := []struct {
		name   string
		body   interface{}
		status int
	}{
		{"unknown session", model.AudioRequest{SessionID: "nope", AudioBase64: "AAAA"}, http.StatusNotFound},
		{"missing session", model.AudioRequest{AudioBase64: "AAAA"}, http.StatusBadRequest},
		{"missing audio", model.AudioRequest{SessionID: id}, http.StatusBadRequest},
		{"bad base64", model.AudioRequest{SessionID: id, AudioBase64: "***"}, http.StatusBadRequest},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rr := doJSON(t, h, http.MethodPost, "/audio", tc.body)
			if rr.Code != tc.status {
				t.Fatalf("expected %d, got %d body=%s", tc.status, rr.Code, rr.Body.String())
			}
		})
	}

	dialer.Conn(id).SetSendErr(fmt.Errorf("send: %w: broken pipe", asr.ErrTransport))
	rr := doJSON(t, h, http.MethodPost, "/audio", model.AudioRequest{SessionID: id, AudioBase64: "AAAA"})
	if rr.Code != http.StatusBadGateway {
		t.Fatalf("expected 502 on transport failure, got %d", rr.Code)
	}

	// the session survives the transport failure
	rr = doJSON(t, h, http.MethodGet, "/transcripts?sessionId="+id, nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected session to survive, got %d", rr.Code)
	}
}

func TestAudioReturnsProviderWarning(t *testing.T) {
	h, dialer := newTestRouter(t)
	id := openSession(t, h)
	dialer.Conn(id).EmitFault(asr.EventQuotaExceeded, "limit reached")

	rr := doJSON(t, h, http.MethodPost, "/audio", model.AudioRequest{SessionID: id, AudioBase64: "AAAA"})
	var ack model.AckResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &ack); err != nil {
		t.Fatalf("decode ack: %v", err)
	}
	if !ack.Success || ack.Warning != "quota_exceeded: limit reached" {
		t.Fatalf("unexpected ack: %+v", ack)
	}

	rr = doJSON(t, h, http.MethodGet, "/transcripts?sessionId="+id, nil)
	var snap model.TranscriptsResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &snap); err != nil {
		t.Fatalf("decode transcripts: %v", err)
	}
	if snap.ProviderError == nil || snap.ProviderError.Kind != "quota_exceeded" {
		t.Fatalf("expected provider error, got %+v", snap.ProviderError)
	}
}

func TestCommitAndTranscriptsUnknownSession(t *testing.T) {
	h, _ := newTestRouter(t)

	if rr := doJSON(t, h, http.MethodPost, "/commit", model.SessionRequest{SessionID: "ghost"}); rr.Code != http.StatusNotFound {
		t.Fatalf("expected 404 on commit, got %d", rr.Code)
	}
	if rr := doJSON(t, h, http.MethodGet, "/transcripts?sessionId=ghost", nil); rr.Code != http.StatusNotFound {
		t.Fatalf("expected 404 on transcripts, got %d", rr.Code)
	}
	if rr := doJSON(t, h, http.MethodGet, "/transcripts", nil); rr.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 without sessionId, got %d", rr.Code)
	}
}

func TestDisconnectUnknownSessionSucceeds(t *testing.T) {
	h, _ := newTestRouter(t)

	rr := doJSON(t, h, http.MethodPost, "/disconnect", model.SessionRequest{SessionID: "ghost"})
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
	var ack model.AckResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &ack); err != nil || !ack.Success {
		t.Fatalf("unexpected ack: %+v err=%v", ack, err)
	}
}

func TestConnectFailureStatus(t *testing.T) {
	dialer := asrtest.NewDialer()
	registry := service.NewRegistry(dialer, service.Options{})
	r := chi.NewRouter()
	New(service.NewService(registry), nil).RegisterRoutes(r)

	dialer.Err = fmt.Errorf("elevenlabs: %w", asr.ErrNotConfigured)
	if rr := doJSON(t, r, http.MethodPost, "/connect", nil); rr.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503 when unconfigured, got %d", rr.Code)
	}

	dialer.Err = errors.New("dial tcp: connection refused")
	if rr := doJSON(t, r, http.MethodPost, "/connect", nil); rr.Code != http.StatusBadGateway {
		t.Fatalf("expected 502 on dial failure, got %d", rr.Code)
	}
	if registry.Len() != 0 {
		t.Fatalf("expected nothing registered, got %d", registry.Len())
	}
}

var _ SessionService = (*service.Service)(nil)

package handler

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/parley-ai/parley/backend/internal/service/asr/asrtest"
	"github.com/parley-ai/parley/backend/internal/service/transcription"
)

func newTestRouter(t *testing.T) http.Handler {
	t.Helper()

	registry := transcription.NewRegistry(asrtest.NewDialer(), transcription.Options{})
	t.Cleanup(registry.CloseAll)
	svc := transcription.NewService(registry)

	return NewRouter(Services{Transcription: svc, Conversations: svc})
}

func TestHealth(t *testing.T) {
	router := newTestRouter(t)

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/api/health", nil))
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}

	var body map[string]any
	if err := json.Unmarshal(rr.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body["status"] != "ok" || body["coach"] != false {
		t.Fatalf("unexpected health body: %v", body)
	}
}

func TestTranscriptionRoutesMounted(t *testing.T) {
	router := newTestRouter(t)

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/api/transcription/connect", nil))
	if rr.Code != http.StatusCreated {
		t.Fatalf("connect: expected 201, got %d body=%s", rr.Code, rr.Body.String())
	}

	rr = httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/api/transcription/transcripts?sessionId=missing", nil))
	if rr.Code != http.StatusNotFound {
		t.Fatalf("transcripts: expected 404, got %d", rr.Code)
	}
}

func TestCoachUnavailableWithoutModel(t *testing.T) {
	router := newTestRouter(t)

	req := httptest.NewRequest(http.MethodPost, "/api/transcription/analyze-sync", strings.NewReader(`{"actionType":"arguments"}`))
	req.Header.Set("Content-Type", "application/json")
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)
	if rr.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", rr.Code)
	}
}

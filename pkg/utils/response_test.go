package utils

import (
	"bufio"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestRespondError(t *testing.T) {
	rr := httptest.NewRecorder()
	RespondError(rr, http.StatusNotFound, "session not found")

	if rr.Code != http.StatusNotFound {
		t.Fatalf("unexpected status: %d", rr.Code)
	}
	if ct := rr.Header().Get("Content-Type"); ct != "application/json" {
		t.Fatalf("unexpected content type: %s", ct)
	}
	if body := strings.TrimSpace(rr.Body.String()); body != `{"error":"session not found"}` {
		t.Fatalf("unexpected body: %s", body)
	}
}

func TestDecodeJSON(t *testing.T) {
	var dst struct {
		SessionID string `json:"sessionId"`
	}

	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"sessionId":"abc"}`))
	if err := DecodeJSON(req, &dst); err != nil || dst.SessionID != "abc" {
		t.Fatalf("unexpected decode result: %v %q", err, dst.SessionID)
	}

	empty := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(""))
	if err := DecodeJSON(empty, &dst); err != nil {
		t.Fatalf("expected empty body to be accepted, got %v", err)
	}

	bad := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"sessionId":`))
	if err := DecodeJSON(bad, &dst); err == nil {
		t.Fatal("expected error for truncated JSON")
	}
}

func TestSendSSEEvent(t *testing.T) {
	rr := httptest.NewRecorder()
	SetupSSEHeaders(rr)

	if err := SendSSEEvent(rr, rr, "chunk", map[string]string{"content": "hi"}); err != nil {
		t.Fatalf("SendSSEEvent err: %v", err)
	}

	scanner := bufio.NewScanner(strings.NewReader(rr.Body.String()))
	var lines []string
	for scanner.Scan() {
		lines = append(lines, scanner.Text())
	}
	if len(lines) < 2 || lines[0] != "event: chunk" || lines[1] != `data: {"content":"hi"}` {
		t.Fatalf("unexpected sse body: %q", rr.Body.String())
	}
	if rr.Header().Get("Content-Type") != "text/event-stream" {
		t.Fatalf("unexpected content type: %s", rr.Header().Get("Content-Type"))
	}
}

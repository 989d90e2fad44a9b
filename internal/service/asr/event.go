package asr

import (
	"encoding/json"
	"time"
)

// EventKind enumerates the events a provider connection can emit.
type EventKind string

const (
	EventStarted                 EventKind = "started"
	EventPartial                 EventKind = "partial"
	EventCommitted               EventKind = "committed"
	EventCommittedWithTimestamps EventKind = "committed_with_timestamps"
	EventError                   EventKind = "error"
	EventAuthError               EventKind = "auth_error"
	EventQuotaExceeded           EventKind = "quota_exceeded"
)

// IsFault reports whether the event signals a provider-side failure.
func (k EventKind) IsFault() bool {
	switch k {
	case EventError, EventAuthError, EventQuotaExceeded:
		return true
	default:
		return false
	}
}

// Event is a single provider notification. Payload keeps the vendor body so
// consumers can pull fields the adapter did not normalize.
type Event struct {
	Kind       EventKind
	Payload    json.RawMessage
	Message    string
	ReceivedAt time.Time
}

// EventHandler receives events for one connection. Calls are sequential.
type EventHandler func(Event)

// Text extracts the transcript text carried by the event payload. Both a bare
// JSON string and an object with a "text" field are accepted.
func (e Event) Text() string {
	return ExtractText(e.Payload)
}

// ExtractText decodes transcript text from a raw payload.
func ExtractText(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}

	var bare string
	if err := json.Unmarshal(raw, &bare); err == nil {
		return bare
	}

	var obj struct {
		Text string `json:"text"`
	}
	if err := json.Unmarshal(raw, &obj); err == nil {
		return obj.Text
	}
	return ""
}

// TextPayload wraps text as an object payload.
func TextPayload(text string) json.RawMessage {
	data, _ := json.Marshal(map[string]string{"text": text})
	return data
}

package transcription

import "time"

// ConnectResponse is returned when a session opens.
type ConnectResponse struct {
	SessionID string `json:"sessionId"`
}

// AckResponse acknowledges audio, commit and disconnect calls.
type AckResponse struct {
	Success bool   `json:"success"`
	Warning string `json:"warning,omitempty"`
}

// ProviderError describes the latest fault reported by the provider.
type ProviderError struct {
	Kind    string    `json:"kind"`
	Message string    `json:"message"`
	At      time.Time `json:"at"`
}

// TranscriptsResponse lists every committed segment in arrival order.
type TranscriptsResponse struct {
	SessionID     string         `json:"sessionId"`
	Transcripts   []string       `json:"transcripts"`
	Count         int            `json:"count"`
	ProviderError *ProviderError `json:"providerError,omitempty"`
}

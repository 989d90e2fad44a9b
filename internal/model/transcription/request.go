package transcription

// SessionRequest identifies a session for commit and disconnect.
type SessionRequest struct {
	SessionID string `json:"sessionId"`
}

// AudioRequest carries one base64 PCM16 mono frame.
type AudioRequest struct {
	SessionID   string `json:"sessionId"`
	AudioBase64 string `json:"audioBase64"`
	AudioFrame  string `json:"audioFrame,omitempty"` // alias used by older clients
	SampleRate  int    `json:"sampleRate,omitempty"`
}

// Audio returns the frame from whichever field was set.
func (r AudioRequest) Audio() string {
	if r.AudioBase64 != "" {
		return r.AudioBase64
	}
	return r.AudioFrame
}

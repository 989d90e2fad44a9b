package config

import (
	"testing"
	"time"
)

func TestLoadTranscriptionDefaults(t *testing.T) {
	t.Setenv("TRANSCRIPTION_PROVIDER", "")
	t.Setenv("TRANSCRIPTION_SESSION_TIMEOUT", "")
	t.Setenv("ELEVENLABS_API_KEY", "xi-test")

	cfg, err := loadTranscriptionConfig()
	if err != nil {
		t.Fatalf("loadTranscriptionConfig err: %v", err)
	}

	if cfg.Provider != ProviderElevenLabs {
		t.Fatalf("expected elevenlabs provider, got %s", cfg.Provider)
	}
	if !cfg.Enabled() {
		t.Fatal("expected provider enabled with api key")
	}
	if cfg.SessionTimeout != 5*time.Minute {
		t.Fatalf("unexpected session timeout: %v", cfg.SessionTimeout)
	}
	if cfg.PartialWindow != 2*time.Second {
		t.Fatalf("unexpected partial window: %v", cfg.PartialWindow)
	}
	if cfg.ElevenLabs.ModelID != "scribe_v2_realtime" {
		t.Fatalf("unexpected model id: %s", cfg.ElevenLabs.ModelID)
	}
}

func TestLoadTranscriptionDurationOverrides(t *testing.T) {
	t.Setenv("TRANSCRIPTION_SESSION_TIMEOUT", "90")
	t.Setenv("TRANSCRIPTION_SWEEP_INTERVAL", "1m30s")

	cfg, err := loadTranscriptionConfig()
	if err != nil {
		t.Fatalf("loadTranscriptionConfig err: %v", err)
	}

	if cfg.SessionTimeout != 90*time.Second {
		t.Fatalf("expected bare seconds to parse, got %v", cfg.SessionTimeout)
	}
	if cfg.SweepInterval != 90*time.Second {
		t.Fatalf("expected duration string to parse, got %v", cfg.SweepInterval)
	}
}

func TestLoadTranscriptionRejectsInvalidValues(t *testing.T) {
	cases := map[string]string{
		"TRANSCRIPTION_PROVIDER":        "whisper",
		"TRANSCRIPTION_SESSION_TIMEOUT": "soon",
		"TRANSCRIPTION_PARTIAL_WINDOW":  "-2s",
		"ELEVENLABS_INCLUDE_TIMESTAMPS": "maybe",
	}

	for key, value := range cases {
		t.Run(key, func(t *testing.T) {
			t.Setenv(key, value)
			if _, err := loadTranscriptionConfig(); err == nil {
				t.Fatalf("expected error for %s=%q", key, value)
			}
		})
	}
}

func TestVolcengineTokenFallsBackToAPIKey(t *testing.T) {
	t.Setenv("TRANSCRIPTION_PROVIDER", ProviderVolcengine)
	t.Setenv("SPEECH_APP_ID", "app")
	t.Setenv("SPEECH_ACCESS_TOKEN", "")
	t.Setenv("SPEECH_API_KEY", "legacy-key")

	cfg, err := loadTranscriptionConfig()
	if err != nil {
		t.Fatalf("loadTranscriptionConfig err: %v", err)
	}

	if cfg.Volcengine.AccessToken != "legacy-key" {
		t.Fatalf("expected fallback token, got %q", cfg.Volcengine.AccessToken)
	}
	if !cfg.Enabled() {
		t.Fatal("expected volcengine provider enabled")
	}
}

func TestLoadServerConfigPort(t *testing.T) {
	t.Setenv("PORT", "127.0.0.1:9000")

	cfg, err := loadServerConfig()
	if err != nil {
		t.Fatalf("loadServerConfig err: %v", err)
	}
	if cfg.Addr != "127.0.0.1:9000" {
		t.Fatalf("unexpected addr: %s", cfg.Addr)
	}

	t.Setenv("PORT", "80 80")
	if _, err := loadServerConfig(); err == nil {
		t.Fatal("expected error for port with spaces")
	}
}

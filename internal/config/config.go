package config

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/cloudwego/eino-ext/components/model/ark"
	"github.com/cloudwego/eino/components/model"
)

// Config aggregates every setting the service reads at startup.
type Config struct {
	Server        ServerConfig
	AI            AIConfig
	Transcription TranscriptionConfig
}

// Load reads the configuration from the environment.
func Load() (*Config, error) {
	server, err := loadServerConfig()
	if err != nil {
		return nil, err
	}

	ai, err := loadAIConfig()
	if err != nil {
		return nil, err
	}

	transcription, err := loadTranscriptionConfig()
	if err != nil {
		return nil, err
	}

	return &Config{Server: server, AI: ai, Transcription: transcription}, nil
}

// ServerConfig describes the HTTP listener.
type ServerConfig struct {
	Addr     string
	LogLevel string
}

func loadServerConfig() (ServerConfig, error) {
	port := strings.TrimSpace(os.Getenv("PORT"))
	if port == "" {
		port = "8080"
	}

	logLevel := strings.ToLower(getEnvOrDefault("LOG_LEVEL", "info"))

	if strings.Contains(port, ":") {
		// ":8080" and "127.0.0.1:8080" are taken verbatim.
		return ServerConfig{Addr: port, LogLevel: logLevel}, nil
	}

	if strings.Contains(port, " ") {
		return ServerConfig{}, fmt.Errorf("invalid PORT value: %q", port)
	}

	return ServerConfig{Addr: ":" + port, LogLevel: logLevel}, nil
}

// AIConfig describes the chat model used by the conversation coach.
type AIConfig struct {
	APIKey         string
	AccessKey      string
	SecretKey      string
	Model          string
	BaseURL        string
	Region         string
	Temperature    *float64
	TopP           *float64
	MaxTokens      *int
	StreamResponse bool
}

// Enabled reports whether enough credentials were supplied to build a model.
func (c AIConfig) Enabled() bool {
	return c.Model != "" && (c.APIKey != "" || (c.AccessKey != "" && c.SecretKey != ""))
}

// NewChatModel builds an Ark chat model from the configuration.
func (c AIConfig) NewChatModel(ctx context.Context) (model.ChatModel, error) {
	if !c.Enabled() {
		return nil, fmt.Errorf("ark credentials or model missing: set ARK_API_KEY + ARK_MODEL or an AK/SK pair")
	}

	var temperature *float32
	if c.Temperature != nil {
		val := float32(*c.Temperature)
		temperature = &val
	}

	var topP *float32
	if c.TopP != nil {
		val := float32(*c.TopP)
		topP = &val
	}

	var maxTokens *int
	if c.MaxTokens != nil {
		val := *c.MaxTokens
		maxTokens = &val
	}

	cfg := &ark.ChatModelConfig{
		BaseURL:     c.BaseURL,
		Region:      c.Region,
		APIKey:      c.APIKey,
		AccessKey:   c.AccessKey,
		SecretKey:   c.SecretKey,
		Model:       c.Model,
		MaxTokens:   maxTokens,
		Temperature: temperature,
		TopP:        topP,
	}

	return ark.NewChatModel(ctx, cfg)
}

func loadAIConfig() (AIConfig, error) {
	temperature, err := parseOptionalFloatEnv("ARK_TEMPERATURE")
	if err != nil {
		return AIConfig{}, err
	}

	topP, err := parseOptionalFloatEnv("ARK_TOP_P")
	if err != nil {
		return AIConfig{}, err
	}

	maxTokens, err := parseOptionalIntEnv("ARK_MAX_TOKENS")
	if err != nil {
		return AIConfig{}, err
	}

	stream, err := parseBoolEnv("ARK_STREAM", true)
	if err != nil {
		return AIConfig{}, err
	}

	return AIConfig{
		APIKey:         strings.TrimSpace(os.Getenv("ARK_API_KEY")),
		AccessKey:      strings.TrimSpace(os.Getenv("ARK_ACCESS_KEY")),
		SecretKey:      strings.TrimSpace(os.Getenv("ARK_SECRET_KEY")),
		Model:          strings.TrimSpace(os.Getenv("ARK_MODEL")),
		BaseURL:        getEnvOrDefault("ARK_BASE_URL", "https://ark.cn-beijing.volces.com/api/v3"),
		Region:         getEnvOrDefault("ARK_REGION", "cn-beijing"),
		Temperature:    temperature,
		TopP:           topP,
		MaxTokens:      maxTokens,
		StreamResponse: stream,
	}, nil
}

// Provider names accepted by TRANSCRIPTION_PROVIDER.
const (
	ProviderElevenLabs = "elevenlabs"
	ProviderVolcengine = "volcengine"
)

// TranscriptionConfig covers the realtime session layer and its providers.
type TranscriptionConfig struct {
	Provider string

	ElevenLabs ElevenLabsConfig
	Volcengine VolcengineConfig

	SessionTimeout   time.Duration
	SweepInterval    time.Duration
	SweepMinInterval time.Duration
	PartialWindow    time.Duration
	DialTimeout      time.Duration
	WriteTimeout     time.Duration
}

// ElevenLabsConfig configures the ElevenLabs realtime speech-to-text socket.
type ElevenLabsConfig struct {
	APIKey            string
	ModelID           string
	URL               string
	LanguageCode      string
	IncludeTimestamps bool
}

// Enabled reports whether an API key is present.
func (c ElevenLabsConfig) Enabled() bool {
	return c.APIKey != ""
}

// VolcengineConfig configures the Volcengine bigmodel streaming recognizer.
type VolcengineConfig struct {
	AppID       string
	AccessToken string
	ResourceID  string
	URL         string
	Language    string
}

// Enabled reports whether the app id and token are present.
func (c VolcengineConfig) Enabled() bool {
	return c.AppID != "" && c.AccessToken != ""
}

// Enabled reports whether the selected provider has credentials.
func (c TranscriptionConfig) Enabled() bool {
	switch c.Provider {
	case ProviderElevenLabs:
		return c.ElevenLabs.Enabled()
	case ProviderVolcengine:
		return c.Volcengine.Enabled()
	default:
		return false
	}
}

func loadTranscriptionConfig() (TranscriptionConfig, error) {
	provider := strings.ToLower(getEnvOrDefault("TRANSCRIPTION_PROVIDER", ProviderElevenLabs))
	if provider != ProviderElevenLabs && provider != ProviderVolcengine {
		return TranscriptionConfig{}, fmt.Errorf("invalid TRANSCRIPTION_PROVIDER value: %q", provider)
	}

	includeTimestamps, err := parseBoolEnv("ELEVENLABS_INCLUDE_TIMESTAMPS", false)
	if err != nil {
		return TranscriptionConfig{}, err
	}

	cfg := TranscriptionConfig{
		Provider: provider,
		ElevenLabs: ElevenLabsConfig{
			APIKey:            strings.TrimSpace(os.Getenv("ELEVENLABS_API_KEY")),
			ModelID:           getEnvOrDefault("ELEVENLABS_STT_MODEL", "scribe_v2_realtime"),
			URL:               getEnvOrDefault("ELEVENLABS_STT_URL", "wss://api.elevenlabs.io/v1/speech-to-text/realtime"),
			LanguageCode:      strings.TrimSpace(os.Getenv("ELEVENLABS_LANGUAGE_CODE")),
			IncludeTimestamps: includeTimestamps,
		},
		Volcengine: loadVolcengineConfig(),
	}

	durations := []durationSetting{
		{"TRANSCRIPTION_SESSION_TIMEOUT", 5 * time.Minute, &cfg.SessionTimeout},
		{"TRANSCRIPTION_SWEEP_INTERVAL", 30 * time.Second, &cfg.SweepInterval},
		{"TRANSCRIPTION_SWEEP_MIN_INTERVAL", time.Second, &cfg.SweepMinInterval},
		{"TRANSCRIPTION_PARTIAL_WINDOW", 2 * time.Second, &cfg.PartialWindow},
		{"TRANSCRIPTION_DIAL_TIMEOUT", 10 * time.Second, &cfg.DialTimeout},
		{"TRANSCRIPTION_WRITE_TIMEOUT", 5 * time.Second, &cfg.WriteTimeout},
	}

	for _, d := range durations {
		val, err := parseDurationEnv(d.key, d.def)
		if err != nil {
			return TranscriptionConfig{}, err
		}
		if val <= 0 {
			return TranscriptionConfig{}, fmt.Errorf("invalid %s value: must be positive", d.key)
		}
		*d.target = val
	}

	return cfg, nil
}

type durationSetting struct {
	key    string
	def    time.Duration
	target *time.Duration
}

func loadVolcengineConfig() VolcengineConfig {
	accessToken := strings.TrimSpace(os.Getenv("SPEECH_ACCESS_TOKEN"))
	if accessToken == "" {
		accessToken = strings.TrimSpace(os.Getenv("SPEECH_API_KEY"))
	}

	return VolcengineConfig{
		AppID:       strings.TrimSpace(os.Getenv("SPEECH_APP_ID")),
		AccessToken: accessToken,
		ResourceID:  getEnvOrDefault("SPEECH_ASR_RESOURCE_ID", "volc.bigasr.sauc.duration"),
		URL:         getEnvOrDefault("SPEECH_ASR_URL", "wss://openspeech.bytedance.com/api/v3/sauc/bigmodel_async"),
		Language:    getEnvOrDefault("SPEECH_ASR_LANGUAGE", "en-US"),
	}
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := strings.TrimSpace(os.Getenv(key)); value != "" {
		return value
	}
	return defaultValue
}

func parseBoolEnv(key string, defaultValue bool) (bool, error) {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return defaultValue, nil
	}

	val, err := strconv.ParseBool(raw)
	if err != nil {
		return false, fmt.Errorf("invalid %s value %q: %w", key, raw, err)
	}
	return val, nil
}

// parseDurationEnv accepts Go durations ("90s", "5m") or a bare number of seconds.
func parseDurationEnv(key string, defaultValue time.Duration) (time.Duration, error) {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return defaultValue, nil
	}

	if seconds, err := strconv.Atoi(raw); err == nil {
		return time.Duration(seconds) * time.Second, nil
	}

	val, err := time.ParseDuration(raw)
	if err != nil {
		return 0, fmt.Errorf("invalid %s value %q: %w", key, raw, err)
	}
	return val, nil
}

func parseOptionalFloatEnv(key string) (*float64, error) {
	raw, ok := os.LookupEnv(key)
	if !ok {
		return nil, nil
	}

	value := strings.TrimSpace(raw)
	if value == "" {
		return nil, nil
	}

	val, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return nil, fmt.Errorf("invalid %s value %q: %w", key, value, err)
	}
	return &val, nil
}

func parseOptionalIntEnv(key string) (*int, error) {
	raw, ok := os.LookupEnv(key)
	if !ok {
		return nil, nil
	}

	value := strings.TrimSpace(raw)
	if value == "" {
		return nil, nil
	}

	val, err := strconv.Atoi(value)
	if err != nil {
		return nil, fmt.Errorf("invalid %s value %q: %w", key, value, err)
	}
	return &val, nil
}

package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2/log"
	"github.com/joho/godotenv"
	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

// Transcription providers.
const (
	ProviderReplicate = "replicate"
	ProviderOpenAI    = "openai"
)

// Default models per provider.
const (
	DefaultReplicateModel = "openai/whisper"
	DefaultWhisperModel   = "whisper-1"
	DefaultLLMModel       = "gpt-4o-mini"
)

// Config represents the complete relay configuration.
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Transcode TranscodeConfig `yaml:"transcode"`
	STT       STTConfig       `yaml:"stt"`
	LLM       LLMConfig       `yaml:"llm"`
	Logging   LoggingConfig   `yaml:"logging"`
}

type ServerConfig struct {
	Port            int           `yaml:"port"`
	AudioPath       string        `yaml:"audio_path"`
	CORSOrigins     string        `yaml:"cors_origins"`
	CloseGrace      time.Duration `yaml:"close_grace"`
	EventBuffer     int           `yaml:"event_buffer"`
	AccessLog       bool          `yaml:"access_log"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

type TranscodeConfig struct {
	FFmpegPath string        `yaml:"ffmpeg_path"`
	ScratchDir string        `yaml:"scratch_dir"`
	Timeout    time.Duration `yaml:"timeout"`
	SampleRate int           `yaml:"sample_rate"`
	Channels   int           `yaml:"channels"`
}

type STTConfig struct {
	Provider     string        `yaml:"provider"`
	APIToken     string        `yaml:"api_token"`
	BaseURL      string        `yaml:"base_url"`
	Model        string        `yaml:"model"`
	Version      string        `yaml:"version"`
	Language     string        `yaml:"language"`
	Timeout      time.Duration `yaml:"timeout"`
	PollInterval time.Duration `yaml:"poll_interval"`
}

type LLMConfig struct {
	APIKey            string        `yaml:"api_key"`
	BaseURL           string        `yaml:"base_url"`
	Model             string        `yaml:"model"`
	Timeout           time.Duration `yaml:"timeout"`
	MaxTokens         int           `yaml:"max_tokens"`
	Temperature       float32       `yaml:"temperature"`
	SentenceFragments bool          `yaml:"sentence_fragments"`
	SystemPrompt      string        `yaml:"system_prompt"`
}

type LoggingConfig struct {
	Level string `yaml:"level"`
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		Server: ServerConfig{
			Port:            3001,
			AudioPath:       "/audio",
			CORSOrigins:     "*",
			CloseGrace:      2 * time.Second,
			EventBuffer:     64,
			AccessLog:       true,
			ShutdownTimeout: 10 * time.Second,
		},
		Transcode: TranscodeConfig{
			FFmpegPath: "ffmpeg",
			ScratchDir: os.TempDir(),
			Timeout:    60 * time.Second,
			SampleRate: 16000,
			Channels:   1,
		},
		STT: STTConfig{
			Provider:     ProviderReplicate,
			BaseURL:      "https://api.replicate.com",
			Timeout:      120 * time.Second,
			PollInterval: time.Second,
		},
		LLM: LLMConfig{
			Model:   DefaultLLMModel,
			Timeout: 90 * time.Second,
		},
		Logging: LoggingConfig{Level: "info"},
	}
}

// Load resolves configuration from built-in defaults, an optional YAML file
// named by RELAY_CONFIG_FILE, a .env file and the environment, in that order
// of increasing precedence.
func Load() (Config, error) {
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		return Config{}, errors.Wrap(err, "load .env")
	}

	cfg := Default()
	if path := strings.TrimSpace(os.Getenv("RELAY_CONFIG_FILE")); path != "" {
		if err := cfg.loadFile(path); err != nil {
			return Config{}, err
		}
	}
	if err := cfg.applyEnv(); err != nil {
		return Config{}, err
	}
	cfg.resolve()

	if err := cfg.Validate(); err != nil {
		return Config{}, errors.Wrap(err, "config validation failed")
	}
	return cfg, nil
}

func (c *Config) loadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return errors.Wrapf(err, "failed to read config file %s", path)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return errors.Wrapf(err, "failed to parse config file %s", path)
	}
	return nil
}

func (c *Config) applyEnv() error {
	p := envParser{}

	p.intVar("PORT", &c.Server.Port)
	p.stringVar("AUDIO_PATH", &c.Server.AudioPath)
	p.stringVar("CORS_ORIGINS", &c.Server.CORSOrigins)
	p.durationVar("WS_CLOSE_GRACE", &c.Server.CloseGrace)
	p.intVar("EVENT_BUFFER", &c.Server.EventBuffer)
	p.boolVar("ACCESS_LOG", &c.Server.AccessLog)
	p.durationVar("SHUTDOWN_TIMEOUT", &c.Server.ShutdownTimeout)

	p.stringVar("FFMPEG_PATH", &c.Transcode.FFmpegPath)
	p.stringVar("SCRATCH_DIR", &c.Transcode.ScratchDir)
	p.durationVar("TRANSCODE_TIMEOUT", &c.Transcode.Timeout)

	p.stringVar("STT_PROVIDER", &c.STT.Provider)
	p.stringVar("REPLICATE_API_TOKEN", &c.STT.APIToken)
	p.stringVar("REPLICATE_BASE_URL", &c.STT.BaseURL)
	p.stringVar("STT_MODEL", &c.STT.Model)
	p.stringVar("STT_VERSION", &c.STT.Version)
	p.stringVar("STT_LANGUAGE", &c.STT.Language)
	p.durationVar("STT_TIMEOUT", &c.STT.Timeout)
	p.durationVar("STT_POLL_INTERVAL", &c.STT.PollInterval)

	p.stringVar("OPENAI_API_KEY", &c.LLM.APIKey)
	p.stringVar("OPENAI_BASE_URL", &c.LLM.BaseURL)
	p.stringVar("LLM_MODEL", &c.LLM.Model)
	p.durationVar("LLM_TIMEOUT", &c.LLM.Timeout)
	p.intVar("LLM_MAX_TOKENS", &c.LLM.MaxTokens)
	p.float32Var("LLM_TEMPERATURE", &c.LLM.Temperature)
	p.boolVar("LLM_SENTENCE_FRAGMENTS", &c.LLM.SentenceFragments)
	p.stringVar("LLM_SYSTEM_PROMPT", &c.LLM.SystemPrompt)

	p.stringVar("LOG_LEVEL", &c.Logging.Level)

	return p.err
}

// resolve fills values that depend on other settings.
func (c *Config) resolve() {
	c.STT.Provider = strings.ToLower(c.STT.Provider)
	if c.STT.Model == "" {
		switch c.STT.Provider {
		case ProviderOpenAI:
			c.STT.Model = DefaultWhisperModel
		default:
			c.STT.Model = DefaultReplicateModel
		}
	}
	if c.Transcode.ScratchDir == "" {
		c.Transcode.ScratchDir = os.TempDir()
	}
}

// Validate fails fast on settings the relay cannot start with.
func (c *Config) Validate() error {
	s := c.Server
	if s.Port < 1 || s.Port > 65535 {
		return errors.Errorf("port must be between 1 and 65535, got %d", s.Port)
	}
	if !strings.HasPrefix(s.AudioPath, "/") {
		return errors.Errorf("audio path must start with /, got %q", s.AudioPath)
	}
	if s.EventBuffer < 1 {
		return errors.Errorf("event buffer must be at least 1, got %d", s.EventBuffer)
	}
	if s.CloseGrace < 0 || s.ShutdownTimeout < 0 {
		return errors.New("durations cannot be negative")
	}

	if c.Transcode.FFmpegPath == "" {
		return errors.New("ffmpeg path cannot be empty")
	}
	if c.Transcode.Timeout <= 0 || c.STT.Timeout <= 0 || c.LLM.Timeout <= 0 {
		return errors.New("stage timeouts must be positive")
	}

	switch c.STT.Provider {
	case ProviderReplicate:
		if c.STT.APIToken == "" {
			return errors.New("REPLICATE_API_TOKEN must be set for the replicate provider")
		}
		if c.STT.PollInterval <= 0 {
			return errors.New("poll interval must be positive")
		}
	case ProviderOpenAI:
	default:
		return errors.Errorf("unknown transcription provider %q", c.STT.Provider)
	}

	if c.LLM.APIKey == "" {
		return errors.New("OPENAI_API_KEY must be set")
	}
	if c.LLM.Model == "" {
		return errors.New("LLM model cannot be empty")
	}
	if c.LLM.Temperature < 0 || c.LLM.Temperature > 2 {
		return errors.Errorf("temperature must be between 0 and 2, got %v", c.LLM.Temperature)
	}

	if _, err := c.Logging.FiberLevel(); err != nil {
		return err
	}
	return nil
}

// FiberLevel maps the configured level name onto fiber's logger.
func (l LoggingConfig) FiberLevel() (log.Level, error) {
	switch strings.ToLower(l.Level) {
	case "trace":
		return log.LevelTrace, nil
	case "debug":
		return log.LevelDebug, nil
	case "", "info":
		return log.LevelInfo, nil
	case "warn", "warning":
		return log.LevelWarn, nil
	case "error":
		return log.LevelError, nil
	default:
		return log.LevelInfo, errors.Errorf("unknown log level %q", l.Level)
	}
}

// envParser overrides fields from set environment variables and keeps the
// first parse error.
type envParser struct {
	err error
}

func (p *envParser) lookup(key string) (string, bool) {
	value, ok := os.LookupEnv(key)
	if !ok {
		return "", false
	}
	value = strings.TrimSpace(value)
	return value, value != ""
}

func (p *envParser) fail(key, value string, err error) {
	if p.err == nil {
		p.err = errors.Wrapf(err, "invalid %s=%q", key, value)
	}
}

func (p *envParser) stringVar(key string, dst *string) {
	if value, ok := p.lookup(key); ok {
		*dst = value
	}
}

func (p *envParser) intVar(key string, dst *int) {
	value, ok := p.lookup(key)
	if !ok {
		return
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		p.fail(key, value, err)
		return
	}
	*dst = parsed
}

func (p *envParser) float32Var(key string, dst *float32) {
	value, ok := p.lookup(key)
	if !ok {
		return
	}
	parsed, err := strconv.ParseFloat(value, 32)
	if err != nil {
		p.fail(key, value, err)
		return
	}
	*dst = float32(parsed)
}

func (p *envParser) boolVar(key string, dst *bool) {
	value, ok := p.lookup(key)
	if !ok {
		return
	}
	switch strings.ToLower(value) {
	case "1", "true", "yes", "on":
		*dst = true
	case "0", "false", "no", "off":
		*dst = false
	default:
		p.fail(key, value, errors.New("not a boolean"))
	}
}

// durationVar accepts Go duration strings or a bare number of seconds.
func (p *envParser) durationVar(key string, dst *time.Duration) {
	value, ok := p.lookup(key)
	if !ok {
		return
	}
	if seconds, err := strconv.ParseFloat(value, 64); err == nil {
		*dst = time.Duration(seconds * float64(time.Second))
		return
	}
	parsed, err := time.ParseDuration(value)
	if err != nil {
		p.fail(key, value, err)
		return
	}
	*dst = parsed
}

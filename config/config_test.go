package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2/log"
)

var relayKeys = []string{
	"RELAY_CONFIG_FILE", "PORT", "AUDIO_PATH", "CORS_ORIGINS", "WS_CLOSE_GRACE", "EVENT_BUFFER",
	"ACCESS_LOG", "SHUTDOWN_TIMEOUT", "FFMPEG_PATH", "SCRATCH_DIR", "TRANSCODE_TIMEOUT",
	"STT_PROVIDER", "REPLICATE_API_TOKEN", "REPLICATE_BASE_URL", "STT_MODEL", "STT_VERSION",
	"STT_LANGUAGE", "STT_TIMEOUT", "STT_POLL_INTERVAL", "OPENAI_API_KEY", "OPENAI_BASE_URL",
	"LLM_MODEL", "LLM_TIMEOUT", "LLM_MAX_TOKENS", "LLM_TEMPERATURE", "LLM_SENTENCE_FRAGMENTS",
	"LLM_SYSTEM_PROMPT", "LOG_LEVEL",
}

// isolate clears relay variables and runs the test from an empty directory
// so no .env file is picked up.
func isolate(t *testing.T) {
	t.Helper()
	for _, key := range relayKeys {
		t.Setenv(key, "")
	}
	wd, err := os.Getwd()
	if err != nil {
		t.Fatalf("getwd: %v", err)
	}
	if err := os.Chdir(t.TempDir()); err != nil {
		t.Fatalf("chdir: %v", err)
	}
	t.Cleanup(func() { _ = os.Chdir(wd) })
}

func TestLoadDefaults(t *testing.T) {
	isolate(t)
	t.Setenv("REPLICATE_API_TOKEN", "r8_token")
	t.Setenv("OPENAI_API_KEY", "sk-test")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Server.Port != 3001 || cfg.Server.AudioPath != "/audio" || cfg.Server.EventBuffer != 64 {
		t.Fatalf("unexpected server defaults: %+v", cfg.Server)
	}
	if cfg.Server.CloseGrace != 2*time.Second {
		t.Fatalf("unexpected close grace: %v", cfg.Server.CloseGrace)
	}
	if cfg.Transcode.SampleRate != 16000 || cfg.Transcode.Channels != 1 || cfg.Transcode.Timeout != time.Minute {
		t.Fatalf("unexpected transcode defaults: %+v", cfg.Transcode)
	}
	if cfg.STT.Provider != ProviderReplicate || cfg.STT.Model != DefaultReplicateModel {
		t.Fatalf("unexpected stt defaults: %+v", cfg.STT)
	}
	if cfg.LLM.Model != DefaultLLMModel || cfg.LLM.SentenceFragments {
		t.Fatalf("unexpected llm defaults: %+v", cfg.LLM)
	}
}

func TestLoadEnvOverridesFile(t *testing.T) {
	isolate(t)

	path := filepath.Join(t.TempDir(), "relay.yaml")
	yamlDoc := `
server:
  port: 8080
  event_buffer: 16
stt:
  provider: openai
  timeout: 30s
llm:
  api_key: from-file
  model: file-model
  sentence_fragments: true
logging:
  level: debug
`
	if err := os.WriteFile(path, []byte(yamlDoc), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	t.Setenv("RELAY_CONFIG_FILE", path)
	t.Setenv("PORT", "9090")
	t.Setenv("LLM_MODEL", "env-model")
	t.Setenv("LLM_TIMEOUT", "15")
	t.Setenv("LLM_TEMPERATURE", "0.7")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Server.Port != 9090 || cfg.Server.EventBuffer != 16 {
		t.Fatalf("unexpected server config: %+v", cfg.Server)
	}
	if cfg.STT.Provider != ProviderOpenAI || cfg.STT.Model != DefaultWhisperModel || cfg.STT.Timeout != 30*time.Second {
		t.Fatalf("unexpected stt config: %+v", cfg.STT)
	}
	if cfg.LLM.APIKey != "from-file" || cfg.LLM.Model != "env-model" || !cfg.LLM.SentenceFragments {
		t.Fatalf("unexpected llm config: %+v", cfg.LLM)
	}
	if cfg.LLM.Timeout != 15*time.Second || cfg.LLM.Temperature != 0.7 {
		t.Fatalf("unexpected llm tuning: %+v", cfg.LLM)
	}
	if level, _ := cfg.Logging.FiberLevel(); level != log.LevelDebug {
		t.Fatalf("unexpected log level: %v", level)
	}
}

func TestLoadRejectsBadValues(t *testing.T) {
	cases := map[string]map[string]string{
		"missing replicate token": {"OPENAI_API_KEY": "k"},
		"missing openai key":      {"REPLICATE_API_TOKEN": "t"},
		"unknown provider":        {"OPENAI_API_KEY": "k", "STT_PROVIDER": "deepgram"},
		"bad port":                {"OPENAI_API_KEY": "k", "REPLICATE_API_TOKEN": "t", "PORT": "abc"},
		"port out of range":       {"OPENAI_API_KEY": "k", "REPLICATE_API_TOKEN": "t", "PORT": "70000"},
		"bad duration":            {"OPENAI_API_KEY": "k", "REPLICATE_API_TOKEN": "t", "STT_TIMEOUT": "soon"},
		"bad bool":                {"OPENAI_API_KEY": "k", "REPLICATE_API_TOKEN": "t", "LLM_SENTENCE_FRAGMENTS": "maybe"},
		"relative audio path":     {"OPENAI_API_KEY": "k", "REPLICATE_API_TOKEN": "t", "AUDIO_PATH": "audio"},
		"bad log level":           {"OPENAI_API_KEY": "k", "REPLICATE_API_TOKEN": "t", "LOG_LEVEL": "loud"},
	}
	for name, env := range cases {
		t.Run(name, func(t *testing.T) {
			isolate(t)
			for key, value := range env {
				t.Setenv(key, value)
			}
			if _, err := Load(); err == nil {
				t.Fatalf("expected load to fail")
			}
		})
	}
}

func TestLoadMissingConfigFile(t *testing.T) {
	isolate(t)
	t.Setenv("RELAY_CONFIG_FILE", filepath.Join(t.TempDir(), "absent.yaml"))
	t.Setenv("OPENAI_API_KEY", "k")
	t.Setenv("REPLICATE_API_TOKEN", "t")

	_, err := Load()
	if err == nil || !strings.Contains(err.Error(), "failed to read config file") {
		t.Fatalf("expected read error, got %v", err)
	}
}

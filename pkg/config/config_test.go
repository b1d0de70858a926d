package config

import (
	"strings"
	"testing"
	"time"
)

var chartvoiceEnvKeys = []string{
	"CHARTVOICE_PROVIDER",
	"CHARTVOICE_AGENT_ID",
	"CHARTVOICE_REALTIME_API_KEY",
	"CHARTVOICE_CONNECT_TIMEOUT",
	"CHARTVOICE_SIGNED_URL_TTL",
	"CHARTVOICE_AGENT_BACKEND",
	"CHARTVOICE_AGENT_ENDPOINT",
	"CHARTVOICE_AGENT_API_KEY",
	"CHARTVOICE_AGENT_MODEL",
	"GEMINI_API_KEY",
	"OPENAI_API_KEY",
	"CHARTVOICE_RESOLUTION_TTL",
	"CHARTVOICE_MARKETDATA_HOST",
	"CHARTVOICE_MARKETDATA_PORT",
	"CHARTVOICE_MARKETDATA_BASE_URL",
	"CHARTVOICE_MARKETDATA_CACHE_TTL",
	"CHARTVOICE_JOBS_DRIVER",
	"CHARTVOICE_JOBS_DSN",
	"CHARTVOICE_JOBS_SQLITE_PATH",
	"CHARTVOICE_JOBS_LEASE",
	"CHARTVOICE_JOBS_POLL_INTERVAL",
	"CHARTVOICE_FFMPEG_PATH",
	"CHARTVOICE_FFPLAY_PATH",
	"CHARTVOICE_LOG_LEVEL",
}

func clearEnv(t *testing.T) {
	t.Helper()
	for _, key := range chartvoiceEnvKeys {
		t.Setenv(key, "")
	}
}

func TestLoadFromEnv_Defaults(t *testing.T) {
	clearEnv(t)
	t.Setenv("CHARTVOICE_AGENT_ENDPOINT", "http://localhost:8091/api/agent")

	cfg, err := LoadFromEnv()
	if err != nil {
		t.Fatalf("LoadFromEnv() error = %v", err)
	}

	if cfg.Provider != "openai" {
		t.Errorf("Provider = %q, want openai", cfg.Provider)
	}
	if cfg.ConnectTimeout != 10*time.Second {
		t.Errorf("ConnectTimeout = %v, want 10s", cfg.ConnectTimeout)
	}
	if cfg.SignedURLTTL != time.Minute {
		t.Errorf("SignedURLTTL = %v, want 1m", cfg.SignedURLTTL)
	}
	if cfg.AgentBackend != AgentBackendHTTP {
		t.Errorf("AgentBackend = %q, want http", cfg.AgentBackend)
	}
	if cfg.ResolutionTTL != 5*time.Minute {
		t.Errorf("ResolutionTTL = %v, want 5m", cfg.ResolutionTTL)
	}
	if cfg.MarketDataPort != 8090 {
		t.Errorf("MarketDataPort = %d, want 8090", cfg.MarketDataPort)
	}
	if cfg.MarketDataCacheTTL != 30*time.Second {
		t.Errorf("MarketDataCacheTTL = %v, want 30s", cfg.MarketDataCacheTTL)
	}
	if cfg.JobsDriver != JobsDriverSQLite {
		t.Errorf("JobsDriver = %q, want sqlite", cfg.JobsDriver)
	}
	if cfg.JobsLease != time.Minute {
		t.Errorf("JobsLease = %v, want 1m", cfg.JobsLease)
	}
	if cfg.FFmpegPath != "ffmpeg" || cfg.FFplayPath != "ffplay" {
		t.Errorf("tool paths = %q, %q", cfg.FFmpegPath, cfg.FFplayPath)
	}
}

func TestLoadFromEnv_Overrides(t *testing.T) {
	clearEnv(t)
	t.Setenv("CHARTVOICE_PROVIDER", "elevenlabs")
	t.Setenv("CHARTVOICE_AGENT_BACKEND", "gemini")
	t.Setenv("CHARTVOICE_CONNECT_TIMEOUT", "3s")
	t.Setenv("CHARTVOICE_MARKETDATA_PORT", "9000")
	t.Setenv("GEMINI_API_KEY", "g-key")

	cfg, err := LoadFromEnv()
	if err != nil {
		t.Fatalf("LoadFromEnv() error = %v", err)
	}
	if cfg.Provider != "elevenlabs" {
		t.Errorf("Provider = %q", cfg.Provider)
	}
	if cfg.AgentBackend != AgentBackendGemini {
		t.Errorf("AgentBackend = %q", cfg.AgentBackend)
	}
	if cfg.ConnectTimeout != 3*time.Second {
		t.Errorf("ConnectTimeout = %v", cfg.ConnectTimeout)
	}
	if cfg.MarketDataPort != 9000 {
		t.Errorf("MarketDataPort = %d", cfg.MarketDataPort)
	}
	if cfg.GeminiAPIKey != "g-key" {
		t.Errorf("GeminiAPIKey = %q", cfg.GeminiAPIKey)
	}
}

func TestLoadFromEnv_Rejections(t *testing.T) {
	cases := []struct {
		name    string
		key     string
		value   string
		wantErr string
	}{
		{"bad agent backend", "CHARTVOICE_AGENT_BACKEND", "llama", "CHARTVOICE_AGENT_BACKEND"},
		{"bad jobs driver", "CHARTVOICE_JOBS_DRIVER", "mysql", "CHARTVOICE_JOBS_DRIVER"},
		{"bad port", "CHARTVOICE_MARKETDATA_PORT", "99999", "CHARTVOICE_MARKETDATA_PORT"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			clearEnv(t)
			t.Setenv("CHARTVOICE_AGENT_ENDPOINT", "http://localhost:8091/api/agent")
			t.Setenv(tc.key, tc.value)

			_, err := LoadFromEnv()
			if err == nil {
				t.Fatal("LoadFromEnv() succeeded, want error")
			}
			if !strings.Contains(err.Error(), tc.wantErr) {
				t.Errorf("error = %v, want mention of %s", err, tc.wantErr)
			}
		})
	}
}

func TestLoadFromEnv_HTTPBackendRequiresEndpoint(t *testing.T) {
	clearEnv(t)
	if _, err := LoadFromEnv(); err == nil {
		t.Fatal("LoadFromEnv() succeeded without agent endpoint")
	}
}

func TestLoadFromEnv_PostgresRequiresDSN(t *testing.T) {
	clearEnv(t)
	t.Setenv("CHARTVOICE_AGENT_ENDPOINT", "http://localhost:8091/api/agent")
	t.Setenv("CHARTVOICE_JOBS_DRIVER", "postgres")
	if _, err := LoadFromEnv(); err == nil {
		t.Fatal("LoadFromEnv() succeeded without postgres DSN")
	}
}

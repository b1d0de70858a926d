// Package config loads the application configuration from environment
// variables. Every knob has a CHARTVOICE_ prefixed variable and a sane
// default; .env loading happens in cmd, not here.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// AgentBackend selects who answers agent queries.
type AgentBackend string

const (
	AgentBackendHTTP   AgentBackend = "http"
	AgentBackendGemini AgentBackend = "gemini"
	AgentBackendOpenAI AgentBackend = "openai"
)

// JobsDriver selects the queue store.
type JobsDriver string

const (
	JobsDriverSQLite   JobsDriver = "sqlite"
	JobsDriverPostgres JobsDriver = "postgres"
)

type Config struct {
	// Realtime voice session.
	Provider       string
	AgentID        string
	RealtimeAPIKey string
	ConnectTimeout time.Duration
	SignedURLTTL   time.Duration

	// Agent query dispatch.
	AgentBackend  AgentBackend
	AgentEndpoint string
	AgentAPIKey   string
	AgentModel    string
	GeminiAPIKey  string
	OpenAIAPIKey  string

	// Chart command parsing.
	ResolutionTTL time.Duration

	// Market-data service.
	MarketDataHost     string
	MarketDataPort     int
	MarketDataBaseURL  string
	MarketDataCacheTTL time.Duration

	// Render-job queue.
	JobsDriver       JobsDriver
	JobsDSN          string
	JobsSQLitePath   string
	JobsLease        time.Duration
	JobsPollInterval time.Duration

	// Audio subprocess tools.
	FFmpegPath string
	FFplayPath string

	LogLevel string
}

func LoadFromEnv() (Config, error) {
	cfg := Config{
		Provider:           envOr("CHARTVOICE_PROVIDER", "openai"),
		AgentID:            envOr("CHARTVOICE_AGENT_ID", ""),
		RealtimeAPIKey:     envOr("CHARTVOICE_REALTIME_API_KEY", ""),
		ConnectTimeout:     envDurationOr("CHARTVOICE_CONNECT_TIMEOUT", 10*time.Second),
		SignedURLTTL:       envDurationOr("CHARTVOICE_SIGNED_URL_TTL", time.Minute),
		AgentBackend:       AgentBackend(envOr("CHARTVOICE_AGENT_BACKEND", string(AgentBackendHTTP))),
		AgentEndpoint:      envOr("CHARTVOICE_AGENT_ENDPOINT", ""),
		AgentAPIKey:        envOr("CHARTVOICE_AGENT_API_KEY", ""),
		AgentModel:         envOr("CHARTVOICE_AGENT_MODEL", ""),
		GeminiAPIKey:       envOr("GEMINI_API_KEY", ""),
		OpenAIAPIKey:       envOr("OPENAI_API_KEY", ""),
		ResolutionTTL:      envDurationOr("CHARTVOICE_RESOLUTION_TTL", 5*time.Minute),
		MarketDataHost:     envOr("CHARTVOICE_MARKETDATA_HOST", "127.0.0.1"),
		MarketDataPort:     envIntOr("CHARTVOICE_MARKETDATA_PORT", 8090),
		MarketDataBaseURL:  envOr("CHARTVOICE_MARKETDATA_BASE_URL", ""),
		MarketDataCacheTTL: envDurationOr("CHARTVOICE_MARKETDATA_CACHE_TTL", 30*time.Second),
		JobsDriver:         JobsDriver(envOr("CHARTVOICE_JOBS_DRIVER", string(JobsDriverSQLite))),
		JobsDSN:            envOr("CHARTVOICE_JOBS_DSN", ""),
		JobsSQLitePath:     envOr("CHARTVOICE_JOBS_SQLITE_PATH", "chartvoice-jobs.db"),
		JobsLease:          envDurationOr("CHARTVOICE_JOBS_LEASE", time.Minute),
		JobsPollInterval:   envDurationOr("CHARTVOICE_JOBS_POLL_INTERVAL", 2*time.Second),
		FFmpegPath:         envOr("CHARTVOICE_FFMPEG_PATH", "ffmpeg"),
		FFplayPath:         envOr("CHARTVOICE_FFPLAY_PATH", "ffplay"),
		LogLevel:           envOr("CHARTVOICE_LOG_LEVEL", "info"),
	}

	switch cfg.AgentBackend {
	case AgentBackendHTTP, AgentBackendGemini, AgentBackendOpenAI:
	default:
		return Config{}, fmt.Errorf("CHARTVOICE_AGENT_BACKEND must be one of http|gemini|openai")
	}
	switch cfg.JobsDriver {
	case JobsDriverSQLite, JobsDriverPostgres:
	default:
		return Config{}, fmt.Errorf("CHARTVOICE_JOBS_DRIVER must be one of sqlite|postgres")
	}

	if cfg.ConnectTimeout <= 0 {
		return Config{}, fmt.Errorf("CHARTVOICE_CONNECT_TIMEOUT must be > 0")
	}
	if cfg.SignedURLTTL <= 0 {
		return Config{}, fmt.Errorf("CHARTVOICE_SIGNED_URL_TTL must be > 0")
	}
	if cfg.ResolutionTTL <= 0 {
		return Config{}, fmt.Errorf("CHARTVOICE_RESOLUTION_TTL must be > 0")
	}
	if cfg.MarketDataPort <= 0 || cfg.MarketDataPort > 65535 {
		return Config{}, fmt.Errorf("CHARTVOICE_MARKETDATA_PORT must be a valid port")
	}
	if cfg.MarketDataCacheTTL <= 0 {
		return Config{}, fmt.Errorf("CHARTVOICE_MARKETDATA_CACHE_TTL must be > 0")
	}
	if cfg.JobsLease <= 0 {
		return Config{}, fmt.Errorf("CHARTVOICE_JOBS_LEASE must be > 0")
	}
	if cfg.JobsPollInterval <= 0 {
		return Config{}, fmt.Errorf("CHARTVOICE_JOBS_POLL_INTERVAL must be > 0")
	}
	if cfg.JobsDriver == JobsDriverPostgres && strings.TrimSpace(cfg.JobsDSN) == "" {
		return Config{}, fmt.Errorf("CHARTVOICE_JOBS_DSN must be set when CHARTVOICE_JOBS_DRIVER=postgres")
	}
	if cfg.AgentBackend == AgentBackendHTTP && strings.TrimSpace(cfg.AgentEndpoint) == "" {
		return Config{}, fmt.Errorf("CHARTVOICE_AGENT_ENDPOINT must be set when CHARTVOICE_AGENT_BACKEND=http")
	}

	return cfg, nil
}

func envOr(key, def string) string {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	return v
}

func envIntOr(key string, def int) int {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return def
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return def
	}
	return n
}

func envDurationOr(key string, def time.Duration) time.Duration {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return def
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return def
	}
	return d
}

// Package config provides application configuration.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds all application configuration.
type Config struct {
	Port            string
	FrontendURL     string
	DBPath          string
	WorkspaceDir    string
	LLM             LLMConfig
	Agent           AgentConfig
	Sandbox         SandboxConfig
	Session         SessionConfig
	RateLimit       RateLimitConfig
	SSE             SSEConfig
	ToolTimeout     time.Duration
	BridgeTimeout   time.Duration
	ExecLogSize     int
	ConversationLog ConversationLogConfig
}

// LLMConfig selects and tunes the model provider.
type LLMConfig struct {
	Provider    string // openai, deepseek or ollama
	Model       string
	APIKey      string
	BaseURL     string
	MaxTokens   int
	Temperature float64
}

// AgentConfig bounds the agent loop.
type AgentConfig struct {
	MaxIterations          int
	MaxConsecutiveFailures int
	HistoryWindow          int
	Instructions           string
}

// SandboxConfig selects where run_command executes. An empty Image runs
// commands on the host inside the workspace directory.
type SandboxConfig struct {
	Image          string
	Runtime        string // Docker runtime: "" = default (runc), "runsc" = gVisor
	OutputLimit    int
	MemoryMB       int64
	NanoCPUs       int64
	DisableNetwork bool
}

// SessionConfig controls idle session cleanup.
type SessionConfig struct {
	TTL             time.Duration
	CleanupSchedule string
}

// RateLimitConfig throttles chat requests per session.
type RateLimitConfig struct {
	RequestsPerMinute int
	Burst             int
}

// SSEConfig tunes server-sent event streams.
type SSEConfig struct {
	KeepaliveInterval  time.Duration
	RetryDelay         time.Duration
	MaxRequestBodySize int64
	ReplayQueueSize    int
}

// ConversationLogConfig controls JSON conversation logging.
type ConversationLogConfig struct {
	Enabled       bool
	Dir           string
	GlobalEnabled bool
	GlobalPath    string
	QueueSize     int
}

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	queueSize := getEnvInt("CONVERSATION_LOG_QUEUE_SIZE", 1000)
	if queueSize <= 0 {
		queueSize = 1000
	}

	cfg := &Config{
		Port:         getEnv("PORT", "8080"),
		FrontendURL:  getEnv("FRONTEND_URL", ""),
		DBPath:       getEnv("DB_PATH", "./data/neuro.db"),
		WorkspaceDir: getEnv("WORKSPACE_DIR", "./data/workspace"),
		LLM: LLMConfig{
			Provider:    strings.ToLower(getEnv("LLM_PROVIDER", "openai")),
			Model:       getEnv("LLM_MODEL", ""),
			APIKey:      getEnv("LLM_API_KEY", ""),
			BaseURL:     getEnv("LLM_BASE_URL", ""),
			MaxTokens:   getEnvInt("LLM_MAX_TOKENS", 0),
			Temperature: getEnvFloat("LLM_TEMPERATURE", 0.2),
		},
		Agent: AgentConfig{
			MaxIterations:          getEnvInt("AGENT_MAX_ITERATIONS", 10),
			MaxConsecutiveFailures: getEnvInt("AGENT_MAX_CONSECUTIVE_FAILURES", 3),
			HistoryWindow:          getEnvInt("AGENT_HISTORY_WINDOW", 10),
			Instructions:           getEnv("AGENT_INSTRUCTIONS", ""),
		},
		Sandbox: SandboxConfig{
			Image:          getEnv("SANDBOX_IMAGE", ""),
			Runtime:        getEnv("SANDBOX_RUNTIME", ""),
			OutputLimit:    getEnvInt("SANDBOX_OUTPUT_LIMIT", 64*1024),
			MemoryMB:       int64(getEnvInt("SANDBOX_MEMORY_MB", 512)),
			NanoCPUs:       int64(getEnvFloat("SANDBOX_CPUS", 1) * 1e9),
			DisableNetwork: getEnvBool("SANDBOX_DISABLE_NETWORK", false),
		},
		Session: SessionConfig{
			TTL:             getEnvDuration("SESSION_TTL", 30*24*time.Hour),
			CleanupSchedule: getEnv("SESSION_CLEANUP_SCHEDULE", "@hourly"),
		},
		RateLimit: RateLimitConfig{
			RequestsPerMinute: getEnvInt("RATE_LIMIT_PER_MINUTE", 20),
			Burst:             getEnvInt("RATE_LIMIT_BURST", 5),
		},
		SSE: SSEConfig{
			KeepaliveInterval:  getEnvDuration("SSE_KEEPALIVE", 15*time.Second),
			RetryDelay:         getEnvDuration("SSE_RETRY", 5*time.Second),
			MaxRequestBodySize: int64(getEnvInt("MAX_REQUEST_BODY_SIZE", 1<<20)),
			ReplayQueueSize:    getEnvInt("SSE_REPLAY_QUEUE_SIZE", 100),
		},
		ToolTimeout:   getEnvDuration("TOOL_TIMEOUT", 60*time.Second),
		BridgeTimeout: getEnvDuration("BRIDGE_TIMEOUT", 30*time.Second),
		ExecLogSize:   getEnvInt("EXEC_LOG_SIZE", 200),
		ConversationLog: ConversationLogConfig{
			Enabled:       getEnvBool("CONVERSATION_LOG_ENABLED", true),
			Dir:           getEnv("CONVERSATION_LOG_DIR", "./data/logs/conversations"),
			GlobalEnabled: getEnvBool("CONVERSATION_LOG_GLOBAL_ENABLED", false),
			GlobalPath:    getEnv("CONVERSATION_LOG_GLOBAL_PATH", "./data/logs/conversations/all.ndjson"),
			QueueSize:     queueSize,
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// Validate checks that all required configuration fields are set.
func (c *Config) Validate() error {
	if c.Port == "" {
		return fmt.Errorf("PORT cannot be empty")
	}
	if c.DBPath == "" {
		return fmt.Errorf("DB_PATH cannot be empty")
	}
	if c.WorkspaceDir == "" {
		return fmt.Errorf("WORKSPACE_DIR cannot be empty")
	}
	switch c.LLM.Provider {
	case "openai", "deepseek", "ollama":
	default:
		return fmt.Errorf("LLM_PROVIDER must be one of openai, deepseek, ollama (got %q)", c.LLM.Provider)
	}
	if c.Agent.MaxIterations <= 0 {
		return fmt.Errorf("AGENT_MAX_ITERATIONS must be > 0")
	}
	if c.Agent.MaxConsecutiveFailures <= 0 {
		return fmt.Errorf("AGENT_MAX_CONSECUTIVE_FAILURES must be > 0")
	}
	if c.Agent.HistoryWindow < 0 {
		return fmt.Errorf("AGENT_HISTORY_WINDOW cannot be negative")
	}
	if c.ToolTimeout <= 0 {
		return fmt.Errorf("TOOL_TIMEOUT must be > 0")
	}
	if c.BridgeTimeout <= 0 {
		return fmt.Errorf("BRIDGE_TIMEOUT must be > 0")
	}
	if c.ExecLogSize <= 0 {
		return fmt.Errorf("EXEC_LOG_SIZE must be > 0")
	}
	if c.RateLimit.RequestsPerMinute <= 0 {
		return fmt.Errorf("RATE_LIMIT_PER_MINUTE must be > 0")
	}
	if c.SSE.KeepaliveInterval <= 0 {
		return fmt.Errorf("SSE_KEEPALIVE must be > 0")
	}
	if c.ConversationLog.Dir == "" {
		return fmt.Errorf("CONVERSATION_LOG_DIR cannot be empty")
	}
	if c.ConversationLog.GlobalPath == "" {
		return fmt.Errorf("CONVERSATION_LOG_GLOBAL_PATH cannot be empty")
	}
	if c.ConversationLog.QueueSize <= 0 {
		return fmt.Errorf("CONVERSATION_LOG_QUEUE_SIZE must be > 0")
	}
	return nil
}

// IsDevelopment returns true if running in development mode.
func (c *Config) IsDevelopment() bool {
	return c.FrontendURL == "" ||
		strings.Contains(c.FrontendURL, "localhost") ||
		strings.Contains(c.FrontendURL, "127.0.0.1")
}

// AllowedOrigins returns the CORS origins derived from FrontendURL.
func (c *Config) AllowedOrigins() []string {
	if c.FrontendURL == "" {
		return []string{"*"}
	}
	var origins []string
	for _, o := range strings.Split(c.FrontendURL, ",") {
		if o = strings.TrimSpace(o); o != "" {
			origins = append(origins, o)
		}
	}
	return origins
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	value, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "1", "true", "yes", "on":
		return true
	case "0", "false", "no", "off":
		return false
	default:
		return fallback
	}
}

func getEnvInt(key string, fallback int) int {
	value, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	n, err := strconv.Atoi(strings.TrimSpace(value))
	if err != nil {
		return fallback
	}
	return n
}

func getEnvFloat(key string, fallback float64) float64 {
	value, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	f, err := strconv.ParseFloat(strings.TrimSpace(value), 64)
	if err != nil {
		return fallback
	}
	return f
}

// getEnvDuration accepts Go durations ("90s", "720h") or a bare number of
// seconds.
func getEnvDuration(key string, fallback time.Duration) time.Duration {
	value, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	value = strings.TrimSpace(value)
	if d, err := time.ParseDuration(value); err == nil {
		return d
	}
	if n, err := strconv.Atoi(value); err == nil {
		return time.Duration(n) * time.Second
	}
	return fallback
}

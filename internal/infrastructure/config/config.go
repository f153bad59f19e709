package config

import (
	"fmt"
	"time"

	"github.com/kelseyhightower/envconfig"
)

// Config holds all application configuration.
type Config struct {
	Server     ServerConfig
	Agent      AgentConfig
	Pump       PumpConfig
	Bridge     BridgeConfig
	Supervisor SupervisorConfig
	Logging    LogConfig
	RateLimit  RateLimitConfig
	Sink       SinkConfig
	WebSocket  WebSocketConfig
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Port string `envconfig:"PORT" default:"8000"`
	Host string `envconfig:"HOST" default:"0.0.0.0"`
	// AllowOrigins lists origins accepted by CORS.
	AllowOrigins []string `envconfig:"CORS_ORIGINS" default:"*"`
	// ShutdownTimeout bounds graceful shutdown.
	ShutdownTimeout time.Duration `envconfig:"SHUTDOWN_TIMEOUT" default:"10s"`
}

// AgentConfig describes how to find and invoke the wrapped agent.
type AgentConfig struct {
	Binary          string   `envconfig:"AGENT_BIN" default:"claude"`
	SearchPaths     []string `envconfig:"AGENT_SEARCH_PATHS" default:"~/.local/bin,/usr/local/bin,/opt/homebrew/bin"`
	Shell           string   `envconfig:"AGENT_SHELL" default:"/bin/bash"`
	ResumeFlag      string   `envconfig:"AGENT_RESUME_FLAG" default:"--resume"`
	InteractiveArgs []string `envconfig:"AGENT_INTERACTIVE_ARGS"`
	HeadlessArgs    []string `envconfig:"AGENT_HEADLESS_ARGS" default:"-p,--output-format,stream-json,--verbose"`
	WorkDir         string   `envconfig:"AGENT_WORKDIR"`
}

// PumpConfig controls the blocking read loop.
type PumpConfig struct {
	PollTimeout time.Duration `envconfig:"PUMP_POLL_TIMEOUT" default:"1s"`
	ChunkSize   int           `envconfig:"PUMP_CHUNK_SIZE" default:"4096"`
}

// BridgeConfig controls the hand-off between the pump and the consumer.
type BridgeConfig struct {
	QueueSize       int           `envconfig:"BRIDGE_QUEUE_SIZE" default:"256"`
	ScheduleTimeout time.Duration `envconfig:"BRIDGE_SCHEDULE_TIMEOUT" default:"100ms"`
}

// SupervisorConfig holds session lifecycle settings.
type SupervisorConfig struct {
	TeardownGrace       time.Duration `envconfig:"TEARDOWN_GRACE" default:"1s"`
	TeardownJoinTimeout time.Duration `envconfig:"TEARDOWN_JOIN_TIMEOUT" default:"2s"`
	ConditionerEnabled  bool          `envconfig:"CONDITIONER_ENABLED" default:"true"`
	DefaultRows         int           `envconfig:"DEFAULT_ROWS" default:"24"`
	DefaultCols         int           `envconfig:"DEFAULT_COLS" default:"80"`
}

// LogConfig holds logging configuration.
type LogConfig struct {
	Level       string `envconfig:"LOG_LEVEL" default:"info"`
	Development bool   `envconfig:"LOG_DEV" default:"false"`
}

// RateLimitConfig holds rate limiting configuration.
type RateLimitConfig struct {
	RequestsPerSecond int  `envconfig:"RATE_LIMIT_RPS" default:"100"`
	Burst             int  `envconfig:"RATE_LIMIT_BURST" default:"200"`
	Enabled           bool `envconfig:"RATE_LIMIT_ENABLED" default:"true"`
}

// SinkConfig configures the breaker in front of client delivery.
type SinkConfig struct {
	MaxFailures uint32        `envconfig:"SINK_BREAKER_FAILURES" default:"5"`
	Cooldown    time.Duration `envconfig:"SINK_BREAKER_COOLDOWN" default:"5s"`
}

// WebSocketConfig controls the client connection.
type WebSocketConfig struct {
	WriteTimeout time.Duration `envconfig:"WS_WRITE_TIMEOUT" default:"5s"`
	InputRate    float64       `envconfig:"WS_INPUT_RATE" default:"200"`
	InputBurst   int           `envconfig:"WS_INPUT_BURST" default:"64"`
}

// Load loads configuration from environment variables.
func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	return &cfg, nil
}

// LoadOrDefault loads configuration from environment or returns default.
func LoadOrDefault() *Config {
	cfg, err := Load()
	if err != nil {
		return Default()
	}
	return cfg
}

// Default returns default configuration.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Port:            "8000",
			Host:            "0.0.0.0",
			AllowOrigins:    []string{"*"},
			ShutdownTimeout: 10 * time.Second,
		},
		Agent: AgentConfig{
			Binary:       "claude",
			SearchPaths:  []string{"~/.local/bin", "/usr/local/bin", "/opt/homebrew/bin"},
			Shell:        "/bin/bash",
			ResumeFlag:   "--resume",
			HeadlessArgs: []string{"-p", "--output-format", "stream-json", "--verbose"},
		},
		Pump: PumpConfig{
			PollTimeout: time.Second,
			ChunkSize:   4096,
		},
		Bridge: BridgeConfig{
			QueueSize:       256,
			ScheduleTimeout: 100 * time.Millisecond,
		},
		Supervisor: SupervisorConfig{
			TeardownGrace:       time.Second,
			TeardownJoinTimeout: 2 * time.Second,
			ConditionerEnabled:  true,
			DefaultRows:         24,
			DefaultCols:         80,
		},
		Logging: LogConfig{
			Level:       "info",
			Development: false,
		},
		RateLimit: RateLimitConfig{
			RequestsPerSecond: 100,
			Burst:             200,
			Enabled:           true,
		},
		Sink: SinkConfig{
			MaxFailures: 5,
			Cooldown:    5 * time.Second,
		},
		WebSocket: WebSocketConfig{
			WriteTimeout: 5 * time.Second,
			InputRate:    200,
			InputBurst:   64,
		},
	}
}

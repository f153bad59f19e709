// Package config provides 12-factor configuration management for the agent supervisor.
//
// Configuration is loaded from environment variables with sensible defaults.
//
// Configuration Sections:
//   - Server: HTTP server settings (port, host)
//   - Agent: executable name, fallback search paths, shell, resume flag, argument lists
//   - Pump: readiness poll timeout and read chunk size
//   - Bridge: delivery queue size and scheduling timeout
//   - Supervisor: teardown intervals, default geometry, conditioner default
//   - Logging: Log level and output format
//   - RateLimit: Per-IP rate limiting configuration
//   - Sink: circuit breaker in front of client delivery
//
// Example Usage:
//
//	cfg := config.LoadOrDefault()
//	fmt.Printf("Server running on %s:%s\n", cfg.Server.Host, cfg.Server.Port)
//
// Environment Variables:
//   - PORT, HOST
//   - AGENT_BIN, AGENT_SEARCH_PATHS, AGENT_SHELL, AGENT_RESUME_FLAG, AGENT_HEADLESS_ARGS, AGENT_WORKDIR
//   - PUMP_POLL_TIMEOUT, PUMP_CHUNK_SIZE
//   - BRIDGE_QUEUE_SIZE, BRIDGE_SCHEDULE_TIMEOUT
//   - TEARDOWN_GRACE, TEARDOWN_JOIN_TIMEOUT, CONDITIONER_ENABLED
//   - LOG_LEVEL, LOG_DEV
//   - RATE_LIMIT_RPS, RATE_LIMIT_BURST
package config

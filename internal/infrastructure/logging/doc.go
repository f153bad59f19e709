// Package logging provides structured logging using uber/zap.
//
// Two modes are offered:
//   - Production: JSON output for machine parsing
//   - Development: Colored console output for human readability
//
// Components take a *zap.Logger and derive named children
// ("supervisor", "pump", "bridge") so every line carries its origin.
// Per-chunk terminal traffic is only ever logged at Debug.
//
// Example Usage:
//
//	logger, err := logging.New(logging.Config{Level: "info"})
//	logger.Info("Session started", zap.String("session", id))
//	logger.Error("Spawn failed", zap.Error(err))
package logging

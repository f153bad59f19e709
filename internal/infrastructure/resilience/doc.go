/*
Package resilience provides a circuit breaker for graceful degradation.

# Overview

The supervisor forwards every output record to a client connection that may
fail at any time. Breaker wraps sony/gobreaker so that once a connection has
failed MaxFailures times in a row, further sends are rejected immediately
with ErrCircuitOpen until the cooldown elapses and a trial send succeeds.

# Usage

	b := resilience.New("ws-sink", resilience.Settings{
		MaxFailures: 5,
		Cooldown:    5 * time.Second,
	}, logger)

	err := b.Do(func() error {
		return conn.WriteJSON(msg)
	})
	if errors.Is(err, resilience.ErrCircuitOpen) {
		// shed
	}
*/
package resilience

package monitoring

import "time"

// The helpers below are nil-safe so components can run without metrics.

// RecordHTTPRequest records HTTP request metrics
func (m *Metrics) RecordHTTPRequest(method, path, status string, duration time.Duration) {
	if m == nil {
		return
	}
	m.RequestsTotal.WithLabelValues(method, path, status).Inc()
	m.RequestDuration.WithLabelValues(method, path).Observe(duration.Seconds())
}

// SessionStarted records a child process attaching to a session.
func (m *Metrics) SessionStarted(mode string) {
	if m == nil {
		return
	}
	m.SessionsStarted.WithLabelValues(mode).Inc()
	m.SessionsActive.Inc()
}

// SessionEnded records a completed teardown.
func (m *Metrics) SessionEnded(mode, reason string, took time.Duration) {
	if m == nil {
		return
	}
	m.SessionsEnded.WithLabelValues(mode, reason).Inc()
	m.SessionsActive.Dec()
	m.TeardownDuration.Observe(took.Seconds())
}

// LaunchFailed records a spawn that never produced a child.
func (m *Metrics) LaunchFailed(mode string) {
	if m == nil {
		return
	}
	m.LaunchFailures.WithLabelValues(mode).Inc()
}

// Resume records how a resume request resolved.
func (m *Metrics) Resume(outcome string) {
	if m == nil {
		return
	}
	m.ResumeOutcomes.WithLabelValues(outcome).Inc()
}

// AgentIDCapture records a newly captured agent session identifier.
func (m *Metrics) AgentIDCapture() {
	if m == nil {
		return
	}
	m.AgentIDCaptured.Inc()
}

// Read records bytes pulled off a child descriptor.
func (m *Metrics) Read(mode, stream string, n int) {
	if m == nil {
		return
	}
	m.BytesRead.WithLabelValues(mode, stream).Add(float64(n))
}

// Framed records a record produced by the framer.
func (m *Metrics) Framed(mode, kind string) {
	if m == nil {
		return
	}
	m.RecordsFramed.WithLabelValues(mode, kind).Inc()
}

// Suppressed records n items removed by a conditioner rule.
func (m *Metrics) Suppressed(rule string, n int) {
	if m == nil || n <= 0 {
		return
	}
	m.LinesSuppressed.WithLabelValues(rule).Add(float64(n))
}

// Delivered records a record accepted by the client sink.
func (m *Metrics) Delivered(kind string) {
	if m == nil {
		return
	}
	m.RecordsDelivered.WithLabelValues(kind).Inc()
}

// Dropped records a record that never reached the client.
func (m *Metrics) Dropped(reason string) {
	if m == nil {
		return
	}
	m.RecordsDropped.WithLabelValues(reason).Inc()
}

// TeardownStepFailed records a teardown step error.
func (m *Metrics) TeardownStepFailed(step string) {
	if m == nil {
		return
	}
	m.TeardownFailures.WithLabelValues(step).Inc()
}

// WSConnected adjusts the websocket connection gauge.
func (m *Metrics) WSConnected(delta float64) {
	if m == nil {
		return
	}
	m.WSConnections.Add(delta)
}

// WSMessage counts a websocket frame.
func (m *Metrics) WSMessage(direction, msgType string) {
	if m == nil {
		return
	}
	m.WSMessages.WithLabelValues(direction, msgType).Inc()
}

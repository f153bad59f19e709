/*
Package monitoring provides metrics collection for the agent supervisor.

# Overview

Prometheus metrics cover the HTTP surface, session lifecycle, the blocking
read pump, the output pipeline, the delivery bridge and teardown. Each
Metrics value owns a private registry; nothing registers globally.

# Usage

	metrics := monitoring.NewMetrics()
	router.Use(monitoring.Middleware(metrics))
	router.GET("/metrics", gin.WrapH(metrics.Handler()))

	metrics.SessionStarted("interactive")
	metrics.Suppressed("task_repeat", 2)

All recording helpers accept a nil receiver.

# Metrics Endpoint

	GET /metrics
*/
package monitoring

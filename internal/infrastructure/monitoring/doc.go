/*
Package monitoring provides Prometheus metrics for the chat sync service.

# Overview

Each Metrics value owns its own registry, exposed through Handler on /metrics.
A nil *Metrics is accepted everywhere and records nothing, which keeps the
domain packages usable in tests without instrumentation.

# Coverage

- HTTP requests by route template and status
- Remote backend calls (jobs, storage, auth) and breaker state
- Job submissions, terminal states by kind, active polling loops, poll errors
- Session cache size, in-memory updates, coalesced updates, write-throughs
- WebSocket clients

# Usage

	metrics := monitoring.NewMetrics()
	router.Use(monitoring.Middleware(metrics))
	router.GET("/metrics", gin.WrapH(metrics.Handler()))

	timer := monitoring.NewTimer(metrics, "jobs", "poll")
	detail, err := poll(ctx, jobID)
	timer.StopErr(err)
*/
package monitoring

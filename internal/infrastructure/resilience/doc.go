/*
Package resilience provides the circuit breaker guarding remote dependencies.

Every call to the job backend and the chat storage API goes through a named
breaker. When the backend keeps failing the breaker opens and calls fail fast
with ErrCircuitOpen; the job orchestrator treats that like any other poll
error and keeps its loop alive until the kind's ceiling.

# Usage

	breaker := resilience.New("jobs", resilience.Settings{
		MaxRequests: 3,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts resilience.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
	})

	detail, err := resilience.Do(breaker, func() (*types.JobDetail, error) {
		return fetch(ctx, jobID)
	})

# States

	Closed --[failures]-> Open --[timeout]-> Half-Open --[successes]-> Closed
	                                           |
	                                       [failure]
	                                           v
	                                         Open
*/
package resilience

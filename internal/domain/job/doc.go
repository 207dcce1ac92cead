// Package job orchestrates long-running generation jobs.
//
// Each submitted job gets exactly one polling goroutine. The loop polls
// immediately and then on a fixed per-kind interval until the backend
// reports a terminal status, the caller cancels, or the per-kind
// wall-clock ceiling passes.
//
// States:
//
//	SUBMITTED -> POLLING -> COMPLETED | FAILED | ABORTED | TIMED_OUT
//
// Every outcome is written to the job's own (session, message) target
// through a Sink, never to whatever session happens to be displayed.
// Transient poll errors keep the loop alive. Cancellation is cooperative:
// an in-flight poll is never interrupted, but no further poll is made.
//
// Shutdown and Reset detach loops without touching their messages, which
// stay streaming and are picked up again by Resume.
package job

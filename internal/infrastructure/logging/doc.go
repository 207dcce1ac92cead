// Package logging provides structured logging using uber/zap.
//
// Two output modes:
//   - Production: JSON output for machine parsing
//   - Development: Colored console output for human readability
//
// Components take a *Logger and scope it with Named; per-request or per-job
// context goes in structured fields (SessionID, MessageID, JobID) rather than
// in the message text.
//
// Example Usage:
//
//	logger := logging.FromSettings(cfg.Logging.Level, cfg.Logging.Development)
//	jobs := logger.Named("jobs")
//	jobs.Info("Job attached", logging.JobID(h.JobID), logging.SessionID(h.SessionID))
package logging

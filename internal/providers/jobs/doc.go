// Package jobs is the REST client for the remote generation backend.
//
// Submit and Poll map one-to-one onto POST /api/v1/jobs/ and
// GET /api/v1/jobs/{id}/. Neither retries; polling cadence and deadlines
// belong to the orchestrator.
package jobs

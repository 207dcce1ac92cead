// Package http exposes the session store, the active view, running jobs
// and folders over a gin JSON API.
//
// Routes:
//   - GET /, GET /health, GET /metrics
//   - POST|DELETE /auth/session
//   - GET|POST /sessions, PATCH|DELETE /sessions/:id
//   - GET /view, POST /view/focus|send|stop, PUT /view/model|persona
//   - GET /jobs, GET /models
//   - GET|POST /folders, DELETE /folders/:id, POST /folders/plan|template
//   - GET /stream (websocket)
//
// Errors are returned as {"error": message} with a status derived from
// the domain sentinel the error wraps.
package http

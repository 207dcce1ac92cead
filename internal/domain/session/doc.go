// Package session caches the current user's chat sessions and keeps the
// remote storage in step with them.
//
// Sessions are grouped into containers: the recent list (no folder) and one
// list per folder. Containers load lazily on first access. Updates apply to
// the cache at once and reach storage through a per-session debounce window,
// so a burst of message patches becomes a single write carrying the latest
// state of every field touched during the window.
//
// Reset clears the cache for a new owner and discards pending writes.
// Callers that want them kept call Flush first.
package session

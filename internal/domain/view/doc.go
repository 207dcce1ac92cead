// Package view binds the user's active view to one session.
//
// The Binder owns the rendered transcript of the focused session and is the
// sink the job orchestrator writes into. A patch for the focused session
// updates the transcript and is written through to the session store as a
// whole message list; a patch for any other session is applied to the store
// directly, so results of jobs started elsewhere are never lost.
//
// Sending from a blank view creates a session first. The new id is kept as
// a pending marker until the store holds the session with a message, and a
// focus change to that id during the window keeps the local transcript.
package view

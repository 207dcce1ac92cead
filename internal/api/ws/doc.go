// Package ws serves the /stream websocket. Connected clients receive
// transcript patches, session changes and notifications as JSON frames.
package ws

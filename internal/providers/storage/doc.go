// Package storage is the REST client for the remote chat store.
//
// Sessions live either in the recent container (no folder) or in exactly
// one folder. Updates are partial PUTs; reads, updates and deletes are
// idempotent and may be retried by the transport, creates are not.
package storage

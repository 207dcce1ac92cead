// Package main is the entry point for the chat sync server.
//
// The server keeps chat sessions in memory, writes them back to the remote
// storage API, and drives long-running text, image and video generation
// jobs to completion on behalf of a single signed-in user.
//
// Architecture:
//
//	Client (browser) → chatsync → Remote backend (jobs, storage, auth)
//	       ↑ /stream
//
// Configuration:
//   - Environment variables (12-factor)
//   - Optional TOML file (-config or CONFIG_FILE), environment wins
//   - CLI flags override both
//
// Usage:
//
//	# Production mode
//	./server -port 8000 -backend https://api.example.com
//
//	# Development mode (colored logs, debug level)
//	./server -dev
//
// Signals:
//   - SIGINT, SIGTERM: stop polling, flush pending session writes, exit
package main

// Package config provides 12-factor configuration management for the chat sync service.
//
// Configuration is loaded from environment variables with sensible defaults.
// An optional TOML file (CONFIG_FILE) can supply a base layer; any variable
// that is set in the environment overrides it.
//
// Configuration Sections:
//   - Server: HTTP server settings (port, host)
//   - Backend: Remote job and chat storage API (base URL, timeout, outbound rate)
//   - Jobs: Poll interval and wall-clock ceiling per generation kind
//   - Persist: Session write-back debounce window
//   - Logging: Log level and output format
//   - RateLimit: Per-IP rate limiting configuration
//   - CORS: Allowed browser origins
//
// Example Usage:
//
//	cfg := config.LoadOrDefault()
//	fmt.Printf("Server running on %s:%s\n", cfg.Server.Host, cfg.Server.Port)
//
// Environment Variables:
//   - PORT, HOST, BACKEND_URL, BACKEND_TIMEOUT, BACKEND_RPS, STORAGE_RETRIES
//   - JOB_{TEXT,IMAGE,VIDEO}_{INTERVAL,TIMEOUT}, PERSIST_DEBOUNCE
//   - LOG_LEVEL, LOG_DEV
//   - RATE_LIMIT_RPS, RATE_LIMIT_BURST, RATE_LIMIT_ENABLED, CORS_ORIGINS
package config

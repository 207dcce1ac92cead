package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefault(t *testing.T) {
	cfg := Default()

	// Server config
	assert.Equal(t, "8000", cfg.Server.Port)
	assert.Equal(t, "0.0.0.0", cfg.Server.Host)

	// Backend config
	assert.Equal(t, "http://localhost:8080", cfg.Backend.BaseURL)
	assert.Equal(t, 30*time.Second, cfg.Backend.Timeout)
	assert.Equal(t, 2, cfg.Backend.StorageRetries)

	// Job cadence
	assert.Equal(t, 1500*time.Millisecond, cfg.Jobs.ImageInterval)
	assert.Equal(t, 2*time.Minute, cfg.Jobs.ImageTimeout)
	assert.Equal(t, 2*time.Second, cfg.Jobs.VideoInterval)
	assert.Equal(t, 10*time.Minute, cfg.Jobs.VideoTimeout)

	// Persistence
	assert.Equal(t, 1500*time.Millisecond, cfg.Persist.Debounce)

	// Logging config
	assert.Equal(t, "info", cfg.Logging.Level)
	assert.False(t, cfg.Logging.Development)

	// Rate limit config
	assert.Equal(t, 100, cfg.RateLimit.RequestsPerSecond)
	assert.Equal(t, 200, cfg.RateLimit.Burst)
	assert.True(t, cfg.RateLimit.Enabled)
}

func TestLoadMatchesDefault(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, Default(), cfg)
}

func TestLoadWithEnvironmentVariables(t *testing.T) {
	envVars := map[string]string{
		"PORT":               "9000",
		"BACKEND_URL":        "https://api.example.com",
		"JOB_VIDEO_TIMEOUT":  "5m",
		"PERSIST_DEBOUNCE":   "250ms",
		"LOG_LEVEL":          "debug",
		"LOG_DEV":            "true",
		"RATE_LIMIT_ENABLED": "false",
		"CORS_ORIGINS":       "http://localhost:3000,https://app.example.com",
	}
	for key, value := range envVars {
		t.Setenv(key, value)
	}

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "9000", cfg.Server.Port)
	assert.Equal(t, "https://api.example.com", cfg.Backend.BaseURL)
	assert.Equal(t, 5*time.Minute, cfg.Jobs.VideoTimeout)
	assert.Equal(t, 250*time.Millisecond, cfg.Persist.Debounce)
	assert.Equal(t, "debug", cfg.Logging.Level)
	assert.True(t, cfg.Logging.Development)
	assert.False(t, cfg.RateLimit.Enabled)
	assert.Equal(t, []string{"http://localhost:3000", "https://app.example.com"}, cfg.CORS.AllowOrigins)
}

func TestLoadInvalidValues(t *testing.T) {
	tests := []struct {
		name  string
		key   string
		value string
	}{
		{name: "invalid bool", key: "LOG_DEV", value: "not-a-bool"},
		{name: "invalid int", key: "RATE_LIMIT_RPS", value: "many"},
		{name: "invalid duration", key: "PERSIST_DEBOUNCE", value: "soon"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv(tt.key, tt.value)

			_, err := Load()
			assert.Error(t, err)

			// Falls back to defaults instead of failing
			assert.NotNil(t, LoadOrDefault())
		})
	}
}

func TestLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "chatsync.toml")
	content := `
[server]
port = "7000"

[backend]
base_url = "https://file.example.com"
storage_retries = 4

[logging]
level = "warn"
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	t.Run("file values over defaults", func(t *testing.T) {
		cfg, err := LoadFile(path)
		require.NoError(t, err)

		assert.Equal(t, "7000", cfg.Server.Port)
		assert.Equal(t, "https://file.example.com", cfg.Backend.BaseURL)
		assert.Equal(t, 4, cfg.Backend.StorageRetries)
		assert.Equal(t, "warn", cfg.Logging.Level)
		// untouched sections keep defaults
		assert.Equal(t, 10*time.Minute, cfg.Jobs.VideoTimeout)
	})

	t.Run("environment wins over file", func(t *testing.T) {
		t.Setenv("PORT", "9100")

		cfg, err := LoadFile(path)
		require.NoError(t, err)

		assert.Equal(t, "9100", cfg.Server.Port)
		assert.Equal(t, "https://file.example.com", cfg.Backend.BaseURL)
	})

	t.Run("missing file", func(t *testing.T) {
		_, err := LoadFile(filepath.Join(t.TempDir(), "absent.toml"))
		assert.Error(t, err)
	})
}

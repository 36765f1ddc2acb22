package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "tablesync.hcl")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestLoadMissingFileReturnsDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "nope.hcl"))
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
	require.NoError(t, cfg.Validate())

	assert.Equal(t, 15*time.Second, cfg.ConnectTimeout())
	assert.Equal(t, 20*time.Second, cfg.ReadTimeout())
	assert.Equal(t, time.Second, cfg.LobbyInterval())
	assert.Equal(t, 900*time.Millisecond, cfg.GameInterval())
	assert.Equal(t, 5*time.Second, cfg.ResetDelay())
	assert.Zero(t, cfg.Stream.ReconnectAttempts)
}

func TestLoadBackfillsMissingValues(t *testing.T) {
	path := writeConfig(t, `
server {
  url = "http://10.0.0.5:8000"
}

player {
  name    = "Ana"
  room_id = "ABC123"
}

polling {
  jitter_ms        = 100
  continue_in_game = true
}

stream {
  reconnect_attempts = 3
}
`)
	cfg, err := Load(path)
	require.NoError(t, err)
	require.NoError(t, cfg.Validate())

	assert.Equal(t, "http://10.0.0.5:8000", cfg.Server.URL)
	assert.Equal(t, 15, cfg.Server.ConnectTimeout)
	assert.Equal(t, "Ana", cfg.Player.Name)
	assert.Equal(t, "ABC123", cfg.Player.RoomID)
	assert.Equal(t, 1000, cfg.Polling.LobbyInterval)
	assert.Equal(t, 100*time.Millisecond, cfg.PollJitter())
	assert.True(t, cfg.Polling.ContinueInGame)
	assert.Equal(t, 3, cfg.Stream.ReconnectAttempts)
	assert.Equal(t, 2*time.Second, cfg.ReconnectDelay())
	assert.Equal(t, 5000, cfg.Table.ResetDelay)
	assert.Equal(t, "info", cfg.Log.Level)
}

func TestLoadErrors(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"syntax", `server { url = `},
		{"unknown attribute", `server { hostname = "x" }`},
		{"wrong type", `table { reset_delay_ms = "soon" }`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(writeConfig(t, tt.body))
			assert.Error(t, err)
		})
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{"defaults", func(*Config) {}, ""},
		{"no url", func(c *Config) { c.Server.URL = "" }, "server URL is required"},
		{"zero read timeout", func(c *Config) { c.Server.ReadTimeout = 0 }, "read timeout must be positive"},
		{"negative jitter", func(c *Config) { c.Polling.Jitter = -1 }, "polling jitter cannot be negative"},
		{"negative reconnects", func(c *Config) { c.Stream.ReconnectAttempts = -1 }, "reconnect attempts cannot be negative"},
		{"zero reset delay", func(c *Config) { c.Table.ResetDelay = 0 }, "reset delay must be positive"},
		{"bad log level", func(c *Config) { c.Log.Level = "loud" }, "invalid log level: loud"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			assert.EqualError(t, err, tt.wantErr)
		})
	}
}

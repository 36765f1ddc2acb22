// Package config loads the tablesync HCL configuration file.
package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/hashicorp/hcl/v2/gohcl"
	"github.com/hashicorp/hcl/v2/hclparse"
)

// Config is the complete client configuration.
type Config struct {
	Server  ServerSettings
	Player  PlayerSettings
	Polling PollingSettings
	Stream  StreamSettings
	Table   TableSettings
	Log     LogSettings
}

// ServerSettings locates the room and vision services. Timeouts are seconds.
type ServerSettings struct {
	URL            string `hcl:"url,optional"`
	ConnectTimeout int    `hcl:"connect_timeout,optional"`
	ReadTimeout    int    `hcl:"read_timeout,optional"`
}

type PlayerSettings struct {
	Name   string `hcl:"name,optional"`
	RoomID string `hcl:"room_id,optional"`
}

// PollingSettings controls the snapshot poller. Intervals are milliseconds.
type PollingSettings struct {
	LobbyInterval  int  `hcl:"lobby_interval_ms,optional"`
	GameInterval   int  `hcl:"game_interval_ms,optional"`
	Jitter         int  `hcl:"jitter_ms,optional"`
	ContinueInGame bool `hcl:"continue_in_game,optional"`
}

// StreamSettings controls the event stream. ReconnectAttempts of zero means
// a failed stream stays down.
type StreamSettings struct {
	HandshakeTimeout  int `hcl:"handshake_timeout,optional"`
	ReconnectAttempts int `hcl:"reconnect_attempts,optional"`
	ReconnectDelay    int `hcl:"reconnect_delay_ms,optional"`
}

type TableSettings struct {
	ResetDelay int `hcl:"reset_delay_ms,optional"`
}

type LogSettings struct {
	Level string `hcl:"level,optional"`
	File  string `hcl:"file,optional"`
}

// file mirrors Config with every block optional.
type file struct {
	Server  *ServerSettings  `hcl:"server,block"`
	Player  *PlayerSettings  `hcl:"player,block"`
	Polling *PollingSettings `hcl:"polling,block"`
	Stream  *StreamSettings  `hcl:"stream,block"`
	Table   *TableSettings   `hcl:"table,block"`
	Log     *LogSettings     `hcl:"log,block"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Server: ServerSettings{
			URL:            "http://localhost:8000",
			ConnectTimeout: 15,
			ReadTimeout:    20,
		},
		Polling: PollingSettings{
			LobbyInterval: 1000,
			GameInterval:  900,
		},
		Stream: StreamSettings{
			HandshakeTimeout: 15,
			ReconnectDelay:   2000,
		},
		Table: TableSettings{
			ResetDelay: 5000,
		},
		Log: LogSettings{
			Level: "info",
			File:  "tablesync.log",
		},
	}
}

// Load reads filename. A missing file yields the defaults; values left out
// of the file are filled from the defaults.
func Load(filename string) (*Config, error) {
	if _, err := os.Stat(filename); errors.Is(err, os.ErrNotExist) {
		return Default(), nil
	}

	parser := hclparse.NewParser()
	f, diags := parser.ParseHCLFile(filename)
	if diags.HasErrors() {
		return nil, fmt.Errorf("failed to parse HCL file: %s", diags.Error())
	}

	var raw file
	diags = gohcl.DecodeBody(f.Body, nil, &raw)
	if diags.HasErrors() {
		return nil, fmt.Errorf("failed to decode HCL: %s", diags.Error())
	}

	cfg := Default()
	if raw.Server != nil {
		cfg.Server = *raw.Server
	}
	if raw.Player != nil {
		cfg.Player = *raw.Player
	}
	if raw.Polling != nil {
		cfg.Polling = *raw.Polling
	}
	if raw.Stream != nil {
		cfg.Stream = *raw.Stream
	}
	if raw.Table != nil {
		cfg.Table = *raw.Table
	}
	if raw.Log != nil {
		cfg.Log = *raw.Log
	}
	cfg.backfill(Default())
	return cfg, nil
}

func (c *Config) backfill(defaults *Config) {
	if c.Server.URL == "" {
		c.Server.URL = defaults.Server.URL
	}
	if c.Server.ConnectTimeout == 0 {
		c.Server.ConnectTimeout = defaults.Server.ConnectTimeout
	}
	if c.Server.ReadTimeout == 0 {
		c.Server.ReadTimeout = defaults.Server.ReadTimeout
	}

	if c.Polling.LobbyInterval == 0 {
		c.Polling.LobbyInterval = defaults.Polling.LobbyInterval
	}
	if c.Polling.GameInterval == 0 {
		c.Polling.GameInterval = defaults.Polling.GameInterval
	}

	if c.Stream.HandshakeTimeout == 0 {
		c.Stream.HandshakeTimeout = defaults.Stream.HandshakeTimeout
	}
	if c.Stream.ReconnectDelay == 0 {
		c.Stream.ReconnectDelay = defaults.Stream.ReconnectDelay
	}

	if c.Table.ResetDelay == 0 {
		c.Table.ResetDelay = defaults.Table.ResetDelay
	}

	if c.Log.Level == "" {
		c.Log.Level = defaults.Log.Level
	}
	if c.Log.File == "" {
		c.Log.File = defaults.Log.File
	}
}

// Validate checks the configuration for values the engine cannot run with.
func (c *Config) Validate() error {
	if c.Server.URL == "" {
		return fmt.Errorf("server URL is required")
	}
	if c.Server.ConnectTimeout <= 0 {
		return fmt.Errorf("connect timeout must be positive")
	}
	if c.Server.ReadTimeout <= 0 {
		return fmt.Errorf("read timeout must be positive")
	}
	if c.Polling.LobbyInterval <= 0 || c.Polling.GameInterval <= 0 {
		return fmt.Errorf("polling intervals must be positive")
	}
	if c.Polling.Jitter < 0 {
		return fmt.Errorf("polling jitter cannot be negative")
	}
	if c.Stream.HandshakeTimeout <= 0 {
		return fmt.Errorf("handshake timeout must be positive")
	}
	if c.Stream.ReconnectAttempts < 0 {
		return fmt.Errorf("reconnect attempts cannot be negative")
	}
	if c.Stream.ReconnectDelay <= 0 {
		return fmt.Errorf("reconnect delay must be positive")
	}
	if c.Table.ResetDelay <= 0 {
		return fmt.Errorf("reset delay must be positive")
	}

	validLogLevels := map[string]bool{
		"debug": true,
		"info":  true,
		"warn":  true,
		"error": true,
	}
	if !validLogLevels[c.Log.Level] {
		return fmt.Errorf("invalid log level: %s", c.Log.Level)
	}
	return nil
}

func (c *Config) ConnectTimeout() time.Duration {
	return time.Duration(c.Server.ConnectTimeout) * time.Second
}

func (c *Config) ReadTimeout() time.Duration {
	return time.Duration(c.Server.ReadTimeout) * time.Second
}

func (c *Config) LobbyInterval() time.Duration {
	return time.Duration(c.Polling.LobbyInterval) * time.Millisecond
}

func (c *Config) GameInterval() time.Duration {
	return time.Duration(c.Polling.GameInterval) * time.Millisecond
}

func (c *Config) PollJitter() time.Duration {
	return time.Duration(c.Polling.Jitter) * time.Millisecond
}

func (c *Config) HandshakeTimeout() time.Duration {
	return time.Duration(c.Stream.HandshakeTimeout) * time.Second
}

func (c *Config) ReconnectDelay() time.Duration {
	return time.Duration(c.Stream.ReconnectDelay) * time.Millisecond
}

func (c *Config) ResetDelay() time.Duration {
	return time.Duration(c.Table.ResetDelay) * time.Millisecond
}

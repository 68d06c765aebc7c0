package config

import (
	"encoding/json"
	"path/filepath"
	"time"
)

// Config represents the main loratag configuration
type Config struct {
	// Workspace
	Workspace WorkspaceConfig `json:"workspace" mapstructure:"workspace"`

	// Session
	Session SessionConfig `json:"session" mapstructure:"session"`

	// Server
	Server ServerConfig `json:"server" mapstructure:"server"`

	// Hub
	Hub HubConfig `json:"hub" mapstructure:"hub"`

	// Logging
	Logging LoggingConfig `json:"logging" mapstructure:"logging"`
}

// WorkspaceConfig holds the image directories and naming scheme
type WorkspaceConfig struct {
	InputDir      string `json:"input_dir" mapstructure:"input_dir"`
	OutputDirName string `json:"output_dir_name" mapstructure:"output_dir_name"`
	Prefix        string `json:"prefix" mapstructure:"prefix"`
	Watch         bool   `json:"watch" mapstructure:"watch"`
}

// SessionConfig holds session persistence settings
type SessionConfig struct {
	Resume           bool `json:"resume" mapstructure:"resume"`
	AutoSaveInterval int  `json:"auto_save_interval" mapstructure:"auto_save_interval"` // seconds
}

// AutoSaveIntervalDuration returns the auto-save gate as a duration
func (s SessionConfig) AutoSaveIntervalDuration() time.Duration {
	return time.Duration(s.AutoSaveInterval) * time.Second
}

// ServerConfig holds HTTP server settings
type ServerConfig struct {
	Host string `json:"host" mapstructure:"host"`
	Port int    `json:"port" mapstructure:"port"`
}

// HubConfig holds connection liveness settings
type HubConfig struct {
	SweepInterval int `json:"sweep_interval" mapstructure:"sweep_interval"` // seconds
	IdleTimeout   int `json:"idle_timeout" mapstructure:"idle_timeout"`     // seconds
}

// SweepIntervalDuration returns the sweep tick as a duration
func (h HubConfig) SweepIntervalDuration() time.Duration {
	return time.Duration(h.SweepInterval) * time.Second
}

// IdleTimeoutDuration returns the idle eviction threshold as a duration
func (h HubConfig) IdleTimeoutDuration() time.Duration {
	return time.Duration(h.IdleTimeout) * time.Second
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level   string `json:"level" mapstructure:"level"`
	File    string `json:"file" mapstructure:"file"`
	Console bool   `json:"console" mapstructure:"console"`
	Pretty  bool   `json:"pretty" mapstructure:"pretty"`
}

// DefaultConfig returns a config with default values
func DefaultConfig() *Config {
	return &Config{
		Workspace: WorkspaceConfig{
			OutputDirName: "output",
			Prefix:        "img",
			Watch:         false,
		},
		Session: SessionConfig{
			Resume:           true,
			AutoSaveInterval: 60,
		},
		Server: ServerConfig{
			Host: "127.0.0.1",
			Port: 8000,
		},
		Hub: HubConfig{
			SweepInterval: 60,
			IdleTimeout:   300,
		},
		Logging: LoggingConfig{
			Level:   "info",
			Console: true,
			Pretty:  true,
		},
	}
}

// OutputDir returns the absolute output directory path
func (c *Config) OutputDir() string {
	return filepath.Join(c.Workspace.InputDir, c.Workspace.OutputDirName)
}

// SessionPath returns the session file path inside the input directory
func (c *Config) SessionPath() string {
	return filepath.Join(c.Workspace.InputDir, "session.json")
}

// MasterTagsPath returns the shared tag vocabulary file path
func (c *Config) MasterTagsPath() string {
	return filepath.Join(c.Workspace.InputDir, "master_tags.txt")
}

// String returns a JSON representation of the config
func (c *Config) String() string {
	data, _ := json.MarshalIndent(c, "", "  ")
	return string(data)
}

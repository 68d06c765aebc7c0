package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validConfig(t *testing.T) *Config {
	t.Helper()

	cfg := DefaultConfig()
	cfg.Workspace.InputDir = t.TempDir()
	return cfg
}

func TestValidate_ValidConfig(t *testing.T) {
	cfg := validConfig(t)
	assert.NoError(t, cfg.Validate())
}

func TestValidate_Errors(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantMsg string
	}{
		{
			name:    "missing input dir",
			mutate:  func(c *Config) { c.Workspace.InputDir = "" },
			wantMsg: "input directory is required",
		},
		{
			name:    "nonexistent input dir",
			mutate:  func(c *Config) { c.Workspace.InputDir = "/no/such/dir" },
			wantMsg: "input directory",
		},
		{
			name:    "output name with separator",
			mutate:  func(c *Config) { c.Workspace.OutputDirName = "a/b" },
			wantMsg: "bare name",
		},
		{
			name:    "empty prefix",
			mutate:  func(c *Config) { c.Workspace.Prefix = "" },
			wantMsg: "prefix is required",
		},
		{
			name:    "zero autosave",
			mutate:  func(c *Config) { c.Session.AutoSaveInterval = 0 },
			wantMsg: "auto save interval",
		},
		{
			name:    "bad port",
			mutate:  func(c *Config) { c.Server.Port = 0 },
			wantMsg: "invalid server port",
		},
		{
			name:    "idle timeout shorter than sweep",
			mutate:  func(c *Config) { c.Hub.IdleTimeout = 10; c.Hub.SweepInterval = 60 },
			wantMsg: "idle timeout",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig(t)
			tt.mutate(cfg)

			err := cfg.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantMsg)
		})
	}
}

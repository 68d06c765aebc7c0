package config

import (
	"fmt"
	"os"
	"strings"
)

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if c.Workspace.InputDir == "" {
		return fmt.Errorf("input directory is required")
	}

	info, err := os.Stat(c.Workspace.InputDir)
	if err != nil {
		return fmt.Errorf("input directory %s: %w", c.Workspace.InputDir, err)
	}
	if !info.IsDir() {
		return fmt.Errorf("input directory %s is not a directory", c.Workspace.InputDir)
	}

	if c.Workspace.OutputDirName == "" {
		return fmt.Errorf("output directory name is required")
	}
	if strings.ContainsAny(c.Workspace.OutputDirName, `/\`) {
		return fmt.Errorf("output directory name must be a bare name, got %s", c.Workspace.OutputDirName)
	}

	if c.Workspace.Prefix == "" {
		return fmt.Errorf("filename prefix is required")
	}

	if c.Session.AutoSaveInterval < 1 {
		return fmt.Errorf("auto save interval must be at least 1 second, got %d", c.Session.AutoSaveInterval)
	}

	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d", c.Server.Port)
	}

	if c.Hub.SweepInterval < 1 {
		return fmt.Errorf("hub sweep interval must be at least 1 second, got %d", c.Hub.SweepInterval)
	}
	if c.Hub.IdleTimeout < c.Hub.SweepInterval {
		return fmt.Errorf("hub idle timeout (%ds) must not be shorter than the sweep interval (%ds)", c.Hub.IdleTimeout, c.Hub.SweepInterval)
	}

	return nil
}

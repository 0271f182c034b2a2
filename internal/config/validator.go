package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// ValidationFunc is a function that validates a config and returns an error
type ValidationFunc func(*Config) error

// validationRules defines all validation rules to be applied to the configuration
var validationRules = []ValidationFunc{
	validateVaultIterations,
	validateVaultPath,
	validateEngineChunkSize,
	validateEnginePolicy,
	validateEngineWorkers,
	validateLoggingLevel,
	validateLoggingFormat,
}

// Validate validates the configuration using all validation rules
func (c *Config) Validate() error {
	for _, rule := range validationRules {
		if err := rule(c); err != nil {
			return err
		}
	}
	return nil
}

// Vault validation rules
func validateVaultPath(c *Config) error {
	if c.Vault.Path == "" {
		return fmt.Errorf("vault config: path is required")
	}
	if err := ensureDirectoryExists(filepath.Dir(c.Vault.Path)); err != nil {
		return fmt.Errorf("vault config: path: %w", err)
	}
	return nil
}

func validateVaultIterations(c *Config) error {
	if c.Vault.IterationsOverride < 1000 {
		return fmt.Errorf("vault config: iterations must be >= 1000, got %d", c.Vault.IterationsOverride)
	}
	return nil
}

// Engine validation rules
func validateEngineChunkSize(c *Config) error {
	const (
		minChunkSize = 16                // 16 bytes: one AES block
		maxChunkSize = 64 * 1024 * 1024   // 64MiB, the elastic chunk size's upper bound (§4.G)
	)

	if c.Engine.DefaultChunkSize < minChunkSize {
		return fmt.Errorf("engine config: default_chunk_size must be >= 16B, got %s", FormatSize(c.Engine.DefaultChunkSize))
	}

	if c.Engine.DefaultChunkSize > maxChunkSize {
		return fmt.Errorf("engine config: default_chunk_size must be <= 64MiB, got %s", FormatSize(c.Engine.DefaultChunkSize))
	}

	if c.Engine.DefaultChunkSize%16 != 0 {
		return fmt.Errorf("engine config: default_chunk_size must be a multiple of 16 bytes, got %s", FormatSize(c.Engine.DefaultChunkSize))
	}

	return nil
}

func validateEnginePolicy(c *Config) error {
	policy := strings.ToLower(c.Engine.Policy)
	if policy != "priority" && policy != "fifo" {
		return fmt.Errorf("engine config: policy must be 'priority' or 'fifo', got '%s'", policy)
	}
	c.Engine.Policy = policy
	return nil
}

func validateEngineWorkers(c *Config) error {
	if c.Engine.Workers < 0 {
		return fmt.Errorf("engine config: workers must be >= 0 (0 means autotune), got %d", c.Engine.Workers)
	}
	return nil
}

// Logging validation rules
func validateLoggingLevel(c *Config) error {
	level := strings.ToLower(c.Logging.Level)
	if level != "debug" && level != "info" && level != "error" {
		return fmt.Errorf("logging config: level must be 'debug', 'info', or 'error', got '%s'", level)
	}
	c.Logging.Level = level
	return nil
}

func validateLoggingFormat(c *Config) error {
	format := strings.ToLower(c.Logging.Format)
	if format != "text" && format != "json" {
		return fmt.Errorf("logging config: format must be 'text' or 'json', got '%s'", format)
	}
	c.Logging.Format = format
	return nil
}

// Helper functions
func ensureDirectoryExists(path string) error {
	info, err := os.Stat(path)
	if os.IsNotExist(err) {
		if err := os.MkdirAll(path, 0750); err != nil {
			return fmt.Errorf("failed to create directory: %w", err)
		}
		return nil
	}

	if err != nil {
		return err
	}

	if !info.IsDir() {
		return fmt.Errorf("path exists but is not a directory")
	}

	return nil
}

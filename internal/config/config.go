package config

import (
	"fmt"
	"strings"
)

// Config represents the application configuration
type Config struct {
	Vault   VaultConfig   `hcl:"vault,block"`
	Engine  EngineConfig  `hcl:"engine,block"`
	Logging LoggingConfig `hcl:"logging,block"`
}

// VaultConfig holds Key Vault configuration (§3, §4.A).
type VaultConfig struct {
	Path                string `hcl:"path,optional"`
	IterationsOverride  int    `hcl:"iterations,optional"`
	WriteLockTimeoutStr string `hcl:"write_lock_timeout,optional"`
	WriteLockTimeout    Duration
}

// EngineConfig holds the options that drive the Scheduler, Autotuner and
// Driver (§4.C, §4.D, §4.G).
type EngineConfig struct {
	DefaultChunkSizeStr string `hcl:"default_chunk_size,optional"`
	DefaultChunkSize    int
	Workers             int    `hcl:"workers,optional"`
	Policy              string `hcl:"policy,optional"`
	ArchiveName         string `hcl:"archive_name,optional"`
	HeavyThresholdStr   string `hcl:"heavy_threshold,optional"`
	HeavyThreshold      int
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level     string `hcl:"level,optional"`
	Output    string `hcl:"output,optional"`
	Format    string `hcl:"format,optional"`
	AuditLog  bool   `hcl:"audit_log,optional"`
	AuditPath string `hcl:"audit_path,optional"`
}

// SetDefaults sets default values for optional fields
func (c *Config) SetDefaults() error {
	if c.Vault.Path == "" {
		c.Vault.Path = "keyvault.db"
	}
	if c.Vault.IterationsOverride == 0 {
		c.Vault.IterationsOverride = DefaultVaultIterations
	}
	if c.Vault.WriteLockTimeoutStr != "" {
		var d Duration
		if err := d.UnmarshalText([]byte(c.Vault.WriteLockTimeoutStr)); err != nil {
			return fmt.Errorf("invalid write_lock_timeout duration: %w", err)
		}
		c.Vault.WriteLockTimeout = d
	}
	if c.Vault.WriteLockTimeout == 0 {
		c.Vault.WriteLockTimeout = Duration(DefaultVaultWriteLockTimeout)
	}

	if c.Engine.DefaultChunkSizeStr != "" {
		chunkSize, err := ParseSize(c.Engine.DefaultChunkSizeStr)
		if err != nil {
			return fmt.Errorf("invalid default_chunk_size: %w", err)
		}
		c.Engine.DefaultChunkSize = chunkSize
	}
	if c.Engine.DefaultChunkSize == 0 {
		c.Engine.DefaultChunkSize = DefaultChunkSize
	}

	if c.Engine.Policy == "" {
		c.Engine.Policy = "priority"
	}
	c.Engine.Policy = strings.ToLower(c.Engine.Policy)

	if c.Engine.ArchiveName == "" {
		c.Engine.ArchiveName = "encrypted_outputs.zip"
	}

	if c.Engine.HeavyThresholdStr != "" {
		threshold, err := ParseSize(c.Engine.HeavyThresholdStr)
		if err != nil {
			return fmt.Errorf("invalid heavy_threshold: %w", err)
		}
		c.Engine.HeavyThreshold = threshold
	}
	if c.Engine.HeavyThreshold == 0 {
		c.Engine.HeavyThreshold = DefaultHeavyThreshold
	}

	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	if c.Logging.Output == "" {
		c.Logging.Output = "stdout"
	}
	if c.Logging.Format == "" {
		c.Logging.Format = "text"
	}
	if c.Logging.AuditLog && c.Logging.AuditPath == "" {
		c.Logging.AuditPath = "audit.log"
	}

	return nil
}

package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadFromString(t *testing.T) {
	hclContent := `
vault {
  path = "/tmp/keyvault.db"
  iterations = 200000
}

engine {
  default_chunk_size = "8MiB"
  workers = 4
  policy = "priority"
}

logging {
  level = "debug"
  output = "stdout"
  format = "json"
  audit_log = true
  audit_path = "/tmp/audit.log"
}
`

	cfg, err := LoadFromString("test.hcl", hclContent)
	require.NoError(t, err)
	require.NotNil(t, cfg)

	assert.Equal(t, "/tmp/keyvault.db", cfg.Vault.Path)
	assert.Equal(t, 200000, cfg.Vault.IterationsOverride)
	assert.Equal(t, Duration(10*time.Second), cfg.Vault.WriteLockTimeout) // Default

	assert.Equal(t, 8*1024*1024, cfg.Engine.DefaultChunkSize)
	assert.Equal(t, 4, cfg.Engine.Workers)
	assert.Equal(t, "priority", cfg.Engine.Policy)
	assert.Equal(t, "encrypted_outputs.zip", cfg.Engine.ArchiveName) // Default

	assert.Equal(t, "debug", cfg.Logging.Level)
	assert.Equal(t, "stdout", cfg.Logging.Output)
	assert.Equal(t, "json", cfg.Logging.Format)
	assert.True(t, cfg.Logging.AuditLog)
	assert.Equal(t, "/tmp/audit.log", cfg.Logging.AuditPath)
}

func TestLoadFromString_FifoPolicy(t *testing.T) {
	hclContent := `
vault {
  path = "/tmp/keyvault.db"
}

engine {
  policy = "FIFO"
}

logging {
  level = "info"
}
`

	cfg, err := LoadFromString("test.hcl", hclContent)
	require.NoError(t, err)
	require.NoError(t, cfg.Validate())
	assert.Equal(t, "fifo", cfg.Engine.Policy)
}

func TestSetDefaults(t *testing.T) {
	cfg := &Config{
		Vault:   VaultConfig{Path: "/tmp/keyvault.db"},
		Engine:  EngineConfig{},
		Logging: LoggingConfig{},
	}

	err := cfg.SetDefaults()
	assert.NoError(t, err)

	assert.Equal(t, DefaultVaultIterations, cfg.Vault.IterationsOverride)
	assert.Equal(t, Duration(10*time.Second), cfg.Vault.WriteLockTimeout)

	assert.Equal(t, DefaultChunkSize, cfg.Engine.DefaultChunkSize)
	assert.Equal(t, "priority", cfg.Engine.Policy)
	assert.Equal(t, "encrypted_outputs.zip", cfg.Engine.ArchiveName)
	assert.Equal(t, DefaultHeavyThreshold, cfg.Engine.HeavyThreshold)

	assert.Equal(t, "info", cfg.Logging.Level)
	assert.Equal(t, "stdout", cfg.Logging.Output)
	assert.Equal(t, "text", cfg.Logging.Format)
}

func TestSetDefaults_AuditPath(t *testing.T) {
	cfg := &Config{
		Vault: VaultConfig{Path: "/tmp/keyvault.db"},
		Logging: LoggingConfig{
			AuditLog: true,
		},
	}

	err := cfg.SetDefaults()
	assert.NoError(t, err)

	assert.Equal(t, "audit.log", cfg.Logging.AuditPath)
}

func TestLoad(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "test-config.hcl")

	hclContent := `
vault {
  path = "/tmp/keyvault.db"
}

engine {
  default_chunk_size = "8MiB"
}

logging {
  level = "info"
}
`

	err := os.WriteFile(configPath, []byte(hclContent), 0644)
	require.NoError(t, err)

	cfg, err := Load(configPath)
	require.NoError(t, err)
	require.NotNil(t, cfg)

	assert.Equal(t, "/tmp/keyvault.db", cfg.Vault.Path)
}

func TestLoad_NonExistentFile(t *testing.T) {
	cfg, err := Load("/nonexistent/config.hcl")
	assert.Error(t, err)
	assert.Nil(t, cfg)
	assert.Contains(t, err.Error(), "configuration file not found")
}

func TestLoad_InvalidHCL(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "invalid.hcl")

	err := os.WriteFile(configPath, []byte("invalid { hcl syntax"), 0644)
	require.NoError(t, err)

	cfg, err := Load(configPath)
	assert.Error(t, err)
	assert.Nil(t, cfg)
	assert.Contains(t, err.Error(), "failed to parse configuration")
}

func TestChunkSizeConfiguration(t *testing.T) {
	tests := []struct {
		name          string
		chunkSize     string
		expectedSize  int
		expectError   bool
		errorContains string
	}{
		{
			name:         "default chunk size (8MiB)",
			chunkSize:    "",
			expectedSize: 8 * 1024 * 1024,
		},
		{
			name:         "2MiB chunk size",
			chunkSize:    "2MiB",
			expectedSize: 2 * 1024 * 1024,
		},
		{
			name:         "64MiB chunk size (max)",
			chunkSize:    "64MiB",
			expectedSize: 64 * 1024 * 1024,
		},
		{
			name:          "chunk size too large",
			chunkSize:     "128MiB",
			expectError:   true,
			errorContains: "default_chunk_size must be <= 64MiB",
		},
		{
			name:          "invalid chunk size format",
			chunkSize:     "invalid",
			expectError:   true,
			errorContains: "invalid default_chunk_size",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			hcl := `
vault {
  path = "/tmp/keyvault.db"
}

engine {
`
			if tt.chunkSize != "" {
				hcl += `  default_chunk_size = "` + tt.chunkSize + `"` + "\n"
			}
			hcl += `
}

logging {
  level = "info"
}
`

			cfg, err := LoadFromString("test.hcl", hcl)

			if tt.expectError {
				if err == nil && cfg != nil {
					err = cfg.Validate()
				}
				assert.Error(t, err)
				if tt.errorContains != "" {
					assert.Contains(t, err.Error(), tt.errorContains)
				}
				return
			}

			require.NoError(t, err)
			require.NotNil(t, cfg)

			err = cfg.Validate()
			require.NoError(t, err)

			assert.Equal(t, tt.expectedSize, cfg.Engine.DefaultChunkSize,
				"chunk size should be %d bytes (%s)", tt.expectedSize, FormatSize(tt.expectedSize))
		})
	}
}

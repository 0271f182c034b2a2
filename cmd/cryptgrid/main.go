// Command cryptgrid wires the core engine (internal/driver) behind a thin
// CLI shell. Flag parsing, directory packaging, and the HTTP surface are
// explicitly out of core scope (spec.md §1); this file is the minimal
// "external collaborator" the Driver needs to be run from a terminal.
package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/ironveil/cryptgrid/internal/config"
	"github.com/ironveil/cryptgrid/internal/driver"
	"github.com/ironveil/cryptgrid/internal/logger"
	"github.com/ironveil/cryptgrid/internal/model"
	"github.com/ironveil/cryptgrid/internal/packager"
	"github.com/ironveil/cryptgrid/internal/vault"
	"github.com/ironveil/cryptgrid/internal/version"
)

const masterSecretEnvVar = "CRYPTGRID_MASTER"

var (
	configFile string
	logLevel   string
	logOutput  string
)

func main() {
	rootCmd := &cobra.Command{
		Use:     "cryptgrid",
		Short:   "Parallel chunked authenticated encryption for directories",
		Version: version.FullVersion(),
	}

	rootCmd.PersistentFlags().StringVarP(&configFile, "config", "c", "", "Configuration file path (HCL); defaults built in if omitted")
	rootCmd.PersistentFlags().StringVarP(&logLevel, "log-level", "l", "info", "Log level (debug, info, error)")
	rootCmd.PersistentFlags().StringVar(&logOutput, "log-output", "stdout", "Log output (stdout, stderr, or file path)")

	rootCmd.AddCommand(encryptCmd())
	rootCmd.AddCommand(decryptCmd())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func encryptCmd() *cobra.Command {
	var (
		inDir   string
		outDir  string
		mode    string
		archive string
	)

	cmd := &cobra.Command{
		Use:   "encrypt",
		Short: "Encrypt every file under a directory and produce a distributable archive",
		Example: `  cryptgrid encrypt -i ./plaintext -o ./work --archive encrypted_outputs.zip`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runEncrypt(cmd.Context(), inDir, outDir, mode, archive)
		},
	}

	cmd.Flags().StringVarP(&inDir, "input", "i", "", "Input directory to encrypt")
	cmd.Flags().StringVarP(&outDir, "output", "o", "", "Output directory for ciphertext and manifests")
	cmd.Flags().StringVarP(&mode, "mode", "m", string(model.ModeCTR), "Whole-file cipher mode for small files (CTR, GCM, CBC)")
	cmd.Flags().StringVar(&archive, "archive", "", "Archive name override (default from config, §6)")

	_ = cmd.MarkFlagRequired("input")
	_ = cmd.MarkFlagRequired("output")

	return cmd
}

func decryptCmd() *cobra.Command {
	var (
		inDir  string
		outDir string
	)

	cmd := &cobra.Command{
		Use:   "decrypt",
		Short: "Decrypt every manifest-backed ciphertext under a directory",
		Example: `  cryptgrid decrypt -i ./work -o ./restored`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDecrypt(cmd.Context(), inDir, outDir)
		},
	}

	cmd.Flags().StringVarP(&inDir, "input", "i", "", "Input directory containing ciphertext and manifests")
	cmd.Flags().StringVarP(&outDir, "output", "o", "", "Output directory for recovered plaintext")

	_ = cmd.MarkFlagRequired("input")
	_ = cmd.MarkFlagRequired("output")

	return cmd
}

func runEncrypt(ctx context.Context, inDir, outDir, mode, archiveOverride string) error {
	d, cfg, log, v, err := bootstrap()
	if err != nil {
		return err
	}
	defer v.Close()

	secret, err := masterSecret()
	if err != nil {
		return err
	}

	result, err := d.EncryptDir(ctx, inDir, outDir, secret, model.Mode(mode))
	if err != nil {
		return err
	}
	logRunResult(log, "encrypt", result)

	archiveName := cfg.Engine.ArchiveName
	if archiveOverride != "" {
		archiveName = archiveOverride
	}
	if err := packager.Zip(outDir, archiveName); err != nil {
		return fmt.Errorf("packaging archive: %w", err)
	}
	log.Info("archive written", "path", archiveName)
	return nil
}

func runDecrypt(ctx context.Context, inDir, outDir string) error {
	d, _, log, v, err := bootstrap()
	if err != nil {
		return err
	}
	defer v.Close()

	secret, err := masterSecret()
	if err != nil {
		return err
	}

	result, err := d.DecryptDir(ctx, inDir, outDir, secret)
	if err != nil {
		return err
	}
	logRunResult(log, "decrypt", result)
	return nil
}

// bootstrap loads configuration (falling back to built-in defaults when no
// file is given), opens the logger and Vault, and constructs a Driver —
// the wiring the spec's Driver component (§4.G) assumes its caller does.
func bootstrap() (*driver.Driver, *config.Config, logger.Logger, *vault.Vault, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, nil, nil, nil, err
	}

	log, err := logger.New(logLevel, logOutput)
	if err != nil {
		return nil, nil, nil, nil, fmt.Errorf("initializing logger: %w", err)
	}

	v, err := vault.Open(cfg.Vault.Path, cfg.Vault.IterationsOverride, cfg.Vault.WriteLockTimeout.Duration())
	if err != nil {
		return nil, nil, nil, nil, fmt.Errorf("opening vault: %w", err)
	}

	d, err := driver.New(context.Background(), cfg, v, log)
	if err != nil {
		v.Close()
		return nil, nil, nil, nil, fmt.Errorf("constructing driver: %w", err)
	}

	return d, cfg, log, v, nil
}

func loadConfig() (*config.Config, error) {
	if configFile == "" {
		cfg := &config.Config{}
		if err := cfg.SetDefaults(); err != nil {
			return nil, err
		}
		return cfg, nil
	}
	return config.Load(configFile)
}

// masterSecret reads the master secret from the environment (§6:
// "user-supplied via env or form"). A CLI has no form surface, so env is
// the only source here; an unset or empty value is rejected here, before
// the Driver is called.
func masterSecret() (string, error) {
	secret := os.Getenv(masterSecretEnvVar)
	if secret == "" {
		return "", fmt.Errorf("%s is not set", masterSecretEnvVar)
	}
	return secret, nil
}

func logRunResult(log logger.Logger, op string, result *driver.RunResult) {
	log.Info(op+" complete", "succeeded", len(result.Succeeded), "failed", len(result.Failed), "key_id", result.KeyID)
	for _, f := range result.Failed {
		log.Error(op+" failed for file", "path", f.Path, "error", f.Err)
	}
}

// The init command creates the configuration and data directories and
// initializes the storage backend.
package cli

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/meshline/syncd/internal/sqlite"
)

// configFile holds the structure written to config.yaml.
type configFile struct {
	ListenAddr    string   `yaml:"listen_addr"`
	DataDir       string   `yaml:"data_dir,omitempty"`
	AdminToken    string   `yaml:"admin_token"`
	SessionTokens []string `yaml:"session_tokens"`
}

func newInitCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "init",
		Short: "Initialize syncd storage and credentials",
		Long: "Create the configuration directory with generated credentials and\n" +
			"initialize the event log database.",
		RunE: runInit,
	}
}

func runInit(cmd *cobra.Command, args []string) error {
	configDir := resolveConfigDir()
	if err := os.MkdirAll(configDir, 0o755); err != nil {
		return exitError(exitSysError, fmt.Sprintf("create config directory: %s", err))
	}

	configPath := filepath.Join(configDir, "config.yaml")
	if err := writeConfigIfMissing(configPath); err != nil {
		return exitError(exitSysError, fmt.Sprintf("write config: %s", err))
	}

	cfg, err := loadConfig(configDir)
	if err != nil {
		return exitError(exitSysError, fmt.Sprintf("load config: %s", err))
	}

	// Initialize the database via Attach then Detach.
	backend := sqlite.NewBackend()
	if err := backend.Attach(cfg); err != nil {
		return exitError(exitSysError, fmt.Sprintf("initialize storage: %s", err))
	}
	if err := backend.Detach(); err != nil {
		return exitError(exitSysError, fmt.Sprintf("finalize storage: %s", err))
	}

	fmt.Fprintln(cmd.OutOrStdout(), "syncd initialized successfully")
	return nil
}

// writeConfigIfMissing creates config.yaml with generated credentials if the
// file does not exist. If it already exists, the function returns nil
// (idempotent).
func writeConfigIfMissing(path string) error {
	if _, err := os.Stat(path); err == nil {
		return nil
	}

	cfg := configFile{
		ListenAddr:    defaultListenAddr,
		DataDir:       defaultDataDir,
		AdminToken:    uuid.New().String(),
		SessionTokens: []string{uuid.New().String()},
	}
	if flags.dataDir != "" {
		cfg.DataDir = flags.dataDir
	}

	data, err := yaml.Marshal(&cfg)
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}
	return os.WriteFile(path, data, 0o600)
}

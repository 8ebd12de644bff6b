// Config loading for the syncd CLI.
package cli

import (
	"errors"
	"fmt"

	"github.com/spf13/viper"

	"github.com/meshline/syncd/pkg/types"
)

const (
	configFileName = "config"
	configFileType = "yaml"

	cfgKeyListenAddr    = "listen_addr"
	cfgKeyDataDir       = "data_dir"
	cfgKeyAdminToken    = "admin_token"
	cfgKeySessionTokens = "session_tokens"

	defaultListenAddr = "127.0.0.1:8080"
	defaultDataDir    = ".syncd-db"
)

// loadConfig reads config.yaml from the resolved config directory using
// Viper, with SYNCD_* environment variables overriding file values. A
// missing config.yaml is not an error; defaults apply.
func loadConfig(configDir string) (types.Config, error) {
	v := viper.New()
	v.SetDefault(cfgKeyListenAddr, defaultListenAddr)
	v.SetDefault(cfgKeyDataDir, defaultDataDir)
	v.SetConfigName(configFileName)
	v.SetConfigType(configFileType)
	v.AddConfigPath(configDir)
	v.SetEnvPrefix("SYNCD")
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return types.Config{}, fmt.Errorf("read config: %w", err)
		}
	}

	cfg := types.Config{
		ListenAddr:    v.GetString(cfgKeyListenAddr),
		DataDir:       v.GetString(cfgKeyDataDir),
		AdminToken:    v.GetString(cfgKeyAdminToken),
		SessionTokens: v.GetStringSlice(cfgKeySessionTokens),
	}
	if flags.dataDir != "" {
		cfg.DataDir = flags.dataDir
	}
	return cfg, nil
}

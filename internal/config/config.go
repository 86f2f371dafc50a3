// Package config resolves client settings from defaults, an optional YAML
// config file, and environment variables, in increasing precedence. Flags
// bind on top in the CLI layer.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Keys understood in the config file and, upper-cased with the MCP_NREPL_
// prefix, in the environment.
const (
	KeyURL           = "url"
	KeyTimeout       = "timeout"
	KeyHistoryFile   = "history_file"
	KeyServerPort    = "server_port"
	KeyServerCommand = "server_command"

	envPrefix = "MCP_NREPL"

	// legacyURLEnv predates the prefixed scheme and is still honored.
	legacyURLEnv = "MCP_SERVER_URL"
)

// Defaults.
const (
	DefaultURL         = "http://localhost:3000/mcp"
	DefaultTimeout     = 30 * time.Second
	DefaultHistoryFile = ".mcp_history"
	DefaultServerPort  = 3004
)

// Config is the resolved client configuration.
type Config struct {
	// URL is the JSON-RPC endpoint of the backend server.
	URL string

	// Timeout bounds one HTTP exchange end to end.
	Timeout time.Duration

	// HistoryFile backs the interactive evaluation history.
	HistoryFile string

	// ServerPort is the port the supervisor starts the local server on.
	ServerPort int

	// ServerCommand is the command line the supervisor launches. Empty
	// disables starting.
	ServerCommand []string
}

// Load resolves the configuration. cfgFile, when non-empty, names an explicit
// YAML config file and must exist; otherwise a config file is searched in the
// working directory and is optional.
func Load(cfgFile string) (*Config, error) {
	v := viper.New()
	v.SetDefault(KeyURL, DefaultURL)
	v.SetDefault(KeyTimeout, DefaultTimeout)
	v.SetDefault(KeyHistoryFile, DefaultHistoryFile)
	v.SetDefault(KeyServerPort, DefaultServerPort)
	v.SetDefault(KeyServerCommand, []string{})

	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	if err := v.BindEnv(KeyURL, envPrefix+"_URL", legacyURLEnv); err != nil {
		return nil, err
	}

	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config file %s: %w", cfgFile, err)
		}
	} else {
		v.SetConfigName(".mcpnrepl")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) {
				return nil, fmt.Errorf("read config file: %w", err)
			}
		}
	}

	cfg := &Config{
		URL:           v.GetString(KeyURL),
		Timeout:       v.GetDuration(KeyTimeout),
		HistoryFile:   v.GetString(KeyHistoryFile),
		ServerPort:    v.GetInt(KeyServerPort),
		ServerCommand: v.GetStringSlice(KeyServerCommand),
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	if c.URL == "" {
		return errors.New("server url must not be empty")
	}
	if c.Timeout <= 0 {
		return fmt.Errorf("timeout must be positive, got %s", c.Timeout)
	}
	if c.ServerPort <= 0 || c.ServerPort > 65535 {
		return fmt.Errorf("server port out of range: %d", c.ServerPort)
	}
	return nil
}

package main

import (
	"fmt"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/srg/blecentral/pkg/config"
)

// loadConfig reads --config when given. Without a file the CLI only logs
// errors, so that library lifecycle logs do not mix with command output.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	path, _ := cmd.Flags().GetString("config")
	if path == "" {
		cfg := config.DefaultConfig()
		cfg.LogLevel = logrus.ErrorLevel.String()
		return cfg, nil
	}
	return config.Load(path)
}

// configureLogger applies --log-level, then --verbose, on top of the
// configured level.
func configureLogger(cmd *cobra.Command, cfg *config.Config) (*logrus.Logger, error) {
	logLevelStr, _ := cmd.Flags().GetString("log-level")
	verbose, _ := cmd.Flags().GetBool("verbose")

	switch {
	case logLevelStr != "":
		switch logLevelStr {
		case "debug", "info", "warn", "error":
			cfg.LogLevel = logLevelStr
		default:
			return nil, fmt.Errorf("invalid log level: %s (must be debug, info, warn, or error)", logLevelStr)
		}
	case verbose:
		cfg.LogLevel = logrus.DebugLevel.String()
	}

	logger := cfg.NewLogger()
	logger.SetOutput(cmd.ErrOrStderr())
	return logger, nil
}

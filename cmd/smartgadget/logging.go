package main

import (
	"fmt"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/srg/smartgadget/pkg/config"
)

// configureLogger builds the command logger from --log-level, then --verbose.
// Without either flag it only reports panics, keeping stderr for progress.
func configureLogger(cmd *cobra.Command, verboseFlagName string) (*logrus.Logger, error) {
	cfg := &config.Config{LogLevel: logrus.PanicLevel.String()}

	if name, _ := cmd.Flags().GetString("log-level"); name != "" {
		cfg.LogLevel = name
		level, err := cfg.Level()
		if err != nil || level < logrus.ErrorLevel || level > logrus.DebugLevel {
			return nil, fmt.Errorf("invalid log level: %s (must be debug, info, warn, or error)", name)
		}
	} else if verbose, _ := cmd.Flags().GetBool(verboseFlagName); verbose {
		cfg.LogLevel = logrus.DebugLevel.String()
	}

	logger := cfg.NewLogger()
	logger.SetOutput(cmd.ErrOrStderr())
	return logger, nil
}

func logLevelFlagged(cmd *cobra.Command, verboseFlagName string) bool {
	return cmd.Flags().Changed("log-level") || cmd.Flags().Changed(verboseFlagName)
}

package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"gctrail/internal/config"
	"gctrail/internal/console"
)

// settings are the global flags merged over gctrail.toml.
type settings struct {
	cfg   config.Config
	color console.ColorMode
	log   *zap.Logger
}

func loadSettings(cmd *cobra.Command) (*settings, error) {
	flags := cmd.Root().PersistentFlags()

	path, err := flags.GetString("config")
	if err != nil {
		return nil, fmt.Errorf("failed to get config flag: %w", err)
	}
	var cfg config.Config
	if path != "" {
		cfg, err = config.Load(path)
	} else {
		cfg, err = config.Discover(".")
	}
	if err != nil {
		return nil, err
	}

	if flags.Changed("color") {
		value, err := flags.GetString("color")
		if err != nil {
			return nil, fmt.Errorf("failed to get color flag: %w", err)
		}
		cfg.Output.Color = value
	}
	mode, err := console.ParseColorMode(cfg.Output.Color)
	if err != nil {
		return nil, err
	}

	verbose, err := flags.GetBool("verbose")
	if err != nil {
		return nil, fmt.Errorf("failed to get verbose flag: %w", err)
	}
	log, err := newLogger(verbose)
	if err != nil {
		return nil, fmt.Errorf("failed to create logger: %w", err)
	}
	if cfg.Path != "" {
		log.Debug("configuration loaded", zap.String("path", cfg.Path))
	}
	return &settings{cfg: cfg, color: mode, log: log}, nil
}

// newLogger returns a development logger on stderr when verbose is set and a
// no-op logger otherwise.
func newLogger(verbose bool) (*zap.Logger, error) {
	if !verbose {
		return zap.NewNop(), nil
	}
	logConfig := zap.NewDevelopmentConfig()
	logConfig.OutputPaths = []string{"stderr"}
	logConfig.DisableStacktrace = true
	return logConfig.Build()
}

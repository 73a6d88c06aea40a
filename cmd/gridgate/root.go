package main

import (
	"fmt"
	"os"

	"gridgate/internal/app"
	"gridgate/internal/config"
	"gridgate/internal/logging"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var (
	configPath string
	envPath    string
)

var rootCmd = &cobra.Command{
	Use:           "gridgate",
	Short:         "Risk gating and capital allocation for spot grid trading",
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "config.yaml", "path to config file")
	rootCmd.PersistentFlags().StringVar(&envPath, "env", ".env", "path to .env file")
}

// setup loads config and wires the application; every subcommand starts
// here.
func setup() (*app.App, *zap.Logger, error) {
	if err := config.LoadEnv(envPath); err != nil {
		fmt.Fprintf(os.Stderr, "failed to load env file: %v\n", err)
	}
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, nil, fmt.Errorf("load config: %w", err)
	}
	log := logging.New(cfg.Log)
	application, err := app.New(cfg, log)
	if err != nil {
		return nil, nil, fmt.Errorf("initialize app: %w", err)
	}
	return application, log, nil
}

package main

import (
	"context"
	"errors"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the allocation engine loop",
	RunE: func(cmd *cobra.Command, args []string) error {
		application, log, err := setup()
		if err != nil {
			return err
		}
		log.Info("gridgate starting")

		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		if err := application.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			log.Error("engine terminated", zap.Error(err))
			return err
		}
		log.Info("gridgate stopped")
		return nil
	},
}

func init() {
	rootCmd.AddCommand(runCmd)
}

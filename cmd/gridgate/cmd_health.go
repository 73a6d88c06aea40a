package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"
)

var healthCmd = &cobra.Command{
	Use:   "health",
	Short: "Probe exchange connectivity and local state",
	RunE: func(cmd *cobra.Command, args []string) error {
		application, _, err := setup()
		if err != nil {
			return err
		}
		defer application.Close()

		report := application.Health(cmd.Context())
		if report.RESTOK {
			fmt.Printf("rest: ok (%s, server time %s)\n", report.Latency.Round(1e6), report.ServerTime.Format("15:04:05 MST"))
		} else {
			fmt.Printf("rest: FAILED: %s\n", report.RESTError)
		}
		if report.StoreOK {
			fmt.Println("state store: ok")
		} else {
			fmt.Printf("state store: FAILED: %s\n", report.StoreError)
		}
		if !report.RESTOK || !report.StoreOK {
			return errors.New("health check failed")
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(healthCmd)
}

package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show bucket allocations, deployments, and lock state",
	RunE: func(cmd *cobra.Command, args []string) error {
		application, _, err := setup()
		if err != nil {
			return err
		}
		defer application.Close()

		report := application.Status(cmd.Context())
		fmt.Printf("total equity: %s  core drawdown: %s\n\n", report.TotalEquity, report.Drawdown.Round(4))
		fmt.Printf("%-12s %12s %12s %12s  %s\n", "BUCKET", "ALLOCATED", "DEPLOYED", "HEADROOM", "LOCK")
		for _, st := range report.Buckets {
			lock := "open"
			if st.Locked {
				lock = "LOCKED"
			}
			fmt.Printf("%-12s %12s %12s %12s  %s\n", st.Bucket, st.Allocated, st.Deployed, st.Headroom, lock)
		}
		if len(report.OpenRecords) > 0 {
			fmt.Println("\nopen deployments:")
			for _, rec := range report.OpenRecords {
				fmt.Printf("  %-12s %-10s %12s  opened %s\n",
					rec.Bucket, rec.Asset, rec.Amount, rec.OpenedAt.Format("2006-01-02 15:04"))
			}
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(statusCmd)
}

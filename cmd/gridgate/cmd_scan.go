package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

var scanCmd = &cobra.Command{
	Use:   "scan",
	Short: "Rank candidates and show sized, gated opportunities",
	RunE: func(cmd *cobra.Command, args []string) error {
		application, _, err := setup()
		if err != nil {
			return err
		}
		defer application.Close()

		report, err := application.Scan(cmd.Context())
		if err != nil {
			return err
		}
		if !report.RegimeOK {
			fmt.Println("regime: unfavorable, no entries considered")
			return nil
		}
		fmt.Printf("scan at %s\n", report.At.Format("2006-01-02 15:04:05 MST"))
		fmt.Printf("core: locked=%v headroom=%s\n\n", report.CoreLocked, report.CoreHeadroom)
		if len(report.Opportunities) == 0 {
			fmt.Println("no ranked opportunities")
		}
		for _, opp := range report.Opportunities {
			status := "REJECTED"
			if opp.Accepted {
				status = "ACCEPTED"
			}
			fmt.Printf("%-10s %-15s composite=%s notional=%s units=%s stop=%s [%s]",
				opp.Symbol, opp.Signal, opp.Composite.Round(4), opp.Notional, opp.Units.Round(8), opp.StopPct.Round(4), status)
			if opp.Reason != "" {
				fmt.Printf(" %s", opp.Reason)
			}
			if opp.ThinGrid {
				fmt.Printf(" (thin grid)")
			}
			fmt.Println()
		}
		if len(report.Excluded) > 0 {
			fmt.Println("\nexcluded:")
			for symbol, reason := range report.Excluded {
				fmt.Printf("  %-10s %s\n", symbol, reason)
			}
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(scanCmd)
}

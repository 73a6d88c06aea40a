package main

import (
	"fmt"
	"sort"

	"gridgate/internal/kraken/ws"

	"github.com/spf13/cobra"
)

var (
	tickerPairs  []string
	tickerFollow bool
)

var tickerCmd = &cobra.Command{
	Use:   "ticker",
	Short: "Show current tickers, optionally streaming over websocket",
	RunE: func(cmd *cobra.Command, args []string) error {
		application, _, err := setup()
		if err != nil {
			return err
		}
		defer application.Close()

		if tickerFollow {
			return application.FollowTickers(cmd.Context(), tickerPairs, func(u ws.TickerUpdate) {
				fmt.Printf("%-10s last=%s bid=%s ask=%s vol=%s\n", u.Symbol, u.Last, u.Bid, u.Ask, u.Volume)
			})
		}

		tickers, err := application.Tickers(cmd.Context(), tickerPairs)
		if err != nil {
			return err
		}
		sort.Slice(tickers, func(i, j int) bool { return tickers[i].Pair < tickers[j].Pair })
		for _, t := range tickers {
			fmt.Printf("%-10s last=%s bid=%s ask=%s spread=%s vol24h=%s\n",
				t.Pair, t.Last, t.Bid, t.Ask, t.SpreadFraction().Round(6), t.Volume24h)
		}
		return nil
	},
}

func init() {
	tickerCmd.Flags().StringSliceVar(&tickerPairs, "pairs", nil, "pairs to query (defaults to scan.pairs)")
	tickerCmd.Flags().BoolVar(&tickerFollow, "follow", false, "stream updates over websocket")
	rootCmd.AddCommand(tickerCmd)
}

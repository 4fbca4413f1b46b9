package main

import (
	"github.com/Sternrassler/klaviyo-extractor/pkg/ratelimit"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
)

func newTiersCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "tiers",
		Short: "List the rate limit tiers and their budgets",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			t := table.NewWriter()
			t.SetOutputMirror(cmd.OutOrStdout())
			t.SetStyle(table.StyleRounded)
			t.AppendHeader(table.Row{"Tier", "Requests/s", "Requests/min"})

			for _, tier := range ratelimit.Tiers() {
				budget, err := ratelimit.TierBudget(string(tier))
				if err != nil {
					return err
				}
				t.AppendRow(table.Row{string(tier), budget.PerSecond, budget.PerMinute})
			}

			t.Render()
			return nil
		},
	}
}

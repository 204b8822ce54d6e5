package main

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"
)

func newCreditsCommand(opts *globalOptions) *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "credits EMAIL",
		Short: "Show the credit balance for an email",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			resp, err := newClient(opts).Credits(cmd.Context(), args[0])
			if err != nil {
				return fmt.Errorf("failed to fetch credits: %w", err)
			}
			if asJSON {
				return writeJSON(cmd, resp)
			}

			lastPurchase := "-"
			if resp.LastPurchaseAt != nil {
				lastPurchase = resp.LastPurchaseAt.Local().Format("2006-01-02 15:04")
			}
			rows := [][]string{
				{"Email", resp.Email},
				{"Free trial used", strconv.FormatBool(resp.FreeTrialUsed)},
				{"Credits remaining", strconv.Itoa(resp.CreditsRemaining)},
				{"Total purchased", strconv.Itoa(resp.TotalPurchased)},
				{"Last purchase", lastPurchase},
			}
			fmt.Fprintln(cmd.OutOrStdout(), renderTable([]string{"Field", "Value"}, rows, nil))
			return nil
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print JSON")
	return cmd
}

package main

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"
	"photolineart-backend/internal/palette"
)

func newPaletteCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "palette",
		Short: "Inspect the pencil catalog",
	}
	cmd.AddCommand(newPaletteListCommand())
	cmd.AddCommand(newPaletteMatchCommand())
	return cmd
}

func newPaletteListCommand() *cobra.Command {
	var set int
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List pencils, optionally limited to one tin size",
		RunE: func(cmd *cobra.Command, args []string) error {
			if set != 0 && !palette.ValidSet(set) {
				return fmt.Errorf("unknown set %d", set)
			}
			catalog, err := palette.Default()
			if err != nil {
				return err
			}

			colors := catalog.ForSet(set)
			rows := make([][]string, 0, len(colors))
			for _, c := range colors {
				rows = append(rows, []string{strconv.Itoa(c.FCNo), c.FCName, c.Hex, joinInts(c.Sets)})
			}
			fmt.Fprintln(cmd.OutOrStdout(), renderTable([]string{"FC", "Name", "Hex", "Sets"}, rows, []columnAlignment{alignRight}))
			if missing := catalog.Missing(set); missing > 0 {
				fmt.Fprintf(cmd.OutOrStdout(), "catalog lists %d of the %d pencils in this tin\n", len(colors), set)
			}
			return nil
		},
	}
	cmd.Flags().IntVar(&set, "set", 0, "Tin size (12, 24, 36, 48, 60, 72, 120); 0 lists all")
	return cmd
}

func newPaletteMatchCommand() *cobra.Command {
	var set, maxResults int
	cmd := &cobra.Command{
		Use:   "match HEX...",
		Short: "Match hex colors to their nearest pencils",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if set != 0 && !palette.ValidSet(set) {
				return fmt.Errorf("unknown set %d", set)
			}
			catalog, err := palette.Default()
			if err != nil {
				return err
			}

			matches := palette.Match(args, maxResults, catalog.ForSet(set))
			rows := make([][]string, 0, len(matches))
			for _, m := range matches {
				rows = append(rows, []string{
					m.Swatch,
					strconv.Itoa(m.Color.FCNo),
					m.Color.FCName,
					m.Color.Hex,
					strconv.FormatFloat(m.DeltaE, 'f', 2, 64),
				})
			}
			fmt.Fprintln(cmd.OutOrStdout(), renderTable(
				[]string{"Sample", "FC", "Pencil", "Hex", "ΔE"},
				rows,
				[]columnAlignment{alignLeft, alignRight, alignLeft, alignLeft, alignRight},
			))
			return nil
		},
	}
	cmd.Flags().IntVar(&set, "set", 120, "Tin size to match against")
	cmd.Flags().IntVar(&maxResults, "max", palette.DefaultMaxResults, "Maximum number of matches")
	return cmd
}

func joinInts(values []int) string {
	parts := make([]string, len(values))
	for i, v := range values {
		parts[i] = strconv.Itoa(v)
	}
	return strings.Join(parts, ",")
}

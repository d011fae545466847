package main

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/go-mizu/archer"
)

// newQueryCmd runs a one-shot query against an existing index, with flags
// controlling how many hits to print and the pre-query diagnostic dumps.
func newQueryCmd() *cobra.Command {
	var numHits int
	var printAll bool
	var printWordStats bool
	var showAllHits bool

	c := &cobra.Command{
		Use:   "query <text...>",
		Short: "Run a one-shot query against an existing index",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			idx, err := archer.Open(dataDirFlag(cmd))
			if err != nil {
				return fmt.Errorf("query: %w", err)
			}
			defer idx.Close()

			if printAll {
				if err := idx.DumpAll(cmd.OutOrStdout()); err != nil {
					return err
				}
			}
			if printWordStats {
				for _, ws := range idx.WordStats() {
					fmt.Fprintf(cmd.OutOrStdout(), "%s\tdf=%d\ttotal=%d\n", ws.Word, ws.Df, ws.Total)
				}
			}

			results, err := idx.Query(context.Background(), strings.Join(args, " "))
			if err != nil {
				return err
			}
			if !showAllHits && numHits > 0 && len(results) > numHits {
				results = results[:numHits]
			}
			for _, r := range results {
				fmt.Fprintf(cmd.OutOrStdout(), "%.6f\t%s\n", r.Score, idx.DocPath(r.Di))
			}
			return nil
		},
	}

	c.Flags().IntVar(&numHits, "num-hits-to-show", 10, "maximum number of hits to print")
	c.Flags().BoolVar(&printAll, "print-all", false, "print every posting in the index (document id, position, term, field names) before the hit list")
	c.Flags().BoolVar(&printWordStats, "print-word-stats", false, "print per-term document frequency and occurrence counts before the hit list")
	c.Flags().BoolVar(&showAllHits, "show-all-hits", false, "print every hit, ignoring --num-hits-to-show")

	return c
}

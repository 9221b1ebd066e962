package cmd

import (
	"context"
	"fmt"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/arbornotes/arbor/cmd/config"
	"github.com/arbornotes/arbor/pkg/cache"
)

func NewSearchCmd(deps **config.Deps) *cobra.Command {
	var (
		searchJSON  bool
		searchLimit int
	)

	cmd := &cobra.Command{
		Use:   "search <query>",
		Short: "Search article titles",
		Long: `Search article titles in the local index.

Matching is case-insensitive and Unicode-normalized, and works offline.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			d := *deps

			entries, err := d.Engine.FetchIndex(context.Background())
			if err != nil {
				return err
			}
			results := cache.SearchTitles(entries, strings.Join(args, " "), searchLimit)

			if searchJSON {
				return outputJSON(results)
			}
			if len(results) == 0 {
				fmt.Println("no matches")
				return nil
			}
			w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "ID\tTITLE")
			for _, e := range results {
				fmt.Fprintf(w, "%s\t%s\n", e.ID, e.Title)
			}
			return w.Flush()
		},
	}

	cmd.Flags().BoolVar(&searchJSON, "json", false, "Output as JSON")
	cmd.Flags().IntVar(&searchLimit, "limit", 0, "Maximum number of results (default 50)")
	return cmd
}

// Package cmd holds the arbor subcommands.
package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/arbornotes/arbor/cmd/config"
	"github.com/arbornotes/arbor/pkg/models"
)

func NewListCmd(deps **config.Deps) *cobra.Command {
	var (
		listJSON    bool
		showDeleted bool
	)

	cmd := &cobra.Command{
		Use:     "list",
		Short:   "List the article tree",
		Aliases: []string{"ls"},
		Long: `List the article tree, cached-first.

Examples:
  arbor list            # Show the tree
  arbor list --json     # Machine-readable output
  arbor list --deleted  # Include locally deleted articles`,
		RunE: func(cmd *cobra.Command, args []string) error {
			d := *deps

			entries, err := d.Engine.FetchIndex(context.Background())
			if err != nil {
				return err
			}
			if !showDeleted {
				entries = withoutDeleted(entries)
			}

			if listJSON {
				return outputJSON(entries)
			}
			printTree(entries)
			return nil
		},
	}

	cmd.Flags().BoolVar(&listJSON, "json", false, "Output as JSON")
	cmd.Flags().BoolVar(&showDeleted, "deleted", false, "Include locally deleted articles")
	return cmd
}

func withoutDeleted(entries []models.IndexEntry) []models.IndexEntry {
	kept := entries[:0:0]
	for _, e := range entries {
		if e.DeletedAt == nil {
			kept = append(kept, e)
		}
	}
	return kept
}

// printTree renders the index as an indented table, depth-first.
func printTree(entries []models.IndexEntry) {
	children := map[string][]models.IndexEntry{}
	for _, e := range entries {
		key := ""
		if e.ParentID != nil {
			key = *e.ParentID
		}
		children[key] = append(children[key], e)
	}
	for _, siblings := range children {
		sort.SliceStable(siblings, func(i, j int) bool {
			return siblings[i].Position < siblings[j].Position
		})
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tTITLE\tUPDATED")
	var walk func(parent string, depth int)
	walk = func(parent string, depth int) {
		for _, e := range children[parent] {
			title := strings.Repeat("  ", depth) + e.Title
			fmt.Fprintf(w, "%s\t%s\t%s\n", e.ID, title, e.UpdatedAt)
			walk(e.ID, depth+1)
		}
	}
	walk("", 0)
	w.Flush()
}

func outputJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

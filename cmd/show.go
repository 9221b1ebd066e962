package cmd

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/arbornotes/arbor/cmd/config"
	"github.com/arbornotes/arbor/pkg/models"
)

func NewShowCmd(deps **config.Deps) *cobra.Command {
	var showJSON bool

	cmd := &cobra.Command{
		Use:   "show <id>",
		Short: "Show one article",
		Long: `Show an article's content, cached-first.

"inbox" (and any dated inbox id) always resolves, even with an empty cache.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			d := *deps

			a, err := d.Engine.FetchArticle(context.Background(), args[0])
			if err != nil {
				return err
			}

			if showJSON {
				return outputJSON(a)
			}
			if a.Title != "" {
				fmt.Printf("# %s\n\n", a.Title)
			}
			fmt.Println(docText(a.Doc))
			return nil
		},
	}

	cmd.Flags().BoolVar(&showJSON, "json", false, "Output the raw article as JSON")
	return cmd
}

// docText flattens a content tree into plain text, one block node per line.
func docText(doc *models.DocNode) string {
	if doc == nil {
		return ""
	}
	var lines []string
	var walk func(n models.DocNode)
	walk = func(n models.DocNode) {
		if text := inlineText(n); text != "" {
			lines = append(lines, text)
			return
		}
		for _, c := range n.Children {
			walk(c)
		}
	}
	for _, c := range doc.Children {
		walk(c)
	}
	return strings.Join(lines, "\n")
}

// inlineText concatenates the text children of a block node, or returns ""
// when the node nests further block structure.
func inlineText(n models.DocNode) string {
	var b strings.Builder
	for _, c := range n.Children {
		if c.Type != "text" {
			return ""
		}
		b.WriteString(c.Text)
	}
	return b.String()
}

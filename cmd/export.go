package cmd

import (
	"context"
	"fmt"
	"os"
	"sort"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/arbornotes/arbor/cmd/config"
	"github.com/arbornotes/arbor/pkg/models"
)

// exportNode is one article in the exported outline.
type exportNode struct {
	ID       string        `yaml:"id"`
	Title    string        `yaml:"title"`
	Text     string        `yaml:"text,omitempty"`
	Children []*exportNode `yaml:"children,omitempty"`
}

func NewExportCmd(deps **config.Deps) *cobra.Command {
	var withContent bool

	cmd := &cobra.Command{
		Use:   "export [id]",
		Short: "Export the article tree as YAML",
		Long: `Export the article tree (or one article's subtree) as a YAML
outline, cached-first.

With --content, each node also carries its flattened document text
(cached articles only; nothing is fetched per node).`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			d := *deps

			entries, err := d.Engine.FetchIndex(context.Background())
			if err != nil {
				return err
			}
			entries = withoutDeleted(entries)

			roots := buildOutline(entries, func(id string) string {
				if !withContent {
					return ""
				}
				a, err := d.Store.GetArticle(id)
				if err != nil || a == nil {
					return ""
				}
				return docText(a.Doc)
			})

			if len(args) == 1 {
				sub := findOutlineNode(roots, args[0])
				if sub == nil {
					return fmt.Errorf("article %s not in the local index", args[0])
				}
				roots = []*exportNode{sub}
			}

			enc := yaml.NewEncoder(os.Stdout)
			enc.SetIndent(2)
			defer enc.Close()
			if err := enc.Encode(roots); err != nil {
				return fmt.Errorf("encode outline: %w", err)
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&withContent, "content", false, "Include cached document text")
	return cmd
}

func findOutlineNode(nodes []*exportNode, id string) *exportNode {
	for _, n := range nodes {
		if n.ID == id {
			return n
		}
		if found := findOutlineNode(n.Children, id); found != nil {
			return found
		}
	}
	return nil
}

func buildOutline(entries []models.IndexEntry, textOf func(id string) string) []*exportNode {
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

	var build func(parent string) []*exportNode
	build = func(parent string) []*exportNode {
		var nodes []*exportNode
		for _, e := range children[parent] {
			nodes = append(nodes, &exportNode{
				ID:       e.ID,
				Title:    e.Title,
				Text:     textOf(e.ID),
				Children: build(e.ID),
			})
		}
		return nodes
	}
	return build("")
}

package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/arbornotes/arbor/cmd/config"
	"github.com/arbornotes/arbor/pkg/models"
)

func NewSaveCmd(deps **config.Deps) *cobra.Command {
	var (
		fromFile string
		text     string
	)

	cmd := &cobra.Command{
		Use:   "save <id>",
		Short: "Save an article's content",
		Long: `Save an article's content tree.

The document is read as JSON from stdin (or --file), or built from a
single paragraph with --text. Offline, the save is applied to the local
cache and queued; rapid repeated saves coalesce into one queued write.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			d := *deps

			doc, err := readDoc(fromFile, text)
			if err != nil {
				return err
			}

			res, err := d.Engine.SaveDoc(context.Background(), args[0], doc)
			if err != nil {
				return err
			}
			d.Engine.WaitBackground()

			fmt.Println(res.Status)
			return nil
		},
	}

	cmd.Flags().StringVarP(&fromFile, "file", "f", "", "Read the document JSON from a file instead of stdin")
	cmd.Flags().StringVarP(&text, "text", "t", "", "Build the document from a single line of text")
	return cmd
}

func readDoc(fromFile, text string) (*models.DocNode, error) {
	if text != "" {
		return &models.DocNode{Type: "doc", Children: []models.DocNode{
			{Type: "paragraph", Children: []models.DocNode{{Type: "text", Text: text}}},
		}}, nil
	}

	var r io.Reader = os.Stdin
	if fromFile != "" {
		f, err := os.Open(fromFile)
		if err != nil {
			return nil, fmt.Errorf("open document file: %w", err)
		}
		defer f.Close()
		r = f
	}

	var doc models.DocNode
	if err := json.NewDecoder(r).Decode(&doc); err != nil {
		return nil, fmt.Errorf("decode document: %w", err)
	}
	if doc.Type == "" {
		return nil, fmt.Errorf("document root must have a type")
	}
	return &doc, nil
}

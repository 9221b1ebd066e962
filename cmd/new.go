package cmd

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/arbornotes/arbor/cmd/config"
)

func NewNewCmd(deps **config.Deps) *cobra.Command {
	var parentID string

	cmd := &cobra.Command{
		Use:   "new <title>",
		Short: "Create a new article",
		Long: `Create a new article with an empty document.

Offline, the article is created locally with a client-generated id and
queued for the server.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			d := *deps

			var parent *string
			if parentID != "" {
				parent = &parentID
			}
			res, err := d.Engine.CreateArticle(context.Background(), strings.Join(args, " "), parent)
			if err != nil {
				return err
			}
			d.Engine.WaitBackground()

			fmt.Printf("%s\t%s\n", res.Article.ID, res.Status)
			return nil
		},
	}

	cmd.Flags().StringVarP(&parentID, "parent", "p", "", "Parent article id (default root)")
	return cmd
}

func NewRmCmd(deps **config.Deps) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "rm <id>",
		Short:   "Delete an article",
		Aliases: []string{"delete"},
		Long: `Delete an article.

Offline, the article is soft-deleted locally and the deletion is queued
for the server.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			d := *deps

			res, err := d.Engine.DeleteArticle(context.Background(), args[0])
			if err != nil {
				return err
			}
			d.Engine.WaitBackground()

			fmt.Println(res.Status)
			return nil
		},
	}
	return cmd
}

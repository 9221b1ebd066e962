package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/arbornotes/arbor/cmd/config"
	"github.com/arbornotes/arbor/pkg/engine"
)

func NewMoveCmd(deps **config.Deps) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "move <id> <up|down>",
		Short: "Swap an article with a sibling",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, direction := args[0], args[1]
			if direction != "up" && direction != "down" {
				return fmt.Errorf("direction must be up or down, got %q", direction)
			}
			return runStructural(*deps, func(d *config.Deps) (*engine.Result, error) {
				return d.Engine.Move(context.Background(), id, direction)
			})
		},
	}
	return cmd
}

func NewIndentCmd(deps **config.Deps) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "indent <id>",
		Short: "Nest an article under its preceding sibling",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runStructural(*deps, func(d *config.Deps) (*engine.Result, error) {
				return d.Engine.Indent(context.Background(), args[0])
			})
		},
	}
	return cmd
}

func NewOutdentCmd(deps **config.Deps) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "outdent <id>",
		Short: "Lift an article up to its grandparent",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runStructural(*deps, func(d *config.Deps) (*engine.Result, error) {
				return d.Engine.Outdent(context.Background(), args[0])
			})
		},
	}
	return cmd
}

func NewMoveTreeCmd(deps **config.Deps) *cobra.Command {
	var (
		anchorID  string
		parentID  string
		placement string
	)

	cmd := &cobra.Command{
		Use:   "move-tree <id>",
		Short: "Relocate an article subtree",
		Long: `Relocate an article and its whole subtree.

The destination is an anchor article plus a placement: before or after
the anchor, or inside it (appended as its last child). The destination
must not be inside the moved subtree.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			switch placement {
			case engine.PlaceBefore, engine.PlaceAfter, engine.PlaceInside:
			default:
				return fmt.Errorf("placement must be before, after or inside, got %q", placement)
			}
			target := engine.TreeTarget{AnchorID: anchorID, Placement: placement}
			if parentID != "" {
				target.ParentID = &parentID
			}
			return runStructural(*deps, func(d *config.Deps) (*engine.Result, error) {
				return d.Engine.MoveTree(context.Background(), args[0], target)
			})
		},
	}

	cmd.Flags().StringVar(&anchorID, "anchor", "", "Anchor article id")
	cmd.Flags().StringVar(&parentID, "parent", "", "Target parent id (for placements without an anchor)")
	cmd.Flags().StringVar(&placement, "placement", "after", "before, after or inside")
	return cmd
}

// runStructural runs one structural mutation and reports its outcome. A nil
// result means the operation was a no-op (boundary move, unknown id).
func runStructural(d *config.Deps, fn func(*config.Deps) (*engine.Result, error)) error {
	res, err := fn(d)
	if err != nil {
		return err
	}
	d.Engine.WaitBackground()

	if res == nil {
		fmt.Println("no change")
		return nil
	}
	fmt.Println(res.Status)
	return nil
}

package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/arbornotes/arbor/cmd/config"
)

func NewStatusCmd(deps **config.Deps) *cobra.Command {
	var statusJSON bool

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show pending offline writes",
		RunE: func(cmd *cobra.Command, args []string) error {
			d := *deps

			ops, err := d.Queue.Pending()
			if err != nil {
				return err
			}

			if statusJSON {
				return outputJSON(ops)
			}
			if len(ops) == 0 {
				fmt.Println("outbox empty")
				return nil
			}
			w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "OP\tARTICLE\tQUEUED\tRETRIES")
			for _, op := range ops {
				fmt.Fprintf(w, "%s\t%s\t%s\t%d\n",
					op.Type, op.ArticleID, op.QueuedAt.Format("2006-01-02 15:04:05"), op.Retries)
			}
			return w.Flush()
		},
	}

	cmd.Flags().BoolVar(&statusJSON, "json", false, "Output as JSON")
	return cmd
}

func NewPushCmd(deps **config.Deps) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "push",
		Short: "Replay queued writes against the server",
		Long: `Replay queued writes against the server, in queue order.

The pass stops at the first transient failure; failed ops stay queued
for the next push.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			d := *deps

			report, err := d.Replayer.Replay(context.Background())
			if err != nil {
				return err
			}

			data, _ := json.Marshal(report)
			d.Log.WithField("report", string(data)).Debug("replay pass finished")
			fmt.Printf("replayed %d, dropped %d, remaining %d\n",
				report.Replayed, report.Dropped, report.Remaining)
			return nil
		},
	}
	return cmd
}

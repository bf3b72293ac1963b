package cmd

import (
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
)

var (
	runsLimit  int
	runsOffset int
)

var runsCmd = &cobra.Command{
	Use:   "runs",
	Short: "List simulation runs",
	Long:  `List recorded runs, newest first.`,
	Run: func(cmd *cobra.Command, args []string) {
		runs, err := newClient().ListRuns(runsLimit, runsOffset)
		if err != nil {
			printError(cmd, err)
			return
		}

		if len(runs) == 0 {
			if runsOffset > 0 {
				cmd.Println("No more runs found.")
			} else {
				cmd.Println("No runs found.")
			}
			return
		}

		w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 3, ' ', 0)
		fmt.Fprintln(w, "ID\tNAME\tSERVER\tSTATE\tTIMELINE\tSTARTED\tENDED")
		for _, r := range runs {
			fmt.Fprintf(w, "%d\t%s\t%d\t%s\t%s\t%s\t%s\n",
				r.ID,
				r.Name,
				r.ServerNumber,
				r.State,
				r.DurationString,
				formatTimestamp(r.StartTime),
				formatTimestamp(r.EndTime),
			)
		}
		w.Flush()
	},
}

func formatTimestamp(t *time.Time) string {
	if t == nil {
		return "-"
	}
	return t.Format(time.RFC3339)
}

func init() {
	runsCmd.Flags().IntVarP(&runsLimit, "limit", "l", 20, "Number of runs to list")
	runsCmd.Flags().IntVarP(&runsOffset, "offset", "o", 0, "Offset for pagination")
	rootCmd.AddCommand(runsCmd)
}

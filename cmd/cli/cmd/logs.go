package cmd

import (
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"mosaic/internal/simulation"
	"mosaic/pkg/api"

	"github.com/spf13/cobra"
)

var (
	follow bool
	// logsPollInterval is the wait between polls while following.
	logsPollInterval = time.Second
)

var logsCmd = &cobra.Command{
	Use:   "logs [run_id]",
	Short: "Show the action log of a run",
	Long:  `Print the actions a run has recorded. With --follow the log is polled until the run ends or Ctrl+C is pressed.`,
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		runID, err := strconv.ParseInt(args[0], 10, 64)
		if err != nil {
			cmd.Printf("Error: invalid run id %q\n", args[0])
			return
		}

		// Trap Ctrl+C to exit gracefully
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
		defer signal.Stop(sigChan)

		go func() {
			if _, ok := <-sigChan; ok {
				os.Exit(0)
			}
		}()

		client := newClient()
		var lastID int64

		for {
			newLogs, err := client.GetLogs(runID, lastID)
			if err != nil {
				printError(cmd, err)
				if !follow {
					break
				}
				time.Sleep(2 * logsPollInterval)
				continue
			}

			ended := false
			for _, entry := range newLogs {
				cmd.Println(formatLogEntry(entry))
				if entry.ID > lastID {
					lastID = entry.ID
				}
				if entry.Action == simulation.ActionSimulationEnds {
					ended = true
				}
			}

			if !follow {
				// An empty page means we caught up.
				if len(newLogs) == 0 {
					break
				}
				continue
			}
			if ended {
				break
			}

			time.Sleep(logsPollInterval)
		}
	},
}

func formatLogEntry(entry api.LogEntry) string {
	line := fmt.Sprintf("%s  %s", entry.Timestamp.Format("2006-01-02 15:04:05"), entry.Action)
	if entry.StationCode != nil {
		line += fmt.Sprintf("  station=%d", *entry.StationCode)
	}
	if entry.BinCode != nil {
		line += fmt.Sprintf("  bin=%d", *entry.BinCode)
	}
	return line
}

func init() {
	rootCmd.AddCommand(logsCmd)
	logsCmd.Flags().BoolVarP(&follow, "follow", "f", false, "Follow log output")
}

package cmd

import (
	"github.com/spf13/cobra"
)

var stopRunID int64

var stopCmd = &cobra.Command{
	Use:   "stop",
	Short: "Stop a simulation run",
	Long:  `Request a run to stop. Without --run-id the latest active run is stopped. The run finishes the bins already at its stations before it ends.`,
	Run: func(cmd *cobra.Command, args []string) {
		result, err := newClient().StopRun(optionalRunID(stopRunID))
		if err != nil {
			printError(cmd, err)
			return
		}
		cmd.Printf("✓ %s\n", result.Message)
	},
}

// optionalRunID maps the zero flag value to "latest".
func optionalRunID(id int64) *int64 {
	if id <= 0 {
		return nil
	}
	return &id
}

func init() {
	stopCmd.Flags().Int64Var(&stopRunID, "run-id", 0, "Run to stop (default: latest active run)")
	rootCmd.AddCommand(stopCmd)
}

package cmd

import (
	"fmt"
	"time"

	"mosaic/pkg/api"

	"github.com/spf13/cobra"
)

var statusRunID int64

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Get status of a simulation run",
	Long:  `Retrieve the state of a run (running, completed, failed), whether a stop was requested, and its timestamps. Without --run-id the most recent run is shown.`,
	Run: func(cmd *cobra.Command, args []string) {
		status, err := newClient().Status(optionalRunID(statusRunID))
		if err != nil {
			printError(cmd, err)
			return
		}
		printStatus(cmd, *status)
	},
}

func printStatus(cmd *cobra.Command, status api.StatusResponse) {
	icon := statusIcon(status.State)
	cmd.Printf("%s %sSimulation Run%s\n", icon, colorBold, colorReset)
	cmd.Println("──────────────────────────────")

	cmd.Printf("%sRun ID:%s      %d\n", colorDim, colorReset, status.RunID)
	cmd.Printf("%sName:%s        %s\n", colorDim, colorReset, status.SimulationName)
	cmd.Printf("%sServer:%s      %d\n", colorDim, colorReset, status.ServerNumber)
	cmd.Printf("%sState:%s       %s\n", colorDim, colorReset, colorizeStatus(status.State))

	if status.StopRequested {
		cmd.Printf("%sStop:%s        %srequested%s\n", colorDim, colorReset, colorYellow, colorReset)
	}

	if status.Error != "" {
		cmd.Printf("%sError:%s       %s%s%s\n", colorDim, colorReset, colorRed, status.Error, colorReset)
	}

	cmd.Printf("%sStarted:%s     %s\n", colorDim, colorReset, formatTimeWithRelative(status.StartTime))

	if status.StartTime != nil && status.StopTime != nil {
		duration := status.StopTime.Sub(*status.StartTime)
		cmd.Printf("%sStopped:%s     %s %s(%s)%s\n", colorDim, colorReset,
			formatTimeWithRelative(status.StopTime),
			colorCyan, formatDuration(duration), colorReset)
	} else {
		cmd.Printf("%sStopped:%s     %s\n", colorDim, colorReset, formatTimeWithRelative(status.StopTime))
	}
}

// ANSI color codes
const (
	colorReset  = "\033[0m"
	colorBold   = "\033[1m"
	colorDim    = "\033[2m"
	colorRed    = "\033[31m"
	colorGreen  = "\033[32m"
	colorYellow = "\033[33m"
	colorCyan   = "\033[36m"
)

func statusIcon(state string) string {
	switch state {
	case api.RunStateCompleted:
		return colorGreen + "✓" + colorReset
	case api.RunStateFailed:
		return colorRed + "✗" + colorReset
	case api.RunStateRunning:
		return colorYellow + "⏳" + colorReset
	default:
		return "•"
	}
}

func colorizeStatus(state string) string {
	icon := statusIcon(state)
	switch state {
	case api.RunStateCompleted:
		return icon + " " + colorGreen + state + colorReset
	case api.RunStateFailed:
		return icon + " " + colorRed + state + colorReset
	case api.RunStateRunning:
		return icon + " " + colorYellow + state + colorReset
	default:
		return state
	}
}

func formatTimeWithRelative(t *time.Time) string {
	if t == nil {
		return "-"
	}
	relative := relativeTime(*t)
	return fmt.Sprintf("%s %s(%s ago)%s", t.Format("Mon, 02 Jan 2006 15:04:05 MST"), colorDim, relative, colorReset)
}

func relativeTime(t time.Time) string {
	duration := time.Since(t)

	if duration < time.Minute {
		return fmt.Sprintf("%ds", int(duration.Seconds()))
	} else if duration < time.Hour {
		return fmt.Sprintf("%dm", int(duration.Minutes()))
	} else if duration < 24*time.Hour {
		return fmt.Sprintf("%dh", int(duration.Hours()))
	}
	days := int(duration.Hours() / 24)
	if days == 1 {
		return "1 day"
	}
	return fmt.Sprintf("%d days", days)
}

func formatDuration(d time.Duration) string {
	if d < time.Second {
		return fmt.Sprintf("%dms", d.Milliseconds())
	} else if d < time.Minute {
		return fmt.Sprintf("%.1fs", d.Seconds())
	} else if d < time.Hour {
		return fmt.Sprintf("%dm %ds", int(d.Minutes()), int(d.Seconds())%60)
	}
	return fmt.Sprintf("%dh %dm", int(d.Hours()), int(d.Minutes())%60)
}

func init() {
	statusCmd.Flags().Int64Var(&statusRunID, "run-id", 0, "Run to show (default: most recent run)")
	rootCmd.AddCommand(statusCmd)
}

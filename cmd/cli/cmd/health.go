package cmd

import (
	"mosaic/pkg/api"

	"github.com/spf13/cobra"
)

var healthServer int

var healthCmd = &cobra.Command{
	Use:   "health",
	Short: "Check the simulation services of a server",
	Long:  `Probe the storage manager and traffic control of a server and show whether a run is active on it.`,
	Run: func(cmd *cobra.Command, args []string) {
		health, err := newClient().SystemHealth(healthServer)
		if err != nil {
			printError(cmd, err)
			return
		}
		printHealth(cmd, *health)
	},
}

func printHealth(cmd *cobra.Command, h api.SystemHealthResponse) {
	icon := colorGreen + "✓" + colorReset
	state := colorGreen + "healthy" + colorReset
	if !h.Healthy {
		icon = colorRed + "✗" + colorReset
		state = colorRed + "unhealthy" + colorReset
	}
	cmd.Printf("%s %sServer %d%s %s\n", icon, colorBold, h.ServerNumber, colorReset, state)
	cmd.Println("──────────────────────────────")

	cmd.Printf("%sStorage manager:%s  %s\n", colorDim, colorReset, probeText(h.StorageManager, "dispatcher active", "dispatcher inactive"))
	cmd.Printf("%sTraffic control:%s  %s\n", colorDim, colorReset, probeText(h.TrafficControl, "cycle stopped", "cycling"))

	if h.Backend.SimulationRunning {
		cmd.Printf("%sSimulation:%s       run %d (%s) running\n", colorDim, colorReset, h.Backend.RunID, h.Backend.SimulationName)
	} else {
		cmd.Printf("%sSimulation:%s       idle\n", colorDim, colorReset)
	}
}

func probeText(p api.ProbeResponse, active, inactive string) string {
	if !p.Reachable {
		text := colorRed + "unreachable" + colorReset
		if p.Error != "" {
			text += " (" + p.Error + ")"
		}
		return text
	}
	if p.Error != "" {
		return colorRed + "reachable, " + p.Error + colorReset
	}
	if p.Active {
		return "reachable, " + active
	}
	return "reachable, " + inactive
}

func init() {
	healthCmd.Flags().IntVarP(&healthServer, "server", "s", 1, "Server number")
	rootCmd.AddCommand(healthCmd)
}

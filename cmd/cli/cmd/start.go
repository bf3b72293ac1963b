package cmd

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"mosaic/pkg/api"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

var startFile string

var startCmd = &cobra.Command{
	Use:   "start",
	Short: "Start a simulation run",
	Long: `Start a simulation run from a request file. The file holds the same
document POST /jobs/create accepts, as JSON or YAML.

Example:
  mosaicctl start --file run.yaml

  # run.yaml
  configuration:
    id: 42
    name: peak
    server_number: 1
    duration_string: N800;AO1000;N500
  parameters:
    inbound_time: 10
    outbound_time: 20
    inbound_bins_per_order: 7
    outbound_bins_per_order: 4
    inbound_orders_per_hour: 30
    outbound_orders_per_hour: 60
    pareto_probabilities: [0.5, 0.3, 0.2]
  stations:
    - {code: 1, type: I}
    - {code: 2, type: O}
  station_groups:
    - {group: 1, station_codes: [1]}
    - {group: 2, station_codes: [2]}`,
	Run: func(cmd *cobra.Command, args []string) {
		if startFile == "" {
			cmd.Println("Error: --file is required")
			return
		}

		req, err := readRequest(startFile)
		if err != nil {
			cmd.Printf("Error: %v\n", err)
			return
		}

		result, err := newClient().StartRun(*req)
		if err != nil {
			printError(cmd, err)
			return
		}

		cmd.Printf("✓ %s\nRun ID: %d\nName: %s\n", result.Message, result.RunID, req.Configuration.Name)
	},
}

// readRequest loads a run request. Files ending in .json are decoded as JSON,
// anything else as YAML.
func readRequest(path string) (*api.JobsCreationRequest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read request file: %w", err)
	}

	var req api.JobsCreationRequest
	if strings.EqualFold(filepath.Ext(path), ".json") {
		err = json.Unmarshal(data, &req)
	} else {
		err = yaml.Unmarshal(data, &req)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", path, err)
	}
	return &req, nil
}

func init() {
	startCmd.Flags().StringVarP(&startFile, "file", "f", "", "Run request file, JSON or YAML (required)")
	rootCmd.AddCommand(startCmd)
}

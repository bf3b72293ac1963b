package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var cfgFile string

var rootCmd = &cobra.Command{
	Use:   "mosaicctl",
	Short: "mosaicctl is a command line tool for the mosaic simulation controller",
	Long: `mosaicctl is the command-line interface for the mosaic warehouse simulation
control plane.

The controller drives a storage grid simulation: it presents bins to inbound
and outbound stations, alternating between normal operation and advance-order
phases, and records every action so runs can be summarised afterwards.

Common workflows:

  Start a run from a request file:
    mosaicctl start --file run.yaml

  Check the latest run and stop it:
    mosaicctl status
    mosaicctl stop

  Follow the action log of a run:
    mosaicctl logs 42 --follow

  Station bin-presentation rates during normal operation:
    mosaicctl summary 42 --normal-only --xlsx run-42.xlsx

  Work out pareto probabilities for a request:
    mosaicctl pareto --layers 10 --p 0.8 --q 0.2 --json

Configuration:
  Set the API endpoint and credentials via environment variables or a config file:
    MOSAIC_URL      Controller URL (default: http://localhost:8000)
    MOSAIC_TOKEN    Operator token, when the controller requires one`,
	SilenceUsage: true,
}

func Execute() error {
	return rootCmd.Execute()
}

func initConfig() {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		home, err := os.UserHomeDir()
		if err != nil {
			fmt.Println(err)
			os.Exit(1)
		}

		// Search config in home directory with name ".mosaicctl"
		viper.AddConfigPath(home)
		viper.SetConfigName(".mosaicctl")
		viper.SetConfigType("yaml")
	}

	// Read environment variables that match "MOSAIC_VARNAME"
	viper.SetEnvPrefix("MOSAIC")
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err == nil {
		fmt.Fprintln(os.Stderr, "Using config file:", viper.ConfigFileUsed())
	}
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is $HOME/.mosaicctl.yaml)")

	rootCmd.PersistentFlags().String("url", "http://localhost:8000", "Mosaic controller URL")
	viper.BindPFlag("url", rootCmd.PersistentFlags().Lookup("url"))

	rootCmd.PersistentFlags().StringP("token", "t", "", "Operator token for run control")
	viper.BindPFlag("token", rootCmd.PersistentFlags().Lookup("token"))
}

// newClient builds a client from the resolved url and token.
func newClient() *Client {
	return NewClient(viper.GetString("url"), viper.GetString("token"))
}

// printError reports a failed call, showing the controller's message for
// API errors.
func printError(cmd *cobra.Command, err error) {
	if apiErr, ok := err.(*APIError); ok {
		cmd.Printf("Error (%d): %s\n", apiErr.StatusCode, apiErr.Message)
		return
	}
	cmd.Printf("Error: %v\n", err)
}

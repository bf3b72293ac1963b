package cmd

import (
	"bytes"
	"os"
	"testing"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

func resetViper() {
	viper.Reset()
	viper.SetEnvPrefix("MOSAIC")
	viper.AutomaticEnv()
}

// resetFlags restores command flag variables, which survive between
// Execute calls on the shared root command.
func resetFlags() {
	startFile = ""
	stopRunID = 0
	statusRunID = 0
	runsLimit, runsOffset = 20, 0
	follow = false
	summaryNormalOnly, summaryXLSX = false, ""
	healthServer = 1
	paretoLayers, paretoP, paretoQ, paretoJSON = 10, 0.8, 0.2, false
}

// execute runs the root command with args and returns everything printed.
func execute(t *testing.T, args ...string) string {
	t.Helper()
	resetFlags()

	var stdout bytes.Buffer
	rootCmd.SetOut(&stdout)
	rootCmd.SetErr(&stdout)
	rootCmd.SetArgs(args)

	if err := rootCmd.Execute(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	return stdout.String()
}

func TestRootCommand_DefaultURL(t *testing.T) {
	resetViper()

	cmd := &cobra.Command{}
	cmd.PersistentFlags().String("url", "http://localhost:8000", "Mosaic controller URL")
	viper.BindPFlag("url", cmd.PersistentFlags().Lookup("url"))

	url := viper.GetString("url")
	if url != "http://localhost:8000" {
		t.Errorf("expected default url http://localhost:8000, got: %s", url)
	}
}

func TestRootCommand_EnvVarBinding(t *testing.T) {
	resetViper()

	t.Setenv("MOSAIC_TOKEN", "env-token-value")
	t.Setenv("MOSAIC_URL", "http://custom-url:8080")

	token := viper.GetString("token")
	url := viper.GetString("url")

	if token != "env-token-value" {
		t.Errorf("expected token from env var, got: %s", token)
	}
	if url != "http://custom-url:8080" {
		t.Errorf("expected url from env var, got: %s", url)
	}
}

func TestRootCommand_ExecuteReturnsNoError(t *testing.T) {
	resetViper()

	rootCmd.SetArgs([]string{"--help"})

	err := rootCmd.Execute()
	if err != nil {
		t.Errorf("root command should execute without error: %v", err)
	}
}

func TestRootCommand_Subcommands(t *testing.T) {
	want := map[string]bool{
		"start": false, "stop": false, "status": false, "runs": false,
		"logs": false, "summary": false, "health": false, "pareto": false,
	}
	for _, cmd := range rootCmd.Commands() {
		if _, ok := want[cmd.Name()]; ok {
			want[cmd.Name()] = true
		}
	}

	for name, found := range want {
		if !found {
			t.Errorf("expected %q subcommand to be registered with root command", name)
		}
	}
}

func TestExecute_ReturnsError(t *testing.T) {
	resetViper()

	rootCmd.SetArgs([]string{"unknown-command-xyz"})

	err := Execute()
	if err == nil {
		t.Error("expected error for unknown command")
	}
}

func TestRootCommand_CustomConfigFile(t *testing.T) {
	resetViper()

	tmpFile, err := os.CreateTemp("", "mosaicctl-test-*.yaml")
	if err != nil {
		t.Fatalf("failed to create temp file: %v", err)
	}
	defer os.Remove(tmpFile.Name())

	tmpFile.WriteString("url: http://custom-from-config:9999\ntoken: config-token\n")
	tmpFile.Close()

	cfgFile = tmpFile.Name()
	initConfig()

	url := viper.GetString("url")
	if url != "http://custom-from-config:9999" {
		t.Errorf("expected url from config file, got: %s", url)
	}

	token := viper.GetString("token")
	if token != "config-token" {
		t.Errorf("expected token from config file, got: %s", token)
	}

	cfgFile = ""
}

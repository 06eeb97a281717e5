// Command errwebhookctl is an operator CLI for the errwebhook plugin
// (SPEC_FULL.md §C/§E.3): send a test event, flush the offline queue,
// and inspect stats/health, without needing a running RoadRunner
// container. It builds the same Plugin a RoadRunner server would, by
// feeding internal/config.Loader's output through a Configurer
// adapter, and calls Plugin methods directly in-process.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var configPath string

var rootCmd = &cobra.Command{
	Use:   "errwebhookctl",
	Short: "Operate an errwebhook pipeline from the command line",
}

func main() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "errwebhook.yaml", "path to the plugin's YAML config")
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

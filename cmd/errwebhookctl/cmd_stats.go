package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Print pipeline counters (spec.md §4.10)",
	RunE: func(cmd *cobra.Command, args []string) error {
		p, err := buildPlugin()
		if err != nil {
			return err
		}
		return printJSON(p.GetStats())
	},
}

var healthCmd = &cobra.Command{
	Use:   "health",
	Short: "Print the SDK health score and diagnosis (spec.md §4.10)",
	RunE: func(cmd *cobra.Command, args []string) error {
		p, err := buildPlugin()
		if err != nil {
			return err
		}
		return printJSON(p.GetSDKHealth())
	},
}

func printJSON(v interface{}) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		return fmt.Errorf("encode output: %w", err)
	}
	return nil
}

func init() {
	rootCmd.AddCommand(statsCmd)
	rootCmd.AddCommand(healthCmd)
}

package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

var flushCmd = &cobra.Command{
	Use:   "flush",
	Short: "Flush the batch aggregator and drain the offline queue",
	RunE: func(cmd *cobra.Command, args []string) error {
		p, err := buildPlugin()
		if err != nil {
			return err
		}

		ctx := context.Background()
		if err := p.Flush(ctx); err != nil {
			return fmt.Errorf("flush batch: %w", err)
		}
		if err := p.FlushQueue(ctx); err != nil {
			return fmt.Errorf("flush offline queue: %w", err)
		}

		fmt.Println("flushed")
		return nil
	},
}

func init() {
	rootCmd.AddCommand(flushCmd)
}

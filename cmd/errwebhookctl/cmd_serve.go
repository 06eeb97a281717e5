package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the pipeline standalone, hot-reloading config on change, until interrupted",
	RunE: func(cmd *cobra.Command, args []string) error {
		p, err := buildPlugin()
		if err != nil {
			return err
		}

		if errCh := p.Serve(); len(errCh) > 0 {
			return <-errCh
		}

		ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer cancel()

		go func() {
			if err := p.WatchConfigFile(ctx, configPath); err != nil {
				fmt.Fprintf(os.Stderr, "errwebhook: config watch disabled: %v\n", err)
			}
		}()

		<-ctx.Done()
		return p.Stop(context.Background())
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

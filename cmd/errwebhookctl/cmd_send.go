package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/relayforge/errwebhook"
)

var (
	sendMessage   string
	sendException string
	sendLevel     string
)

var sendCmd = &cobra.Command{
	Use:   "send",
	Short: "Send a test event through the pipeline",
	RunE: func(cmd *cobra.Command, args []string) error {
		p, err := buildPlugin()
		if err != nil {
			return err
		}

		ctx := context.Background()
		var resp errwebhook.CaptureResponse
		if sendException != "" {
			resp = p.CaptureException(ctx, errwebhook.CaptureExceptionRequest{
				ExceptionClass: sendException,
				Message:        sendMessage,
			})
		} else {
			resp = p.CaptureMessage(ctx, errwebhook.CaptureMessageRequest{
				Message: sendMessage,
				Level:   sendLevel,
			})
		}

		if resp.Dropped {
			fmt.Printf("dropped: %s\n", resp.Reason)
			return nil
		}
		fmt.Println("accepted")
		return nil
	},
}

func init() {
	sendCmd.Flags().StringVar(&sendMessage, "message", "test event from errwebhookctl", "message text")
	sendCmd.Flags().StringVar(&sendException, "exception", "", "exception class; sends CaptureException instead of CaptureMessage")
	sendCmd.Flags().StringVar(&sendLevel, "level", "error", "severity level")
	rootCmd.AddCommand(sendCmd)
}

package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

var setLogLevelCmd = &cobra.Command{
	Use:   "set-log-level <level>",
	Short: "Change meridiand's log level at runtime (panic, fatal, error, warn, info, debug, trace)",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := app.client.SetLogLevel(context.Background(), args[0]); err != nil {
			return fmt.Errorf("setting log level: %w", err)
		}
		fmt.Printf("log level set to %s\n", args[0])
		return nil
	},
}

func init() {
	rootCmd.AddCommand(setLogLevelCmd)
}

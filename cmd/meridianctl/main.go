// Meridianctl is the operator CLI for a running meridiand instance:
// read-only "show" commands against its admin API, plus set-log-level.
// Command layout mirrors cmd/newtron's cmd_*.go-per-subcommand style.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/meridian-sdn/meridian/pkg/adminapi"
)

// App holds CLI state shared across all commands.
type App struct {
	adminAddr string
	client    *adminapi.Client
}

var app = &App{}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:           "meridianctl",
	Short:         "Inspect and operate a running meridiand controller",
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		app.client = adminapi.NewClient(app.adminAddr)
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&app.adminAddr, "admin-addr", "http://127.0.0.1:8088", "meridiand admin API base URL")
}

package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/meridian-sdn/meridian/pkg/version"
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print meridianctl's build version",
	RunE: func(cmd *cobra.Command, args []string) error {
		fmt.Println(version.Info())
		return nil
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)
}

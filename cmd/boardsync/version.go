package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

// Version info, overridable at build time:
//
//	go build -ldflags "-X main.Version=1.2.3 -X main.Build=abc123"
var (
	Version = "0.1.0"
	Build   = "dev"
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Show version information",
	Run: func(cmd *cobra.Command, args []string) {
		if jsonOutput {
			outputJSON(map[string]string{
				"version": Version,
				"build":   Build,
			})
			return
		}
		fmt.Printf("boardsync version %s (%s)\n", Version, Build)
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)
}

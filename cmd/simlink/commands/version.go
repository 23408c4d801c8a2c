package commands

import (
	"fmt"

	"github.com/spf13/cobra"
)

// Build metadata, overridden at link time via -ldflags.
var (
	Version = "local-build"
	Commit  = "unknown"
)

func GetVersionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show version",
		Long:  `Shows version and build commit of the simlink command line tool.`,
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("simlink %s (%s)\n", Version, Commit)
		},
	}
}

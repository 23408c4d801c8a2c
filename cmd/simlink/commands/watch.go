package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/simlink-go/simlink/pkg/registry"
)

func GetWatchCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "watch <path1> [<path2> ...]",
		Short: "Watch data points",
		Long: `Subscribes to the specified data points and writes every change to stdout
until interrupted.`,
		RunE: runWatch,
	}

	cmd.Flags().BoolP("string", "s", false, "Treat the data points as string values")
	cmd.Flags().BoolP("verbose", "v", false, "Log at debug level")
	cmd.Args = cobra.MinimumNArgs(1)

	return cmd
}

func runWatch(cmd *cobra.Command, args []string) error {
	asString, err := cmd.Flags().GetBool("string")
	if err != nil {
		return err
	}
	verbose, err := cmd.Flags().GetBool("verbose")
	if err != nil {
		return err
	}

	engine, err := newEngine(verbose)
	if err != nil {
		return err
	}
	if err := engine.Start(); err != nil {
		return err
	}
	defer engine.Stop()

	kind := registry.KindFloat
	if asString {
		kind = registry.KindString
	}

	for _, path := range args {
		if _, err := engine.Subscribe(path, kind); err != nil {
			return err
		}
		if _, err := engine.AddListener(path, func(path string, value any) {
			fmt.Printf("%s=%v\n", path, value)
		}); err != nil {
			return err
		}
	}

	<-cmd.Context().Done()
	return nil
}

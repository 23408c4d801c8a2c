package commands

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/simlink-go/simlink/pkg/registry"
)

func GetGetCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "get <path>",
		Short: "Read a data point",
		Long: `Subscribes to the specified data point, prints the first value received
and exits.`,
		RunE: runGet,
	}

	cmd.Flags().BoolP("string", "s", false, "Treat the data point as a string value")
	cmd.Flags().DurationP("timeout", "t", 30*time.Second, "Timeout for waiting for the value")
	cmd.Flags().BoolP("verbose", "v", false, "Log at debug level")
	cmd.Args = cobra.ExactArgs(1)

	return cmd
}

func runGet(cmd *cobra.Command, args []string) error {
	asString, err := cmd.Flags().GetBool("string")
	if err != nil {
		return err
	}
	timeout, err := cmd.Flags().GetDuration("timeout")
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

	path := args[0]
	kind := registry.KindFloat
	if asString {
		kind = registry.KindString
	}

	if _, err := engine.Subscribe(path, kind); err != nil {
		return err
	}

	values := make(chan any, 1)
	id, err := engine.AddListener(path, func(_ string, value any) {
		select {
		case values <- value:
		default:
		}
	})
	if err != nil {
		return err
	}
	defer engine.RemoveListener(path, id)

	select {
	case value := <-values:
		fmt.Println(value)
	case <-cmd.Context().Done():
	case <-time.After(timeout):
		return fmt.Errorf("timeout")
	}

	return nil
}

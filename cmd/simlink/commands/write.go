package commands

import (
	"fmt"
	"strconv"
	"time"

	"github.com/spf13/cobra"
)

func GetWriteCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "write <path> <value>",
		Short: "Write a data point",
		Long: `Writes a value to the specified data point.
Values are parsed as bool, int or float in that order.`,
		RunE: runWrite,
	}

	cmd.Flags().DurationP("timeout", "t", 30*time.Second, "Timeout for waiting for the connection")
	cmd.Flags().BoolP("verbose", "v", false, "Log at debug level")
	cmd.Args = cobra.ExactArgs(2)

	return cmd
}

func parseValue(s string) (any, error) {
	if v, err := strconv.ParseBool(s); err == nil {
		return v, nil
	}
	if v, err := strconv.ParseInt(s, 10, 32); err == nil {
		return int(v), nil
	}
	if v, err := strconv.ParseFloat(s, 64); err == nil {
		return v, nil
	}
	return nil, fmt.Errorf("cannot parse value %q", s)
}

func runWrite(cmd *cobra.Command, args []string) error {
	timeout, err := cmd.Flags().GetDuration("timeout")
	if err != nil {
		return err
	}
	verbose, err := cmd.Flags().GetBool("verbose")
	if err != nil {
		return err
	}

	value, err := parseValue(args[1])
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

	if err := waitConnected(cmd, engine, timeout); err != nil {
		return err
	}

	return engine.WriteValue(args[0], value)
}

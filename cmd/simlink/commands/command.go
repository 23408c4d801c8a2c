package commands

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/simlink-go/simlink/pkg/simlink"
)

func GetCommandCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "command <path>",
		Short: "Execute a simulator command",
		Long: `Executes the specified simulator command once.
With --begin or --end the command is held or released instead, for commands
that act while pressed.`,
		RunE: runCommand,
	}

	cmd.Flags().BoolP("begin", "b", false, "Begin a held command")
	cmd.Flags().BoolP("end", "e", false, "End a held command")
	cmd.Flags().DurationP("delay", "d", 0, "Delay before executing")
	cmd.Flags().DurationP("timeout", "t", 30*time.Second, "Timeout for waiting for the connection")
	cmd.Flags().BoolP("verbose", "v", false, "Log at debug level")
	cmd.Args = cobra.ExactArgs(1)

	return cmd
}

func runCommand(cmd *cobra.Command, args []string) error {
	begin, err := cmd.Flags().GetBool("begin")
	if err != nil {
		return err
	}
	end, err := cmd.Flags().GetBool("end")
	if err != nil {
		return err
	}
	if begin && end {
		return fmt.Errorf("--begin and --end are mutually exclusive")
	}
	delay, err := cmd.Flags().GetDuration("delay")
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

	if err := waitConnected(cmd, engine, timeout); err != nil {
		return err
	}

	phase := simlink.CommandOnce
	if begin {
		phase = simlink.CommandBegin
	}
	if end {
		phase = simlink.CommandEnd
	}

	if delay > 0 {
		if err := engine.SendCommandAfter(args[0], phase, delay); err != nil {
			return err
		}
		select {
		case <-time.After(delay + time.Second):
		case <-cmd.Context().Done():
		}
		return nil
	}

	return engine.SendCommand(args[0], phase)
}

func waitConnected(cmd *cobra.Command, engine *simlink.Engine, timeout time.Duration) error {
	deadline := time.After(timeout)
	tick := time.NewTicker(100 * time.Millisecond)
	defer tick.Stop()

	for {
		switch engine.ConnectionState() {
		case simlink.StateConnected, simlink.StateDegraded:
			return nil
		}
		select {
		case <-tick.C:
		case <-cmd.Context().Done():
			return cmd.Context().Err()
		case <-deadline:
			return fmt.Errorf("timeout waiting for simulator")
		}
	}
}

package commands

import "github.com/spf13/cobra"

func GetRootCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "simlink",
		Short: "simlink is a command line tool for talking to a flight simulator over UDP.",
		Long: `The simlink command is a command line tool for talking to a flight simulator over UDP.
It discovers the simulator, subscribes to data points and lets you read values,
execute commands and write values from the shell.

Configuration is read from the file named by the SIMLINK_CONFIG environment
variable; without it the stock simulator network setup is assumed.`,
		SilenceUsage: true,
	}

	cmd.AddCommand(
		GetRunCommand(),
		GetGetCommand(),
		GetWatchCommand(),
		GetCommandCommand(),
		GetWriteCommand(),
		GetVersionCommand(),
	)

	return cmd
}

package commands

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newAutoconfCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "autoconf",
		Short: "Report whether the plugin can run on this host",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if _, err := a.reader.Read(commandContext(cmd)); err != nil {
				fmt.Fprintf(cmd.OutOrStdout(), "no (%v)\n", err)
				return nil
			}
			fmt.Fprintln(cmd.OutOrStdout(), "yes")
			return nil
		},
	}
}

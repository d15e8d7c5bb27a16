package commands

import (
	"github.com/spf13/cobra"
)

func newConfigCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "config",
		Short: "Print the munin graph configuration",
		Long: `Print the munin graph configuration.

With cpudetail=1 one multigraph per core follows the total graph. When munin
announces dirty config support (MUNIN_CAP_DIRTYCONFIG=1) the values are
printed right after the configuration.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := commandContext(cmd)
			munin := a.munin(ctx)
			if err := munin.Config(cmd.OutOrStdout()); err != nil {
				return err
			}
			if a.cfg.DirtyConfig {
				return a.fetch(ctx, cmd.OutOrStdout())
			}
			return nil
		},
	}
}

package commands

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/danpilch/cpu1sec/pkg/benchmark"
	"github.com/danpilch/cpu1sec/pkg/cache"
)

func newBenchCmd(a *app) *cobra.Command {
	opts := benchmark.DefaultOptions()

	cmd := &cobra.Command{
		Use:   "bench",
		Short: "Measure the cost of one sampling cycle",
		Long: `Run read and save cycles back to back against a scratch cache file and
report latency percentiles and allocations per cycle. The live cache is not
touched.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			dir, err := os.MkdirTemp("", a.cfg.Name+"-bench")
			if err != nil {
				return err
			}
			defer os.RemoveAll(dir)

			res, err := benchmark.Run(commandContext(cmd), a.reader, cache.NewStore(dir, a.cfg.Name), opts)
			if err != nil {
				return err
			}
			benchmark.RenderResults(cmd.OutOrStdout(), res)
			return nil
		},
	}

	cmd.Flags().IntVarP(&opts.Iterations, "iterations", "n", opts.Iterations, "Number of measured cycles")
	cmd.Flags().IntVar(&opts.Warmup, "warmup", opts.Warmup, "Unmeasured cycles before measuring")

	return cmd
}

// Package commands provides the cpu1sec command line.
package commands

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/danpilch/cpu1sec/pkg/collectors/cpu"
	"github.com/danpilch/cpu1sec/pkg/config"
	"github.com/danpilch/cpu1sec/pkg/daemon"
	"github.com/danpilch/cpu1sec/pkg/logging"
	"github.com/danpilch/cpu1sec/pkg/sampler"
)

// ExitError carries a process exit code out of a command.
type ExitError struct {
	Code int
}

func (e *ExitError) Error() string {
	return fmt.Sprintf("exit status %d", e.Code)
}

// app is the state shared by all subcommands.
type app struct {
	cfg    *config.Config
	log    *logrus.Logger
	reader sampler.Reader
	cores  func(ctx context.Context) (int, error)
	spawn  func(exe string, args, env []string, logPath string) (int, error)
	now    func() time.Time
}

func newApp() *app {
	return &app{
		reader: cpu.New(),
		cores:  cpu.Cores,
		spawn:  daemon.Spawn,
		now:    time.Now,
	}
}

// NewRootCmd creates the root command with all subcommands.
func NewRootCmd() *cobra.Command {
	return newRootCmd(newApp())
}

func newRootCmd(a *app) *cobra.Command {
	root := &cobra.Command{
		Use:   config.Name,
		Short: "Munin plugin sampling CPU usage once per second",
		Long: `cpu1sec samples per-CPU tick counters every second in a background
process and serves the latest sample to munin-node.

Without arguments it prints the current values, starting the background
sampler first if it is not running.

Commands:
  fetch      Print values (same as no argument)
  config     Print the graph configuration
  autoconf   Report whether the plugin can run on this host
  acquire    Run the sampler in the foreground
  status     Show the cached sample for humans
  bench      Measure the cost of one sampling cycle

Environment:
  cpudetail=1             one graph per core in addition to the total
  MUNIN_PLUGSTATE         directory for cache, pid and log files
  MUNIN_CAP_DIRTYCONFIG   print values after config when set to 1`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			cfg := config.Load()
			a.cfg = cfg
			a.log = logging.New(cmd.ErrOrStderr(), cfg.LogLevel, cfg.LogFormat)
			if cfg.EnvFileErr != nil {
				a.log.WithError(cfg.EnvFileErr).Warn("Ignoring env file")
			}
			return nil
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.fetch(commandContext(cmd), cmd.OutOrStdout())
		},
	}

	root.AddCommand(
		newFetchCmd(a),
		newConfigCmd(a),
		newAutoconfCmd(a),
		newAcquireCmd(a),
		newStatusCmd(a),
		newBenchCmd(a),
	)

	return root
}

// Execute runs the root command.
func Execute() {
	if err := NewRootCmd().ExecuteContext(context.Background()); err != nil {
		var exitErr *ExitError
		if errors.As(err, &exitErr) {
			os.Exit(exitErr.Code)
		}
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func commandContext(cmd *cobra.Command) context.Context {
	if ctx := cmd.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}

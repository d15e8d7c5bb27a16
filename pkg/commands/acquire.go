package commands

import (
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/danpilch/cpu1sec/pkg/daemon"
	"github.com/danpilch/cpu1sec/pkg/debug"
	"github.com/danpilch/cpu1sec/pkg/sampler"
)

func newAcquireCmd(a *app) *cobra.Command {
	var pprofAddr string

	cmd := &cobra.Command{
		Use:   "acquire",
		Short: "Run the sampler in the foreground",
		Long: `Run the sampler in the foreground until SIGINT or SIGTERM.

This is what the background process started by fetch runs. Only one sampler
per state directory can run; a second one exits right away.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.acquire(cmd, pprofAddr)
		},
	}

	cmd.Flags().StringVar(&pprofAddr, "pprof", "", "Serve pprof on this address while sampling (e.g. localhost:6060)")

	return cmd
}

func (a *app) acquire(cmd *cobra.Command, pprofAddr string) error {
	if err := os.MkdirAll(a.cfg.StateDir, 0755); err != nil {
		return fmt.Errorf("cannot create state directory: %w", err)
	}

	lock, err := daemon.Acquire(a.cfg.PidPath())
	if errors.Is(err, daemon.ErrAlreadyRunning) {
		a.log.Info("Sampler already running, exiting")
		return nil
	}
	if err != nil {
		return err
	}
	defer func() {
		if err := lock.Release(); err != nil {
			a.log.WithError(err).Warn("Cannot release pid file")
		}
	}()

	ctx, stop := signal.NotifyContext(commandContext(cmd), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if pprofAddr != "" {
		stopPprof, err := debug.StartPprofServer(pprofAddr, a.log)
		if err != nil {
			return err
		}
		defer stopPprof()
	}

	store := a.store()
	reader := debug.NewTimedReader(a.reader, a.cfg.Interval/2, a.log)
	fields := logrus.Fields{
		"pid":     os.Getpid(),
		"pidfile": lock.Path(),
		"cache":   store.Path,
	}
	if src, ok := a.reader.(interface{ Source() string }); ok {
		fields["source"] = src.Source()
	}
	a.log.WithFields(fields).Info("cpu1sec started")

	return sampler.New(reader, store, a.cfg.Interval, a.log).Run(ctx)
}

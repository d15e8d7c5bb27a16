package commands

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/danpilch/cpu1sec/pkg/cache"
	"github.com/danpilch/cpu1sec/pkg/daemon"
	"github.com/danpilch/cpu1sec/pkg/output"
	"github.com/danpilch/cpu1sec/pkg/use"
)

type statusOptions struct {
	format   string
	watch    bool
	exitCode bool
	warn     float64
	crit     float64
}

func newStatusCmd(a *app) *cobra.Command {
	opts := statusOptions{format: string(output.FormatTable)}
	defaults := use.DefaultThresholds()

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show the cached sample for humans",
		Long: `Show whether the sampler is running and the busy percentage of each CPU
in the cached sample.

Example:
  cpu1sec status
  cpu1sec status --watch
  cpu1sec status --format json --exit-code`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.status(commandContext(cmd), cmd.OutOrStdout(), opts)
		},
	}

	flags := cmd.Flags()
	flags.StringVarP(&opts.format, "format", "f", opts.format, "Output format (table, json, tsv)")
	flags.BoolVarP(&opts.watch, "watch", "w", false, "Refresh every second with a trend column")
	flags.BoolVar(&opts.exitCode, "exit-code", false, "Exit 1 on busy, 2 on critical, 3 on missing data")
	flags.Float64Var(&opts.warn, "warn", defaults.WarnUtil, "Busy percentage reported as warning")
	flags.Float64Var(&opts.crit, "crit", defaults.CritUtil, "Busy percentage reported as critical")

	return cmd
}

func (a *app) status(ctx context.Context, w io.Writer, opts statusOptions) error {
	format, err := output.ParseFormat(opts.format)
	if err != nil {
		return err
	}
	thresholds := use.Thresholds{WarnUtil: opts.warn, CritUtil: opts.crit}
	formatter := output.NewFormatter(format, w)

	if !opts.watch {
		st, err := a.readStatus(thresholds)
		if err != nil {
			return err
		}
		if err := formatter.Render(st); err != nil {
			return err
		}
		if opts.exitCode {
			if code := use.ExitCode(st.Checks); code != 0 {
				return &ExitError{Code: code}
			}
		}
		return nil
	}

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	formatter.SetSparklineTracker(output.NewSparklineTracker(30))
	ticker := time.NewTicker(a.cfg.Interval)
	defer ticker.Stop()

	for {
		st, err := a.readStatus(thresholds)
		if err != nil {
			return err
		}
		if format == output.FormatTable {
			fmt.Fprint(w, "\033[H\033[2J")
		}
		if err := formatter.Render(st); err != nil {
			return err
		}

		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}

func (a *app) readStatus(thresholds use.Thresholds) (output.Status, error) {
	store := a.store()
	st := output.Status{CachePath: store.Path}
	st.Hostname, _ = os.Hostname()

	pid, running, err := daemon.Running(a.cfg.PidPath())
	if err != nil {
		a.log.WithError(err).Warn("Cannot probe sampler")
	}
	st.SamplerPid, st.Running = pid, running

	rec, err := store.Load()
	if errors.Is(err, cache.ErrNoData) {
		return st, nil
	}
	if err != nil {
		return st, err
	}

	now := a.now()
	if rec.Hostname != "" {
		st.Hostname = rec.Hostname
	}
	st.Epoch = rec.Epoch
	st.Age = rec.Age(now).Round(time.Second).String()
	st.Stale = rec.Stale(now, a.cfg.StaleAfter)
	st.Checks = use.Evaluate(rec.Delta, st.Stale, thresholds)
	return st, nil
}

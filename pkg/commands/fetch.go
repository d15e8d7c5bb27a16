package commands

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"runtime"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/danpilch/cpu1sec/pkg/cache"
	"github.com/danpilch/cpu1sec/pkg/daemon"
	"github.com/danpilch/cpu1sec/pkg/output"
)

func newFetchCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "fetch",
		Short: "Print the latest sampled values",
		Long: `Print the latest sampled values in munin's value protocol.

The background sampler is started first if no process holds its pid file.
When no fresh sample is cached every field is reported as U.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.fetch(commandContext(cmd), cmd.OutOrStdout())
		},
	}
}

// fetch prints the cached delta, or U for every field when there is none.
func (a *app) fetch(ctx context.Context, w io.Writer) error {
	if err := a.ensureSampler(); err != nil {
		a.log.WithError(err).Warn("Cannot start sampler")
	}

	store := a.store()
	rec, err := store.Load()
	if errors.Is(err, cache.ErrNoData) && a.cfg.SpawnWait > 0 {
		waitCtx, cancel := context.WithTimeout(ctx, a.cfg.SpawnWait)
		if werr := daemon.WaitForFile(waitCtx, store.Path); werr == nil {
			rec, err = store.Load()
		}
		cancel()
	}

	munin := a.munin(ctx)

	if err != nil {
		if !errors.Is(err, cache.ErrNoData) {
			a.log.WithError(err).Warn("Cannot read cache file")
		}
		return munin.NoData(w)
	}

	if rec.Stale(a.now(), a.cfg.StaleAfter) {
		a.log.WithFields(logrus.Fields{
			"age":   rec.Age(a.now()),
			"limit": a.cfg.StaleAfter,
		}).Warn("Cached sample is stale")
		return munin.NoData(w)
	}

	return munin.Values(w, rec.Delta)
}

// ensureSampler spawns "acquire" in the background unless a sampler holds the pid file.
func (a *app) ensureSampler() error {
	if err := os.MkdirAll(a.cfg.StateDir, 0755); err != nil {
		return fmt.Errorf("cannot create state directory: %w", err)
	}

	pid, running, err := daemon.Running(a.cfg.PidPath())
	if err != nil {
		return err
	}
	if running {
		a.log.WithField("pid", pid).Debug("Sampler running")
		return nil
	}

	exe, err := os.Executable()
	if err != nil {
		return fmt.Errorf("cannot find own executable: %w", err)
	}

	pid, err = a.spawn(exe, []string{"acquire"}, os.Environ(), a.cfg.LogPath())
	if err != nil {
		return err
	}
	a.log.WithField("pid", pid).Info("Started sampler")
	return nil
}

// munin describes the graphs for this host. The core count falls back to the
// Go runtime's view if the system lookup fails.
func (a *app) munin(ctx context.Context) output.Munin {
	cores, err := a.cores(ctx)
	if err != nil {
		cores = runtime.NumCPU()
		a.log.WithError(err).WithField("cores", cores).Warn("Cannot count cpus, using runtime count")
	}
	return output.Munin{Name: a.cfg.Name, Cores: cores, Detail: a.cfg.CPUDetail}
}

// store is the cache file the sampler writes and the reporters read.
func (a *app) store() *cache.Store {
	return &cache.Store{Path: a.cfg.CachePath()}
}

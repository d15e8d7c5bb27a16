// Package sampler runs the once-per-interval loop that keeps the cache file current.
package sampler

import (
	"context"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/danpilch/cpu1sec/pkg/cache"
	"github.com/danpilch/cpu1sec/pkg/collectors/cpu"
)

// Reader takes one snapshot of the CPU counters.
type Reader interface {
	Read(ctx context.Context) (cpu.Snapshot, error)
}

// Saver persists a cache record.
type Saver interface {
	Save(rec cache.Record) error
}

// Sampler reads counters every interval and saves the delta to the previous read.
type Sampler struct {
	reader   Reader
	store    Saver
	interval time.Duration
	logger   logrus.FieldLogger
	now      func() time.Time
}

// New creates a sampler. A non-positive interval means one second.
func New(reader Reader, store Saver, interval time.Duration, logger logrus.FieldLogger) *Sampler {
	if interval <= 0 {
		interval = time.Second
	}
	return &Sampler{
		reader:   reader,
		store:    store,
		interval: interval,
		logger:   logger,
		now:      time.Now,
	}
}

// sample is a snapshot and the time it was taken.
type sample struct {
	snap cpu.Snapshot
	at   time.Time
}

// Run samples until ctx is cancelled. Only a failed initial read is returned
// as an error; later read and write failures are logged and the cycle skipped.
func (s *Sampler) Run(ctx context.Context) error {
	first, err := s.reader.Read(ctx)
	if err != nil {
		return fmt.Errorf("cannot read initial cpu counters: %w", err)
	}
	at := s.now()
	first.Epoch = at.Unix()
	prev := sample{snap: first, at: at}

	s.logger.WithFields(logrus.Fields{
		"interval": s.interval,
		"cpus":     len(first.Cores()),
	}).Info("Sampler started")

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("Sampler stopped")
			return nil
		case at := <-ticker.C:
			prev = s.step(ctx, prev, at)
		}
	}
}

// step takes the sample for the tick at and returns the baseline for the next
// one. The snapshot is stamped with the tick time so consecutive samples never
// share an epoch, and the delta is scaled by the time since prev, which spans
// more than one interval after a failed read.
func (s *Sampler) step(ctx context.Context, prev sample, at time.Time) sample {
	snap, err := s.reader.Read(ctx)
	if err != nil {
		if ctx.Err() == nil {
			s.logger.WithError(err).Warn("Cannot read cpu counters, skipping sample")
		}
		return prev
	}
	snap.Epoch = at.Unix()
	cur := sample{snap: snap, at: at}

	rec := cache.NewRecord(prev.snap, snap, at.Sub(prev.at))
	if err := s.store.Save(rec); err != nil {
		s.logger.WithError(err).Error("Cannot write cache file, skipping sample")
		return cur
	}

	if total, ok := rec.Delta.Total(); ok {
		s.logger.WithFields(logrus.Fields{
			"epoch":   rec.Epoch,
			"elapsed": rec.Elapsed,
			"busy":    fmt.Sprintf("%.1f", total.Utilization()),
		}).Debug("Sample written")
	}
	return cur
}

// Package debug provides instrumentation for the sampler: read timing and a
// pprof endpoint.
package debug

import (
	"context"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/danpilch/cpu1sec/pkg/collectors/cpu"
	"github.com/danpilch/cpu1sec/pkg/sampler"
)

// TimedReader wraps a sampler.Reader to record read duration. Reads slower
// than the threshold are logged as warnings.
type TimedReader struct {
	inner     sampler.Reader
	threshold time.Duration
	logger    logrus.FieldLogger

	mu   sync.Mutex
	last time.Duration
	max  time.Duration
}

// NewTimedReader wraps a reader with timing instrumentation.
func NewTimedReader(r sampler.Reader, threshold time.Duration, logger logrus.FieldLogger) *TimedReader {
	return &TimedReader{
		inner:     r,
		threshold: threshold,
		logger:    logger,
	}
}

// Read runs the wrapped reader and records its duration.
func (t *TimedReader) Read(ctx context.Context) (cpu.Snapshot, error) {
	start := time.Now()
	snap, err := t.inner.Read(ctx)
	d := time.Since(start)

	t.mu.Lock()
	t.last = d
	if d > t.max {
		t.max = d
	}
	t.mu.Unlock()

	if t.threshold > 0 && d > t.threshold {
		t.logger.WithField("duration", d).Warn("Slow cpu counter read")
	}
	return snap, err
}

// Last returns the duration of the most recent read.
func (t *TimedReader) Last() time.Duration {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.last
}

// Max returns the slowest read seen so far.
func (t *TimedReader) Max() time.Duration {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.max
}

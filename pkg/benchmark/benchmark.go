// Package benchmark measures what one sampling cycle costs, to check that a
// once-per-second sampler stays cheap.
package benchmark

import (
	"context"
	"fmt"
	"io"
	"math"
	"runtime"
	"sort"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"

	"github.com/danpilch/cpu1sec/pkg/cache"
	"github.com/danpilch/cpu1sec/pkg/sampler"
)

// Options configures a benchmark run.
type Options struct {
	Iterations int
	Warmup     int
}

// DefaultOptions returns sensible benchmark defaults.
func DefaultOptions() Options {
	return Options{
		Iterations: 100,
		Warmup:     3,
	}
}

// Stage holds latency percentiles for one step of the cycle.
type Stage struct {
	Name string
	P50  time.Duration
	P95  time.Duration
	P99  time.Duration
	Max  time.Duration
}

// Result holds the outcome of a run.
type Result struct {
	Iterations int
	CPUs       int
	Stages     []Stage
	Overhead   Overhead
}

// Overhead holds allocation counts per cycle.
type Overhead struct {
	BytesPerCycle  uint64
	AllocsPerCycle uint64
	GCPauses       uint32
}

var (
	bmTitle  = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("12"))
	bmHeader = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("15")).Background(lipgloss.Color("62")).Padding(0, 1)
	bmDim    = lipgloss.NewStyle().Foreground(lipgloss.Color("240"))
)

// Run performs read, delta and save cycles back to back and reports latencies.
func Run(ctx context.Context, reader sampler.Reader, store sampler.Saver, opts Options) (Result, error) {
	if opts.Iterations < 1 {
		opts.Iterations = 1
	}

	prev, err := reader.Read(ctx)
	if err != nil {
		return Result{}, fmt.Errorf("cannot read cpu counters: %w", err)
	}
	for i := 0; i < opts.Warmup; i++ {
		cur, err := reader.Read(ctx)
		if err != nil {
			return Result{}, fmt.Errorf("cannot read cpu counters: %w", err)
		}
		prev = cur
	}
	prevAt := time.Now()

	reads := make([]time.Duration, 0, opts.Iterations)
	saves := make([]time.Duration, 0, opts.Iterations)

	var before, after runtime.MemStats
	runtime.ReadMemStats(&before)

	for i := 0; i < opts.Iterations; i++ {
		if err := ctx.Err(); err != nil {
			return Result{}, err
		}

		start := time.Now()
		cur, err := reader.Read(ctx)
		reads = append(reads, time.Since(start))
		if err != nil {
			return Result{}, fmt.Errorf("cannot read cpu counters: %w", err)
		}

		at := time.Now()
		err = store.Save(cache.NewRecord(prev, cur, at.Sub(prevAt)))
		saves = append(saves, time.Since(at))
		if err != nil {
			return Result{}, err
		}
		prev, prevAt = cur, at
	}

	runtime.ReadMemStats(&after)
	n := uint64(opts.Iterations)

	return Result{
		Iterations: opts.Iterations,
		CPUs:       len(prev.Cores()),
		Stages: []Stage{
			newStage("read", reads),
			newStage("save", saves),
		},
		Overhead: Overhead{
			BytesPerCycle:  (after.TotalAlloc - before.TotalAlloc) / n,
			AllocsPerCycle: (after.Mallocs - before.Mallocs) / n,
			GCPauses:       after.NumGC - before.NumGC,
		},
	}, nil
}

func newStage(name string, latencies []time.Duration) Stage {
	sorted := append([]time.Duration(nil), latencies...)
	sort.Slice(sorted, func(i, j int) bool {
		return sorted[i] < sorted[j]
	})
	return Stage{
		Name: name,
		P50:  percentile(sorted, 0.50),
		P95:  percentile(sorted, 0.95),
		P99:  percentile(sorted, 0.99),
		Max:  percentile(sorted, 1),
	}
}

// RenderResults outputs styled benchmark results.
func RenderResults(w io.Writer, r Result) {
	fmt.Fprintln(w, bmTitle.Render("Sampling Cycle Benchmark"))
	fmt.Fprintln(w, bmDim.Render(fmt.Sprintf("%d cycles, %d cpus", r.Iterations, r.CPUs)))
	fmt.Fprintln(w, bmDim.Render(strings.Repeat("═", 64)))
	fmt.Fprintf(w, "  %s %s %s %s %s\n",
		bmHeader.Render("STAGE   "),
		bmHeader.Render("P50        "),
		bmHeader.Render("P95        "),
		bmHeader.Render("P99        "),
		bmHeader.Render("MAX        "))
	fmt.Fprintln(w, "  "+bmDim.Render(strings.Repeat("─", 64)))

	for _, s := range r.Stages {
		fmt.Fprintf(w, "  %-10s %-13v %-13v %-13v %v\n", s.Name, s.P50, s.P95, s.P99, s.Max)
	}

	fmt.Fprintln(w)
	fmt.Fprintln(w, bmTitle.Render("Per Cycle"))
	fmt.Fprintln(w, bmDim.Render(strings.Repeat("─", 40)))
	fmt.Fprintf(w, "  Memory allocated: %s\n", lipgloss.NewStyle().Bold(true).Render(formatBytes(r.Overhead.BytesPerCycle)))
	fmt.Fprintf(w, "  Allocations:      %s\n", lipgloss.NewStyle().Bold(true).Render(fmt.Sprintf("%d", r.Overhead.AllocsPerCycle)))
	fmt.Fprintf(w, "  GC pauses (run):  %s\n", lipgloss.NewStyle().Bold(true).Render(fmt.Sprintf("%d", r.Overhead.GCPauses)))
}

func percentile(sorted []time.Duration, p float64) time.Duration {
	if len(sorted) == 0 {
		return 0
	}
	idx := int(math.Ceil(p*float64(len(sorted)))) - 1
	if idx < 0 {
		idx = 0
	}
	if idx >= len(sorted) {
		idx = len(sorted) - 1
	}
	return sorted[idx]
}

func formatBytes(b uint64) string {
	const unit = 1024
	if b < unit {
		return fmt.Sprintf("%d B", b)
	}
	div, exp := uint64(unit), 0
	for n := b / unit; n >= unit; n /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %cB", float64(b)/float64(div), "KMGTPE"[exp])
}

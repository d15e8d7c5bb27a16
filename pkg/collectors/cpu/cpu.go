// Package cpu reads per-core CPU tick counters and computes deltas between samples.
package cpu

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"math"
	"strconv"
	"strings"
	"time"

	gocpu "github.com/shirou/gopsutil/v3/cpu"
)

// TotalID is the CPU id used for the aggregate "cpu" line.
const TotalID = -1

// ErrUnsupported is returned by Read on platforms without a counter source.
var ErrUnsupported = errors.New("cpu counters not supported on this platform")

// Stat holds the tick counters of one CPU (or the aggregate).
type Stat struct {
	CPU       int    `json:"cpu"`
	User      uint64 `json:"user"`
	Nice      uint64 `json:"nice"`
	System    uint64 `json:"system"`
	Idle      uint64 `json:"idle"`
	IOWait    uint64 `json:"iowait"`
	IRQ       uint64 `json:"irq"`
	SoftIRQ   uint64 `json:"softirq"`
	Steal     uint64 `json:"steal"`
	Guest     uint64 `json:"guest"`
	GuestNice uint64 `json:"guest_nice"`
}

// Name returns "total" for the aggregate and "cpuN" for a core.
func (s Stat) Name() string {
	if s.CPU == TotalID {
		return "total"
	}
	return "cpu" + strconv.Itoa(s.CPU)
}

// Total returns the total CPU time. Guest time is already part of user time.
func (s Stat) Total() uint64 {
	return s.User + s.Nice + s.System + s.Idle + s.IOWait + s.IRQ + s.SoftIRQ + s.Steal
}

// Busy returns the busy CPU time (non-idle).
func (s Stat) Busy() uint64 {
	return s.User + s.Nice + s.System + s.IRQ + s.SoftIRQ + s.Steal
}

// Utilization returns the busy percentage of a delta stat.
func (s Stat) Utilization() float64 {
	total := s.Total()
	if total == 0 {
		return 0
	}
	return float64(s.Busy()) / float64(total) * 100
}

// Sub returns s minus prev per field. A counter that went backwards yields 0.
func (s Stat) Sub(prev Stat) Stat {
	return Stat{
		CPU:       s.CPU,
		User:      sub(s.User, prev.User),
		Nice:      sub(s.Nice, prev.Nice),
		System:    sub(s.System, prev.System),
		Idle:      sub(s.Idle, prev.Idle),
		IOWait:    sub(s.IOWait, prev.IOWait),
		IRQ:       sub(s.IRQ, prev.IRQ),
		SoftIRQ:   sub(s.SoftIRQ, prev.SoftIRQ),
		Steal:     sub(s.Steal, prev.Steal),
		Guest:     sub(s.Guest, prev.Guest),
		GuestNice: sub(s.GuestNice, prev.GuestNice),
	}
}

// Scale multiplies every counter by f, rounding to the nearest tick.
func (s Stat) Scale(f float64) Stat {
	scale := func(v uint64) uint64 { return uint64(math.Round(float64(v) * f)) }
	return Stat{
		CPU:       s.CPU,
		User:      scale(s.User),
		Nice:      scale(s.Nice),
		System:    scale(s.System),
		Idle:      scale(s.Idle),
		IOWait:    scale(s.IOWait),
		IRQ:       scale(s.IRQ),
		SoftIRQ:   scale(s.SoftIRQ),
		Steal:     scale(s.Steal),
		Guest:     scale(s.Guest),
		GuestNice: scale(s.GuestNice),
	}
}

func sub(a, b uint64) uint64 {
	if a < b {
		return 0
	}
	return a - b
}

// Snapshot is one read of the counters: the aggregate first, then each core.
type Snapshot struct {
	Epoch int64  `json:"epoch"`
	Stats []Stat `json:"stats"`
}

// Total returns the aggregate stat, if present.
func (s Snapshot) Total() (Stat, bool) {
	return s.Find(TotalID)
}

// Cores returns the per-core stats in read order.
func (s Snapshot) Cores() []Stat {
	cores := make([]Stat, 0, len(s.Stats))
	for _, st := range s.Stats {
		if st.CPU != TotalID {
			cores = append(cores, st)
		}
	}
	return cores
}

// Find returns the stat for the given CPU id.
func (s Snapshot) Find(id int) (Stat, bool) {
	for _, st := range s.Stats {
		if st.CPU == id {
			return st, true
		}
	}
	return Stat{}, false
}

// Delta returns s minus prev, pairing stats by CPU id. CPUs missing from
// either snapshot are dropped. The result carries the epoch of s.
func (s Snapshot) Delta(prev Snapshot) Snapshot {
	out := Snapshot{Epoch: s.Epoch, Stats: make([]Stat, 0, len(s.Stats))}
	for _, cur := range s.Stats {
		old, ok := prev.Find(cur.CPU)
		if !ok {
			continue
		}
		out.Stats = append(out.Stats, cur.Sub(old))
	}
	return out
}

// PerSecond converts a delta measured over elapsed into ticks per second.
// A non-positive elapsed returns s unchanged.
func (s Snapshot) PerSecond(elapsed time.Duration) Snapshot {
	if elapsed <= 0 || elapsed == time.Second {
		return s
	}
	f := float64(time.Second) / float64(elapsed)
	out := Snapshot{Epoch: s.Epoch, Stats: make([]Stat, len(s.Stats))}
	for i, st := range s.Stats {
		out.Stats[i] = st.Scale(f)
	}
	return out
}

// Parse reads /proc/stat formatted data and returns the cpu lines as a snapshot.
func Parse(r io.Reader, epoch int64) (Snapshot, error) {
	snap := Snapshot{Epoch: epoch}

	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		line := scanner.Text()
		if !strings.HasPrefix(line, "cpu") {
			continue
		}
		fields := strings.Fields(line)
		st, err := parseLine(fields)
		if err != nil {
			return Snapshot{}, err
		}
		snap.Stats = append(snap.Stats, st)
	}
	if err := scanner.Err(); err != nil {
		return Snapshot{}, fmt.Errorf("cannot scan cpu stats: %w", err)
	}
	if _, ok := snap.Total(); !ok {
		return Snapshot{}, fmt.Errorf("cpu line not found in stat data")
	}
	return snap, nil
}

func parseLine(fields []string) (Stat, error) {
	if len(fields) < 5 {
		return Stat{}, fmt.Errorf("unexpected cpu line %q", strings.Join(fields, " "))
	}

	st := Stat{CPU: TotalID}
	if name := fields[0]; name != "cpu" {
		id, err := strconv.Atoi(strings.TrimPrefix(name, "cpu"))
		if err != nil || id < 0 {
			return Stat{}, fmt.Errorf("unexpected cpu label %q", name)
		}
		st.CPU = id
	}

	targets := []*uint64{
		&st.User, &st.Nice, &st.System, &st.Idle, &st.IOWait,
		&st.IRQ, &st.SoftIRQ, &st.Steal, &st.Guest, &st.GuestNice,
	}
	for i, dst := range targets {
		if i+1 >= len(fields) {
			break
		}
		v, err := strconv.ParseUint(fields[i+1], 10, 64)
		if err != nil {
			return Stat{}, fmt.Errorf("cannot parse %s field %d: %w", fields[0], i+1, err)
		}
		*dst = v
	}
	return st, nil
}

// Cores returns the number of logical CPUs.
func Cores(ctx context.Context) (int, error) {
	n, err := gocpu.CountsWithContext(ctx, true)
	if err != nil {
		return 0, fmt.Errorf("cannot count cpus: %w", err)
	}
	if n < 1 {
		return 0, fmt.Errorf("cannot count cpus: got %d", n)
	}
	return n, nil
}

// Collector reads CPU counters from the platform source.
type Collector struct {
	path string
}

// New creates a new CPU collector reading the default source.
func New() *Collector {
	return &Collector{path: defaultPath}
}

// NewWithPath creates a collector reading a stat file at path.
func NewWithPath(path string) *Collector {
	return &Collector{path: path}
}

// Source returns where counters are read from.
func (c *Collector) Source() string {
	return c.path
}

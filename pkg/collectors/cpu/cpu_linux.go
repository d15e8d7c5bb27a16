//go:build linux

package cpu

import (
	"context"
	"fmt"
	"os"
	"time"
)

const defaultPath = "/proc/stat"

// Read takes one snapshot of all CPU counters from /proc/stat.
func (c *Collector) Read(ctx context.Context) (Snapshot, error) {
	if err := ctx.Err(); err != nil {
		return Snapshot{}, err
	}

	file, err := os.Open(c.path)
	if err != nil {
		return Snapshot{}, fmt.Errorf("cannot open %s: %w", c.path, err)
	}
	defer file.Close()

	return Parse(file, time.Now().Unix())
}

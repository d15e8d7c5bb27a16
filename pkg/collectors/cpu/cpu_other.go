//go:build !linux && !darwin

package cpu

import "context"

const defaultPath = ""

// Read is not implemented on this platform.
func (c *Collector) Read(ctx context.Context) (Snapshot, error) {
	return Snapshot{}, ErrUnsupported
}

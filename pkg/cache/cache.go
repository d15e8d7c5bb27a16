// Package cache persists the latest CPU sample for the reporter.
package cache

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/danpilch/cpu1sec/pkg/collectors/cpu"
)

// ErrNoData is returned by Load when no sample has been cached yet.
var ErrNoData = errors.New("no cached sample")

// Record is the content of the cache file.
type Record struct {
	Epoch    int64        `json:"epoch"`
	Hostname string       `json:"hostname"`
	Elapsed  float64      `json:"elapsed_seconds"`
	Snapshot cpu.Snapshot `json:"snapshot"`
	Delta    cpu.Snapshot `json:"delta"`
}

// NewRecord builds a record from two snapshots taken elapsed apart. The delta
// is stored in ticks per second. A non-positive elapsed falls back to the
// difference of the snapshot epochs.
func NewRecord(prev, cur cpu.Snapshot, elapsed time.Duration) Record {
	if elapsed <= 0 {
		elapsed = time.Duration(cur.Epoch-prev.Epoch) * time.Second
	}
	hostname, _ := os.Hostname()
	return Record{
		Epoch:    cur.Epoch,
		Hostname: hostname,
		Elapsed:  elapsed.Seconds(),
		Snapshot: cur,
		Delta:    cur.Delta(prev).PerSecond(elapsed),
	}
}

// Age returns how old the sample is at now.
func (r Record) Age(now time.Time) time.Duration {
	return now.Sub(time.Unix(r.Epoch, 0))
}

// Stale reports whether the sample is older than maxAge. A zero maxAge never expires.
func (r Record) Stale(now time.Time, maxAge time.Duration) bool {
	return maxAge > 0 && r.Age(now) > maxAge
}

// DefaultDir returns the directory Munin hands plugins for state files.
func DefaultDir() string {
	if dir := os.Getenv("MUNIN_PLUGSTATE"); dir != "" {
		return dir
	}
	return os.TempDir()
}

// Store reads and writes the cache file at Path.
type Store struct {
	Path string
}

// NewStore returns a store for name.json inside dir.
func NewStore(dir, name string) *Store {
	if dir == "" {
		dir = DefaultDir()
	}
	return &Store{Path: filepath.Join(dir, name+".json")}
}

// Save replaces the cache file with rec. Readers see either the old or the new record.
func (s *Store) Save(rec Record) error {
	dir := filepath.Dir(s.Path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("cannot create cache directory: %w", err)
	}

	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("cannot marshal cache record: %w", err)
	}

	tmp, err := os.CreateTemp(dir, filepath.Base(s.Path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("cannot create cache file: %w", err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("cannot write cache file: %w", err)
	}
	if err := tmp.Chmod(0644); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("cannot chmod cache file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("cannot close cache file: %w", err)
	}
	if err := os.Rename(tmpName, s.Path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("cannot replace cache file: %w", err)
	}
	return nil
}

// Load reads the cached record. It returns ErrNoData if the file does not exist.
func (s *Store) Load() (Record, error) {
	data, err := os.ReadFile(s.Path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return Record{}, ErrNoData
		}
		return Record{}, fmt.Errorf("cannot read cache file: %w", err)
	}

	var rec Record
	if err := json.Unmarshal(data, &rec); err != nil {
		return Record{}, fmt.Errorf("cannot parse cache file: %w", err)
	}
	return rec, nil
}

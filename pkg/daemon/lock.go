// Package daemon keeps a single background sampler per host: a pid file guarded
// by flock(2), a detached spawn, and a wait for the sampler's first output.
package daemon

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"golang.org/x/sys/unix"
)

// ErrAlreadyRunning is returned by Acquire when another process holds the lock.
var ErrAlreadyRunning = errors.New("sampler already running")

// Lock is a held pid-file lock.
type Lock struct {
	file *os.File
	path string
}

// Acquire takes an exclusive lock on the pid file at path and records the
// current pid in it. The lock lives until Release or process exit.
func Acquire(path string) (*Lock, error) {
	file, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0644)
	if err != nil {
		return nil, fmt.Errorf("cannot open pid file: %w", err)
	}

	if err := unix.Flock(int(file.Fd()), unix.LOCK_EX|unix.LOCK_NB); err != nil {
		file.Close()
		if errors.Is(err, unix.EWOULDBLOCK) {
			return nil, ErrAlreadyRunning
		}
		return nil, fmt.Errorf("cannot lock pid file: %w", err)
	}

	if err := file.Truncate(0); err != nil {
		file.Close()
		return nil, fmt.Errorf("cannot truncate pid file: %w", err)
	}
	if _, err := file.WriteAt([]byte(strconv.Itoa(os.Getpid())+"\n"), 0); err != nil {
		file.Close()
		return nil, fmt.Errorf("cannot write pid file: %w", err)
	}

	return &Lock{file: file, path: path}, nil
}

// Path returns the pid file path.
func (l *Lock) Path() string {
	return l.path
}

// Release empties the pid file and drops the lock. The file itself stays so a
// concurrent Acquire never locks an unlinked inode. The first failing step is
// returned, but the file is always closed.
func (l *Lock) Release() error {
	if l == nil || l.file == nil {
		return nil
	}
	file := l.file
	l.file = nil

	var first error
	if err := file.Truncate(0); err != nil {
		first = fmt.Errorf("cannot truncate pid file: %w", err)
	}
	if err := unix.Flock(int(file.Fd()), unix.LOCK_UN); err != nil && first == nil {
		first = fmt.Errorf("cannot unlock pid file: %w", err)
	}
	if err := file.Close(); err != nil && first == nil {
		first = fmt.Errorf("cannot close pid file: %w", err)
	}
	return first
}

// Running reports whether a live sampler holds the pid file at path, and its pid.
// A missing or unlocked pid file means no sampler is running.
func Running(path string) (int, bool, error) {
	file, err := os.Open(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return 0, false, nil
		}
		return 0, false, fmt.Errorf("cannot open pid file: %w", err)
	}
	defer file.Close()

	pid := readPid(file)

	err = unix.Flock(int(file.Fd()), unix.LOCK_SH|unix.LOCK_NB)
	switch {
	case err == nil:
		unix.Flock(int(file.Fd()), unix.LOCK_UN)
		return pid, false, nil
	case errors.Is(err, unix.EWOULDBLOCK):
		return pid, true, nil
	case errors.Is(err, unix.ENOLCK), errors.Is(err, unix.EOPNOTSUPP):
		// No flock on this filesystem, fall back to probing the pid.
		return pid, pid > 0 && Alive(pid), nil
	default:
		return pid, false, fmt.Errorf("cannot probe pid file lock: %w", err)
	}
}

// Alive reports whether a process with the given pid exists.
func Alive(pid int) bool {
	if pid <= 0 {
		return false
	}
	err := unix.Kill(pid, 0)
	return err == nil || errors.Is(err, unix.EPERM)
}

func readPid(file *os.File) int {
	buf := make([]byte, 32)
	n, _ := file.ReadAt(buf, 0)
	pid, err := strconv.Atoi(strings.TrimSpace(string(buf[:n])))
	if err != nil {
		return 0
	}
	return pid
}

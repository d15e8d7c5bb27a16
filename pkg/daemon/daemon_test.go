package daemon

import (
	"context"
	"errors"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"testing"
	"time"
)

func TestAcquireExclusive(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cpu1sec.pid")

	lock, err := Acquire(path)
	if err != nil {
		t.Fatalf("Acquire failed: %v", err)
	}
	defer lock.Release()

	if _, err := Acquire(path); !errors.Is(err, ErrAlreadyRunning) {
		t.Errorf("second Acquire error = %v, want ErrAlreadyRunning", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if got := strings.TrimSpace(string(data)); got != strconv.Itoa(os.Getpid()) {
		t.Errorf("pid file = %q, want %d", got, os.Getpid())
	}
}

func TestReleaseReportsErrors(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cpu1sec.pid")

	lock, err := Acquire(path)
	if err != nil {
		t.Fatalf("Acquire failed: %v", err)
	}
	if lock.Path() != path {
		t.Errorf("Path = %q, want %q", lock.Path(), path)
	}

	// Closing the descriptor underneath the lock makes every release step fail.
	lock.file.Close()
	err = lock.Release()
	if err == nil || !strings.Contains(err.Error(), "cannot truncate pid file") {
		t.Errorf("Release error = %v, want truncate failure", err)
	}
	if err := lock.Release(); err != nil {
		t.Errorf("second Release = %v, want nil", err)
	}

	again, err := Acquire(path)
	if err != nil {
		t.Fatalf("Acquire after release failed: %v", err)
	}
	if err := again.Release(); err != nil {
		t.Errorf("Release failed: %v", err)
	}
}

func TestRunning(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cpu1sec.pid")

	if _, running, err := Running(path); err != nil || running {
		t.Fatalf("Running on missing file = %v, %v; want false, nil", running, err)
	}

	lock, err := Acquire(path)
	if err != nil {
		t.Fatalf("Acquire failed: %v", err)
	}

	pid, running, err := Running(path)
	if err != nil {
		t.Fatalf("Running failed: %v", err)
	}
	if !running || pid != os.Getpid() {
		t.Errorf("Running = %d, %v; want %d, true", pid, running, os.Getpid())
	}

	if err := lock.Release(); err != nil {
		t.Fatalf("Release failed: %v", err)
	}
	if _, running, _ := Running(path); running {
		t.Error("Running should be false after Release")
	}

	// The lock can be taken again once released.
	lock, err = Acquire(path)
	if err != nil {
		t.Fatalf("re-Acquire failed: %v", err)
	}
	lock.Release()
}

func TestRunningStalePidFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cpu1sec.pid")
	if err := os.WriteFile(path, []byte("999999\n"), 0644); err != nil {
		t.Fatal(err)
	}
	pid, running, err := Running(path)
	if err != nil {
		t.Fatalf("Running failed: %v", err)
	}
	if running {
		t.Error("unlocked pid file should not count as running")
	}
	if pid != 999999 {
		t.Errorf("pid = %d, want 999999", pid)
	}
}

func TestAlive(t *testing.T) {
	if !Alive(os.Getpid()) {
		t.Error("current process should be alive")
	}
	if Alive(0) || Alive(-1) {
		t.Error("non-positive pids are never alive")
	}
}

func TestWaitForFileExisting(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cpu1sec.json")
	if err := os.WriteFile(path, []byte("{}"), 0644); err != nil {
		t.Fatal(err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := WaitForFile(ctx, path); err != nil {
		t.Errorf("WaitForFile failed: %v", err)
	}
}

func TestWaitForFileRename(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "cpu1sec.json")

	go func() {
		time.Sleep(50 * time.Millisecond)
		tmp := filepath.Join(dir, "cpu1sec.json.tmp")
		os.WriteFile(tmp, []byte("{}"), 0644)
		os.Rename(tmp, path)
	}()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := WaitForFile(ctx, path); err != nil {
		t.Errorf("WaitForFile failed: %v", err)
	}
}

func TestWaitForFileTimeout(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cpu1sec.json")
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	if err := WaitForFile(ctx, path); !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("WaitForFile error = %v, want deadline exceeded", err)
	}
}

func TestSpawn(t *testing.T) {
	sh, err := exec.LookPath("sh")
	if err != nil {
		t.Skip("sh not available")
	}
	logPath := filepath.Join(t.TempDir(), "cpu1sec.log")

	pid, err := Spawn(sh, []string{"-c", "echo spawned"}, os.Environ(), logPath)
	if err != nil {
		t.Fatalf("Spawn failed: %v", err)
	}
	if pid <= 0 {
		t.Errorf("pid = %d, want > 0", pid)
	}

	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		data, _ := os.ReadFile(logPath)
		if strings.Contains(string(data), "spawned") {
			return
		}
		time.Sleep(20 * time.Millisecond)
	}
	t.Error("spawned process output never reached the log file")
}

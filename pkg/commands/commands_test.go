package commands

import (
	"bytes"
	"context"
	"errors"
	"math"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/danpilch/cpu1sec/pkg/cache"
	"github.com/danpilch/cpu1sec/pkg/collectors/cpu"
	"github.com/danpilch/cpu1sec/pkg/daemon"
)

type fakeReader struct {
	mu    sync.Mutex
	reads int
	err   error
}

func (f *fakeReader) Read(ctx context.Context) (cpu.Snapshot, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return cpu.Snapshot{}, f.err
	}
	n := f.reads
	f.reads++
	return cpu.Snapshot{Epoch: time.Now().Unix(), Stats: []cpu.Stat{
		{CPU: cpu.TotalID, User: uint64(n * 20), Idle: uint64(n * 180)},
		{CPU: 0, User: uint64(n * 10), Idle: uint64(n * 90)},
		{CPU: 1, User: uint64(n * 10), Idle: uint64(n * 90)},
	}}, nil
}

func (f *fakeReader) Source() string {
	return "fake"
}

type spawnCall struct {
	args    []string
	logPath string
}

type harness struct {
	app    *app
	dir    string
	spawns []spawnCall
	stderr string
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	dir := t.TempDir()
	t.Setenv("MUNIN_PLUGSTATE", dir)
	t.Setenv("CPU1SEC_ENV_FILE", filepath.Join(dir, "missing.env"))
	t.Setenv("CPU1SEC_WAIT", "20ms")
	t.Setenv("CPU1SEC_INTERVAL", "10ms")
	t.Setenv("CPU1SEC_LOG_LEVEL", "debug")
	t.Setenv("cpudetail", "")
	t.Setenv("MUNIN_CAP_DIRTYCONFIG", "")

	h := &harness{dir: dir}
	h.app = &app{
		reader: &fakeReader{},
		cores:  func(context.Context) (int, error) { return 2, nil },
		now:    time.Now,
	}
	h.app.spawn = func(exe string, args, env []string, logPath string) (int, error) {
		h.spawns = append(h.spawns, spawnCall{args: args, logPath: logPath})
		return 4242, nil
	}
	return h
}

func (h *harness) run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	return h.runContext(context.Background(), t, args...)
}

func (h *harness) runContext(ctx context.Context, t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out, errOut bytes.Buffer
	root := newRootCmd(h.app)
	root.SetOut(&out)
	root.SetErr(&errOut)
	root.SetArgs(args)
	err := root.ExecuteContext(ctx)
	h.stderr = errOut.String()
	t.Logf("stderr: %s", h.stderr)
	return out.String(), err
}

func (h *harness) writeRecord(t *testing.T, epoch int64) {
	t.Helper()
	prev := cpu.Snapshot{Epoch: epoch - 1, Stats: []cpu.Stat{
		{CPU: cpu.TotalID, User: 100, Idle: 900},
		{CPU: 0, User: 50, Idle: 450},
		{CPU: 1, User: 50, Idle: 450},
	}}
	cur := cpu.Snapshot{Epoch: epoch, Stats: []cpu.Stat{
		{CPU: cpu.TotalID, User: 120, Idle: 1080},
		{CPU: 0, User: 65, Idle: 535},
		{CPU: 1, User: 55, Idle: 545},
	}}
	if err := cache.NewStore(h.dir, "cpu1sec").Save(cache.NewRecord(prev, cur, time.Second)); err != nil {
		t.Fatalf("cannot write cache: %v", err)
	}
}

func (h *harness) holdLock(t *testing.T) {
	t.Helper()
	lock, err := daemon.Acquire(filepath.Join(h.dir, "cpu1sec.pid"))
	if err != nil {
		t.Fatalf("cannot take lock: %v", err)
	}
	t.Cleanup(func() { lock.Release() })
}

func TestFetchWithoutCacheSpawnsSampler(t *testing.T) {
	h := newHarness(t)

	out, err := h.run(t)
	if err != nil {
		t.Fatalf("fetch failed: %v", err)
	}

	if len(h.spawns) != 1 {
		t.Fatalf("spawned %d samplers, want 1", len(h.spawns))
	}
	if got := strings.Join(h.spawns[0].args, " "); got != "acquire" {
		t.Errorf("spawn args = %q, want acquire", got)
	}
	if h.spawns[0].logPath != filepath.Join(h.dir, "cpu1sec.log") {
		t.Errorf("spawn log path = %q", h.spawns[0].logPath)
	}
	if !strings.Contains(out, "total_user.value U\n") {
		t.Errorf("expected no-data output, got:\n%s", out)
	}
}

func TestFetchPrintsCachedValues(t *testing.T) {
	h := newHarness(t)
	h.holdLock(t)
	epoch := time.Now().Unix()
	h.writeRecord(t, epoch)

	out, err := h.run(t, "fetch")
	if err != nil {
		t.Fatalf("fetch failed: %v", err)
	}
	if len(h.spawns) != 0 {
		t.Error("sampler spawned although one holds the lock")
	}

	e := strconv.FormatInt(epoch, 10)
	for _, want := range []string{
		"total_user.value " + e + ":20\n",
		"total_idle.value " + e + ":180\n",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
	if strings.Contains(out, "cpu0_") {
		t.Error("per-core values printed without cpudetail")
	}
}

func TestFetchWithUnreadableEnvFile(t *testing.T) {
	h := newHarness(t)
	t.Setenv("CPU1SEC_ENV_FILE", t.TempDir())
	h.holdLock(t)
	epoch := time.Now().Unix()
	h.writeRecord(t, epoch)

	out, err := h.run(t)
	if err != nil {
		t.Fatalf("fetch failed: %v", err)
	}
	if want := "total_user.value " + strconv.FormatInt(epoch, 10) + ":20\n"; !strings.Contains(out, want) {
		t.Errorf("output missing %q:\n%s", want, out)
	}
	if !strings.Contains(h.stderr, "Ignoring env file") {
		t.Errorf("expected a warning about the env file, stderr:\n%s", h.stderr)
	}
}

func TestFetchDetail(t *testing.T) {
	h := newHarness(t)
	t.Setenv("cpudetail", "1")
	h.holdLock(t)
	epoch := time.Now().Unix()
	h.writeRecord(t, epoch)

	out, err := h.run(t)
	if err != nil {
		t.Fatalf("fetch failed: %v", err)
	}
	e := strconv.FormatInt(epoch, 10)
	for _, want := range []string{
		"multigraph cpu1sec\n",
		"multigraph cpu1sec.cpu0\ncpu0_user.value " + e + ":15\n",
		"multigraph cpu1sec.cpu1\ncpu1_user.value " + e + ":5\n",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
}

func TestFetchStaleCache(t *testing.T) {
	h := newHarness(t)
	h.holdLock(t)
	h.writeRecord(t, time.Now().Add(-time.Minute).Unix())

	out, err := h.run(t)
	if err != nil {
		t.Fatalf("fetch failed: %v", err)
	}
	if !strings.Contains(out, "total_user.value U\n") {
		t.Errorf("stale cache should report no data, got:\n%s", out)
	}
}

func TestConfig(t *testing.T) {
	h := newHarness(t)

	out, err := h.run(t, "config")
	if err != nil {
		t.Fatalf("config failed: %v", err)
	}
	if !strings.Contains(out, "graph_title CPU usage total (1sec)\n") {
		t.Errorf("missing graph title:\n%s", out)
	}
	if !strings.Contains(out, "--upper-limit 200\n") {
		t.Error("total upper limit should be 2 cores * 100")
	}
	if strings.Contains(out, ".value ") {
		t.Error("values printed without dirty config")
	}
	if len(h.spawns) != 0 {
		t.Error("config alone must not spawn a sampler")
	}
}

func TestConfigDirty(t *testing.T) {
	h := newHarness(t)
	t.Setenv("MUNIN_CAP_DIRTYCONFIG", "1")
	h.holdLock(t)
	h.writeRecord(t, time.Now().Unix())

	out, err := h.run(t, "config")
	if err != nil {
		t.Fatalf("config failed: %v", err)
	}
	cfgAt := strings.Index(out, "graph_title")
	valAt := strings.Index(out, "total_user.value ")
	if cfgAt < 0 || valAt < 0 || valAt < cfgAt {
		t.Errorf("dirty config should print config then values:\n%s", out)
	}
}

func TestAutoconf(t *testing.T) {
	h := newHarness(t)
	out, err := h.run(t, "autoconf")
	if err != nil || out != "yes\n" {
		t.Errorf("autoconf = %q, %v; want yes", out, err)
	}

	h.app.reader = &fakeReader{err: errors.New("open /proc/stat: no such file or directory")}
	out, err = h.run(t, "autoconf")
	if err != nil || !strings.HasPrefix(out, "no (") {
		t.Errorf("autoconf = %q, %v; want no (...)", out, err)
	}
}

func TestAcquireExitsWhenAlreadyRunning(t *testing.T) {
	h := newHarness(t)
	h.holdLock(t)

	done := make(chan error, 1)
	go func() {
		_, err := h.run(t, "acquire")
		done <- err
	}()

	select {
	case err := <-done:
		if err != nil {
			t.Errorf("acquire failed: %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("second sampler did not exit")
	}
}

func TestAcquireWritesCache(t *testing.T) {
	h := newHarness(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	done := make(chan error, 1)
	go func() {
		_, err := h.runContext(ctx, t, "acquire")
		done <- err
	}()

	store := cache.NewStore(h.dir, "cpu1sec")
	deadline := time.Now().Add(5 * time.Second)
	for {
		if _, err := store.Load(); err == nil {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("acquire never wrote the cache")
		}
		time.Sleep(5 * time.Millisecond)
	}

	if _, running, _ := daemon.Running(filepath.Join(h.dir, "cpu1sec.pid")); !running {
		t.Error("pid file should be locked while acquire runs")
	}

	cancel()
	if err := <-done; err != nil {
		t.Fatalf("acquire returned error: %v", err)
	}
	for _, want := range []string{"source=fake", "pidfile=" + filepath.Join(h.dir, "cpu1sec.pid")} {
		if !strings.Contains(h.stderr, want) {
			t.Errorf("startup log missing %q", want)
		}
	}
	if _, running, _ := daemon.Running(filepath.Join(h.dir, "cpu1sec.pid")); running {
		t.Error("pid file still locked after acquire stopped")
	}

	rec, err := store.Load()
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	// The fake reader adds 20 user ticks per read; the record is per second.
	total, _ := rec.Delta.Total()
	if got := float64(total.User) * rec.Elapsed; math.Abs(got-20) > 1 {
		t.Errorf("delta total user per interval = %.2f, want 20", got)
	}
}

func TestStatusJSONExitCode(t *testing.T) {
	h := newHarness(t)
	h.writeRecord(t, time.Now().Unix())

	out, err := h.run(t, "status", "--format", "json", "--exit-code", "--warn", "5", "--crit", "12")
	var exitErr *ExitError
	if !errors.As(err, &exitErr) || exitErr.Code != 2 {
		t.Fatalf("status error = %v, want exit code 2", err)
	}
	if want := `"cache_path": "` + filepath.Join(h.dir, "cpu1sec.json") + `"`; !strings.Contains(out, want) {
		t.Errorf("status output missing %s:\n%s", want, out)
	}
	if !strings.Contains(out, `"resource": "cpu0"`) || !strings.Contains(out, `"sampler_running": false`) {
		t.Errorf("unexpected status JSON:\n%s", out)
	}
}

func TestStatusNoCache(t *testing.T) {
	h := newHarness(t)

	out, err := h.run(t, "status", "--exit-code")
	var exitErr *ExitError
	if !errors.As(err, &exitErr) || exitErr.Code != 3 {
		t.Fatalf("status error = %v, want exit code 3", err)
	}
	if !strings.Contains(out, "no sample cached") {
		t.Errorf("unexpected status output:\n%s", out)
	}
}

func TestStatusBadFormat(t *testing.T) {
	h := newHarness(t)
	if _, err := h.run(t, "status", "--format", "xml"); err == nil {
		t.Error("expected error for unknown format")
	}
}

func TestBench(t *testing.T) {
	h := newHarness(t)

	out, err := h.run(t, "bench", "-n", "5", "--warmup", "0")
	if err != nil {
		t.Fatalf("bench failed: %v", err)
	}
	if !strings.Contains(out, "5 cycles") {
		t.Errorf("unexpected bench output:\n%s", out)
	}
	if _, err := cache.NewStore(h.dir, "cpu1sec").Load(); !errors.Is(err, cache.ErrNoData) {
		t.Error("bench must not write the live cache")
	}
}

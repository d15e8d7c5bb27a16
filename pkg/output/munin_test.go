package output

import (
	"bytes"
	"regexp"
	"strings"
	"testing"

	"github.com/danpilch/cpu1sec/pkg/collectors/cpu"
)

var valueLine = regexp.MustCompile(`^(total|cpu[0-9]+)_[a-z_]+\.value ([0-9]+:[0-9]+|U)$`)

func delta() cpu.Snapshot {
	return cpu.Snapshot{Epoch: 1700000000, Stats: []cpu.Stat{
		{CPU: cpu.TotalID, User: 50, Nice: 1, System: 20, Idle: 120, IOWait: 5, IRQ: 2, SoftIRQ: 3, Steal: 0, Guest: 0, GuestNice: 0},
		{CPU: 0, User: 30, System: 10, Idle: 60},
		{CPU: 1, User: 20, System: 10, Idle: 60},
	}}
}

func TestValuesTotalOnly(t *testing.T) {
	var buf bytes.Buffer
	m := Munin{Name: "cpu1sec", Cores: 2}
	if err := m.Values(&buf, delta()); err != nil {
		t.Fatalf("Values failed: %v", err)
	}

	want := `total_user.value 1700000000:50
total_nice.value 1700000000:1
total_system.value 1700000000:20
total_idle.value 1700000000:120
total_iowait.value 1700000000:5
total_irq.value 1700000000:2
total_softirq.value 1700000000:3
total_steal.value 1700000000:0
total_guest.value 1700000000:0
total_guest_nice.value 1700000000:0
`
	if got := buf.String(); got != want {
		t.Errorf("Values output mismatch\ngot:\n%s\nwant:\n%s", got, want)
	}
}

func TestValuesDetail(t *testing.T) {
	var buf bytes.Buffer
	m := Munin{Name: "cpu1sec", Cores: 2, Detail: true}
	if err := m.Values(&buf, delta()); err != nil {
		t.Fatalf("Values failed: %v", err)
	}

	lines := strings.Split(strings.TrimSuffix(buf.String(), "\n"), "\n")
	if len(lines) != 3+3*10 {
		t.Fatalf("got %d lines, want 33", len(lines))
	}
	if lines[0] != "multigraph cpu1sec" {
		t.Errorf("first line = %q", lines[0])
	}
	if lines[11] != "multigraph cpu1sec.cpu0" || lines[22] != "multigraph cpu1sec.cpu1" {
		t.Errorf("unexpected multigraph headers: %q, %q", lines[11], lines[22])
	}
	if lines[12] != "cpu0_user.value 1700000000:30" {
		t.Errorf("cpu0 first value = %q", lines[12])
	}
	for _, line := range lines {
		if strings.HasPrefix(line, "multigraph ") {
			continue
		}
		if !valueLine.MatchString(line) {
			t.Errorf("line does not match the value protocol: %q", line)
		}
	}
}

func TestNoData(t *testing.T) {
	var buf bytes.Buffer
	m := Munin{Name: "cpu1sec", Cores: 4, Detail: true}
	if err := m.NoData(&buf); err != nil {
		t.Fatalf("NoData failed: %v", err)
	}

	out := buf.String()
	if !strings.Contains(out, "total_user.value U\n") {
		t.Error("missing unknown total value")
	}
	if !strings.Contains(out, "multigraph cpu1sec.cpu3\n") || !strings.Contains(out, "cpu3_guest_nice.value U\n") {
		t.Error("missing unknown per-core values")
	}
	if strings.Contains(out, ":") {
		t.Error("no-data output must not carry epochs")
	}
}

func TestConfig(t *testing.T) {
	var buf bytes.Buffer
	m := Munin{Name: "cpu1sec", Cores: 4}
	if err := m.Config(&buf); err != nil {
		t.Fatalf("Config failed: %v", err)
	}

	out := buf.String()
	for _, want := range []string{
		"graph_title CPU usage total (1sec)\n",
		"graph_category system\n",
		"update_rate 1\n",
		"graph_args --base 1000 -r --lower-limit 0 --upper-limit 400\n",
		"total_system.draw AREA\n",
		"total_user.draw STACK\n",
		"total_guest_nice.type GAUGE\n",
		"total_idle.min 0\n",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("config missing %q", want)
		}
	}
	if strings.Contains(out, "multigraph") {
		t.Error("total-only config must not use multigraph")
	}
}

func TestConfigDetail(t *testing.T) {
	var buf bytes.Buffer
	m := Munin{Name: "cpu1sec", Cores: 2, Detail: true}
	if err := m.Config(&buf); err != nil {
		t.Fatalf("Config failed: %v", err)
	}

	out := buf.String()
	if !strings.HasPrefix(out, "multigraph cpu1sec\n") {
		t.Error("detail config must start with the total multigraph")
	}
	if !strings.Contains(out, "multigraph cpu1sec.cpu1\ngraph_title CPU usage cpu1 (1sec)\n") {
		t.Error("missing per-core graph")
	}
	if got := strings.Count(out, "--upper-limit 100\n"); got != 2 {
		t.Errorf("per-core upper limit appears %d times, want 2", got)
	}
	if !strings.Contains(out, "--upper-limit 200\n") {
		t.Error("total upper limit should be cores*100")
	}
}

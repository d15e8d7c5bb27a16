package output

import (
	"bytes"
	"fmt"
	"io"
	"strconv"

	"github.com/danpilch/cpu1sec/pkg/collectors/cpu"
)

// NoValue is what Munin records as "unknown".
const NoValue = "U"

type field struct {
	name  string
	draw  string
	info  string
	value func(cpu.Stat) uint64
}

// Fields in graph order. system is drawn as the base area, the rest stack on top.
var fields = []field{
	{"system", "AREA", "CPU time spent by the kernel in system activities", func(s cpu.Stat) uint64 { return s.System }},
	{"user", "STACK", "CPU time spent by normal programs and daemons", func(s cpu.Stat) uint64 { return s.User }},
	{"nice", "STACK", "CPU time spent by nice(1)d programs", func(s cpu.Stat) uint64 { return s.Nice }},
	{"idle", "STACK", "Idle CPU time", func(s cpu.Stat) uint64 { return s.Idle }},
	{"iowait", "STACK", "CPU time spent waiting for I/O operations to finish when there is nothing else to do.", func(s cpu.Stat) uint64 { return s.IOWait }},
	{"irq", "STACK", "CPU time spent handling interrupts", func(s cpu.Stat) uint64 { return s.IRQ }},
	{"softirq", "STACK", "CPU time spent handling \"batched\" interrupts", func(s cpu.Stat) uint64 { return s.SoftIRQ }},
	{"steal", "STACK", "The time that a virtual CPU had runnable tasks, but the virtual CPU itself was not running", func(s cpu.Stat) uint64 { return s.Steal }},
	{"guest", "STACK", "The time spent running a virtual CPU for guest operating systems under the control of the Linux kernel.", func(s cpu.Stat) uint64 { return s.Guest }},
	{"guest_nice", "STACK", "The time spent running a nice(1)d virtual CPU for guest operating systems under the control of the Linux kernel.", func(s cpu.Stat) uint64 { return s.GuestNice }},
}

// Munin writes the plugin protocol for the cpu graphs.
type Munin struct {
	Name   string
	Cores  int
	Detail bool
}

// Config writes the graph configuration: the total graph, and with Detail one
// sub-graph per core.
func (m Munin) Config(w io.Writer) error {
	var buf bytes.Buffer

	if m.Detail {
		fmt.Fprintf(&buf, "multigraph %s\n", m.Name)
	}
	m.writeGraphConfig(&buf, "total", m.Cores*100)

	if m.Detail {
		for i := 0; i < m.Cores; i++ {
			label := "cpu" + strconv.Itoa(i)
			fmt.Fprintf(&buf, "multigraph %s.%s\n", m.Name, label)
			m.writeGraphConfig(&buf, label, 100)
		}
	}

	_, err := w.Write(buf.Bytes())
	return err
}

func (m Munin) writeGraphConfig(buf *bytes.Buffer, label string, upper int) {
	fmt.Fprintf(buf, "graph_title CPU usage %s (1sec)\n", label)
	buf.WriteString("graph_category system\n")
	buf.WriteString("update_rate 1\n")
	buf.WriteString("graph_data_size custom 1d, 1s for 1d, 5s for 2d, 10s for 7d, 1m for 1t, 5m for 1y\n")
	buf.WriteString("graph_order system user nice idle iowait irq softirq\n")
	fmt.Fprintf(buf, "graph_args --base 1000 -r --lower-limit 0 --upper-limit %d\n", upper)
	buf.WriteString("graph_vlabel %\n")
	buf.WriteString("graph_scale no\n")
	buf.WriteString("graph_info This graph shows how CPU time is spent.\n")

	for _, f := range fields {
		fmt.Fprintf(buf, "%s_%s.label %s\n", label, f.name, f.name)
		fmt.Fprintf(buf, "%s_%s.draw %s\n", label, f.name, f.draw)
		fmt.Fprintf(buf, "%s_%s.min 0\n", label, f.name)
		fmt.Fprintf(buf, "%s_%s.type GAUGE\n", label, f.name)
		fmt.Fprintf(buf, "%s_%s.info %s\n", label, f.name, f.info)
	}
}

// Values writes one "field.value epoch:ticks" line per counter of the delta.
func (m Munin) Values(w io.Writer, delta cpu.Snapshot) error {
	var buf bytes.Buffer

	if total, ok := delta.Total(); ok {
		if m.Detail {
			fmt.Fprintf(&buf, "multigraph %s\n", m.Name)
		}
		writeValues(&buf, total.Name(), func(f field) string {
			return strconv.FormatInt(delta.Epoch, 10) + ":" + strconv.FormatUint(f.value(total), 10)
		})
	}

	if m.Detail {
		for _, st := range delta.Cores() {
			fmt.Fprintf(&buf, "multigraph %s.%s\n", m.Name, st.Name())
			writeValues(&buf, st.Name(), func(f field) string {
				return strconv.FormatInt(delta.Epoch, 10) + ":" + strconv.FormatUint(f.value(st), 10)
			})
		}
	}

	_, err := w.Write(buf.Bytes())
	return err
}

// NoData writes the same layout as Values with every value unknown.
func (m Munin) NoData(w io.Writer) error {
	var buf bytes.Buffer
	unknown := func(field) string { return NoValue }

	if m.Detail {
		fmt.Fprintf(&buf, "multigraph %s\n", m.Name)
	}
	writeValues(&buf, "total", unknown)

	if m.Detail {
		for i := 0; i < m.Cores; i++ {
			label := "cpu" + strconv.Itoa(i)
			fmt.Fprintf(&buf, "multigraph %s.%s\n", m.Name, label)
			writeValues(&buf, label, unknown)
		}
	}

	_, err := w.Write(buf.Bytes())
	return err
}

// writeValues emits the value lines in kernel counter order.
func writeValues(buf *bytes.Buffer, label string, value func(field) string) {
	for _, name := range valueOrder {
		f := fieldByName[name]
		fmt.Fprintf(buf, "%s_%s.value %s\n", label, f.name, value(f))
	}
}

var valueOrder = []string{"user", "nice", "system", "idle", "iowait", "irq", "softirq", "steal", "guest", "guest_nice"}

var fieldByName = func() map[string]field {
	m := make(map[string]field, len(fields))
	for _, f := range fields {
		m[f.name] = f
	}
	return m
}()

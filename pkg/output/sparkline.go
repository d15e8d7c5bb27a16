package output

import (
	"strings"
	"sync"
)

// SparklineTracker keeps a rolling window of utilization percentages per CPU.
type SparklineTracker struct {
	mu     sync.Mutex
	data   map[string][]float64
	maxLen int
}

// NewSparklineTracker creates a tracker with a fixed window size.
func NewSparklineTracker(maxLen int) *SparklineTracker {
	if maxLen < 1 {
		maxLen = 20
	}
	return &SparklineTracker{
		data:   make(map[string][]float64),
		maxLen: maxLen,
	}
}

// Record adds a new percentage for a CPU.
func (s *SparklineTracker) Record(cpu string, percent float64) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.data[cpu] = append(s.data[cpu], percent)
	if len(s.data[cpu]) > s.maxLen {
		s.data[cpu] = s.data[cpu][len(s.data[cpu])-s.maxLen:]
	}
}

// Sparkline returns a Unicode sparkline for a CPU.
func (s *SparklineTracker) Sparkline(cpu string) string {
	s.mu.Lock()
	defer s.mu.Unlock()

	return renderSparkline(s.data[cpu])
}

// sparkline block characters from lowest to highest
var sparkBlocks = []rune{
	'\u2581', // ▁
	'\u2582', // ▂
	'\u2583', // ▃
	'\u2584', // ▄
	'\u2585', // ▅
	'\u2586', // ▆
	'\u2587', // ▇
	'\u2588', // █
}

// renderSparkline maps percentages on a fixed 0-100 scale, so an idle CPU stays
// flat instead of being stretched to the full height.
func renderSparkline(values []float64) string {
	var b strings.Builder
	top := len(sparkBlocks) - 1
	for _, v := range values {
		idx := int(v / 100 * float64(top))
		if idx > top {
			idx = top
		}
		if idx < 0 {
			idx = 0
		}
		b.WriteRune(sparkBlocks[idx])
	}
	return b.String()
}

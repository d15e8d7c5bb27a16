package use

import (
	"fmt"

	"github.com/danpilch/cpu1sec/pkg/collectors/cpu"
)

// Evaluate turns a delta snapshot into one check per CPU, aggregate first.
// A stale delta yields unknown checks.
func Evaluate(delta cpu.Snapshot, stale bool, t Thresholds) []Check {
	checks := make([]Check, 0, len(delta.Stats))
	for _, st := range delta.Stats {
		if stale {
			checks = append(checks, Check{
				Resource:    st.Name(),
				Value:       "unknown",
				Status:      StatusUnknown,
				Description: "cached sample is stale",
			})
			continue
		}

		util := st.Utilization()
		checks = append(checks, Check{
			Resource:    st.Name(),
			Value:       fmt.Sprintf("%.1f%%", util),
			RawValue:    util,
			Status:      t.EvaluateUtilization(util),
			Description: fmt.Sprintf("user %d, system %d, iowait %d, steal %d ticks", st.User, st.System, st.IOWait, st.Steal),
		})
	}
	return checks
}

// Summary calculates summary statistics from check results.
type Summary struct {
	Total    int `json:"total"`
	OK       int `json:"ok"`
	Warnings int `json:"warnings"`
	Errors   int `json:"errors"`
	Unknown  int `json:"unknown"`
}

// Summarize calculates summary statistics from check results.
func Summarize(checks []Check) Summary {
	s := Summary{Total: len(checks)}
	for _, check := range checks {
		switch check.Status {
		case StatusOK:
			s.OK++
		case StatusWarning:
			s.Warnings++
		case StatusError:
			s.Errors++
		case StatusUnknown:
			s.Unknown++
		}
	}
	return s
}

// ExitCode returns the appropriate exit code based on check results.
func ExitCode(checks []Check) int {
	summary := Summarize(checks)
	if summary.Total == 0 || (summary.Unknown > 0 && summary.Errors == 0 && summary.Warnings == 0) {
		return 3 // No usable data
	}
	if summary.Errors > 0 {
		return 2
	}
	if summary.Warnings > 0 {
		return 1
	}
	return 0
}

// Package use evaluates CPU utilization deltas against warning thresholds.
package use

// Status represents the health status of a check.
type Status string

const (
	StatusOK      Status = "ok"
	StatusWarning Status = "warning"
	StatusError   Status = "error"
	StatusUnknown Status = "unknown"
)

// Check represents the utilization of one CPU over the last sample.
type Check struct {
	Resource    string  `json:"resource"`
	Value       string  `json:"value"`
	RawValue    float64 `json:"raw_value"`
	Status      Status  `json:"status"`
	Description string  `json:"description"`
}

// Thresholds defines warning and critical thresholds for utilization metrics.
type Thresholds struct {
	WarnUtil float64
	CritUtil float64
}

// DefaultThresholds returns the default threshold values.
func DefaultThresholds() Thresholds {
	return Thresholds{
		WarnUtil: 70.0,
		CritUtil: 90.0,
	}
}

// EvaluateUtilization returns the appropriate status based on utilization percentage.
func (t Thresholds) EvaluateUtilization(percent float64) Status {
	if percent >= t.CritUtil {
		return StatusError
	}
	if percent >= t.WarnUtil {
		return StatusWarning
	}
	return StatusOK
}

package types

import "fmt"

// Status of a report
type Status string

const (
	StatusOK    Status = "ok"
	StatusError Status = "error"
)

// State is a step of the per-request pipeline
type State string

const (
	StateReceived   State = "received"
	StateDetected   State = "detected"
	StateCalibrated State = "calibrated"
	StateClassified State = "classified"
	StateSucceeded  State = "succeeded"
	StateFailed     State = "failed"
)

// Report is the result bundle handed to callers of the pipeline
type Report struct {
	Status              Status `json:"status"`
	Reason              Reason `json:"reason,omitempty"`
	Message             string `json:"message,omitempty"`
	Orientation         string `json:"orientation,omitempty"`
	DiameterMM          string `json:"diameter_mm,omitempty"`
	Standard            string `json:"standard,omitempty"`
	NominalSize         string `json:"nominal_size,omitempty"`
	ReferenceDiameterMM string `json:"reference_diameter_mm,omitempty"`
	ConfidencePercent   string `json:"confidence,omitempty"`
	DebugImagePath      string `json:"debug_image,omitempty"`
	State               State  `json:"state"`
	FailedAt            State  `json:"failed_at,omitempty"`

	Measurement    *MeasurementResult    `json:"-"`
	Classification *ClassificationResult `json:"-"`
}

// OK reports whether the pipeline succeeded
func (r *Report) OK() bool {
	return r.Status == StatusOK
}

// Err returns the expected-failure error of a failed report, nil on success
func (r *Report) Err() error {
	if r.OK() {
		return nil
	}
	if err := r.Reason.Err(); err != nil {
		if r.Message != "" {
			return fmt.Errorf("%s: %w", r.Message, err)
		}
		return err
	}
	return fmt.Errorf("measurement failed: %s", r.Message)
}

// FormatMM formats a millimetre value with two decimals
func FormatMM(v float64) string {
	return fmt.Sprintf("%.2f", v)
}

// FormatPercent formats a confidence value with one decimal
func FormatPercent(v float64) string {
	return fmt.Sprintf("%.1f", v)
}

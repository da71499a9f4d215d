package types

import "errors"

// Expected outcomes of a measurement. Wrap them with fmt.Errorf("...: %w", ErrX).
var (
	ErrCalibration         = errors.New("reference object span is missing or not positive")
	ErrIncompleteDetection = errors.New("could not identify card or thread in image")
	ErrNoStandardMatch     = errors.New("measurement does not match any known standard")
	ErrInvalidImage        = errors.New("image could not be decoded")
)

// Reason is the machine readable failure code of a report
type Reason string

const (
	ReasonNone                Reason = ""
	ReasonCalibrationFailed   Reason = "calibration_failed"
	ReasonDetectionIncomplete Reason = "detection_incomplete"
	ReasonNoStandardMatch     Reason = "no_standard_match"
	ReasonInvalidImage        Reason = "invalid_image"
)

var reasonErrors = []struct {
	err    error
	reason Reason
}{
	{ErrCalibration, ReasonCalibrationFailed},
	{ErrIncompleteDetection, ReasonDetectionIncomplete},
	{ErrNoStandardMatch, ReasonNoStandardMatch},
	{ErrInvalidImage, ReasonInvalidImage},
}

// ReasonFor maps an error to its reason code. Unclassified errors map to ReasonNone.
func ReasonFor(err error) Reason {
	for _, re := range reasonErrors {
		if errors.Is(err, re.err) {
			return re.reason
		}
	}
	return ReasonNone
}

// Err returns the sentinel for a reason, or nil for ReasonNone
func (r Reason) Err() error {
	for _, re := range reasonErrors {
		if re.reason == r {
			return re.err
		}
	}
	return nil
}

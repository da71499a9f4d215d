package measure

import (
	"fmt"

	"github.com/menta2k/thread-gauge/pkg/calibration"
	"github.com/menta2k/thread-gauge/pkg/types"
)

// Estimate converts the target span to millimetres using the reference span for scale
func Estimate(reference, target types.Span, referenceMM float64, o types.Orientation) (types.MeasurementResult, error) {
	if !reference.Present {
		return types.MeasurementResult{}, fmt.Errorf("no reference card found: %w", types.ErrIncompleteDetection)
	}
	if !target.Present {
		return types.MeasurementResult{}, fmt.Errorf("no thread found: %w", types.ErrIncompleteDetection)
	}
	if !(target.Pixels > 0) {
		return types.MeasurementResult{}, fmt.Errorf("thread span %.2fpx: %w", target.Pixels, types.ErrIncompleteDetection)
	}

	cal, err := calibration.Calibrate(reference.Pixels, referenceMM)
	if err != nil {
		return types.MeasurementResult{}, err
	}

	return types.MeasurementResult{
		DiameterMM:  target.Pixels * cal.ScaleMMPerPixel,
		Orientation: o,
	}, nil
}

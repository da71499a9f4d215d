package calibration

import (
	"fmt"
	"math"

	"github.com/menta2k/thread-gauge/pkg/types"
)

// CardWidthMM is the width of an ISO/IEC 7810 ID-1 card
const CardWidthMM = 85.6

// Calibrate converts the pixel span of the reference object into a millimetre-per-pixel scale
func Calibrate(pixelSpan, realWorldMM float64) (types.Calibration, error) {
	if math.IsNaN(pixelSpan) || math.IsInf(pixelSpan, 0) || pixelSpan <= 0 {
		return types.Calibration{}, fmt.Errorf("reference span %.2fpx: %w", pixelSpan, types.ErrCalibration)
	}
	if math.IsNaN(realWorldMM) || math.IsInf(realWorldMM, 0) || realWorldMM <= 0 {
		return types.Calibration{}, fmt.Errorf("reference width %.2fmm must be positive: %w", realWorldMM, types.ErrCalibration)
	}
	return types.Calibration{ScaleMMPerPixel: realWorldMM / pixelSpan}, nil
}

// CalibrateSpan is Calibrate for a span that may be absent
func CalibrateSpan(span types.Span, realWorldMM float64) (types.Calibration, error) {
	if !span.Present {
		return types.Calibration{}, fmt.Errorf("reference object not detected: %w", types.ErrCalibration)
	}
	return Calibrate(span.Pixels, realWorldMM)
}

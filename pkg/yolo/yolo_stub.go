//go:build !gocv

package yolo

import (
	"context"
	"image"

	"github.com/menta2k/thread-gauge/pkg/types"
)

// Detector is a placeholder in builds without OpenCV
type Detector struct{}

// New always fails in builds without the gocv tag
func New(opts Options) (*Detector, error) {
	return nil, ErrUnavailable
}

// Detect always fails in builds without the gocv tag
func (d *Detector) Detect(ctx context.Context, img image.Image) ([]types.DetectedRegion, error) {
	return nil, ErrUnavailable
}

// Close does nothing
func (d *Detector) Close() error {
	return nil
}

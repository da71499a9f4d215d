package client

import (
	"context"
	"image"

	"github.com/menta2k/thread-gauge/pkg/types"
)

// Detector finds labelled regions in an image. Box coordinates are pixels of img.
// An empty result is valid.
type Detector interface {
	Detect(ctx context.Context, img image.Image) ([]types.DetectedRegion, error)
}

// VisionClient is a multimodal chat model backend
type VisionClient interface {
	SimpleQuery(ctx context.Context, model, prompt, imgB64 string) (string, error)
	AnalyzeImage(ctx context.Context, model, prompt, imgB64 string) (*types.VisionResponse, error)
}

// DetectorFunc adapts a function to the Detector interface
type DetectorFunc func(ctx context.Context, img image.Image) ([]types.DetectedRegion, error)

// Detect calls f
func (f DetectorFunc) Detect(ctx context.Context, img image.Image) ([]types.DetectedRegion, error) {
	return f(ctx, img)
}

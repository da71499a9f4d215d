package detection

import (
	"context"
	"fmt"
	"image"
	"strings"

	"github.com/menta2k/thread-gauge/pkg/client"
	"github.com/menta2k/thread-gauge/pkg/processing"
	"github.com/menta2k/thread-gauge/pkg/types"
)

// SimpleTestPrompt for testing if the model can see images
const SimpleTestPrompt = `What do you see in this image? Describe it briefly.`

// promptTemplate asks the model for the reference card and the thread, %[1]s and %[2]s are the labels
const promptTemplate = `You are an object locator for a pipe thread gauge.

The photo shows a pipe fitting next to a bank card used as a size reference.
Find the card ("%[1]s") and the threaded part of the fitting ("%[2]s").

Return JSON only:
{
  "detections": [
    {"label": "%[1]s", "confidence": 0.0, "box": {"x": 0.0, "y": 0.0, "w": 0.0, "h": 0.0}},
    {"label": "%[2]s", "confidence": 0.0, "box": {"x": 0.0, "y": 0.0, "w": 0.0, "h": 0.0}}
  ],
  "description": "short neutral sentence (≤ 20 words)"
}

HARD RULES
- All coordinates are normalized to [0,1] (NOT pixels). x,y is the top-left corner.
- The card box must tightly include the whole card, edge to edge.
- The thread box must tightly include the threaded outer diameter only, not the whole fitting.
- Omit an object you cannot see. If nothing is found return {"detections": [], "description": "..."}.
- Use exactly the labels "%[1]s" and "%[2]s".
- JSON only. No markdown, no code fences, no comments, no trailing commas.`

// Prompt builds the detection prompt for the given labels
func Prompt(labels Labels) string {
	return fmt.Sprintf(promptTemplate, labels.Reference, labels.Target)
}

// VisionOptions control how images are sent to a vision model
type VisionOptions struct {
	Model       string
	SendFormat  string
	SendSize    int
	SendQuality int
	Labels      Labels
}

// VisionDetector locates the card and the thread with a multimodal chat model
type VisionDetector struct {
	client    client.VisionClient
	processor *processing.Processor
	opts      VisionOptions
}

// NewVisionDetector creates a detector backed by a vision client
func NewVisionDetector(c client.VisionClient, opts VisionOptions) *VisionDetector {
	if opts.SendFormat == "" {
		opts.SendFormat = "jpg"
	}
	if opts.SendQuality <= 0 {
		opts.SendQuality = 85
	}
	if opts.Labels.Reference == "" || opts.Labels.Target == "" {
		opts.Labels = DefaultLabels()
	}
	return &VisionDetector{client: c, processor: processing.NewProcessor(), opts: opts}
}

// Detect sends img to the model and converts its normalized boxes to pixels of img
func (d *VisionDetector) Detect(ctx context.Context, img image.Image) ([]types.DetectedRegion, error) {
	imgB64, err := d.processor.PrepareImageForModel(img, d.opts.SendFormat, d.opts.SendSize, d.opts.SendQuality)
	if err != nil {
		return nil, fmt.Errorf("prepare image: %w", err)
	}

	result, err := d.client.AnalyzeImage(ctx, d.opts.Model, Prompt(d.opts.Labels), imgB64)
	if err != nil {
		return nil, err
	}

	b := img.Bounds()
	return toRegions(result, b.Dx(), b.Dy()), nil
}

// TestVision tests if the model can actually see the image with a simple prompt
func (d *VisionDetector) TestVision(ctx context.Context, img image.Image) (string, error) {
	imgB64, err := d.processor.PrepareImageForModel(img, d.opts.SendFormat, d.opts.SendSize, d.opts.SendQuality)
	if err != nil {
		return "", err
	}
	return d.client.SimpleQuery(ctx, d.opts.Model, SimpleTestPrompt, imgB64)
}

// toRegions converts model output to pixel regions, dropping empty boxes
func toRegions(result *types.VisionResponse, imgW, imgH int) []types.DetectedRegion {
	if result == nil {
		return nil
	}
	regions := make([]types.DetectedRegion, 0, len(result.Detections))
	for _, det := range result.Detections {
		label := strings.ToLower(strings.TrimSpace(det.Label))
		if label == "" || label == "none" {
			continue
		}
		box := normalizeBox(det.Box, imgW, imgH)
		if box.W <= 0 || box.H <= 0 {
			continue
		}
		fw, fh := float64(imgW), float64(imgH)
		regions = append(regions, types.DetectedRegion{
			Label: label,
			Box: types.Box{
				X1: box.X * fw,
				Y1: box.Y * fh,
				X2: (box.X + box.W) * fw,
				Y2: (box.Y + box.H) * fh,
			},
			Confidence: clamp(det.Confidence, 0, 1),
		})
	}
	return regions
}

// clamp ensures a value is within the given bounds
func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// normalizeBox ensures box coordinates are within [0,1] bounds. Models sometimes answer
// in pixels despite the prompt; such boxes are converted using the image size.
func normalizeBox(b types.NormBox, imgW, imgH int) types.NormBox {
	if imgW > 0 && imgH > 0 && (b.X > 1 || b.Y > 1 || b.W > 1 || b.H > 1) {
		b = types.NormBox{
			X: b.X / float64(imgW),
			Y: b.Y / float64(imgH),
			W: b.W / float64(imgW),
			H: b.H / float64(imgH),
		}
	}

	x := clamp(b.X, 0, 1)
	y := clamp(b.Y, 0, 1)
	return types.NormBox{
		X: x,
		Y: y,
		W: clamp(b.W, 0, 1-x),
		H: clamp(b.H, 0, 1-y),
	}
}

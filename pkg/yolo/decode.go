// Package yolo runs a YOLOv8 ONNX export locally through OpenCV's dnn module.
//
// The network is only available in binaries built with the gocv tag; without it New
// returns ErrUnavailable. Output decoding and non-maximum suppression are plain Go and
// always built.
package yolo

import (
	"errors"
	"fmt"
	"sort"

	"github.com/menta2k/thread-gauge/pkg/types"
)

// ErrUnavailable is returned by New in builds without OpenCV
var ErrUnavailable = errors.New("yolo backend requires a build with the gocv tag")

// Defaults for YOLOv8 exports
const (
	DefaultInputSize     = 640
	DefaultConfThreshold = 0.25
	DefaultNMSThreshold  = 0.45
)

// Options configure a Detector
type Options struct {
	ModelPath     string
	ClassNames    []string
	InputSize     int
	ConfThreshold float64
	NMSThreshold  float64
}

func (o *Options) setDefaults() {
	if o.InputSize <= 0 {
		o.InputSize = DefaultInputSize
	}
	if o.ConfThreshold <= 0 {
		o.ConfThreshold = DefaultConfThreshold
	}
	if o.NMSThreshold <= 0 {
		o.NMSThreshold = DefaultNMSThreshold
	}
}

// Candidate is a decoded box before suppression
type Candidate struct {
	Box     types.Box
	ClassID int
	Score   float64
}

// DecodeOutput reads a YOLOv8 head of shape [1, 4+classes, anchors] stored row-major in
// data. Boxes are cx,cy,w,h in input pixels; scaleX/scaleY map them back to the image.
func DecodeOutput(data []float32, classes, anchors int, conf, scaleX, scaleY float64) ([]Candidate, error) {
	if classes < 1 || anchors < 1 {
		return nil, fmt.Errorf("invalid output shape: %d classes, %d anchors", classes, anchors)
	}
	if len(data) < (4+classes)*anchors {
		return nil, fmt.Errorf("output has %d values, want %d", len(data), (4+classes)*anchors)
	}

	var out []Candidate
	for i := 0; i < anchors; i++ {
		best, bestScore := -1, float32(0)
		for c := 0; c < classes; c++ {
			if s := data[(4+c)*anchors+i]; s > bestScore {
				best, bestScore = c, s
			}
		}
		if best < 0 || float64(bestScore) < conf {
			continue
		}

		cx := float64(data[i])
		cy := float64(data[anchors+i])
		w := float64(data[2*anchors+i])
		h := float64(data[3*anchors+i])
		if w <= 0 || h <= 0 {
			continue
		}
		out = append(out, Candidate{
			Box: types.Box{
				X1: (cx - w/2) * scaleX,
				Y1: (cy - h/2) * scaleY,
				X2: (cx + w/2) * scaleX,
				Y2: (cy + h/2) * scaleY,
			},
			ClassID: best,
			Score:   float64(bestScore),
		})
	}
	return out, nil
}

// IoU is the intersection over union of two boxes
func IoU(a, b types.Box) float64 {
	ix1, iy1 := max(a.X1, b.X1), max(a.Y1, b.Y1)
	ix2, iy2 := min(a.X2, b.X2), min(a.Y2, b.Y2)
	if ix2 <= ix1 || iy2 <= iy1 {
		return 0
	}
	inter := (ix2 - ix1) * (iy2 - iy1)
	union := a.Width()*a.Height() + b.Width()*b.Height() - inter
	if union <= 0 {
		return 0
	}
	return inter / union
}

// NMS keeps the highest scoring box of every overlapping group, per class. The result is
// ordered by descending score.
func NMS(cands []Candidate, iouThreshold float64) []Candidate {
	sorted := make([]Candidate, len(cands))
	copy(sorted, cands)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Score > sorted[j].Score })

	var kept []Candidate
	for _, c := range sorted {
		suppressed := false
		for _, k := range kept {
			if k.ClassID == c.ClassID && IoU(k.Box, c.Box) > iouThreshold {
				suppressed = true
				break
			}
		}
		if !suppressed {
			kept = append(kept, c)
		}
	}
	return kept
}

// ToRegions names candidates and clips them to a w x h image
func ToRegions(cands []Candidate, names []string, w, h int) []types.DetectedRegion {
	regions := make([]types.DetectedRegion, 0, len(cands))
	for _, c := range cands {
		label := fmt.Sprintf("class_%d", c.ClassID)
		if c.ClassID < len(names) {
			label = names[c.ClassID]
		}
		b := types.Box{
			X1: clip(c.Box.X1, float64(w)),
			Y1: clip(c.Box.Y1, float64(h)),
			X2: clip(c.Box.X2, float64(w)),
			Y2: clip(c.Box.Y2, float64(h)),
		}
		if b.Width() <= 0 || b.Height() <= 0 {
			continue
		}
		regions = append(regions, types.DetectedRegion{Label: label, Box: b, Confidence: c.Score})
	}
	return regions
}

func clip(v, hi float64) float64 {
	return min(max(v, 0), hi)
}

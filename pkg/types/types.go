package types

import (
	"fmt"
	"image"
	"math"
	"strings"
)

// Box is an axis-aligned bounding box in pixel coordinates (x1,y1 top-left, x2,y2 bottom-right)
type Box struct {
	X1 float64 `json:"x1"`
	Y1 float64 `json:"y1"`
	X2 float64 `json:"x2"`
	Y2 float64 `json:"y2"`
}

// Width returns x2 - x1
func (b Box) Width() float64 { return b.X2 - b.X1 }

// Height returns y2 - y1
func (b Box) Height() float64 { return b.Y2 - b.Y1 }

// Span is the longer side of the box, the measure used for both card and thread
func (b Box) Span() float64 {
	return math.Max(b.Width(), b.Height())
}

// Rect rounds the box to an integer rectangle
func (b Box) Rect() image.Rectangle {
	return image.Rect(int(math.Round(b.X1)), int(math.Round(b.Y1)), int(math.Round(b.X2)), int(math.Round(b.Y2)))
}

// DetectedRegion is one object reported by the external detector
type DetectedRegion struct {
	Label      string  `json:"label"`
	Box        Box     `json:"box"`
	Confidence float64 `json:"confidence"`
}

// Span is a pixel span that may be absent
type Span struct {
	Pixels  float64
	Present bool
}

// SpanOf returns the span of a region, or an absent span for nil
func SpanOf(r *DetectedRegion) Span {
	if r == nil {
		return Span{}
	}
	return Span{Pixels: r.Box.Span(), Present: true}
}

// Standard names a thread standard table
type Standard string

const (
	BSP Standard = "BSP"
	NPT Standard = "NPT"
	UNF Standard = "UNF"
)

// Orientation tells whether the thread is cut inside a bore or on a shaft
type Orientation string

const (
	Internal Orientation = "internal"
	External Orientation = "external"
)

// ParseOrientation accepts internal/external, female/male and the boolean form used by upload forms
func ParseOrientation(s string) (Orientation, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "internal", "true", "1", "female", "interna":
		return Internal, nil
	case "external", "false", "0", "male", "externa":
		return External, nil
	}
	return "", fmt.Errorf("unknown thread orientation %q", s)
}

// Description is the human readable orientation label
func (o Orientation) Description() string {
	if o == Internal {
		return "internal thread (female)"
	}
	return "external thread (male)"
}

// Calibration holds the scale derived from the reference card
type Calibration struct {
	ScaleMMPerPixel float64 `json:"scale_mm_per_pixel"`
}

// MeasurementResult is the calibrated diameter of the thread
type MeasurementResult struct {
	DiameterMM  float64     `json:"diameter_mm"`
	Orientation Orientation `json:"orientation"`
}

// ClassificationResult is the table entry matched for a diameter. An empty Standard means no match.
type ClassificationResult struct {
	Standard            Standard `json:"standard,omitempty"`
	NominalSize         string   `json:"nominal_size,omitempty"`
	ReferenceDiameterMM float64  `json:"reference_diameter_mm,omitempty"`
	ConfidencePercent   float64  `json:"confidence_percent"`
}

// Matched reports whether a table entry was found
func (c ClassificationResult) Matched() bool {
	return c.Standard != ""
}

// VisionDetection is one object as returned by a vision model, box normalized to [0,1]
type VisionDetection struct {
	Label      string  `json:"label"`
	Confidence float64 `json:"confidence"`
	Box        NormBox `json:"box"`
}

// NormBox represents a normalized bounding box with coordinates in [0,1] range
type NormBox struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	W float64 `json:"w"`
	H float64 `json:"h"`
}

// VisionResponse contains the complete detection result from the vision model
type VisionResponse struct {
	Detections  []VisionDetection `json:"detections"`
	Description string            `json:"description"`
}

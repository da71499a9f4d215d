// Package threadgauge measures pipe threads in photos.
//
// A photo shows a thread next to a standard ID-1 card (85.6 mm wide). A detector locates
// both; the card's pixel span calibrates the scale, the thread's span is converted to
// millimetres and matched against the BSP, NPT and UNF tables.
//
// Basic usage:
//
//	package main
//
//	import (
//		"context"
//		"fmt"
//		"log"
//
//		threadgauge "github.com/menta2k/thread-gauge"
//		"github.com/menta2k/thread-gauge/pkg/ollama"
//		"github.com/menta2k/thread-gauge/pkg/detection"
//		"github.com/menta2k/thread-gauge/pkg/types"
//	)
//
//	func main() {
//		vc, err := ollama.NewClient("http://localhost:11434")
//		if err != nil {
//			log.Fatal(err)
//		}
//		gauge := threadgauge.New(detection.NewVisionDetector(vc, detection.VisionOptions{Model: "qwen2.5vl:7b"}))
//
//		report, err := gauge.MeasureFile(context.Background(), "thread.jpg", types.External)
//		if err != nil {
//			log.Fatal(err)
//		}
//		fmt.Println(report.Standard, report.NominalSize, report.DiameterMM)
//	}
//
// The package consists of these main components:
//
//  1. Detection (pkg/detection, pkg/ollama, pkg/llamacpp, pkg/inference, pkg/yolo): locate the card and the thread
//  2. Calibration and measurement (pkg/calibration, pkg/measure): pixels to millimetres
//  3. Classification (pkg/standards, pkg/classify): nominal size lookup within a tolerance
//  4. Pipeline (pkg/pipeline): per-request orchestration and debug overlays
//
// Expected failures such as a missing card are reported in the returned Report with
// status "error"; the error return is reserved for faults like an unreachable detector.
package threadgauge

import (
	"context"
	"fmt"
	"image"

	"github.com/menta2k/thread-gauge/pkg/client"
	"github.com/menta2k/thread-gauge/pkg/pipeline"
	"github.com/menta2k/thread-gauge/pkg/processing"
	"github.com/menta2k/thread-gauge/pkg/standards"
	"github.com/menta2k/thread-gauge/pkg/types"
)

// Version of the thread gauge library
const Version = "1.0.0"

// Gauge provides a high-level interface to the measurement pipeline
type Gauge struct {
	orch      *pipeline.Orchestrator
	processor *processing.Processor
	table     *standards.Table
}

// New creates a Gauge with default options around detector
func New(detector client.Detector) *Gauge {
	return NewWithOptions(detector, pipeline.DefaultOptions())
}

// NewWithOptions creates a Gauge with custom pipeline options
func NewWithOptions(detector client.Detector, opts pipeline.Options) *Gauge {
	table := opts.Table
	if table == nil {
		table = standards.Default()
	}
	return &Gauge{
		orch:      pipeline.New(detector, opts, nil),
		processor: processing.NewProcessor(),
		table:     table,
	}
}

// Measure analyzes an encoded photo
func (g *Gauge) Measure(ctx context.Context, data []byte, orientation types.Orientation) (*types.Report, error) {
	return g.orch.Analyze(ctx, data, orientation)
}

// MeasureImage analyzes a decoded image
func (g *Gauge) MeasureImage(ctx context.Context, img image.Image, orientation types.Orientation) (*types.Report, error) {
	return g.orch.AnalyzeImage(ctx, img, orientation)
}

// MeasureFile analyzes a photo read from a local path or an http(s) URL
func (g *Gauge) MeasureFile(ctx context.Context, source string, orientation types.Orientation) (*types.Report, error) {
	data, err := g.processor.ReadSmart(source)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", source, err)
	}
	return g.Measure(ctx, data, orientation)
}

// Sizes returns the nominal sizes known for a standard and orientation, in table order
func (g *Gauge) Sizes(std types.Standard, orientation types.Orientation) []string {
	return g.table.Sizes(std, orientation)
}

// GetVersion returns the library version
func GetVersion() string {
	return Version
}

// Package pipeline runs one photo through detection, calibration and classification.
//
// An Orchestrator is safe for concurrent use as long as its Detector is. Each call to
// Analyze owns all of its intermediate values; the reference table and the detector are
// the only shared state.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"image"
	"image/color"
	"os"
	"path/filepath"
	"strings"

	"github.com/disintegration/imaging"

	"github.com/menta2k/thread-gauge/internal/logger"
	"github.com/menta2k/thread-gauge/internal/utils"
	"github.com/menta2k/thread-gauge/pkg/analyzer"
	"github.com/menta2k/thread-gauge/pkg/calibration"
	"github.com/menta2k/thread-gauge/pkg/classify"
	"github.com/menta2k/thread-gauge/pkg/client"
	"github.com/menta2k/thread-gauge/pkg/detection"
	"github.com/menta2k/thread-gauge/pkg/measure"
	"github.com/menta2k/thread-gauge/pkg/processing"
	"github.com/menta2k/thread-gauge/pkg/standards"
	"github.com/menta2k/thread-gauge/pkg/types"
)

// DefaultMaxImageSide bounds the longer side of the image handed to the detector
const DefaultMaxImageSide = 800

// Options configure an Orchestrator. Zero fields take their defaults in New.
type Options struct {
	ReferenceWidthMM float64
	Labels           detection.Labels

	// OrientationLabels names detector classes that only count as the target
	// when the request asks for that orientation, e.g. thread_internal.
	// Regions carrying the class of the other orientation are ignored. Nil
	// turns this off.
	OrientationLabels map[types.Orientation]string

	Selection detection.SelectionPolicy
	// ToleranceMM of zero selects classify.DefaultToleranceMM; pass a small
	// positive value for a near exact match
	ToleranceMM  float64
	Match        classify.MatchPolicy
	MaxImageSide int
	Table        *standards.Table
	Analyzer     analyzer.Config

	// DebugDir receives one annotated image per request; empty disables it
	DebugDir       string
	DebugFormat    string
	DebugQuality   int
	ReferenceColor color.NRGBA
	TargetColor    color.NRGBA
}

// DefaultOptions returns the card/thread defaults
func DefaultOptions() Options {
	return Options{
		ReferenceWidthMM: calibration.CardWidthMM,
		Labels:           detection.DefaultLabels(),
		OrientationLabels: map[types.Orientation]string{
			types.Internal: detection.DefaultInternalLabel,
			types.External: detection.DefaultExternalLabel,
		},
		Selection:      detection.SelectFirst,
		ToleranceMM:    classify.DefaultToleranceMM,
		Match:          classify.MatchFirst,
		MaxImageSide:   DefaultMaxImageSide,
		Analyzer:       analyzer.DefaultConfig(),
		DebugFormat:    "png",
		DebugQuality:   92,
		ReferenceColor: processing.MustParseColor(processing.ReferenceColorHex),
		TargetColor:    processing.MustParseColor(processing.TargetColorHex),
	}
}

// Orchestrator wires the detector to the measurement components
type Orchestrator struct {
	detector   client.Detector
	opts       Options
	analyzer   *analyzer.ImageAnalyzer
	processor  *processing.Processor
	classifier *classify.Classifier
	log        *logger.Logger
}

// New creates an orchestrator. The detector is used as given; wrap it in detection.Lazy
// to defer loading a model until the first request.
func New(detector client.Detector, opts Options, log *logger.Logger) *Orchestrator {
	if opts.ReferenceWidthMM == 0 {
		opts.ReferenceWidthMM = calibration.CardWidthMM
	}
	if opts.Labels.Reference == "" || opts.Labels.Target == "" {
		opts.Labels = detection.DefaultLabels()
	}
	if opts.ToleranceMM == 0 {
		opts.ToleranceMM = classify.DefaultToleranceMM
	}
	if opts.MaxImageSide == 0 {
		opts.MaxImageSide = DefaultMaxImageSide
	}
	if len(opts.Analyzer.SupportedFormats) == 0 {
		opts.Analyzer = analyzer.DefaultConfig()
	}
	if opts.DebugFormat == "" {
		opts.DebugFormat = "png"
	}
	if opts.ReferenceColor == (color.NRGBA{}) {
		opts.ReferenceColor = processing.MustParseColor(processing.ReferenceColorHex)
	}
	if opts.TargetColor == (color.NRGBA{}) {
		opts.TargetColor = processing.MustParseColor(processing.TargetColorHex)
	}
	if log == nil {
		log = logger.Discard()
	}

	return &Orchestrator{
		detector:   detector,
		opts:       opts,
		analyzer:   analyzer.NewWithConfig(opts.Analyzer),
		processor:  processing.NewProcessor(),
		classifier: classify.New(opts.Table, classify.WithTolerance(opts.ToleranceMM), classify.WithPolicy(opts.Match)),
		log:        log,
	}
}

// Options returns the effective options
func (o *Orchestrator) Options() Options {
	return o.opts
}

// Analyze decodes an uploaded photo and measures it. Expected failures come back as a
// report with Status error; the error return is reserved for faults of the pipeline itself.
func (o *Orchestrator) Analyze(ctx context.Context, data []byte, orientation types.Orientation) (*types.Report, error) {
	img, format, err := o.analyzer.Decode(data)
	if err != nil {
		if errors.Is(err, types.ErrInvalidImage) {
			o.log.Warning("Rejected upload (%d bytes): %v", len(data), err)
			return failed(types.StateReceived, types.ReasonInvalidImage, err.Error(), orientation), nil
		}
		return nil, err
	}
	o.log.Debug("Decoded %s image %dx%d", format, img.Bounds().Dx(), img.Bounds().Dy())
	return o.AnalyzeImage(ctx, img, orientation)
}

// AnalyzeImage measures an already decoded image
func (o *Orchestrator) AnalyzeImage(ctx context.Context, img image.Image, orientation types.Orientation) (*types.Report, error) {
	if orientation != types.Internal && orientation != types.External {
		return nil, fmt.Errorf("invalid orientation %q", orientation)
	}
	if err := o.analyzer.ValidateImage(img); err != nil {
		return failed(types.StateReceived, types.ReasonInvalidImage, err.Error(), orientation), nil
	}

	// Detectors report boxes from a zero origin
	if img.Bounds().Min != (image.Point{}) {
		img = imaging.Clone(img)
	}

	// Received -> Detected
	resized, factor := o.processor.ResizeToBound(img, o.opts.MaxImageSide)
	if factor != 1 {
		o.log.Debug("Resized input by %.3f to %dx%d", factor, resized.Bounds().Dx(), resized.Bounds().Dy())
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	regions, err := o.detector.Detect(ctx, resized)
	if err != nil {
		return nil, fmt.Errorf("detector failed: %w", err)
	}
	o.transition(types.StateReceived, types.StateDetected)
	o.log.Info("Detected %d regions", len(regions))

	regions = o.orient(regions, orientation)
	reduction := detection.Reduce(regions, o.opts.Labels, o.opts.Selection)

	debugPath, err := o.writeDebugImage(resized, reduction)
	if err != nil {
		return nil, err
	}

	// Detected -> Calibrated
	m, err := measure.Estimate(reduction.ReferenceSpan(), reduction.TargetSpan(), o.opts.ReferenceWidthMM, orientation)
	if err != nil {
		reason := types.ReasonFor(err)
		if reason == types.ReasonNone {
			return nil, err
		}
		o.log.Info("Measurement failed (%s): %v", reason, err)
		r := failed(types.StateDetected, reason, err.Error(), orientation)
		r.DebugImagePath = debugPath
		return r, nil
	}
	o.transition(types.StateDetected, types.StateCalibrated)
	o.log.Info("Measured %.2fmm (card %.1fpx, thread %.1fpx)", m.DiameterMM, reduction.ReferenceSpan().Pixels, reduction.TargetSpan().Pixels)

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	// Calibrated -> Classified
	c := o.classifier.Classify(m.DiameterMM, orientation)

	report := &types.Report{
		Orientation:    orientation.Description(),
		DiameterMM:     types.FormatMM(m.DiameterMM),
		DebugImagePath: debugPath,
		Measurement:    &m,
		Classification: &c,
	}

	if !c.Matched() {
		report.Status = types.StatusError
		report.Reason = types.ReasonNoStandardMatch
		report.State = types.StateFailed
		report.FailedAt = types.StateCalibrated
		report.Message = o.missMessage(m)
		o.log.Info("No standard within %.2fmm of %.2fmm", o.classifier.Tolerance(), m.DiameterMM)
		return report, nil
	}

	o.transition(types.StateCalibrated, types.StateClassified)

	// Classified -> Succeeded
	report.Status = types.StatusOK
	report.State = types.StateSucceeded
	report.Standard = string(c.Standard)
	report.NominalSize = c.NominalSize
	report.ReferenceDiameterMM = types.FormatMM(c.ReferenceDiameterMM)
	report.ConfidencePercent = types.FormatPercent(c.ConfidencePercent)
	o.transition(types.StateClassified, types.StateSucceeded)
	o.log.Info("Classified %.2fmm as %s %s", m.DiameterMM, c.Standard, c.NominalSize)
	return report, nil
}

// orient renames the class matching the requested orientation to the target label
// and drops regions of the opposite orientation
func (o *Orchestrator) orient(regions []types.DetectedRegion, orientation types.Orientation) []types.DetectedRegion {
	if len(o.opts.OrientationLabels) == 0 {
		return regions
	}
	other := types.Internal
	if orientation == types.Internal {
		other = types.External
	}
	want, skip := o.opts.OrientationLabels[orientation], o.opts.OrientationLabels[other]

	out := make([]types.DetectedRegion, 0, len(regions))
	for _, r := range regions {
		switch {
		case want != "" && strings.EqualFold(r.Label, want):
			r.Label = o.opts.Labels.Target
		case skip != "" && strings.EqualFold(r.Label, skip):
			o.log.Debug("Ignoring %s region for %s request", r.Label, orientation)
			continue
		}
		out = append(out, r)
	}
	return out
}

func (o *Orchestrator) missMessage(m types.MeasurementResult) string {
	msg := types.ErrNoStandardMatch.Error()
	if e, diff, ok := o.classifier.NearestMiss(m.DiameterMM, m.Orientation); ok {
		msg = fmt.Sprintf("%s (nearest %s %s at %.2fmm, %.2fmm away)", msg, e.Standard, e.NominalSize, e.ReferenceDiameterMM, diff)
	}
	return msg
}

// writeDebugImage draws the selected boxes and saves the overlay under a unique name
func (o *Orchestrator) writeDebugImage(img image.Image, r detection.Reduction) (string, error) {
	if o.opts.DebugDir == "" {
		return "", nil
	}

	var markers []processing.Marker
	if r.Reference != nil {
		markers = append(markers, processing.Marker{Box: r.Reference.Box, Color: o.opts.ReferenceColor, Tag: markerTag(r.Reference)})
	}
	if r.Target != nil {
		markers = append(markers, processing.Marker{Box: r.Target.Box, Color: o.opts.TargetColor, Tag: markerTag(r.Target)})
	}
	overlay := o.processor.CreateDebugOverlay(img, markers)

	if err := utils.EnsureDir(o.opts.DebugDir); err != nil {
		return "", fmt.Errorf("create debug dir: %w", err)
	}
	format := strings.ToLower(o.opts.DebugFormat)
	path := utils.GenerateDebugFilename(o.opts.DebugDir, "debug", format)
	if err := o.processor.SaveImage(overlay, path, format, o.opts.DebugQuality, false); err != nil {
		os.Remove(path)
		return "", fmt.Errorf("save debug image: %w", err)
	}
	o.log.Debug("Wrote %s", filepath.Base(path))
	return path, nil
}

func markerTag(r *types.DetectedRegion) string {
	if r.Confidence > 0 {
		return fmt.Sprintf("%s %.0fpx %.2f", r.Label, r.Box.Span(), r.Confidence)
	}
	return fmt.Sprintf("%s %.0fpx", r.Label, r.Box.Span())
}

func (o *Orchestrator) transition(from, to types.State) {
	o.log.Debug("pipeline: %s -> %s", from, to)
}

func failed(at types.State, reason types.Reason, msg string, orientation types.Orientation) *types.Report {
	return &types.Report{
		Status:      types.StatusError,
		Reason:      reason,
		Message:     msg,
		Orientation: orientation.Description(),
		State:       types.StateFailed,
		FailedAt:    at,
	}
}

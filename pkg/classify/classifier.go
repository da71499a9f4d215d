package classify

import (
	"fmt"
	"math"
	"strings"

	"github.com/menta2k/thread-gauge/pkg/standards"
	"github.com/menta2k/thread-gauge/pkg/types"
)

const (
	// DefaultToleranceMM is the accepted distance between a measurement and a reference diameter
	DefaultToleranceMM = 0.5
	// MatchConfidencePercent is reported for every accepted match
	MatchConfidencePercent = 95.0

	// slack absorbs float rounding so that ref±tolerance is accepted
	slack = 1e-9
)

// MatchPolicy decides which entry wins when several are within tolerance
type MatchPolicy int

const (
	// MatchFirst accepts the first entry in table order
	MatchFirst MatchPolicy = iota
	// MatchClosest accepts the entry with the smallest residual, table order breaks ties
	MatchClosest
)

func (p MatchPolicy) String() string {
	if p == MatchClosest {
		return "closest"
	}
	return "first"
}

// ParseMatchPolicy parses first|closest
func ParseMatchPolicy(s string) (MatchPolicy, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "first":
		return MatchFirst, nil
	case "closest", "nearest":
		return MatchClosest, nil
	}
	return MatchFirst, fmt.Errorf("unknown match policy %q", s)
}

// Confidence scores an accepted match. It is a fixed value, independent of the residual.
func Confidence(diameterMM, referenceMM, toleranceMM float64) float64 {
	return MatchConfidencePercent
}

// Classifier matches diameters against a reference table
type Classifier struct {
	table     *standards.Table
	tolerance float64
	policy    MatchPolicy
}

// Option configures a Classifier
type Option func(*Classifier)

// WithTolerance sets the tolerance in mm
func WithTolerance(mm float64) Option {
	return func(c *Classifier) { c.tolerance = mm }
}

// WithPolicy sets the match policy
func WithPolicy(p MatchPolicy) Option {
	return func(c *Classifier) { c.policy = p }
}

// New creates a classifier over table, the default table when nil
func New(table *standards.Table, opts ...Option) *Classifier {
	if table == nil {
		table = standards.Default()
	}
	c := &Classifier{table: table, tolerance: DefaultToleranceMM, policy: MatchFirst}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Tolerance returns the configured tolerance in mm
func (c *Classifier) Tolerance() float64 {
	return c.tolerance
}

// Classify returns the table entry accepted for the diameter, or a result with no standard
func (c *Classifier) Classify(diameterMM float64, o types.Orientation) types.ClassificationResult {
	var (
		best     standards.Entry
		bestDiff = math.Inf(1)
		found    bool
	)

	for _, e := range c.table.Lookup(o) {
		diff := math.Abs(diameterMM - e.ReferenceDiameterMM)
		if !(diff <= c.tolerance+slack) {
			continue
		}
		if c.policy == MatchFirst {
			best, found = e, true
			break
		}
		if diff < bestDiff {
			best, bestDiff, found = e, diff, true
		}
	}

	if !found {
		return types.ClassificationResult{ConfidencePercent: 0}
	}
	return types.ClassificationResult{
		Standard:            best.Standard,
		NominalSize:         best.NominalSize,
		ReferenceDiameterMM: best.ReferenceDiameterMM,
		ConfidencePercent:   Confidence(diameterMM, best.ReferenceDiameterMM, c.tolerance),
	}
}

// NearestMiss returns the closest entry regardless of tolerance, for error messages
func (c *Classifier) NearestMiss(diameterMM float64, o types.Orientation) (standards.Entry, float64, bool) {
	var (
		best     standards.Entry
		bestDiff = math.Inf(1)
	)
	for _, e := range c.table.Lookup(o) {
		if diff := math.Abs(diameterMM - e.ReferenceDiameterMM); diff < bestDiff {
			best, bestDiff = e, diff
		}
	}
	return best, bestDiff, !math.IsInf(bestDiff, 1)
}

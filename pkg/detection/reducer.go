package detection

import (
	"fmt"
	"strings"

	"github.com/menta2k/thread-gauge/pkg/types"
)

// Default detector class names
const (
	DefaultReferenceLabel = "card"
	DefaultTargetLabel    = "thread"

	// Classes of models trained on the synthetic dataset
	DefaultInternalLabel = "thread_internal"
	DefaultExternalLabel = "thread_external"
)

// Labels are the class names of the reference object and the measured object
type Labels struct {
	Reference string
	Target    string
}

// DefaultLabels returns the card/thread labels
func DefaultLabels() Labels {
	return Labels{Reference: DefaultReferenceLabel, Target: DefaultTargetLabel}
}

// SelectionPolicy decides which region wins when a class is detected more than once
type SelectionPolicy int

const (
	// SelectFirst keeps the first region in detector order
	SelectFirst SelectionPolicy = iota
	// SelectHighestConfidence keeps the most confident region, earlier wins ties
	SelectHighestConfidence
	// SelectLargest keeps the region with the largest span, earlier wins ties
	SelectLargest
)

func (p SelectionPolicy) String() string {
	switch p {
	case SelectHighestConfidence:
		return "confidence"
	case SelectLargest:
		return "largest"
	default:
		return "first"
	}
}

// ParseSelectionPolicy parses first|confidence|largest
func ParseSelectionPolicy(s string) (SelectionPolicy, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "first":
		return SelectFirst, nil
	case "confidence", "highest-confidence":
		return SelectHighestConfidence, nil
	case "largest":
		return SelectLargest, nil
	}
	return SelectFirst, fmt.Errorf("unknown selection policy %q", s)
}

// Reduction holds the regions selected for the reference and the target. Either may be nil.
type Reduction struct {
	Reference *types.DetectedRegion
	Target    *types.DetectedRegion
}

// ReferenceSpan returns the reference span, absent when no reference was detected
func (r Reduction) ReferenceSpan() types.Span {
	return types.SpanOf(r.Reference)
}

// TargetSpan returns the target span, absent when no target was detected
func (r Reduction) TargetSpan() types.Span {
	return types.SpanOf(r.Target)
}

// Reduce picks one reference and one target region out of raw detector output
func Reduce(regions []types.DetectedRegion, labels Labels, policy SelectionPolicy) Reduction {
	var out Reduction
	ref := strings.TrimSpace(labels.Reference)
	target := strings.TrimSpace(labels.Target)

	for i := range regions {
		label := strings.TrimSpace(regions[i].Label)
		switch {
		case strings.EqualFold(label, ref):
			out.Reference = pick(out.Reference, &regions[i], policy)
		case strings.EqualFold(label, target):
			out.Target = pick(out.Target, &regions[i], policy)
		}
	}

	// Copies so the caller's slice can be reused
	if out.Reference != nil {
		r := *out.Reference
		out.Reference = &r
	}
	if out.Target != nil {
		t := *out.Target
		out.Target = &t
	}
	return out
}

func pick(current, candidate *types.DetectedRegion, policy SelectionPolicy) *types.DetectedRegion {
	if current == nil {
		return candidate
	}
	switch policy {
	case SelectHighestConfidence:
		if candidate.Confidence > current.Confidence {
			return candidate
		}
	case SelectLargest:
		if candidate.Box.Span() > current.Box.Span() {
			return candidate
		}
	}
	return current
}

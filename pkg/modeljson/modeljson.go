// Package modeljson cleans up and decodes the JSON that chat-style vision models return.
package modeljson

import (
	"encoding/json"
	"regexp"
	"strings"

	"github.com/menta2k/thread-gauge/pkg/types"
)

var (
	reBlock    = regexp.MustCompile(`(?s)/\*.*?\*/`)
	reLine     = regexp.MustCompile(`(?m)^\s*//.*$`)
	reInline   = regexp.MustCompile(`(?m)\s//.*$`)
	reTrailing = regexp.MustCompile(`,(\s*[}\]])`)
)

// Sanitize removes code fences, comments, and trailing commas from a model response
func Sanitize(raw string) string {
	raw = strings.TrimSpace(raw)

	// Strip triple-backtick fences if present
	if strings.HasPrefix(raw, "```") {
		if i := strings.Index(raw, "\n"); i >= 0 {
			raw = raw[i+1:]
		}
		if j := strings.LastIndex(raw, "```"); j >= 0 {
			raw = raw[:j]
		}
	}
	raw = strings.TrimSpace(raw)
	raw = strings.Trim(raw, "`")

	raw = reBlock.ReplaceAllString(raw, "")
	raw = reLine.ReplaceAllString(raw, "")
	raw = reInline.ReplaceAllString(raw, "")
	raw = reTrailing.ReplaceAllString(raw, "$1")

	// Keep only the outermost {...}
	if start := strings.Index(raw, "{"); start >= 0 {
		if end := strings.LastIndex(raw, "}"); end > start {
			raw = raw[start : end+1]
		}
	}
	return strings.TrimSpace(raw)
}

// ParseVisionResponse decodes a detections document. A response that holds no usable JSON
// yields an empty detection list with the reason in Description, so the pipeline reports
// an incomplete detection instead of a fault.
func ParseVisionResponse(raw string) *types.VisionResponse {
	clean := Sanitize(raw)
	if !strings.HasPrefix(clean, "{") {
		return &types.VisionResponse{Detections: []types.VisionDetection{}, Description: "Model returned non-JSON response"}
	}

	var result types.VisionResponse
	if err := json.Unmarshal([]byte(clean), &result); err != nil {
		return &types.VisionResponse{Detections: []types.VisionDetection{}, Description: "Failed to parse model response"}
	}
	if result.Detections == nil {
		result.Detections = []types.VisionDetection{}
	}
	return &result
}

// ImageMIME guesses the media type of a base64 encoded image from its leading bytes
func ImageMIME(imgB64 string) string {
	switch {
	case strings.HasPrefix(imgB64, "iVBOR"):
		return "image/png"
	case strings.HasPrefix(imgB64, "UklGR"):
		return "image/webp"
	default:
		return "image/jpeg"
	}
}

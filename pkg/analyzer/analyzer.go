package analyzer

import (
	"bytes"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"io"
	"strings"

	"github.com/chai2010/webp"
	_ "golang.org/x/image/webp"

	"github.com/menta2k/thread-gauge/pkg/types"
)

// ImageAnalyzer decodes and validates uploaded photos before measurement
type ImageAnalyzer struct {
	config Config
}

// Config holds configuration for the image analyzer
type Config struct {
	SupportedFormats []string
	MinImageSize     int
	// MaxPixels bounds width*height read from the header before the pixels
	// are decoded. Zero or less disables the check.
	MaxPixels int
}

// DefaultMaxPixels is roughly a 40 megapixel photo
const DefaultMaxPixels = 40_000_000

// DefaultConfig accepts jpeg, png and webp images of at least 32px per side
func DefaultConfig() Config {
	return Config{
		SupportedFormats: []string{"jpeg", "png", "webp"},
		MinImageSize:     32,
		MaxPixels:        DefaultMaxPixels,
	}
}

// New creates a new ImageAnalyzer with default configuration
func New() *ImageAnalyzer {
	return &ImageAnalyzer{config: DefaultConfig()}
}

// NewWithConfig creates a new ImageAnalyzer with custom configuration
func NewWithConfig(config Config) *ImageAnalyzer {
	return &ImageAnalyzer{config: config}
}

// Decode decodes and validates image bytes. Every failure wraps types.ErrInvalidImage.
func (a *ImageAnalyzer) Decode(data []byte) (image.Image, string, error) {
	if len(data) == 0 {
		return nil, "", fmt.Errorf("empty upload: %w", types.ErrInvalidImage)
	}
	if err := a.checkDimensions(data); err != nil {
		return nil, "", err
	}

	img, format, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		// chai2010 handles a few webp variants the x/image decoder rejects
		wimg, werr := webp.Decode(bytes.NewReader(data))
		if werr != nil {
			return nil, "", fmt.Errorf("failed to decode image: %v: %w", err, types.ErrInvalidImage)
		}
		img, format = wimg, "webp"
	}

	if !a.isFormatSupported(format) {
		return nil, format, fmt.Errorf("unsupported image format %s: %w", format, types.ErrInvalidImage)
	}
	if err := a.ValidateImage(img); err != nil {
		return nil, format, err
	}
	return img, format, nil
}

// checkDimensions reads only the image header so oversized uploads are
// rejected before their pixels are allocated
func (a *ImageAnalyzer) checkDimensions(data []byte) error {
	if a.config.MaxPixels <= 0 {
		return nil
	}
	cfg, _, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		wcfg, werr := webp.DecodeConfig(bytes.NewReader(data))
		if werr != nil {
			return fmt.Errorf("failed to read image header: %v: %w", err, types.ErrInvalidImage)
		}
		cfg = wcfg
	}
	if cfg.Width <= 0 || cfg.Height <= 0 {
		return fmt.Errorf("invalid image dimensions %dx%d: %w", cfg.Width, cfg.Height, types.ErrInvalidImage)
	}
	if int64(cfg.Width)*int64(cfg.Height) > int64(a.config.MaxPixels) {
		return fmt.Errorf("image too large: %dx%d (maximum: %d pixels): %w",
			cfg.Width, cfg.Height, a.config.MaxPixels, types.ErrInvalidImage)
	}
	return nil
}

// DecodeReader reads r fully and decodes it
func (a *ImageAnalyzer) DecodeReader(r io.Reader) (image.Image, string, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, "", fmt.Errorf("failed to read image: %w", err)
	}
	return a.Decode(data)
}

// GetImageInfo returns basic information about an image
func (a *ImageAnalyzer) GetImageInfo(img image.Image) ImageInfo {
	bounds := img.Bounds()
	width := bounds.Dx()
	height := bounds.Dy()

	info := ImageInfo{Width: width, Height: height}
	if height > 0 {
		info.AspectRatio = float64(width) / float64(height)
	}
	return info
}

// ImageInfo contains basic image metadata
type ImageInfo struct {
	Width       int     `json:"width"`
	Height      int     `json:"height"`
	AspectRatio float64 `json:"aspect_ratio"`
}

func (a *ImageAnalyzer) isFormatSupported(format string) bool {
	for _, supported := range a.config.SupportedFormats {
		if strings.EqualFold(format, supported) || (strings.EqualFold(supported, "jpg") && strings.EqualFold(format, "jpeg")) {
			return true
		}
	}
	return false
}

// ValidateImage checks if an image meets minimum requirements
func (a *ImageAnalyzer) ValidateImage(img image.Image) error {
	bounds := img.Bounds()
	if bounds.Dx() < a.config.MinImageSize || bounds.Dy() < a.config.MinImageSize {
		return fmt.Errorf("image too small: %dx%d (minimum: %d): %w",
			bounds.Dx(), bounds.Dy(), a.config.MinImageSize, types.ErrInvalidImage)
	}
	return nil
}

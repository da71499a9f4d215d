// Package inference calls an external object detection service over HTTP.
//
// The service receives the image as a multipart "file" field and answers with
//
//	{"detections": [{"class": "card", "confidence": 0.93, "x": 12, "y": 40, "width": 300, "height": 190}]}
//
// where x/y/width/height are pixels of the uploaded image. Services that only return a
// numeric "class_id" get their labels from the configured class names.
package inference

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"image"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/menta2k/thread-gauge/pkg/processing"
	"github.com/menta2k/thread-gauge/pkg/types"
)

// Detection is one object in the service response
type Detection struct {
	Class      string  `json:"class"`
	ClassID    *int    `json:"class_id,omitempty"`
	Confidence float64 `json:"confidence"`
	X          float64 `json:"x"`
	Y          float64 `json:"y"`
	Width      float64 `json:"width"`
	Height     float64 `json:"height"`
}

// Response is the service response body
type Response struct {
	Detections []Detection `json:"detections"`
}

// Options configure a Client
type Options struct {
	ClassNames    []string
	MinConfidence float64
	Format        string
	Quality       int
	Timeout       time.Duration
}

// Client is a Detector backed by the inference service
type Client struct {
	url        string
	opts       Options
	processor  *processing.Processor
	httpClient *http.Client
}

// NewClient creates a client for the predict endpoint at inferenceURL
func NewClient(inferenceURL string, opts Options) (*Client, error) {
	if !strings.HasPrefix(inferenceURL, "http://") && !strings.HasPrefix(inferenceURL, "https://") {
		return nil, fmt.Errorf("invalid inference URL %q", inferenceURL)
	}
	if opts.Format == "" {
		opts.Format = "png"
	}
	if opts.Quality <= 0 {
		opts.Quality = 90
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 60 * time.Second
	}
	return &Client{
		url:        inferenceURL,
		opts:       opts,
		processor:  processing.NewProcessor(),
		httpClient: &http.Client{Timeout: opts.Timeout},
	}, nil
}

// Detect uploads img and returns the service detections in pixels of img
func (c *Client) Detect(ctx context.Context, img image.Image) ([]types.DetectedRegion, error) {
	data, err := c.processor.EncodeImage(img, c.opts.Format, c.opts.Quality)
	if err != nil {
		return nil, fmt.Errorf("encode image: %w", err)
	}

	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)
	part, err := writer.CreateFormFile("file", "image."+extension(c.opts.Format))
	if err != nil {
		return nil, fmt.Errorf("create form file: %w", err)
	}
	if _, err := io.Copy(part, bytes.NewReader(data)); err != nil {
		return nil, fmt.Errorf("copy image data: %w", err)
	}
	if err := writer.Close(); err != nil {
		return nil, fmt.Errorf("close multipart writer: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, body)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("send request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("inference failed with status %d: %s", resp.StatusCode, strings.TrimSpace(string(msg)))
	}

	var result Response
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	return c.toRegions(result.Detections), nil
}

func (c *Client) toRegions(dets []Detection) []types.DetectedRegion {
	regions := make([]types.DetectedRegion, 0, len(dets))
	for _, d := range dets {
		if d.Confidence < c.opts.MinConfidence || d.Width <= 0 || d.Height <= 0 {
			continue
		}
		label := d.Class
		if label == "" && d.ClassID != nil && *d.ClassID >= 0 && *d.ClassID < len(c.opts.ClassNames) {
			label = c.opts.ClassNames[*d.ClassID]
		}
		if label == "" {
			continue
		}
		regions = append(regions, types.DetectedRegion{
			Label:      label,
			Confidence: d.Confidence,
			Box:        types.Box{X1: d.X, Y1: d.Y, X2: d.X + d.Width, Y2: d.Y + d.Height},
		})
	}
	return regions
}

// CheckHealth checks that the service answers on /health of the predict URL's host
func (c *Client) CheckHealth(ctx context.Context) error {
	u, err := url.Parse(c.url)
	if err != nil {
		return err
	}
	u.Path, u.RawQuery = "/health", ""
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return err
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("inference service unhealthy: %d", resp.StatusCode)
	}
	return nil
}

func extension(format string) string {
	switch strings.ToLower(format) {
	case "jpeg", "jpg":
		return "jpg"
	case "webp":
		return "webp"
	default:
		return "png"
	}
}

//go:build gocv

package yolo

import (
	"context"
	"fmt"
	"image"
	"os"
	"sync"

	"gocv.io/x/gocv"

	"github.com/menta2k/thread-gauge/pkg/types"
)

// Detector runs the network on the CPU. gocv.Net is not safe for concurrent use, so
// inference is serialized.
type Detector struct {
	net  gocv.Net
	opts Options
	mu   sync.Mutex
}

// New loads the ONNX model at opts.ModelPath
func New(opts Options) (*Detector, error) {
	opts.setDefaults()
	if len(opts.ClassNames) == 0 {
		return nil, fmt.Errorf("yolo: class names are required")
	}
	if _, err := os.Stat(opts.ModelPath); err != nil {
		return nil, fmt.Errorf("model file not found: %w", err)
	}

	net := gocv.ReadNetFromONNX(opts.ModelPath)
	if net.Empty() {
		return nil, fmt.Errorf("failed to load network from %s", opts.ModelPath)
	}
	errBackend := net.SetPreferableBackend(gocv.NetBackendDefault)
	errTarget := net.SetPreferableTarget(gocv.NetTargetCPU)
	if errBackend != nil || errTarget != nil {
		net.Close()
		return nil, fmt.Errorf("failed to set preferable backend or target")
	}

	return &Detector{net: net, opts: opts}, nil
}

// Detect runs one forward pass on img
func (d *Detector) Detect(ctx context.Context, img image.Image) ([]types.DetectedRegion, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	mat, err := gocv.ImageToMatRGB(img)
	if err != nil {
		return nil, fmt.Errorf("failed to convert image: %w", err)
	}
	defer mat.Close()
	if mat.Empty() {
		return nil, fmt.Errorf("converted image is empty")
	}

	size := d.opts.InputSize
	blob := gocv.BlobFromImage(mat, 1.0/255.0, image.Pt(size, size), gocv.NewScalar(0, 0, 0, 0), true, false)
	defer blob.Close()

	d.mu.Lock()
	d.net.SetInput(blob, "")
	output := d.net.Forward("")
	d.mu.Unlock()
	defer output.Close()

	dims := output.Size()
	if len(dims) != 3 || dims[1] <= 4 {
		return nil, fmt.Errorf("unexpected output shape %v", dims)
	}
	data, err := output.DataPtrFloat32()
	if err != nil {
		return nil, fmt.Errorf("failed to read output: %w", err)
	}

	w, h := mat.Cols(), mat.Rows()
	cands, err := DecodeOutput(data, dims[1]-4, dims[2], d.opts.ConfThreshold,
		float64(w)/float64(size), float64(h)/float64(size))
	if err != nil {
		return nil, err
	}
	return ToRegions(NMS(cands, d.opts.NMSThreshold), d.opts.ClassNames, w, h), nil
}

// Close releases the network
func (d *Detector) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.net.Close()
}

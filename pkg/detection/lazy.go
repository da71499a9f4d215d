package detection

import (
	"context"
	"fmt"
	"image"
	"sync"

	"github.com/menta2k/thread-gauge/pkg/client"
	"github.com/menta2k/thread-gauge/pkg/types"
)

// Lazy defers building a detector until the first Detect call. The factory runs exactly
// once even under concurrent first use; a factory error is kept and returned on every call.
type Lazy struct {
	factory  func() (client.Detector, error)
	once     sync.Once
	detector client.Detector
	err      error
}

// NewLazy wraps a detector factory
func NewLazy(factory func() (client.Detector, error)) *Lazy {
	return &Lazy{factory: factory}
}

// Load builds the detector if needed and returns it
func (l *Lazy) Load() (client.Detector, error) {
	l.once.Do(func() {
		l.detector, l.err = l.factory()
		if l.err == nil && l.detector == nil {
			l.err = fmt.Errorf("detector factory returned nil")
		}
	})
	return l.detector, l.err
}

// Detect implements client.Detector
func (l *Lazy) Detect(ctx context.Context, img image.Image) ([]types.DetectedRegion, error) {
	d, err := l.Load()
	if err != nil {
		return nil, fmt.Errorf("load detector: %w", err)
	}
	return d.Detect(ctx, img)
}

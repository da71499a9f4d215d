// Package app assembles detectors and pipelines from configuration.
package app

import (
	"context"
	"fmt"
	"image"
	"sync"
	"time"

	"github.com/menta2k/thread-gauge/internal/config"
	"github.com/menta2k/thread-gauge/internal/logger"
	"github.com/menta2k/thread-gauge/pkg/client"
	"github.com/menta2k/thread-gauge/pkg/detection"
	"github.com/menta2k/thread-gauge/pkg/inference"
	"github.com/menta2k/thread-gauge/pkg/llamacpp"
	"github.com/menta2k/thread-gauge/pkg/ollama"
	"github.com/menta2k/thread-gauge/pkg/pipeline"
	"github.com/menta2k/thread-gauge/pkg/yolo"
)

// Backend is a configured detector with its health probe
type Backend struct {
	Name     string
	Detector client.Detector
	Health   func(ctx context.Context) error
	// DescribeImage asks a vision model what it sees in img. It is nil for
	// backends that only return boxes.
	DescribeImage func(ctx context.Context, img image.Image) (string, error)
	close         func() error
}

// Close releases resources held by the detector, such as a loaded network
func (b *Backend) Close() error {
	if b.close == nil {
		return nil
	}
	return b.close()
}

type visionBackend interface {
	client.VisionClient
	SetTimeout(d time.Duration)
	CheckHealth(ctx context.Context) error
}

// NewBackend builds the detector selected by cfg.Detector.Backend. Class names listed
// in cfg.Detector.LabelMap are renamed before the pipeline sees them.
func NewBackend(cfg *config.Config, log *logger.Logger) (*Backend, error) {
	if log == nil {
		log = logger.Discard()
	}
	dc := cfg.Detector
	labels := detection.Labels{Reference: cfg.Measurement.ReferenceLabel, Target: cfg.Measurement.TargetLabel}
	timeout := time.Duration(dc.TimeoutSeconds) * time.Second

	var b *Backend
	switch dc.Backend {
	case config.BackendOllama, config.BackendLlamaCpp:
		var (
			vc  visionBackend
			err error
		)
		if dc.Backend == config.BackendOllama {
			vc, err = ollama.NewClient(dc.URL)
		} else {
			vc, err = llamacpp.NewClient(dc.URL)
		}
		if err != nil {
			return nil, fmt.Errorf("failed to create %s client: %w", dc.Backend, err)
		}
		vc.SetTimeout(timeout)
		vd := detection.NewVisionDetector(vc, detection.VisionOptions{
			Model:       dc.Model,
			SendFormat:  dc.SendFormat,
			SendSize:    dc.SendSize,
			SendQuality: dc.SendQuality,
			Labels:      labels,
		})
		b = &Backend{Detector: vd, Health: vc.CheckHealth, DescribeImage: vd.TestVision}
		log.Info("Using %s model %s at %s", dc.Backend, dc.Model, dc.URL)

	case config.BackendInference:
		ic, err := inference.NewClient(dc.URL, inference.Options{
			ClassNames:    dc.ClassNames,
			MinConfidence: dc.ConfidenceThreshold,
			Format:        dc.SendFormat,
			Quality:       dc.SendQuality,
			Timeout:       timeout,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to create inference client: %w", err)
		}
		b = &Backend{Detector: ic, Health: ic.CheckHealth}
		log.Info("Using inference service at %s", dc.URL)

	case config.BackendYOLO:
		b = newYOLOBackend(dc, log)
		log.Info("Using YOLO model %s (loaded on first request)", dc.ModelPath)

	default:
		return nil, fmt.Errorf("unknown detector backend %q", dc.Backend)
	}

	b.Name = dc.Backend
	if len(dc.LabelMap) > 0 {
		b.Detector = detection.Relabel(b.Detector, dc.LabelMap)
	}
	return b, nil
}

func newYOLOBackend(dc config.DetectorConfig, log *logger.Logger) *Backend {
	var (
		mu     sync.Mutex
		loaded *yolo.Detector
	)
	lazy := detection.NewLazy(func() (client.Detector, error) {
		start := time.Now()
		d, err := yolo.New(yolo.Options{
			ModelPath:     dc.ModelPath,
			ClassNames:    dc.ClassNames,
			ConfThreshold: dc.ConfidenceThreshold,
			NMSThreshold:  dc.NMSThreshold,
		})
		if err != nil {
			log.Error("Failed to load YOLO model %s: %v", dc.ModelPath, err)
			return nil, err
		}
		log.Info("Loaded YOLO model %s in %v", dc.ModelPath, time.Since(start).Round(time.Millisecond))
		mu.Lock()
		loaded = d
		mu.Unlock()
		return d, nil
	})

	return &Backend{
		Detector: lazy,
		// The first probe loads the model if no request has yet
		Health: func(ctx context.Context) error {
			_, err := lazy.Load()
			return err
		},
		close: func() error {
			mu.Lock()
			defer mu.Unlock()
			if loaded == nil {
				return nil
			}
			return loaded.Close()
		},
	}
}

// NewOrchestrator builds the backend and a pipeline around it
func NewOrchestrator(cfg *config.Config, log *logger.Logger) (*pipeline.Orchestrator, *Backend, error) {
	opts, err := cfg.PipelineOptions()
	if err != nil {
		return nil, nil, err
	}
	b, err := NewBackend(cfg, log)
	if err != nil {
		return nil, nil, err
	}
	return pipeline.New(b.Detector, opts, log), b, nil
}

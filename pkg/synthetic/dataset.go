package synthetic

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/disintegration/imaging"
	"gonum.org/v1/gonum/stat"
	"gopkg.in/yaml.v3"

	"github.com/menta2k/thread-gauge/pkg/calibration"
)

// DefaultCount is the number of samples written when none is given
const DefaultCount = 200

// Manifest is the data.yaml read by YOLO trainers
type Manifest struct {
	Path  string         `yaml:"path"`
	Train string         `yaml:"train"`
	Val   string         `yaml:"val"`
	Names map[int]string `yaml:"names"`
}

// Summary describes the thread diameters of a dataset, in millimetres at card scale
type Summary struct {
	Count            int     `json:"count"`
	ExternalMeanMM   float64 `json:"external_mean_mm"`
	ExternalStdDevMM float64 `json:"external_stddev_mm"`
	InternalMeanMM   float64 `json:"internal_mean_mm"`
	InternalStdDevMM float64 `json:"internal_stddev_mm"`
}

// WriteDataset writes n samples to dir/images/img_<i>.jpg and dir/labels/img_<i>.txt
// plus dir/data.yaml. It stops early when ctx is cancelled.
func WriteDataset(ctx context.Context, dir string, n int, g *Generator) (Summary, error) {
	if n <= 0 {
		n = DefaultCount
	}
	imagesDir := filepath.Join(dir, "images")
	labelsDir := filepath.Join(dir, "labels")
	for _, d := range []string{imagesDir, labelsDir} {
		if err := os.MkdirAll(d, 0755); err != nil {
			return Summary{}, fmt.Errorf("failed to create %s: %w", d, err)
		}
	}

	var external, internal []float64
	for i := 0; i < n; i++ {
		if err := ctx.Err(); err != nil {
			return Summary{}, err
		}
		s := g.Next()
		name := fmt.Sprintf("img_%d", i)
		if err := imaging.Save(s.Image, filepath.Join(imagesDir, name+".jpg"), imaging.JPEGQuality(95)); err != nil {
			return Summary{}, fmt.Errorf("failed to save %s: %w", name, err)
		}
		if err := os.WriteFile(filepath.Join(labelsDir, name+".txt"), []byte(s.LabelFile()), 0644); err != nil {
			return Summary{}, fmt.Errorf("failed to write labels for %s: %w", name, err)
		}

		ext, in := s.ThreadDiametersMM()
		external = append(external, ext)
		internal = append(internal, in)
	}

	if err := writeManifest(dir); err != nil {
		return Summary{}, err
	}

	sum := Summary{Count: n}
	sum.ExternalMeanMM, sum.ExternalStdDevMM = stat.MeanStdDev(external, nil)
	sum.InternalMeanMM, sum.InternalStdDevMM = stat.MeanStdDev(internal, nil)
	return sum, nil
}

// ThreadDiametersMM converts both circles to millimetres using the card width as scale
func (s Sample) ThreadDiametersMM() (external, internal float64) {
	card, ok := s.Find(ClassCard)
	if !ok {
		return 0, 0
	}
	cal, err := calibration.Calibrate(card.Box.Span(), calibration.CardWidthMM)
	if err != nil {
		return 0, 0
	}
	if l, ok := s.Find(ClassThreadExternal); ok {
		external = l.Box.Span() * cal.ScaleMMPerPixel
	}
	if l, ok := s.Find(ClassThreadInternal); ok {
		internal = l.Box.Span() * cal.ScaleMMPerPixel
	}
	return external, internal
}

func writeManifest(dir string) error {
	abs, err := filepath.Abs(dir)
	if err != nil {
		return err
	}
	m := Manifest{Path: abs, Train: "images", Val: "images", Names: make(map[int]string, len(ClassNames))}
	for i, name := range ClassNames {
		m.Names[i] = name
	}
	data, err := yaml.Marshal(&m)
	if err != nil {
		return fmt.Errorf("failed to marshal manifest: %w", err)
	}
	if err := os.WriteFile(filepath.Join(dir, "data.yaml"), data, 0644); err != nil {
		return fmt.Errorf("failed to write manifest: %w", err)
	}
	return nil
}

package synthetic

import (
	"context"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"testing"

	"gopkg.in/yaml.v3"

	"github.com/menta2k/thread-gauge/pkg/calibration"
	"github.com/menta2k/thread-gauge/pkg/detection"
	"github.com/menta2k/thread-gauge/pkg/measure"
	"github.com/menta2k/thread-gauge/pkg/types"
)

func TestNextDeterministic(t *testing.T) {
	a := NewGenerator(42, Options{}).Next()
	b := NewGenerator(42, Options{}).Next()
	if a.LabelFile() != b.LabelFile() {
		t.Errorf("Same seed produced different labels:\n%s\n%s", a.LabelFile(), b.LabelFile())
	}
	if string(a.Image.Pix) != string(b.Image.Pix) {
		t.Error("Same seed produced different pixels")
	}
}

func TestNextLayout(t *testing.T) {
	g := NewGenerator(7, Options{})
	for i := 0; i < 50; i++ {
		s := g.Next()
		if s.Image.Bounds().Dx() != 640 || s.Image.Bounds().Dy() != 640 {
			t.Fatalf("Unexpected size %v", s.Image.Bounds())
		}
		if len(s.Labels) != 3 {
			t.Fatalf("Expected 3 labels, got %d", len(s.Labels))
		}
		card, _ := s.Find(ClassCard)
		if card.Box.Width() != CardWidthPx || card.Box.Height() != CardHeightPx {
			t.Errorf("Unexpected card box %+v", card.Box)
		}
		ext, _ := s.Find(ClassThreadExternal)
		if d := ext.Box.Width(); d < 80 || d > 140 {
			t.Errorf("External diameter %v out of range", d)
		}
		in, _ := s.Find(ClassThreadInternal)
		if d := in.Box.Width(); d < 60 || d > 120 {
			t.Errorf("Internal diameter %v out of range", d)
		}
		for _, l := range s.Labels {
			if l.Box.X1 < 0 || l.Box.Y1 < 0 || l.Box.X2 > 640 || l.Box.Y2 > 640 {
				t.Errorf("Label outside the image: %+v", l)
			}
		}
	}
}

func TestCirclesAreDrawn(t *testing.T) {
	s := NewGenerator(3, Options{}).Next()
	// the internal circle is drawn last, so its centre is always red
	in, _ := s.Find(ClassThreadInternal)
	cx := int((in.Box.X1 + in.Box.X2) / 2)
	cy := int((in.Box.Y1 + in.Box.Y2) / 2)
	if c := s.Image.NRGBAAt(cx, cy); c != internalColor {
		t.Errorf("Expected red at circle centre, got %+v", c)
	}
	if c := s.Image.NRGBAAt(0, 0); c.R != 255 || c.G != 255 || c.B != 255 {
		t.Errorf("Expected white background, got %+v", c)
	}
}

func TestLabelFile(t *testing.T) {
	s := NewGenerator(1, Options{}).Next()
	lines := strings.Split(s.LabelFile(), "\n")
	if len(lines) != 3 {
		t.Fatalf("Expected 3 lines, got %d", len(lines))
	}
	for i, line := range lines {
		fields := strings.Fields(line)
		if len(fields) != 5 {
			t.Fatalf("Line %q has %d fields", line, len(fields))
		}
		if fields[0] != strconv.Itoa(i) {
			t.Errorf("Expected class %d, got %s", i, fields[0])
		}
		for _, f := range fields[1:] {
			v, err := strconv.ParseFloat(f, 64)
			if err != nil || v < 0 || v > 1 {
				t.Errorf("Value %q not normalized", f)
			}
		}
	}
	card := strings.Fields(lines[0])
	if card[3] != "0.312500" || card[4] != "0.187500" {
		t.Errorf("Unexpected card size %s x %s", card[3], card[4])
	}
}

func TestRegionsMeasureThroughPipeline(t *testing.T) {
	s := NewGenerator(9, Options{}).Next()
	red := detection.Reduce(s.Regions(), detection.Labels{Reference: "card", Target: "thread_external"}, detection.SelectFirst)
	m, err := measure.Estimate(red.ReferenceSpan(), red.TargetSpan(), calibration.CardWidthMM, types.External)
	if err != nil {
		t.Fatalf("Estimate failed: %v", err)
	}
	ext, _ := s.ThreadDiametersMM()
	if d := m.DiameterMM - ext; d > 1e-9 || d < -1e-9 {
		t.Errorf("Pipeline measured %v, dataset says %v", m.DiameterMM, ext)
	}
}

func TestAugmentation(t *testing.T) {
	plain := NewGenerator(5, Options{}).Next()
	blurred := NewGenerator(5, Options{Blur: 2, Brightness: 0.2}).Next()
	if plain.LabelFile() != blurred.LabelFile() {
		t.Error("Augmentation must not move labels")
	}
	if string(plain.Image.Pix) == string(blurred.Image.Pix) {
		t.Error("Expected augmented pixels to differ")
	}
}

func TestWriteDataset(t *testing.T) {
	dir := t.TempDir()
	sum, err := WriteDataset(context.Background(), dir, 5, NewGenerator(11, Options{Size: 320}))
	if err != nil {
		t.Fatalf("WriteDataset failed: %v", err)
	}
	if sum.Count != 5 || sum.ExternalMeanMM <= 0 || sum.InternalMeanMM <= 0 {
		t.Errorf("Unexpected summary %+v", sum)
	}

	for i := 0; i < 5; i++ {
		name := "img_" + strconv.Itoa(i)
		if _, err := os.Stat(filepath.Join(dir, "images", name+".jpg")); err != nil {
			t.Errorf("Missing image %s: %v", name, err)
		}
		if _, err := os.Stat(filepath.Join(dir, "labels", name+".txt")); err != nil {
			t.Errorf("Missing labels %s: %v", name, err)
		}
	}

	data, err := os.ReadFile(filepath.Join(dir, "data.yaml"))
	if err != nil {
		t.Fatal(err)
	}
	var m Manifest
	if err := yaml.Unmarshal(data, &m); err != nil {
		t.Fatalf("Invalid manifest: %v", err)
	}
	if m.Names[ClassThreadInternal] != "thread_internal" || m.Train != "images" {
		t.Errorf("Unexpected manifest %+v", m)
	}
}

func TestWriteDatasetCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := WriteDataset(ctx, t.TempDir(), 3, NewGenerator(1, Options{})); err == nil {
		t.Error("Expected context error")
	}
}

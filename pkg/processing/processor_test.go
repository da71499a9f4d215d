package processing

import (
	"bytes"
	"encoding/base64"
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"testing"

	"github.com/menta2k/thread-gauge/pkg/types"
)

// createTestImage creates a simple test image
func createTestImage(width, height int) image.Image {
	img := image.NewRGBA(image.Rect(0, 0, width, height))
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			img.Set(x, y, color.RGBA{200, 200, 200, 255})
		}
	}
	return img
}

func TestResizeToBound(t *testing.T) {
	p := NewProcessor()

	tests := []struct {
		name        string
		w, h        int
		wantW       int
		wantH       int
		wantFactor  float64
	}{
		{"landscape", 1600, 1200, 800, 600, 0.5},
		{"portrait", 600, 2400, 200, 800, 1.0 / 3.0},
		{"small", 640, 480, 640, 480, 1},
		{"exact", 800, 300, 800, 300, 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out, factor := p.ResizeToBound(createTestImage(tt.w, tt.h), 800)
			b := out.Bounds()
			if b.Dx() != tt.wantW || b.Dy() != tt.wantH {
				t.Errorf("Expected %dx%d, got %dx%d", tt.wantW, tt.wantH, b.Dx(), b.Dy())
			}
			if d := factor - tt.wantFactor; d > 1e-9 || d < -1e-9 {
				t.Errorf("Expected factor %v, got %v", tt.wantFactor, factor)
			}
		})
	}
}

func TestDecodeImage(t *testing.T) {
	p := NewProcessor()

	var buf bytes.Buffer
	if err := png.Encode(&buf, createTestImage(20, 10)); err != nil {
		t.Fatal(err)
	}
	img, err := p.DecodeImage(buf.Bytes())
	if err != nil {
		t.Fatalf("DecodeImage failed: %v", err)
	}
	if img.Bounds().Dx() != 20 || img.Bounds().Dy() != 10 {
		t.Errorf("Unexpected size %v", img.Bounds())
	}

	if _, err := p.DecodeImage([]byte("not an image")); err == nil {
		t.Error("Expected error for garbage input")
	}
}

func TestPrepareImageForModel(t *testing.T) {
	p := NewProcessor()
	b64, err := p.PrepareImageForModel(createTestImage(2000, 1000), "png", 500, 85)
	if err != nil {
		t.Fatalf("PrepareImageForModel failed: %v", err)
	}
	raw, err := base64.StdEncoding.DecodeString(b64)
	if err != nil {
		t.Fatalf("Invalid base64: %v", err)
	}
	img, err := png.Decode(bytes.NewReader(raw))
	if err != nil {
		t.Fatalf("Invalid png: %v", err)
	}
	if img.Bounds().Dx() != 500 || img.Bounds().Dy() != 250 {
		t.Errorf("Expected 500x250, got %v", img.Bounds())
	}
}

func TestCreateDebugOverlay(t *testing.T) {
	p := NewProcessor()
	src := createTestImage(200, 100)
	blue := MustParseColor(ReferenceColorHex)
	green := MustParseColor(TargetColorHex)

	out := p.CreateDebugOverlay(src, []Marker{
		{Box: types.Box{X1: 10, Y1: 30, X2: 110, Y2: 90}, Color: blue, Tag: "card"},
		{Box: types.Box{X1: 150, Y1: 0, X2: 180, Y2: 30}, Color: green, Tag: "thread"},
	})

	if got := out.NRGBAAt(10, 60); got != blue {
		t.Errorf("Expected reference edge to be blue, got %v", got)
	}
	if got := out.NRGBAAt(179, 20); got != green {
		t.Errorf("Expected target edge to be green, got %v", got)
	}
	if got := out.NRGBAAt(60, 60); got.R != 200 {
		t.Errorf("Box interior must be untouched, got %v", got)
	}

	// source must not be modified
	if r, _, _, _ := src.At(10, 60).RGBA(); r>>8 != 200 {
		t.Error("CreateDebugOverlay modified its input")
	}
}

func TestCreateDebugOverlayOffsetOrigin(t *testing.T) {
	p := NewProcessor()
	src := createTestImage(300, 200).(*image.RGBA).SubImage(image.Rect(100, 50, 300, 200))
	blue := MustParseColor(ReferenceColorHex)

	out := p.CreateDebugOverlay(src, []Marker{
		{Box: types.Box{X1: 10, Y1: 30, X2: 110, Y2: 90}, Color: blue},
	})

	if out.Bounds().Min != (image.Point{}) || out.Bounds().Dx() != 200 {
		t.Fatalf("Expected a 200px wide overlay at the origin, got %v", out.Bounds())
	}
	if got := out.NRGBAAt(10, 60); got != blue {
		t.Errorf("Expected the box edge at the detector coordinates, got %v", got)
	}
}

func TestCreateDebugOverlayClipsBoxes(t *testing.T) {
	p := NewProcessor()
	out := p.CreateDebugOverlay(createTestImage(50, 50), []Marker{
		{Box: types.Box{X1: -20, Y1: -20, X2: 500, Y2: 500}, Color: MustParseColor("#ff0000"), Tag: "big"},
	})
	if out.Bounds().Dx() != 50 {
		t.Errorf("Overlay must keep image size, got %v", out.Bounds())
	}
}

func TestParseColor(t *testing.T) {
	c, err := ParseColor("#0050ff")
	if err != nil {
		t.Fatalf("ParseColor failed: %v", err)
	}
	if c != (color.NRGBA{0, 0x50, 0xff, 255}) {
		t.Errorf("Unexpected colour %v", c)
	}
	if _, err := ParseColor("blue"); err == nil {
		t.Error("Expected error for non-hex colour")
	}
}

func TestSaveImage(t *testing.T) {
	p := NewProcessor()
	dir := t.TempDir()
	img := createTestImage(30, 20)

	for _, format := range []string{"png", "jpg"} {
		path := filepath.Join(dir, "out."+format)
		if err := p.SaveImage(img, path, format, 90, false); err != nil {
			t.Fatalf("SaveImage(%s) failed: %v", format, err)
		}
		if info, err := os.Stat(path); err != nil || info.Size() == 0 {
			t.Errorf("Expected non-empty %s file", format)
		}
		loaded, err := p.LoadImage(path)
		if err != nil {
			t.Fatalf("LoadImage(%s) failed: %v", format, err)
		}
		if loaded.Bounds().Dx() != 30 {
			t.Errorf("Unexpected loaded size %v", loaded.Bounds())
		}
	}
}

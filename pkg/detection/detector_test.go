package detection

import (
	"context"
	"errors"
	"image"
	"image/color"
	"strings"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/menta2k/thread-gauge/pkg/client"
	"github.com/menta2k/thread-gauge/pkg/types"
)

type fakeVisionClient struct {
	response *types.VisionResponse
	err      error
	prompt   string
	model    string
	imgB64   string
}

func (f *fakeVisionClient) SimpleQuery(ctx context.Context, model, prompt, imgB64 string) (string, error) {
	f.model, f.prompt, f.imgB64 = model, prompt, imgB64
	if f.err != nil {
		return "", f.err
	}
	return "a card and a fitting", nil
}

func (f *fakeVisionClient) AnalyzeImage(ctx context.Context, model, prompt, imgB64 string) (*types.VisionResponse, error) {
	f.model, f.prompt, f.imgB64 = model, prompt, imgB64
	return f.response, f.err
}

func createTestImage(width, height int) image.Image {
	img := image.NewRGBA(image.Rect(0, 0, width, height))
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			img.Set(x, y, color.RGBA{uint8(x % 256), uint8(y % 256), 128, 255})
		}
	}
	return img
}

func TestVisionDetectorConvertsBoxes(t *testing.T) {
	fake := &fakeVisionClient{response: &types.VisionResponse{
		Detections: []types.VisionDetection{
			{Label: "Card", Confidence: 0.9, Box: types.NormBox{X: 0.1, Y: 0.2, W: 0.5, H: 0.25}},
			{Label: "thread", Confidence: 1.4, Box: types.NormBox{X: 0.6, Y: 0.5, W: 0.1, H: 0.1}},
			{Label: "none", Confidence: 0, Box: types.NormBox{X: 0.25, Y: 0.25, W: 0.5, H: 0.5}},
			{Label: "thread", Confidence: 0.5, Box: types.NormBox{X: 0.3, Y: 0.3, W: 0, H: 0.1}},
		},
	}}

	d := NewVisionDetector(fake, VisionOptions{Model: "test-model"})
	regions, err := d.Detect(context.Background(), createTestImage(400, 200))
	if err != nil {
		t.Fatalf("Detect failed: %v", err)
	}

	if len(regions) != 2 {
		t.Fatalf("Expected 2 regions, got %d", len(regions))
	}

	card := regions[0]
	if card.Label != "card" {
		t.Errorf("Expected lower-cased label, got %q", card.Label)
	}
	want := types.Box{X1: 40, Y1: 40, X2: 240, Y2: 90}
	const eps = 1e-9
	if abs(card.Box.X1-want.X1) > eps || abs(card.Box.Y1-want.Y1) > eps || abs(card.Box.X2-want.X2) > eps || abs(card.Box.Y2-want.Y2) > eps {
		t.Errorf("Expected box %+v, got %+v", want, card.Box)
	}
	if regions[1].Confidence != 1 {
		t.Errorf("Expected confidence clamped to 1, got %v", regions[1].Confidence)
	}

	if fake.model != "test-model" {
		t.Errorf("Expected model to be passed through, got %q", fake.model)
	}
	if !strings.Contains(fake.prompt, `"card"`) || !strings.Contains(fake.prompt, `"thread"`) {
		t.Error("Prompt should name both labels")
	}
	if fake.imgB64 == "" {
		t.Error("Expected encoded image")
	}
}

func TestVisionDetectorPropagatesError(t *testing.T) {
	boom := errors.New("backend down")
	d := NewVisionDetector(&fakeVisionClient{err: boom}, VisionOptions{})
	if _, err := d.Detect(context.Background(), createTestImage(50, 50)); !errors.Is(err, boom) {
		t.Errorf("Expected backend error, got %v", err)
	}
}

func TestTestVision(t *testing.T) {
	fake := &fakeVisionClient{}
	d := NewVisionDetector(fake, VisionOptions{Model: "llava", SendFormat: "png", SendSize: 128})

	answer, err := d.TestVision(context.Background(), createTestImage(320, 240))
	if err != nil {
		t.Fatalf("TestVision failed: %v", err)
	}
	if answer != "a card and a fitting" {
		t.Errorf("Unexpected answer %q", answer)
	}
	if fake.prompt != SimpleTestPrompt || fake.model != "llava" || fake.imgB64 == "" {
		t.Errorf("Unexpected query %q/%q (image %d bytes)", fake.model, fake.prompt, len(fake.imgB64))
	}

	fake.err = errors.New("model offline")
	if _, err := d.TestVision(context.Background(), createTestImage(320, 240)); !errors.Is(err, fake.err) {
		t.Errorf("Expected the client error, got %v", err)
	}
}

func TestNormalizeBox(t *testing.T) {
	tests := []struct {
		name string
		in   types.NormBox
		want types.NormBox
	}{
		{"normalized", types.NormBox{X: 0.1, Y: 0.1, W: 0.5, H: 0.5}, types.NormBox{X: 0.1, Y: 0.1, W: 0.5, H: 0.5}},
		{"overflow", types.NormBox{X: 0.8, Y: 0.5, W: 0.5, H: 0.2}, types.NormBox{X: 0.8, Y: 0.5, W: 0.2, H: 0.2}},
		{"pixels", types.NormBox{X: 100, Y: 50, W: 200, H: 100}, types.NormBox{X: 0.25, Y: 0.25, W: 0.5, H: 0.5}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := normalizeBox(tt.in, 400, 200)
			const eps = 1e-9
			if abs(got.X-tt.want.X) > eps || abs(got.Y-tt.want.Y) > eps || abs(got.W-tt.want.W) > eps || abs(got.H-tt.want.H) > eps {
				t.Errorf("Expected %+v, got %+v", tt.want, got)
			}
		})
	}
}

func abs(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}

func TestLazyInitializesOnce(t *testing.T) {
	var calls int32
	lazy := NewLazy(func() (client.Detector, error) {
		atomic.AddInt32(&calls, 1)
		return client.DetectorFunc(func(ctx context.Context, img image.Image) ([]types.DetectedRegion, error) {
			return []types.DetectedRegion{{Label: "card"}}, nil
		}), nil
	})

	if atomic.LoadInt32(&calls) != 0 {
		t.Fatal("Factory must not run before first use")
	}

	img := createTestImage(10, 10)
	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := lazy.Detect(context.Background(), img); err != nil {
				t.Errorf("Detect failed: %v", err)
			}
		}()
	}
	wg.Wait()

	if calls != 1 {
		t.Errorf("Expected factory to run once, ran %d times", calls)
	}
}

func TestLazyKeepsError(t *testing.T) {
	var calls int
	boom := errors.New("model file missing")
	lazy := NewLazy(func() (client.Detector, error) {
		calls++
		return nil, boom
	})

	for i := 0; i < 3; i++ {
		if _, err := lazy.Detect(context.Background(), createTestImage(10, 10)); !errors.Is(err, boom) {
			t.Errorf("Expected factory error, got %v", err)
		}
	}
	if calls != 1 {
		t.Errorf("Expected no retries, factory ran %d times", calls)
	}
}

func TestRelabel(t *testing.T) {
	inner := client.DetectorFunc(func(ctx context.Context, img image.Image) ([]types.DetectedRegion, error) {
		return []types.DetectedRegion{{Label: "card"}, {Label: "Thread_External"}, {Label: "thread_internal"}}, nil
	})
	d := Relabel(inner, map[string]string{"thread_external": "thread", "thread_internal": "thread"})

	regions, err := d.Detect(context.Background(), createTestImage(10, 10))
	if err != nil {
		t.Fatal(err)
	}
	got := []string{regions[0].Label, regions[1].Label, regions[2].Label}
	if strings.Join(got, ",") != "card,thread,thread" {
		t.Errorf("Unexpected labels %v", got)
	}

	if Relabel(inner, nil) == nil {
		t.Error("Relabel with no mapping should return the detector")
	}
}

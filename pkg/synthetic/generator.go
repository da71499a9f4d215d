// Package synthetic draws training images for the card/thread detector together with
// YOLO label files.
//
// Every sample is a white square with a blue card rectangle, a green circle for an
// external thread and a red circle for an internal one. The generator is deterministic
// for a given seed.
package synthetic

import (
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"math/rand"
	"strings"

	"github.com/anthonynsimon/bild/adjust"
	"github.com/anthonynsimon/bild/blur"

	"github.com/menta2k/thread-gauge/pkg/types"
)

// Class ids in label files
const (
	ClassCard = iota
	ClassThreadExternal
	ClassThreadInternal
)

// ClassNames indexed by class id
var ClassNames = []string{"card", "thread_external", "thread_internal"}

// Card size in pixels
const (
	CardWidthPx  = 200
	CardHeightPx = 120
)

var (
	cardColor     = color.NRGBA{0, 0, 255, 255}
	externalColor = color.NRGBA{0, 255, 0, 255}
	internalColor = color.NRGBA{255, 0, 0, 255}
)

// Label is one object of a sample
type Label struct {
	Class int
	Box   types.Box
}

// Sample is a generated image with its labels
type Sample struct {
	Image  *image.NRGBA
	Labels []Label
}

// Options configure a Generator
type Options struct {
	Size int
	// Blur applies a gaussian blur of this radius; 0 disables it
	Blur float64
	// Brightness jitters brightness by up to ±this fraction; 0 disables it
	Brightness float64
}

// Generator produces samples from a seeded source
type Generator struct {
	opts Options
	rnd  *rand.Rand
}

// NewGenerator creates a generator. Size defaults to 640.
func NewGenerator(seed int64, opts Options) *Generator {
	if opts.Size <= 0 {
		opts.Size = 640
	}
	return &Generator{opts: opts, rnd: rand.New(rand.NewSource(seed))}
}

// between returns a random int in [lo, hi]
func (g *Generator) between(lo, hi int) int {
	return lo + g.rnd.Intn(hi-lo+1)
}

// Next draws one sample
func (g *Generator) Next() Sample {
	size := g.opts.Size
	s := func(v int) int { return v * size / 640 }

	img := image.NewNRGBA(image.Rect(0, 0, size, size))
	draw.Draw(img, img.Bounds(), &image.Uniform{color.White}, image.Point{}, draw.Src)

	cardW, cardH := s(CardWidthPx), s(CardHeightPx)
	cx, cy := g.between(s(50), s(200)), g.between(s(50), s(400))
	card := image.Rect(cx, cy, cx+cardW, cy+cardH)
	draw.Draw(img, card, &image.Uniform{cardColor}, image.Point{}, draw.Src)

	ex, ey, er := g.between(s(150), s(500)), g.between(s(150), s(500)), g.between(s(40), s(70))
	fillCircle(img, ex, ey, er, externalColor)

	ix, iy, ir := g.between(s(100), s(500)), g.between(s(100), s(500)), g.between(s(30), s(60))
	fillCircle(img, ix, iy, ir, internalColor)

	sample := Sample{
		Image: img,
		Labels: []Label{
			{Class: ClassCard, Box: boxOf(card)},
			{Class: ClassThreadExternal, Box: circleBox(ex, ey, er)},
			{Class: ClassThreadInternal, Box: circleBox(ix, iy, ir)},
		},
	}

	if g.opts.Brightness > 0 {
		change := (g.rnd.Float64()*2 - 1) * g.opts.Brightness
		sample.Image = toNRGBA(adjust.Brightness(sample.Image, change))
	}
	if g.opts.Blur > 0 {
		sample.Image = toNRGBA(blur.Gaussian(sample.Image, g.opts.Blur))
	}
	return sample
}

// LabelFile renders the labels as YOLO lines "class xc yc w h", normalized to the image size
func (s Sample) LabelFile() string {
	b := s.Image.Bounds()
	w, h := float64(b.Dx()), float64(b.Dy())
	lines := make([]string, 0, len(s.Labels))
	for _, l := range s.Labels {
		xc := (l.Box.X1 + l.Box.X2) / 2
		yc := (l.Box.Y1 + l.Box.Y2) / 2
		lines = append(lines, fmt.Sprintf("%d %.6f %.6f %.6f %.6f", l.Class, xc/w, yc/h, l.Box.Width()/w, l.Box.Height()/h))
	}
	return strings.Join(lines, "\n")
}

// Regions returns the labels as detector output, in label order
func (s Sample) Regions() []types.DetectedRegion {
	regions := make([]types.DetectedRegion, 0, len(s.Labels))
	for _, l := range s.Labels {
		regions = append(regions, types.DetectedRegion{Label: ClassNames[l.Class], Box: l.Box, Confidence: 1})
	}
	return regions
}

// Find returns the first label of a class
func (s Sample) Find(class int) (Label, bool) {
	for _, l := range s.Labels {
		if l.Class == class {
			return l, true
		}
	}
	return Label{}, false
}

func fillCircle(img *image.NRGBA, cx, cy, r int, c color.NRGBA) {
	b := img.Bounds()
	for y := max(cy-r, b.Min.Y); y <= min(cy+r, b.Max.Y-1); y++ {
		for x := max(cx-r, b.Min.X); x <= min(cx+r, b.Max.X-1); x++ {
			dx, dy := x-cx, y-cy
			if dx*dx+dy*dy <= r*r {
				img.SetNRGBA(x, y, c)
			}
		}
	}
}

func boxOf(r image.Rectangle) types.Box {
	return types.Box{X1: float64(r.Min.X), Y1: float64(r.Min.Y), X2: float64(r.Max.X), Y2: float64(r.Max.Y)}
}

func circleBox(cx, cy, r int) types.Box {
	return types.Box{X1: float64(cx - r), Y1: float64(cy - r), X2: float64(cx + r), Y2: float64(cy + r)}
}

func toNRGBA(img image.Image) *image.NRGBA {
	out := image.NewNRGBA(img.Bounds())
	draw.Draw(out, out.Bounds(), img, img.Bounds().Min, draw.Src)
	return out
}

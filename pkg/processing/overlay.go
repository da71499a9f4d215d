package processing

import (
	"fmt"
	"image"
	"image/color"
	"math"

	"github.com/disintegration/imaging"
	"github.com/lucasb-eyer/go-colorful"
	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"

	"github.com/menta2k/thread-gauge/pkg/types"
)

// Default marker colours
const (
	ReferenceColorHex = "#0050ff"
	TargetColorHex    = "#00c800"
)

// Marker is one box drawn on the debug overlay
type Marker struct {
	Box   types.Box
	Color color.NRGBA
	Tag   string
}

// ParseColor parses a #rrggbb colour
func ParseColor(hex string) (color.NRGBA, error) {
	c, err := colorful.Hex(hex)
	if err != nil {
		return color.NRGBA{}, fmt.Errorf("invalid colour %q: %w", hex, err)
	}
	r, g, b := c.Clamped().RGB255()
	return color.NRGBA{R: r, G: g, B: b, A: 255}, nil
}

// MustParseColor is ParseColor for constants
func MustParseColor(hex string) color.NRGBA {
	c, err := ParseColor(hex)
	if err != nil {
		panic(err)
	}
	return c
}

// CreateDebugOverlay returns a copy of img with every marker box and its tag drawn on it.
// Boxes are measured from the top-left pixel of img, as detectors report them.
func (p *Processor) CreateDebugOverlay(img image.Image, markers []Marker) *image.NRGBA {
	nrgba := imaging.Clone(img)
	w := nrgba.Bounds().Dx()
	h := nrgba.Bounds().Dy()

	stroke := int(math.Max(2, 0.004*float64(minInt(w, h)))) // ~0.4% of min side

	for _, m := range markers {
		rect := m.Box.Rect()
		drawBox(nrgba, rect, m.Color, stroke)
		if m.Tag != "" {
			drawTag(nrgba, rect, m.Tag, m.Color)
		}
	}

	return nrgba
}

func minInt(a, b int) int {
	if a < b {
		return a
	}
	return b
}

func drawBox(img *image.NRGBA, r image.Rectangle, c color.NRGBA, stroke int) {
	r = r.Canon()
	if r.Dx() == 0 {
		r.Max.X = r.Min.X + 1
	}
	if r.Dy() == 0 {
		r.Max.Y = r.Min.Y + 1
	}
	for s := 0; s < stroke; s++ {
		drawHLine(img, r.Min.Y+s, r.Min.X, r.Max.X, c)
		drawHLine(img, r.Max.Y-1-s, r.Min.X, r.Max.X, c)
		drawVLine(img, r.Min.X+s, r.Min.Y, r.Max.Y, c)
		drawVLine(img, r.Max.X-1-s, r.Min.Y, r.Max.Y, c)
	}
}

// drawTag writes text above the box, or inside it when the box touches the top edge
func drawTag(img *image.NRGBA, r image.Rectangle, text string, c color.NRGBA) {
	face := basicfont.Face7x13
	r = r.Canon()

	x := r.Min.X
	y := r.Min.Y - 4
	if y-face.Ascent < 0 {
		y = r.Min.Y + face.Ascent + 4
	}

	// dark backing so the tag stays readable on bright photos
	width := font.MeasureString(face, text).Ceil()
	bg := color.NRGBA{0, 0, 0, 255}
	for yy := y - face.Ascent - 1; yy <= y+face.Descent; yy++ {
		drawHLine(img, yy, x-1, x+width+1, bg)
	}

	d := font.Drawer{
		Dst:  img,
		Src:  image.NewUniform(c),
		Face: face,
		Dot:  fixed.P(x, y),
	}
	d.DrawString(text)
}

func drawHLine(img *image.NRGBA, y, x0, x1 int, c color.NRGBA) {
	if y < 0 || y >= img.Bounds().Dy() {
		return
	}
	if x0 > x1 {
		x0, x1 = x1, x0
	}
	if x1 <= 0 || x0 >= img.Bounds().Dx() {
		return
	}
	if x0 < 0 {
		x0 = 0
	}
	if x1 > img.Bounds().Dx() {
		x1 = img.Bounds().Dx()
	}
	i := y*img.Stride + x0*4
	for x := x0; x < x1; x++ {
		img.Pix[i+0] = c.R
		img.Pix[i+1] = c.G
		img.Pix[i+2] = c.B
		img.Pix[i+3] = c.A
		i += 4
	}
}

func drawVLine(img *image.NRGBA, x, y0, y1 int, c color.NRGBA) {
	if x < 0 || x >= img.Bounds().Dx() {
		return
	}
	if y0 > y1 {
		y0, y1 = y1, y0
	}
	if y1 <= 0 || y0 >= img.Bounds().Dy() {
		return
	}
	if y0 < 0 {
		y0 = 0
	}
	if y1 > img.Bounds().Dy() {
		y1 = img.Bounds().Dy()
	}
	i := y0*img.Stride + x*4
	for y := y0; y < y1; y++ {
		img.Pix[i+0] = c.R
		img.Pix[i+1] = c.G
		img.Pix[i+2] = c.B
		img.Pix[i+3] = c.A
		i += img.Stride
	}
}

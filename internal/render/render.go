package render

import (
	"image"
	"image/color"
	"strings"

	"github.com/loqalabs/fortune-bird/internal/printer"
	"golang.org/x/image/draw"
	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/font/gofont/goregular"
	"golang.org/x/image/font/opentype"
	"golang.org/x/image/math/fixed"
)

const margin = 16

// Renderer lays text out on a printer-wide canvas.
type Renderer struct {
	face  font.Face
	width int
}

// New parses the bundled Go font at size points; if that fails the fixed 7x13 face is used.
func New(size float64) *Renderer {
	if size <= 0 {
		size = 22
	}
	r := &Renderer{face: basicfont.Face7x13, width: printer.Width}
	if f, err := opentype.Parse(goregular.TTF); err == nil {
		if face, err := opentype.NewFace(f, &opentype.FaceOptions{Size: size, DPI: 72, Hinting: font.HintingFull}); err == nil {
			r.face = face
		}
	}
	return r
}

// Text draws text black on white, word-wrapped to the canvas width.
func (r *Renderer) Text(text string) *image.Gray {
	lines := r.wrap(text, r.width-2*margin)
	metrics := r.face.Metrics()
	lineHeight := metrics.Height.Ceil()
	height := 2*margin + len(lines)*lineHeight
	img := image.NewGray(image.Rect(0, 0, r.width, height))
	draw.Draw(img, img.Bounds(), image.White, image.Point{}, draw.Src)

	d := &font.Drawer{Dst: img, Src: image.Black, Face: r.face}
	for i, line := range lines {
		d.Dot = fixed.P(margin, margin+i*lineHeight+metrics.Ascent.Ceil())
		d.DrawString(line)
	}
	return img
}

// wrap breaks each paragraph into lines no wider than maxWidth. A word wider than
// maxWidth gets a line of its own.
func (r *Renderer) wrap(text string, maxWidth int) []string {
	limit := fixed.I(maxWidth)
	var lines []string
	for _, para := range strings.Split(strings.ReplaceAll(text, "\r\n", "\n"), "\n") {
		words := strings.Fields(para)
		if len(words) == 0 {
			lines = append(lines, "")
			continue
		}
		current := words[0]
		for _, w := range words[1:] {
			candidate := current + " " + w
			if font.MeasureString(r.face, candidate) <= limit {
				current = candidate
				continue
			}
			lines = append(lines, current)
			current = w
		}
		lines = append(lines, current)
	}
	for len(lines) > 0 && lines[len(lines)-1] == "" {
		lines = lines[:len(lines)-1]
	}
	return lines
}

// Bitmap turns any image into a printer bitmap: landscape images are rotated
// a quarter turn counter-clockwise, then scaled to the printer width and
// dithered to black and white.
func Bitmap(src image.Image) *printer.Bitmap {
	gray := toGray(src)
	b := gray.Bounds()
	if b.Dx() > b.Dy() {
		gray = rotate90(gray)
		b = gray.Bounds()
	}
	if b.Dx() == 0 || b.Dy() == 0 {
		return printer.NewBitmap(printer.Width, 0)
	}
	height := b.Dy() * printer.Width / b.Dx()
	if height == 0 {
		height = 1
	}
	scaled := image.NewGray(image.Rect(0, 0, printer.Width, height))
	draw.CatmullRom.Scale(scaled, scaled.Bounds(), gray, b, draw.Src, nil)
	return dither(scaled)
}

func toGray(src image.Image) *image.Gray {
	if g, ok := src.(*image.Gray); ok {
		return g
	}
	b := src.Bounds()
	g := image.NewGray(image.Rect(0, 0, b.Dx(), b.Dy()))
	draw.Draw(g, g.Bounds(), src, b.Min, draw.Src)
	return g
}

func rotate90(src *image.Gray) *image.Gray {
	b := src.Bounds()
	dst := image.NewGray(image.Rect(0, 0, b.Dy(), b.Dx()))
	for y := 0; y < b.Dy(); y++ {
		for x := 0; x < b.Dx(); x++ {
			dst.SetGray(y, b.Dx()-1-x, src.GrayAt(b.Min.X+x, b.Min.Y+y))
		}
	}
	return dst
}

// dither applies Floyd-Steinberg error diffusion. Dark pixels become ink (0).
func dither(src *image.Gray) *printer.Bitmap {
	b := src.Bounds()
	w, h := b.Dx(), b.Dy()
	bm := printer.NewBitmap(w, h)
	cur := make([]int, w+2)
	next := make([]int, w+2)
	for x := 0; x < w; x++ {
		cur[x+1] = int(src.GrayAt(b.Min.X+x, b.Min.Y).Y)
	}
	for y := 0; y < h; y++ {
		for i := range next {
			next[i] = 0
		}
		if y+1 < h {
			for x := 0; x < w; x++ {
				next[x+1] = int(src.GrayAt(b.Min.X+x, b.Min.Y+y+1).Y)
			}
		}
		for x := 0; x < w; x++ {
			old := cur[x+1]
			val := 255
			if old < 128 {
				val = 0
				bm.Set(x, y, 0)
			}
			e := old - val
			cur[x+2] += e * 7 / 16
			next[x] += e * 3 / 16
			next[x+1] += e * 5 / 16
			next[x+2] += e / 16
		}
		cur, next = next, cur
	}
	return bm
}

// Image converts a bitmap back to a grayscale image, for archiving what was printed.
func Image(bm *printer.Bitmap) *image.Gray {
	img := image.NewGray(image.Rect(0, 0, bm.Width, bm.Height))
	for y := 0; y < bm.Height; y++ {
		for x := 0; x < bm.Width; x++ {
			if bm.At(x, y) == 0 {
				img.SetGray(x, y, color.Gray{Y: 0})
			} else {
				img.SetGray(x, y, color.Gray{Y: 255})
			}
		}
	}
	return img
}

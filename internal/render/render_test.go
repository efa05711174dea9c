package render

import (
	"image"
	"image/color"
	"strings"
	"testing"

	"github.com/loqalabs/fortune-bird/internal/printer"
	"golang.org/x/image/font"
	"golang.org/x/image/math/fixed"
)

func inkCount(bm *printer.Bitmap) int {
	n := 0
	for _, v := range bm.Pix {
		if v == 0 {
			n++
		}
	}
	return n
}

func uniform(w, h int, y uint8) *image.Gray {
	img := image.NewGray(image.Rect(0, 0, w, h))
	for i := range img.Pix {
		img.Pix[i] = y
	}
	return img
}

func TestTextWrapsToPrinterWidth(t *testing.T) {
	r := New(22)
	poem := "In a shop of glass a one eyed cat peers through frames of every shape and size\nand dreams of seeing twice."
	lines := r.wrap(poem, printer.Width-2*margin)
	if len(lines) < 3 {
		t.Fatalf("expected long text to wrap, got %q", lines)
	}
	limit := fixed.I(printer.Width - 2*margin)
	for _, line := range lines {
		if strings.Contains(line, " ") && font.MeasureString(r.face, line) > limit {
			t.Fatalf("line %q exceeds width", line)
		}
	}

	img := r.Text(poem)
	if img.Bounds().Dx() != printer.Width {
		t.Fatalf("expected width %d, got %d", printer.Width, img.Bounds().Dx())
	}
	short := r.Text("hi")
	if img.Bounds().Dy() <= short.Bounds().Dy() {
		t.Fatal("expected wrapped text to be taller")
	}
	if inkCount(Bitmap(img)) == 0 {
		t.Fatal("expected rendered text to carry ink")
	}
}

func TestWrapKeepsBlankLinesBetweenStanzas(t *testing.T) {
	r := New(22)
	lines := r.wrap("one\n\ntwo\n\n", 1000)
	want := []string{"one", "", "two"}
	if len(lines) != len(want) {
		t.Fatalf("expected %q, got %q", want, lines)
	}
	for i := range want {
		if lines[i] != want[i] {
			t.Fatalf("expected %q, got %q", want, lines)
		}
	}
}

func TestBitmapScalesToPrinterWidth(t *testing.T) {
	bm := Bitmap(uniform(192, 300, 255))
	if bm.Width != printer.Width || bm.Height != 600 {
		t.Fatalf("expected 384x600, got %dx%d", bm.Width, bm.Height)
	}
	if inkCount(bm) != 0 {
		t.Fatal("white image should carry no ink")
	}
}

func TestBitmapRotatesLandscape(t *testing.T) {
	bm := Bitmap(uniform(200, 100, 0))
	if bm.Width != printer.Width || bm.Height != 768 {
		t.Fatalf("expected 384x768 after rotation, got %dx%d", bm.Width, bm.Height)
	}
	if inkCount(bm) != len(bm.Pix) {
		t.Fatal("black image should be all ink")
	}
}

func TestRotate90CounterClockwise(t *testing.T) {
	src := image.NewGray(image.Rect(0, 0, 2, 1))
	src.SetGray(1, 0, color.Gray{Y: 200}) // right pixel ends on top
	dst := rotate90(src)
	if dst.Bounds().Dx() != 1 || dst.Bounds().Dy() != 2 {
		t.Fatalf("unexpected bounds %v", dst.Bounds())
	}
	if dst.GrayAt(0, 0).Y != 200 || dst.GrayAt(0, 1).Y != 0 {
		t.Fatalf("unexpected rotation %v", dst.Pix)
	}
}

func TestDitherMidGray(t *testing.T) {
	bm := dither(uniform(64, 64, 128))
	ink := inkCount(bm)
	total := len(bm.Pix)
	if ink < total*40/100 || ink > total*60/100 {
		t.Fatalf("expected about half ink, got %d of %d", ink, total)
	}
}

func TestImageRoundTrip(t *testing.T) {
	bm := printer.NewBitmap(8, 2)
	bm.Set(3, 1, 0)
	img := Image(bm)
	if img.GrayAt(3, 1).Y != 0 || img.GrayAt(0, 0).Y != 255 {
		t.Fatal("unexpected image pixels")
	}
	back := dither(img)
	if inkCount(back) != 1 || back.At(3, 1) != 0 {
		t.Fatal("round trip changed ink")
	}
}

package archive

import (
	"image"
	"image/png"
	"os"
	"path/filepath"
	"testing"
)

func TestSaveTextNumbersByCount(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "output")
	a := New(dir)

	first, err := a.SaveText("one")
	if err != nil {
		t.Fatalf("save: %v", err)
	}
	second, err := a.SaveText("two")
	if err != nil {
		t.Fatalf("save: %v", err)
	}
	if filepath.Base(first) != "poem_0.txt" || filepath.Base(second) != "poem_1.txt" {
		t.Fatalf("unexpected names %s %s", first, second)
	}
	data, err := os.ReadFile(second)
	if err != nil || string(data) != "two" {
		t.Fatalf("unexpected content %q %v", data, err)
	}
}

func TestTextAndImageCountIndependently(t *testing.T) {
	dir := t.TempDir()
	a := New(dir)
	if _, err := a.SaveText("x"); err != nil {
		t.Fatal(err)
	}
	if _, err := a.SaveText("y"); err != nil {
		t.Fatal(err)
	}
	path, err := a.SaveImage(image.NewGray(image.Rect(0, 0, 4, 4)))
	if err != nil {
		t.Fatalf("save image: %v", err)
	}
	if filepath.Base(path) != "poem_0.png" {
		t.Fatalf("unexpected image name %s", path)
	}
	f, err := os.Open(path)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()
	img, err := png.Decode(f)
	if err != nil || img.Bounds().Dx() != 4 {
		t.Fatalf("unexpected png %v %v", img, err)
	}
}

func TestNextIndexMissingDir(t *testing.T) {
	n, err := NextIndex(filepath.Join(t.TempDir(), "nope"), ".txt")
	if err != nil || n != 0 {
		t.Fatalf("expected 0, got %d %v", n, err)
	}
}

func TestNextPathDoesNotCreateFiles(t *testing.T) {
	a := New(t.TempDir())
	p1, err := a.NextPath(".wav")
	if err != nil {
		t.Fatal(err)
	}
	p2, err := a.NextPath(".wav")
	if err != nil {
		t.Fatal(err)
	}
	if p1 != p2 || filepath.Base(p1) != "poem_0.wav" {
		t.Fatalf("unexpected paths %s %s", p1, p2)
	}
}

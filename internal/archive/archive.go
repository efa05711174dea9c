package archive

import (
	"fmt"
	"image"
	"image/png"
	"os"
	"path/filepath"
	"strings"
	"sync"
)

// Archive stores the text and image of every fortune in one directory.
type Archive struct {
	dir string
	mu  sync.Mutex
}

func New(dir string) *Archive {
	return &Archive{dir: dir}
}

func (a *Archive) Dir() string { return a.dir }

// NextIndex counts the files in dir with extension ext; the count is the next free index.
func NextIndex(dir, ext string) (int, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return 0, nil
		}
		return 0, fmt.Errorf("list %s: %w", dir, err)
	}
	n := 0
	for _, e := range entries {
		if !e.IsDir() && strings.EqualFold(filepath.Ext(e.Name()), ext) {
			n++
		}
	}
	return n, nil
}

// SaveText writes poem_<n>.txt and returns its path.
func (a *Archive) SaveText(text string) (string, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	path, err := a.nextPath(".txt")
	if err != nil {
		return "", err
	}
	if err := os.WriteFile(path, []byte(text), 0o644); err != nil {
		return "", fmt.Errorf("write %s: %w", path, err)
	}
	return path, nil
}

// SaveImage writes poem_<n>.png and returns its path.
func (a *Archive) SaveImage(img image.Image) (string, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	path, err := a.nextPath(".png")
	if err != nil {
		return "", err
	}
	f, err := os.Create(path)
	if err != nil {
		return "", fmt.Errorf("create %s: %w", path, err)
	}
	if err := png.Encode(f, img); err != nil {
		f.Close()
		return "", fmt.Errorf("encode %s: %w", path, err)
	}
	if err := f.Close(); err != nil {
		return "", err
	}
	return path, nil
}

// NextPath returns the poem_<n> path the next file with ext would get, creating only the directory.
func (a *Archive) NextPath(ext string) (string, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.nextPath(ext)
}

func (a *Archive) nextPath(ext string) (string, error) {
	if err := os.MkdirAll(a.dir, 0o755); err != nil {
		return "", fmt.Errorf("create output dir: %w", err)
	}
	n, err := NextIndex(a.dir, ext)
	if err != nil {
		return "", err
	}
	return filepath.Join(a.dir, fmt.Sprintf("poem_%d%s", n, ext)), nil
}

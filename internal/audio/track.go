package audio

import (
	"errors"
	"fmt"
	"math/rand/v2"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/go-audio/wav"
)

// Source tags where a track came from.
type Source string

const (
	SourceAmbient     Source = "ambient"
	SourcePrerecorded Source = "prerecorded"
	SourceGenerated   Source = "generated"
	SourceCue         Source = "cue"
)

// Track identifies one playable file.
type Track struct {
	Path   string
	Source Source
}

func (t Track) Name() string { return filepath.Base(t.Path) }

var ErrEmptyPool = errors.New("no playable tracks")

// Pool picks random .wav files from a set of directories. Directories are
// rescanned on every pick so files appended at runtime join the pool.
type Pool struct {
	dirs []poolDir
	rand func(n int) int
}

type poolDir struct {
	path   string
	source Source
}

func NewPool() *Pool {
	return &Pool{rand: rand.IntN}
}

// Add registers a directory whose tracks carry the given source tag.
func (p *Pool) Add(dir string, source Source) *Pool {
	if dir != "" {
		p.dirs = append(p.dirs, poolDir{path: dir, source: source})
	}
	return p
}

// Tracks lists every playable track currently in the pool.
func (p *Pool) Tracks() ([]Track, error) {
	var tracks []Track
	for _, d := range p.dirs {
		entries, err := os.ReadDir(d.path)
		if err != nil {
			if os.IsNotExist(err) {
				continue
			}
			return nil, fmt.Errorf("read %s: %w", d.path, err)
		}
		for _, e := range entries {
			if e.IsDir() || !strings.EqualFold(filepath.Ext(e.Name()), ".wav") {
				continue
			}
			path := filepath.Join(d.path, e.Name())
			if !Playable(path) {
				continue
			}
			tracks = append(tracks, Track{Path: path, Source: d.source})
		}
	}
	sort.Slice(tracks, func(i, j int) bool { return tracks[i].Path < tracks[j].Path })
	return tracks, nil
}

// Pick returns one random track.
func (p *Pool) Pick() (Track, error) {
	tracks, err := p.Tracks()
	if err != nil {
		return Track{}, err
	}
	if len(tracks) == 0 {
		return Track{}, ErrEmptyPool
	}
	return tracks[p.rand(len(tracks))], nil
}

// Playable reports whether path holds a WAV file the decoder accepts.
func Playable(path string) bool {
	f, err := os.Open(path)
	if err != nil {
		return false
	}
	defer f.Close()
	return wav.NewDecoder(f).IsValidFile()
}

// Duration reads the WAV header of path.
func Duration(path string) (time.Duration, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, err
	}
	defer f.Close()
	d, err := wav.NewDecoder(f).Duration()
	if err != nil {
		return 0, fmt.Errorf("wav duration %s: %w", path, err)
	}
	return d, nil
}

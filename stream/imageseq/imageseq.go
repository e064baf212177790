// Package imageseq reads and writes video as a directory of numbered image files.
package imageseq

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"github.com/pkg/errors"

	"github.com/EminentCodfish/GoPro-Calibration-Distortion-Removal/rimage"
	"github.com/EminentCodfish/GoPro-Calibration-Distortion-Removal/stream"
)

// DefaultPattern names output files frame_000000.png, frame_000001.png, ...
const DefaultPattern = "frame_%06d.png"

// Source yields the images of a directory in lexical file name order.
type Source struct {
	mu    sync.Mutex
	paths []string
	meta  stream.Metadata
	next  int
}

// Open lists the image files in dir. The first image is decoded to learn the frame size.
func Open(dir string, fps float64) (*Source, error) {
	paths, err := List(dir)
	if err != nil {
		return nil, &stream.SourceLoadError{Path: dir, Err: err}
	}
	meta := stream.Metadata{FPS: fps, FrameCount: len(paths)}
	if len(paths) > 0 {
		first, err := rimage.ReadImageFromFile(paths[0])
		if err != nil {
			return nil, &stream.SourceLoadError{Path: dir, Err: err}
		}
		meta.Width, meta.Height = first.Bounds().Dx(), first.Bounds().Dy()
	}
	return &Source{paths: paths, meta: meta}, nil
}

// List returns the sorted paths of the image files directly inside dir.
func List(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	var paths []string
	for _, e := range entries {
		if e.IsDir() || !rimage.IsImageFile(e.Name()) {
			continue
		}
		paths = append(paths, filepath.Join(dir, e.Name()))
	}
	sort.Strings(paths)
	return paths, nil
}

// Paths returns the files served by the source.
func (s *Source) Paths() []string {
	return append([]string(nil), s.paths...)
}

// Next implements stream.Source.
func (s *Source) Next(ctx context.Context) (stream.Frame, error) {
	if err := ctx.Err(); err != nil {
		return stream.Frame{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.next >= len(s.paths) {
		return stream.Frame{}, io.EOF
	}
	idx := s.next
	s.next++
	img, err := rimage.ReadImageFromFile(s.paths[idx])
	if err != nil {
		return stream.Frame{}, &stream.FrameReadError{Index: idx, Err: err}
	}
	return stream.Frame{Index: idx, Image: img}, nil
}

// Metadata implements stream.Source.
func (s *Source) Metadata() stream.Metadata {
	return s.meta
}

// Close implements stream.Source.
func (s *Source) Close() error {
	return nil
}

// Sink writes every frame to its own file. The file name is pattern formatted with the frame index
// and its extension picks the encoding.
type Sink struct {
	dir     string
	pattern string
	written int
}

// NewSink creates dir if needed. An empty pattern means DefaultPattern.
func NewSink(dir, pattern string) (*Sink, error) {
	if pattern == "" {
		pattern = DefaultPattern
	}
	if !rimage.IsImageFile(pattern) {
		return nil, errors.Errorf("output pattern %q does not end in a known image extension", pattern)
	}
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return nil, err
	}
	return &Sink{dir: dir, pattern: pattern}, nil
}

// Write implements stream.Sink.
func (s *Sink) Write(ctx context.Context, frame stream.Frame) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	path := filepath.Join(s.dir, fmt.Sprintf(s.pattern, frame.Index))
	if err := rimage.WriteImageToFile(path, frame.Image); err != nil {
		return errors.Wrapf(err, "cannot write frame %d", frame.Index)
	}
	s.written++
	return nil
}

// Close implements stream.Sink.
func (s *Sink) Close() error {
	return nil
}

// Written returns the number of files written.
func (s *Sink) Written() int {
	return s.written
}

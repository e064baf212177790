// Package stream defines ordered sources and sinks of video frames.
package stream

import (
	"context"
	"fmt"
	"image"
	"io"
	"sync"

	"github.com/pkg/errors"
)

// A Frame is one decoded picture and its zero based position in the stream.
type Frame struct {
	Index int
	Image image.Image
}

// Metadata describes a stream. Zero values mean unknown.
type Metadata struct {
	Width      int     `json:"width"`
	Height     int     `json:"height"`
	FPS        float64 `json:"fps"`
	FrameCount int     `json:"frame_count"`
}

// Size returns the frame resolution.
func (m Metadata) Size() image.Point {
	return image.Point{m.Width, m.Height}
}

// A Source yields frames in order. Next returns io.EOF once the stream is exhausted.
type Source interface {
	Next(ctx context.Context) (Frame, error)
	Metadata() Metadata
	Close() error
}

// A Sink consumes frames in order. Close finalizes the output and must be called exactly once.
type Sink interface {
	Write(ctx context.Context, frame Frame) error
	Close() error
}

// FrameReadError is returned when a source fails to decode the frame at Index.
type FrameReadError struct {
	Index int
	Err   error
}

func (e *FrameReadError) Error() string {
	return fmt.Sprintf("failed to read frame %d: %v", e.Index, e.Err)
}

// Unwrap returns the underlying read failure.
func (e *FrameReadError) Unwrap() error {
	return e.Err
}

// SourceLoadError is returned when a source cannot be opened at all.
type SourceLoadError struct {
	Path string
	Err  error
}

func (e *SourceLoadError) Error() string {
	return fmt.Sprintf("cannot open %q: %v", e.Path, e.Err)
}

// Unwrap returns the underlying open failure.
func (e *SourceLoadError) Unwrap() error {
	return e.Err
}

// SliceSource serves frames from memory.
type SliceSource struct {
	mu     sync.Mutex
	images []image.Image
	meta   Metadata
	next   int
	closed bool
}

// NewSliceSource returns a source over images. Metadata is taken from the first image.
func NewSliceSource(images []image.Image, fps float64) *SliceSource {
	meta := Metadata{FPS: fps, FrameCount: len(images)}
	if len(images) > 0 {
		b := images[0].Bounds()
		meta.Width, meta.Height = b.Dx(), b.Dy()
	}
	return &SliceSource{images: images, meta: meta}
}

// Next implements Source.
func (s *SliceSource) Next(ctx context.Context) (Frame, error) {
	if err := ctx.Err(); err != nil {
		return Frame{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return Frame{}, errors.New("source is closed")
	}
	if s.next >= len(s.images) {
		return Frame{}, io.EOF
	}
	frame := Frame{Index: s.next, Image: s.images[s.next]}
	s.next++
	return frame, nil
}

// Metadata implements Source.
func (s *SliceSource) Metadata() Metadata {
	return s.meta
}

// Close implements Source.
func (s *SliceSource) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

// MemorySink keeps every written frame.
type MemorySink struct {
	mu     sync.Mutex
	frames []Frame
	closed bool
}

// NewMemorySink returns an empty sink.
func NewMemorySink() *MemorySink {
	return &MemorySink{}
}

// Write implements Sink.
func (s *MemorySink) Write(ctx context.Context, frame Frame) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return errors.New("sink is closed")
	}
	s.frames = append(s.frames, frame)
	return nil
}

// Close implements Sink.
func (s *MemorySink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return errors.New("sink already closed")
	}
	s.closed = true
	return nil
}

// Frames returns the frames written so far.
func (s *MemorySink) Frames() []Frame {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Frame(nil), s.frames...)
}

// Closed reports whether Close was called.
func (s *MemorySink) Closed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

// ReadAll drains src, returning every frame before the first error other than io.EOF.
func ReadAll(ctx context.Context, src Source) ([]Frame, error) {
	var frames []Frame
	for {
		frame, err := src.Next(ctx)
		if errors.Is(err, io.EOF) {
			return frames, nil
		}
		if err != nil {
			return frames, err
		}
		frames = append(frames, frame)
	}
}

package ffmpeg

import (
	"bytes"
	"context"
	"image"
	"io"
	"sync"

	"github.com/pkg/errors"
	ffmpeg "github.com/u2takey/ffmpeg-go"
	goutils "go.viam.com/utils"

	"github.com/EminentCodfish/GoPro-Calibration-Distortion-Removal/logging"
	"github.com/EminentCodfish/GoPro-Calibration-Distortion-Removal/stream"
)

// VideoSource decodes a video file into frames. A background ffmpeg process writes rgb24 frames
// into a pipe that Next reads one frame at a time.
type VideoSource struct {
	path   string
	meta   stream.Metadata
	logger logging.Logger

	cancel                  func()
	activeBackgroundWorkers sync.WaitGroup
	reader                  *io.PipeReader
	stderr                  *lockedBuffer

	mu   sync.Mutex
	buf  []byte
	next int
	err  error
}

// OpenVideo probes path and starts decoding it.
func OpenVideo(ctx context.Context, path string, logger logging.Logger) (*VideoSource, error) {
	if err := CheckInstalled(); err != nil {
		return nil, &stream.SourceLoadError{Path: path, Err: err}
	}
	meta, err := Probe(path)
	if err != nil {
		return nil, &stream.SourceLoadError{Path: path, Err: err}
	}

	cancelableCtx, cancel := context.WithCancel(ctx)
	in, out := io.Pipe()
	vs := &VideoSource{
		path:   path,
		meta:   meta,
		logger: logger,
		cancel: cancel,
		reader: in,
		stderr: &lockedBuffer{},
		buf:    make([]byte, meta.Width*meta.Height*3),
	}

	vs.activeBackgroundWorkers.Add(1)
	goutils.ManagedGo(func() {
		s := ffmpeg.Input(path).
			Output("pipe:", ffmpeg.KwArgs{"format": "rawvideo", "pix_fmt": "rgb24", "an": ""}).
			WithOutput(out).
			WithErrorOutput(vs.stderr)
		s.Context = cancelableCtx
		err := s.Run()
		if err != nil && cancelableCtx.Err() == nil {
			err = errors.Wrapf(err, "ffmpeg failed decoding %q: %s", path, vs.stderr.String())
		}
		// A nil error turns into io.EOF for the reader.
		out.CloseWithError(err)
	}, vs.activeBackgroundWorkers.Done)

	logger.Debugw("opened video", "path", path, "width", meta.Width, "height", meta.Height,
		"fps", meta.FPS, "frames", meta.FrameCount)
	return vs, nil
}

// Next implements stream.Source.
func (vs *VideoSource) Next(ctx context.Context) (stream.Frame, error) {
	if err := ctx.Err(); err != nil {
		return stream.Frame{}, err
	}
	vs.mu.Lock()
	defer vs.mu.Unlock()
	if vs.err != nil {
		return stream.Frame{}, vs.err
	}
	idx := vs.next
	if _, err := io.ReadFull(vs.reader, vs.buf); err != nil {
		if errors.Is(err, io.EOF) {
			vs.err = io.EOF
		} else {
			vs.err = &stream.FrameReadError{Index: idx, Err: err}
		}
		return stream.Frame{}, vs.err
	}
	vs.next++
	return stream.Frame{Index: idx, Image: rgb24ToNRGBA(vs.buf, vs.meta.Width, vs.meta.Height)}, nil
}

// Metadata implements stream.Source.
func (vs *VideoSource) Metadata() stream.Metadata {
	return vs.meta
}

// Close stops ffmpeg and waits for it to exit.
func (vs *VideoSource) Close() error {
	vs.cancel()
	err := vs.reader.Close()
	vs.activeBackgroundWorkers.Wait()
	return err
}

func rgb24ToNRGBA(buf []byte, width, height int) *image.NRGBA {
	img := image.NewNRGBA(image.Rect(0, 0, width, height))
	for i, j := 0, 0; i < len(buf); i, j = i+3, j+4 {
		img.Pix[j] = buf[i]
		img.Pix[j+1] = buf[i+1]
		img.Pix[j+2] = buf[i+2]
		img.Pix[j+3] = 255
	}
	return img
}

// lockedBuffer collects ffmpeg's stderr while it is written from another goroutine.
type lockedBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *lockedBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *lockedBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	const keep = 2048
	s := b.buf.String()
	if len(s) > keep {
		s = s[len(s)-keep:]
	}
	return s
}

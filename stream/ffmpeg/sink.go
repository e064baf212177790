package ffmpeg

import (
	"context"
	"fmt"
	"image"
	"io"
	"strconv"
	"sync"

	"github.com/disintegration/imaging"
	"github.com/pkg/errors"
	ffmpeg "github.com/u2takey/ffmpeg-go"
	"go.uber.org/multierr"
	goutils "go.viam.com/utils"

	"github.com/EminentCodfish/GoPro-Calibration-Distortion-Removal/logging"
	"github.com/EminentCodfish/GoPro-Calibration-Distortion-Removal/stream"
)

// DefaultCodec is an MPEG-4 Part 2 encoder, the codec behind DIVX files.
const DefaultCodec = "mpeg4"

// VideoOptions controls encoding.
type VideoOptions struct {
	Codec string `json:"codec"`
	// Quality is passed as -q:v when positive; lower is better.
	Quality int `json:"quality"`
	// PixelFormat of the encoded stream, yuv420p when empty.
	PixelFormat string `json:"pixel_format"`
}

// VideoSink encodes frames into a video file. Audio is never written.
type VideoSink struct {
	path   string
	meta   stream.Metadata
	logger logging.Logger

	writer                  *io.PipeWriter
	stderr                  *lockedBuffer
	activeBackgroundWorkers sync.WaitGroup
	runErr                  error

	buf     []byte
	written int
	closed  bool
}

// NewVideoSink starts an ffmpeg process that encodes meta.Width x meta.Height frames at meta.FPS
// into path, replacing any existing file.
func NewVideoSink(ctx context.Context, path string, meta stream.Metadata, opts VideoOptions, logger logging.Logger) (*VideoSink, error) {
	if err := CheckInstalled(); err != nil {
		return nil, err
	}
	if meta.Width <= 0 || meta.Height <= 0 {
		return nil, errors.Errorf("invalid output size %dx%d", meta.Width, meta.Height)
	}
	fps := meta.FPS
	if fps <= 0 {
		fps = 30
	}
	if opts.Codec == "" {
		opts.Codec = DefaultCodec
	}
	if opts.PixelFormat == "" {
		opts.PixelFormat = "yuv420p"
	}
	outArgs := ffmpeg.KwArgs{"c:v": opts.Codec, "pix_fmt": opts.PixelFormat, "an": ""}
	if opts.Quality > 0 {
		outArgs["q:v"] = opts.Quality
	}

	in, out := io.Pipe()
	vs := &VideoSink{
		path:   path,
		meta:   meta,
		logger: logger,
		writer: out,
		stderr: &lockedBuffer{},
		buf:    make([]byte, meta.Width*meta.Height*3),
	}
	vs.activeBackgroundWorkers.Add(1)
	goutils.ManagedGo(func() {
		s := ffmpeg.Input("pipe:", ffmpeg.KwArgs{
			"format":    "rawvideo",
			"pix_fmt":   "rgb24",
			"s":         fmt.Sprintf("%dx%d", meta.Width, meta.Height),
			"framerate": strconv.FormatFloat(fps, 'f', -1, 64),
		}).
			Output(path, outArgs).
			OverWriteOutput().
			WithInput(in).
			WithErrorOutput(vs.stderr)
		s.Context = ctx
		if err := s.Run(); err != nil {
			vs.runErr = errors.Wrapf(err, "ffmpeg failed encoding %q: %s", path, vs.stderr.String())
		}
		// Unblock writers if ffmpeg exits early.
		in.CloseWithError(errors.New("ffmpeg exited"))
	}, vs.activeBackgroundWorkers.Done)

	logger.Debugw("encoding video", "path", path, "codec", opts.Codec, "width", meta.Width, "height", meta.Height, "fps", fps)
	return vs, nil
}

// Write implements stream.Sink.
func (vs *VideoSink) Write(ctx context.Context, frame stream.Frame) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if vs.closed {
		return errors.New("video sink is closed")
	}
	size := frame.Image.Bounds().Size()
	if size != vs.meta.Size() {
		return errors.Errorf("frame %d is %dx%d, video is %dx%d", frame.Index, size.X, size.Y, vs.meta.Width, vs.meta.Height)
	}
	toRGB24(frame.Image, vs.buf)
	if _, err := vs.writer.Write(vs.buf); err != nil {
		return errors.Wrapf(err, "cannot encode frame %d", frame.Index)
	}
	vs.written++
	return nil
}

// Close flushes the encoder and waits for ffmpeg to finish the file.
func (vs *VideoSink) Close() error {
	if vs.closed {
		return errors.New("video sink already closed")
	}
	vs.closed = true
	err := vs.writer.Close()
	vs.activeBackgroundWorkers.Wait()
	vs.logger.Debugw("video finalized", "path", vs.path, "frames", vs.written)
	return multierr.Combine(err, vs.runErr)
}

// Written returns the number of frames handed to ffmpeg.
func (vs *VideoSink) Written() int {
	return vs.written
}

// toRGB24 packs img into buf, dropping alpha.
func toRGB24(img image.Image, buf []byte) {
	var nrgba *image.NRGBA
	switch im := img.(type) {
	case *image.NRGBA:
		nrgba = im
	default:
		nrgba = imaging.Clone(img)
	}
	b := nrgba.Bounds()
	w, h := b.Dx(), b.Dy()
	k := 0
	for y := 0; y < h; y++ {
		row := nrgba.Pix[y*nrgba.Stride : y*nrgba.Stride+4*w]
		for x := 0; x < w; x++ {
			buf[k] = row[4*x]
			buf[k+1] = row[4*x+1]
			buf[k+2] = row[4*x+2]
			k += 3
		}
	}
}

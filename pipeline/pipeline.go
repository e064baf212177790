// Package pipeline streams video frames through lens undistortion.
package pipeline

import (
	"context"
	"image"
	"io"
	"runtime"
	"time"

	"github.com/pkg/errors"
	"go.uber.org/multierr"
	"golang.org/x/sync/errgroup"

	"github.com/EminentCodfish/GoPro-Calibration-Distortion-Removal/logging"
	"github.com/EminentCodfish/GoPro-Calibration-Distortion-Removal/rimage/transform"
	"github.com/EminentCodfish/GoPro-Calibration-Distortion-Removal/stream"
)

// Options tune ProcessStream.
type Options struct {
	// Workers is the number of frames undistorted concurrently; GOMAXPROCS when 0.
	Workers int `json:"workers"`
	// ProgressInterval reports progress every this many frames; 100 when 0.
	ProgressInterval int `json:"progress_interval"`
	// Progress, when set, is called from the writing goroutine with the frames written so far.
	Progress func(done int, elapsed time.Duration) `json:"-"`
}

// Summary describes a finished run.
type Summary struct {
	FramesProcessed int
	Elapsed         time.Duration
}

type remapped struct {
	img image.Image
	err error
}

// job is a frame whose corrected image arrives on done.
type job struct {
	index int
	done  chan remapped
}

// ProcessStream undistorts every frame of src with model and writes the results to sink in
// source order. The remap table is built once, for the size of the first frame.
//
// Reading stops at the first failure; every frame read before it is still written. The sink is
// closed before returning, including when the source is empty. src is not closed.
func ProcessStream(
	ctx context.Context,
	src stream.Source,
	model *transform.PinholeCameraModel,
	sink stream.Sink,
	opts *Options,
	logger logging.Logger,
) (summary Summary, err error) {
	start := time.Now()
	defer func() {
		summary.Elapsed = time.Since(start)
		err = multierr.Combine(err, errors.Wrap(sink.Close(), "cannot finalize output"))
	}()
	if err := model.CheckValid(); err != nil {
		return summary, err
	}
	if logger == nil {
		logger = logging.NewBlankLogger("pipeline")
	}

	workers, interval := runtime.GOMAXPROCS(0), 100
	var progress func(int, time.Duration)
	if opts != nil {
		if opts.Workers > 0 {
			workers = opts.Workers
		}
		if opts.ProgressInterval > 0 {
			interval = opts.ProgressInterval
		}
		progress = opts.Progress
	}

	g, gctx := errgroup.WithContext(ctx)
	queue := make(chan *job, workers)
	slots := make(chan struct{}, workers)

	// A read failure must not cancel the writer, which still owes the sink every earlier frame.
	var readErr error
	g.Go(func() error {
		defer close(queue)
		var table *transform.RemapTable
		for next := 0; ; next++ {
			frame, err := src.Next(gctx)
			if errors.Is(err, io.EOF) {
				return nil
			}
			if err != nil {
				if gctx.Err() != nil {
					return gctx.Err()
				}
				var fre *stream.FrameReadError
				if !errors.As(err, &fre) {
					err = &stream.FrameReadError{Index: next, Err: err}
				}
				readErr = err
				return nil
			}
			if table == nil {
				table, err = transform.BuildRemapTable(model, frame.Image.Bounds().Size())
				if err != nil {
					readErr = errors.Wrapf(err, "frame %d", frame.Index)
					return nil
				}
				logger.Debugw("built remap table", "width", table.Size().X, "height", table.Size().Y)
			} else if size := frame.Image.Bounds().Size(); size != table.Size() {
				readErr = errors.Wrapf(transform.NewDimensionMismatchError(table.Size(), size), "frame %d", frame.Index)
				return nil
			}

			j := &job{index: frame.Index, done: make(chan remapped, 1)}
			select {
			case queue <- j:
			case <-gctx.Done():
				return gctx.Err()
			}
			select {
			case slots <- struct{}{}:
			case <-gctx.Done():
				return gctx.Err()
			}
			img, tbl := frame.Image, table
			g.Go(func() error {
				defer func() { <-slots }()
				out, err := transform.ApplyRemap(img, tbl)
				j.done <- remapped{out, err}
				return nil
			})
		}
	})

	g.Go(func() error {
		for j := range queue {
			var res remapped
			select {
			case res = <-j.done:
			case <-gctx.Done():
				return gctx.Err()
			}
			if res.err != nil {
				return errors.Wrapf(res.err, "frame %d", j.index)
			}
			if err := sink.Write(gctx, stream.Frame{Index: j.index, Image: res.img}); err != nil {
				return errors.Wrapf(err, "cannot write frame %d", j.index)
			}
			summary.FramesProcessed++
			if summary.FramesProcessed%interval == 0 {
				elapsed := time.Since(start)
				logger.Infow("undistorting", "frames", summary.FramesProcessed, "elapsed", elapsed,
					"fps", float64(summary.FramesProcessed)/elapsed.Seconds())
				if progress != nil {
					progress(summary.FramesProcessed, elapsed)
				}
			}
		}
		return nil
	})

	if err := g.Wait(); err != nil {
		return summary, err
	}
	if readErr != nil {
		return summary, readErr
	}
	logger.Infow("stream finished", "frames", summary.FramesProcessed, "elapsed", time.Since(start))
	return summary, nil
}

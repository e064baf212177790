package calibration

import (
	"context"
	"fmt"
	"image"
	"path/filepath"

	"github.com/golang/geo/r2"
	"github.com/nfnt/resize"
	"github.com/pkg/errors"

	"github.com/EminentCodfish/GoPro-Calibration-Distortion-Removal/logging"
	"github.com/EminentCodfish/GoPro-Calibration-Distortion-Removal/rimage"
	"github.com/EminentCodfish/GoPro-Calibration-Distortion-Removal/rimage/detection/chessboard"
	"github.com/EminentCodfish/GoPro-Calibration-Distortion-Removal/stream"
)

// EveryNthFrame captures frames 0, N, 2N, ... without any operator.
type EveryNthFrame struct {
	N int
}

// SampleReady implements Presenter.
func (p EveryNthFrame) SampleReady(ctx context.Context, frame stream.Frame) (Decision, error) {
	if p.N <= 1 || frame.Index%p.N == 0 {
		return Capture, nil
	}
	return Skip, nil
}

// CornersDetected implements Presenter.
func (p EveryNthFrame) CornersDetected(ctx context.Context, frame stream.Frame, corners []r2.Point, found bool) error {
	return nil
}

// Detection is a capture outcome delivered by a ChannelPresenter.
type Detection struct {
	Frame   int
	Corners []r2.Point
	Found   bool
}

// ChannelPresenter takes one decision per frame from Decisions, so that an operator interface
// running elsewhere can steer collection. A closed Decisions channel aborts. Capture outcomes are
// sent to Detections when it is not nil.
type ChannelPresenter struct {
	Decisions  <-chan Decision
	Detections chan<- Detection
}

// SampleReady implements Presenter.
func (p *ChannelPresenter) SampleReady(ctx context.Context, frame stream.Frame) (Decision, error) {
	select {
	case <-ctx.Done():
		return Abort, ctx.Err()
	case d, ok := <-p.Decisions:
		if !ok {
			return Abort, nil
		}
		return d, nil
	}
}

// CornersDetected implements Presenter.
func (p *ChannelPresenter) CornersDetected(ctx context.Context, frame stream.Frame, corners []r2.Point, found bool) error {
	if p.Detections == nil {
		return nil
	}
	select {
	case <-ctx.Done():
		return ctx.Err()
	case p.Detections <- Detection{Frame: frame.Index, Corners: corners, Found: found}:
		return nil
	}
}

// OverlayWriter saves every capture attempt as an image with the detected corners drawn on it,
// for review after a headless session. Decisions are delegated to the embedded Presenter.
type OverlayWriter struct {
	Presenter
	Dir         string
	PatternSize image.Point
	// ThumbnailWidth scales overlays down to this width when positive.
	ThumbnailWidth uint
	Logger         logging.Logger
}

// NewOverlayWriter writes overlays for board into dir.
func NewOverlayWriter(inner Presenter, dir string, board BoardSpec, thumbnailWidth uint, logger logging.Logger) *OverlayWriter {
	return &OverlayWriter{
		Presenter:      inner,
		Dir:            dir,
		PatternSize:    board.PatternSize(),
		ThumbnailWidth: thumbnailWidth,
		Logger:         logger,
	}
}

// CornersDetected draws the overlay, writes it and forwards the event.
func (w *OverlayWriter) CornersDetected(ctx context.Context, frame stream.Frame, corners []r2.Point, found bool) error {
	overlay := chessboard.DrawCorners(frame.Image, w.PatternSize, corners, found)
	if w.ThumbnailWidth > 0 && uint(overlay.Bounds().Dx()) > w.ThumbnailWidth {
		overlay = resize.Resize(w.ThumbnailWidth, 0, overlay, resize.Bilinear)
	}
	status := "found"
	if !found {
		status = "missed"
	}
	path := filepath.Join(w.Dir, fmt.Sprintf("corners_%06d_%s.png", frame.Index, status))
	if err := rimage.WriteImageToFile(path, overlay); err != nil {
		return errors.Wrap(err, "cannot write corner overlay")
	}
	w.Logger.Debugw("wrote corner overlay", "path", path)
	return w.Presenter.CornersDetected(ctx, frame, corners, found)
}

package calibration

import (
	"context"
	"image"
	"io"

	"github.com/golang/geo/r2"
	"github.com/golang/geo/r3"
	"github.com/pkg/errors"

	"github.com/EminentCodfish/GoPro-Calibration-Distortion-Removal/logging"
	"github.com/EminentCodfish/GoPro-Calibration-Distortion-Removal/rimage"
	"github.com/EminentCodfish/GoPro-Calibration-Distortion-Removal/rimage/detection/chessboard"
	"github.com/EminentCodfish/GoPro-Calibration-Distortion-Removal/stream"
)

// spareCaptures is how many boards beyond the required count an interactive session collects by
// default, so that a few bad views can be dropped without recapturing.
const spareCaptures = 5

// CollectorConfig configures an observation Collector.
type CollectorConfig struct {
	Board  BoardSpec                      `json:"board"`
	SubPix chessboard.SubPixConfiguration `json:"subpix"`
	// MaxCaptures bounds CollectFromSource; 0 means RequiredObservations plus 5.
	MaxCaptures int `json:"max_captures"`
}

// Collector turns images of the board into Observations.
type Collector struct {
	board       BoardSpec
	pattern     []r3.Vector
	detector    chessboard.Detector
	subpix      chessboard.SubPixConfiguration
	maxCaptures int
	logger      logging.Logger
}

// NewCollector validates conf and returns a Collector using detector.
func NewCollector(conf CollectorConfig, detector chessboard.Detector, logger logging.Logger) (*Collector, error) {
	if err := conf.Board.Validate("board"); err != nil {
		return nil, err
	}
	if detector == nil {
		return nil, errors.New("a corner detector is required")
	}
	if conf.SubPix.Window < 0 {
		return nil, errors.Errorf("subpix window must not be negative, got %d", conf.SubPix.Window)
	}
	maxCaptures := conf.MaxCaptures
	if maxCaptures <= 0 {
		maxCaptures = conf.Board.RequiredObservations + spareCaptures
	}
	return &Collector{
		board:       conf.Board,
		pattern:     conf.Board.Pattern(),
		detector:    detector,
		subpix:      conf.SubPix,
		maxCaptures: maxCaptures,
		logger:      logger,
	}, nil
}

// Board returns the board the collector looks for.
func (c *Collector) Board() BoardSpec {
	return c.board
}

// MaxCaptures returns the number of observations after which CollectFromSource stops.
func (c *Collector) MaxCaptures() int {
	return c.maxCaptures
}

// Observe detects the board in img and refines the corners to sub-pixel accuracy. When the board
// is not fully visible the error wraps chessboard.ErrPatternNotFound.
func (c *Collector) Observe(img image.Image, source int) (Observation, error) {
	patternSize := c.board.PatternSize()
	corners, err := c.detector.FindCorners(img, patternSize)
	if err != nil {
		return Observation{}, err
	}
	if len(corners) != len(c.pattern) {
		return Observation{}, errors.Wrapf(chessboard.ErrPatternNotFound,
			"detector returned %d corners, expected %d", len(corners), len(c.pattern))
	}
	if c.subpix.Window > 0 && c.subpix.Criteria.MaxIterations > 0 {
		window := chessboard.ClampWindow(c.subpix.Window, corners, patternSize)
		lum := rimage.ConvertImageToLuminanceFloat(img)
		corners = chessboard.CornerSubPix(lum, corners, window, c.subpix.Criteria)
	}
	return NewObservation(c.pattern, corners, img.Bounds().Size(), source)
}

// Collect observes every candidate in turn. Candidates without a complete board are skipped.
// When ctx is cancelled the observations gathered so far are returned along with ctx.Err().
func (c *Collector) Collect(ctx context.Context, candidates []image.Image) ([]Observation, error) {
	var observations []Observation
	for i, img := range candidates {
		if err := ctx.Err(); err != nil {
			return observations, err
		}
		obs, err := c.Observe(img, i)
		if err != nil {
			if errors.Is(err, chessboard.ErrPatternNotFound) {
				c.logger.Debugw("skipping candidate", "index", i, "reason", err)
				continue
			}
			return observations, errors.Wrapf(err, "candidate %d", i)
		}
		observations = append(observations, obs)
	}
	c.logger.Infow("collection finished", "candidates", len(candidates), "observations", len(observations))
	return observations, nil
}

// Decision is a presenter's verdict on a frame offered for capture.
type Decision int

const (
	// Skip moves on to the next frame.
	Skip Decision = iota
	// Capture tries to detect the board in the frame.
	Capture
	// Abort ends collection, keeping everything captured so far.
	Abort
)

func (d Decision) String() string {
	switch d {
	case Skip:
		return "skip"
	case Capture:
		return "capture"
	case Abort:
		return "abort"
	default:
		return "unknown"
	}
}

// A Presenter drives interactive collection. SampleReady is called for every frame of the source;
// CornersDetected reports the outcome of every capture attempt, with corners nil when the board
// was not found.
type Presenter interface {
	SampleReady(ctx context.Context, frame stream.Frame) (Decision, error)
	CornersDetected(ctx context.Context, frame stream.Frame, corners []r2.Point, found bool) error
}

// CollectResult is the outcome of CollectFromSource.
type CollectResult struct {
	Observations []Observation
	// Aborted is set when the presenter ended collection early.
	Aborted bool
	// FramesSeen counts frames read from the source.
	FramesSeen int
}

// CollectFromSource reads frames from src and lets presenter pick the ones to capture. It stops
// after MaxCaptures observations, at the end of the stream or when the presenter aborts. An abort
// is not an error.
func (c *Collector) CollectFromSource(ctx context.Context, src stream.Source, presenter Presenter) (CollectResult, error) {
	var res CollectResult
	for len(res.Observations) < c.maxCaptures {
		frame, err := src.Next(ctx)
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return res, err
		}
		res.FramesSeen++

		decision, err := presenter.SampleReady(ctx, frame)
		if err != nil {
			return res, err
		}
		switch decision {
		case Abort:
			c.logger.Infow("collection aborted", "observations", len(res.Observations), "frame", frame.Index)
			res.Aborted = true
			return res, nil
		case Skip:
			continue
		case Capture:
		default:
			return res, errors.Errorf("unknown decision %d", decision)
		}

		obs, err := c.Observe(frame.Image, frame.Index)
		switch {
		case err == nil:
			res.Observations = append(res.Observations, obs)
			c.logger.Debugw("captured board", "frame", frame.Index, "observations", len(res.Observations))
			err = presenter.CornersDetected(ctx, frame, obs.Image, true)
		case errors.Is(err, chessboard.ErrPatternNotFound):
			c.logger.Debugw("no board in frame", "frame", frame.Index, "reason", err)
			err = presenter.CornersDetected(ctx, frame, nil, false)
		}
		if err != nil {
			return res, err
		}
	}
	c.logger.Infow("collection finished", "frames", res.FramesSeen, "observations", len(res.Observations))
	return res, nil
}

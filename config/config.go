// Package config defines the lenscal configuration file.
package config

import (
	"github.com/pkg/errors"
	goutils "go.viam.com/utils"

	"github.com/EminentCodfish/GoPro-Calibration-Distortion-Removal/calibration"
	"github.com/EminentCodfish/GoPro-Calibration-Distortion-Removal/pipeline"
	"github.com/EminentCodfish/GoPro-Calibration-Distortion-Removal/rimage/detection/chessboard"
	"github.com/EminentCodfish/GoPro-Calibration-Distortion-Removal/stream/ffmpeg"
)

// Config holds every setting of a calibration and undistortion run.
type Config struct {
	Board     calibration.BoardSpec          `json:"board"`
	Detection DetectionConfig                `json:"detection"`
	SubPix    chessboard.SubPixConfiguration `json:"subpix"`
	Collect   CollectConfig                  `json:"collect"`
	Solver    calibration.SolverOptions      `json:"solver"`
	Pipeline  pipeline.Options               `json:"pipeline"`
	Video     ffmpeg.VideoOptions            `json:"video"`

	// HistoryPath is the sqlite database calibration runs are recorded in; empty disables it.
	HistoryPath string `json:"history_path"`

	// ConfigFilePath is where the config was read from, if anywhere.
	ConfigFilePath string `json:"-"`
}

// DetectionConfig selects and tunes the corner detector.
type DetectionConfig struct {
	Method string `json:"method"`

	chessboard.DetectionConfiguration `json:",squash"`
}

// CollectConfig controls sampling of calibration frames from a video.
type CollectConfig struct {
	// EveryNth captures one frame out of every EveryNth.
	EveryNth    int `json:"every_nth"`
	MaxCaptures int `json:"max_captures"`
	// ThumbnailWidth of the corner overlays written for review; 0 keeps full size.
	ThumbnailWidth uint `json:"thumbnail_width"`
}

// Default returns the settings of the original 9x6 board workflow.
func Default() *Config {
	return &Config{
		Board: calibration.BoardSpec{
			Width:                9,
			Height:               6,
			SquareSize:           1,
			RequiredObservations: 15,
		},
		Detection: DetectionConfig{
			Method:                 chessboard.MethodSaddle,
			DetectionConfiguration: chessboard.DefaultDetectionConf(),
		},
		SubPix:   chessboard.DefaultSubPixConf,
		Collect:  CollectConfig{EveryNth: 30, ThumbnailWidth: 640},
		Solver:   calibration.DefaultSolverOptions(),
		Pipeline: pipeline.Options{ProgressInterval: 100},
		Video:    ffmpeg.VideoOptions{Codec: ffmpeg.DefaultCodec},
	}
}

// CollectorConfig returns the settings the calibration.Collector needs.
func (c *Config) CollectorConfig() calibration.CollectorConfig {
	return calibration.CollectorConfig{Board: c.Board, SubPix: c.SubPix, MaxCaptures: c.Collect.MaxCaptures}
}

// Validate returns the first invalid setting, qualified by its path in the file.
func (c *Config) Validate() error {
	if err := c.Board.Validate("board"); err != nil {
		return err
	}
	if err := c.Detection.Validate("detection"); err != nil {
		return err
	}
	if c.SubPix.Window < 0 {
		return goutils.NewConfigValidationError("subpix", errors.Errorf("window must not be negative, got %d", c.SubPix.Window))
	}
	if c.SubPix.Criteria.MaxIterations < 0 || c.SubPix.Criteria.Epsilon < 0 {
		return goutils.NewConfigValidationError("subpix.criteria", errors.New("max_iterations and epsilon must not be negative"))
	}
	if c.Collect.EveryNth < 0 {
		return goutils.NewConfigValidationError("collect", errors.Errorf("every_nth must not be negative, got %d", c.Collect.EveryNth))
	}
	if c.Collect.MaxCaptures != 0 && c.Collect.MaxCaptures < c.Board.RequiredObservations {
		return goutils.NewConfigValidationError("collect", errors.Errorf(
			"max_captures (%d) is less than board.required_observations (%d)", c.Collect.MaxCaptures, c.Board.RequiredObservations))
	}
	if c.Solver.MaxIterations < 0 {
		return goutils.NewConfigValidationError("solver", errors.Errorf("max_iterations must not be negative, got %d", c.Solver.MaxIterations))
	}
	if c.Solver.MinObservations < 0 || c.Solver.MinObservations > c.Board.RequiredObservations {
		return goutils.NewConfigValidationError("solver", errors.Errorf(
			"min_observations must be between 0 and board.required_observations (%d), got %d",
			c.Board.RequiredObservations, c.Solver.MinObservations))
	}
	if c.Pipeline.Workers < 0 {
		return goutils.NewConfigValidationError("pipeline", errors.Errorf("workers must not be negative, got %d", c.Pipeline.Workers))
	}
	if c.Pipeline.ProgressInterval < 0 {
		return goutils.NewConfigValidationError("pipeline",
			errors.Errorf("progress_interval must not be negative, got %d", c.Pipeline.ProgressInterval))
	}
	if c.Video.Codec == "" {
		return goutils.NewConfigValidationFieldRequiredError("video", "codec")
	}
	if c.Video.Quality < 0 || c.Video.Quality > 31 {
		return goutils.NewConfigValidationError("video", errors.Errorf("quality must be between 0 and 31, got %d", c.Video.Quality))
	}
	return nil
}

// Validate checks the detection method and its parameters.
func (d *DetectionConfig) Validate(path string) error {
	switch d.Method {
	case "", chessboard.MethodSaddle, chessboard.MethodOpenCV:
	default:
		return goutils.NewConfigValidationError(path, errors.Errorf("unknown method %q", d.Method))
	}
	if d.Saddle.BlurSigma < 0 || d.Saddle.NMSRadius < 0 || d.Saddle.RingRadius < 0 {
		return goutils.NewConfigValidationError(path+".saddle", errors.New("blur_sigma, nms_radius and ring_radius must not be negative"))
	}
	if d.Saddle.RelativeThreshold < 0 || d.Saddle.RelativeThreshold >= 1 {
		return goutils.NewConfigValidationError(path+".saddle",
			errors.Errorf("relative_threshold must be in [0, 1), got %v", d.Saddle.RelativeThreshold))
	}
	if d.Lattice.Tolerance <= 0 {
		return goutils.NewConfigValidationError(path+".lattice", errors.Errorf("tolerance must be positive, got %v", d.Lattice.Tolerance))
	}
	return nil
}

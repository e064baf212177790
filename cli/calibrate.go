package cli

import (
	"context"
	"image"
	"path/filepath"

	"github.com/pkg/errors"
	"github.com/samber/lo"
	"github.com/urfave/cli/v2"
	"go.viam.com/utils"

	"github.com/EminentCodfish/GoPro-Calibration-Distortion-Removal/calibration"
	"github.com/EminentCodfish/GoPro-Calibration-Distortion-Removal/calibration/report"
	"github.com/EminentCodfish/GoPro-Calibration-Distortion-Removal/calibration/store"
	"github.com/EminentCodfish/GoPro-Calibration-Distortion-Removal/config"
	"github.com/EminentCodfish/GoPro-Calibration-Distortion-Removal/logging"
	"github.com/EminentCodfish/GoPro-Calibration-Distortion-Removal/rimage/detection/chessboard"
	"github.com/EminentCodfish/GoPro-Calibration-Distortion-Removal/rimage/transform"
	"github.com/EminentCodfish/GoPro-Calibration-Distortion-Removal/stream"
	"github.com/EminentCodfish/GoPro-Calibration-Distortion-Removal/stream/imageseq"
)

func newCollector(cfg *config.Config, logger logging.Logger) (*calibration.Collector, error) {
	detector, err := chessboard.NewDetector(cfg.Detection.Method, cfg.Detection.DetectionConfiguration, logger.Sublogger("detector"))
	if err != nil {
		return nil, err
	}
	return calibration.NewCollector(cfg.CollectorConfig(), detector, logger.Sublogger("collector"))
}

// observeDirectory detects the board in every image of dir.
func observeDirectory(ctx context.Context, dir string, cfg *config.Config, logger logging.Logger) (
	[]calibration.Observation, image.Point, error,
) {
	src, err := imageseq.Open(dir, 0)
	if err != nil {
		return nil, image.Point{}, err
	}
	defer utils.UncheckedErrorFunc(src.Close)

	frames, err := stream.ReadAll(ctx, src)
	if err != nil {
		return nil, image.Point{}, err
	}
	collector, err := newCollector(cfg, logger)
	if err != nil {
		return nil, image.Point{}, err
	}
	observations, err := collector.Collect(ctx, lo.Map(frames, func(f stream.Frame, _ int) image.Image { return f.Image }))
	if err != nil {
		return nil, image.Point{}, err
	}
	return observations, src.Metadata().Size(), nil
}

// CalibrateAction estimates the camera model from the board images in a directory.
func CalibrateAction(c *cli.Context) error {
	logger := newLogger(c)
	dir, err := singleArg(c)
	if err != nil {
		return err
	}
	cfg, err := loadConfig(c, logger)
	if err != nil {
		return err
	}

	observations, size, err := observeDirectory(c.Context, dir, cfg, logger)
	if err != nil {
		return err
	}
	infof(c.App.Writer, "found the board in %d images of %s", len(observations), dir)
	if err := calibration.RequireObservations(observations, cfg.Board.RequiredObservations); err != nil {
		return err
	}

	result, err := calibration.Calibrate(observations, size, &cfg.Solver, logger.Sublogger("solver"))
	if err != nil {
		return err
	}
	artifact, err := transform.NewCalibrationArtifact(result.Model, result.MeanReprojectionError, result.RMSError)
	if err != nil {
		return err
	}
	output := c.String(outputFlag)
	if err := transform.WriteModelJSONFile(output, artifact); err != nil {
		return errors.Wrapf(err, "cannot write %s", output)
	}

	views, err := report.Residuals(result.Model, result.Poses, observations)
	if err != nil {
		return err
	}
	viewTable, err := report.ViewTable(views)
	if err != nil {
		return err
	}
	printf(c.App.Writer, "%s", viewTable)
	if dir := c.String(reportFlag); dir != "" {
		path := filepath.Join(dir, "residuals.png")
		if err := report.WriteResidualPlot(path, views); err != nil {
			return err
		}
		infof(c.App.Writer, "wrote residual plot to %s", path)
	}

	if cfg.HistoryPath != "" {
		if err := recordRun(c.Context, cfg.HistoryPath, artifact, len(observations), dir); err != nil {
			return err
		}
		infof(c.App.Writer, "recorded calibration %s in %s", artifact.ID, cfg.HistoryPath)
	}

	modelTable, err := report.ModelTable(artifact)
	if err != nil {
		return err
	}
	printf(c.App.Writer, "%s", modelTable)
	infof(c.App.Writer, "wrote calibration to %s", output)
	if result.MeanReprojectionError > 1 {
		warningf(c.App.ErrWriter, "mean reprojection error is %.3f px; check the overlays for misdetected boards",
			result.MeanReprojectionError)
	}
	return nil
}

func recordRun(ctx context.Context, path string, a *transform.CalibrationArtifact, observations int, source string) error {
	s, err := store.Open(ctx, path)
	if err != nil {
		return err
	}
	defer utils.UncheckedErrorFunc(s.Close)
	return s.Record(ctx, a, observations, source)
}

// InspectAction prints a calibration and, with --images, its reprojection error on new views.
func InspectAction(c *cli.Context) error {
	logger := newLogger(c)
	path, err := singleArg(c)
	if err != nil {
		return err
	}
	artifact, err := transform.ReadModelJSONFile(path)
	if err != nil {
		return err
	}
	modelTable, err := report.ModelTable(artifact)
	if err != nil {
		return err
	}
	printf(c.App.Writer, "%s", modelTable)

	dir := c.String(imagesFlag)
	if dir == "" {
		return nil
	}
	cfg, err := loadConfig(c, logger)
	if err != nil {
		return err
	}
	model, err := artifact.Model()
	if err != nil {
		return err
	}
	observations, _, err := observeDirectory(c.Context, dir, cfg, logger)
	if err != nil {
		return err
	}
	if len(observations) == 0 {
		return &calibration.InsufficientDataError{Need: 1, Reason: "no board found in " + dir}
	}
	eval, err := calibration.EvaluateModel(model, observations)
	if err != nil {
		return err
	}
	views, err := report.Residuals(model, eval.Poses, observations)
	if err != nil {
		return err
	}
	viewTable, err := report.ViewTable(views)
	if err != nil {
		return err
	}
	printf(c.App.Writer, "%s", viewTable)
	infof(c.App.Writer, "mean reprojection error on %d views: %.4f px (rms %.4f px)",
		len(observations), eval.MeanReprojectionError, eval.RMSError)
	return nil
}

package cli

import (
	"time"

	"github.com/pkg/errors"
	"github.com/urfave/cli/v2"
	"go.viam.com/utils"

	"github.com/EminentCodfish/GoPro-Calibration-Distortion-Removal/calibration/store"
	"github.com/EminentCodfish/GoPro-Calibration-Distortion-Removal/pipeline"
	"github.com/EminentCodfish/GoPro-Calibration-Distortion-Removal/rimage/transform"
)

// UndistortAction writes a corrected copy of a video or image directory.
func UndistortAction(c *cli.Context) error {
	logger := newLogger(c)
	input, err := singleArg(c)
	if err != nil {
		return err
	}
	cfg, err := loadConfig(c, logger)
	if err != nil {
		return err
	}

	src, err := openSource(c.Context, input, c.Float64(fpsFlag), logger.Sublogger("source"))
	if err != nil {
		return err
	}
	defer utils.UncheckedErrorFunc(src.Close)
	meta := src.Metadata()

	var artifact *transform.CalibrationArtifact
	switch {
	case c.String(modelFlag) != "":
		artifact, err = transform.ReadModelJSONFile(c.String(modelFlag))
	case cfg.HistoryPath != "":
		var s *store.Store
		if s, err = store.Open(c.Context, cfg.HistoryPath); err != nil {
			return err
		}
		defer utils.UncheckedErrorFunc(s.Close)
		artifact, err = s.Latest(c.Context, meta.Width, meta.Height)
	default:
		return errors.Errorf("one of --%s or --%s is required", modelFlag, historyFlag)
	}
	if err != nil {
		return err
	}
	model, err := artifact.Model()
	if err != nil {
		return err
	}
	infof(c.App.Writer, "undistorting %s with calibration %s", input, artifact.ID)

	output := c.String(outputFlag)
	sink, err := openSink(c.Context, output, meta, cfg.Video, logger.Sublogger("sink"))
	if err != nil {
		return err
	}
	opts := cfg.Pipeline
	opts.Progress = func(done int, elapsed time.Duration) {
		if meta.FrameCount > 0 {
			printf(c.App.Writer, "%d/%d frames (%.1f fps)", done, meta.FrameCount, float64(done)/elapsed.Seconds())
			return
		}
		printf(c.App.Writer, "%d frames (%.1f fps)", done, float64(done)/elapsed.Seconds())
	}
	summary, err := pipeline.ProcessStream(c.Context, src, model, sink, &opts, logger.Sublogger("pipeline"))
	if err != nil {
		return err
	}
	infof(c.App.Writer, "wrote %d frames to %s in %s", summary.FramesProcessed, output, summary.Elapsed.Round(time.Millisecond))
	return nil
}

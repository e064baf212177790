package cli

import (
	"context"
	"path/filepath"

	"github.com/golang/geo/r2"
	"github.com/urfave/cli/v2"
	"go.uber.org/multierr"
	"go.viam.com/utils"

	"github.com/EminentCodfish/GoPro-Calibration-Distortion-Removal/calibration"
	"github.com/EminentCodfish/GoPro-Calibration-Distortion-Removal/stream"
	"github.com/EminentCodfish/GoPro-Calibration-Distortion-Removal/stream/imageseq"
)

// frameSaver writes the frames a board was found in, so they can be calibrated on later.
type frameSaver struct {
	calibration.Presenter
	sink stream.Sink
}

func (s *frameSaver) CornersDetected(ctx context.Context, frame stream.Frame, corners []r2.Point, found bool) error {
	if found {
		if err := s.sink.Write(ctx, frame); err != nil {
			return err
		}
	}
	return s.Presenter.CornersDetected(ctx, frame, corners, found)
}

// CollectAction samples board views from a video or image directory.
func CollectAction(c *cli.Context) (err error) {
	logger := newLogger(c)
	input, err := singleArg(c)
	if err != nil {
		return err
	}
	cfg, err := loadConfig(c, logger)
	if err != nil {
		return err
	}
	collector, err := newCollector(cfg, logger)
	if err != nil {
		return err
	}

	src, err := openSource(c.Context, input, c.Float64(fpsFlag), logger)
	if err != nil {
		return err
	}
	defer utils.UncheckedErrorFunc(src.Close)

	out := c.String(outputFlag)
	sink, err := imageseq.NewSink(filepath.Join(out, "frames"), imageseq.DefaultPattern)
	if err != nil {
		return err
	}
	defer func() {
		err = multierr.Combine(err, sink.Close())
	}()
	presenter := &frameSaver{
		Presenter: calibration.NewOverlayWriter(
			calibration.EveryNthFrame{N: cfg.Collect.EveryNth},
			filepath.Join(out, "overlays"),
			cfg.Board,
			cfg.Collect.ThumbnailWidth,
			logger.Sublogger("overlays"),
		),
		sink: sink,
	}

	res, err := collector.CollectFromSource(c.Context, src, presenter)
	if err != nil {
		return err
	}
	infof(c.App.Writer, "captured %d boards from %d frames into %s", len(res.Observations), res.FramesSeen,
		filepath.Join(out, "frames"))
	if len(res.Observations) < cfg.Board.RequiredObservations {
		warningf(c.App.ErrWriter, "calibration needs %d boards; collect from more footage",
			cfg.Board.RequiredObservations)
	}
	return nil
}

package cli

import (
	"fmt"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/pkg/errors"
	"github.com/urfave/cli/v2"
	"go.viam.com/utils"

	"github.com/EminentCodfish/GoPro-Calibration-Distortion-Removal/calibration/store"
	"github.com/EminentCodfish/GoPro-Calibration-Distortion-Removal/rimage/transform"
)

// HistoryAction lists recorded calibrations and exports the latest one for a resolution.
func HistoryAction(c *cli.Context) error {
	logger := newLogger(c)
	cfg, err := loadConfig(c, logger)
	if err != nil {
		return err
	}
	if cfg.HistoryPath == "" {
		return errors.Errorf("--%s or history_path in the config is required", historyFlag)
	}
	s, err := store.Open(c.Context, cfg.HistoryPath)
	if err != nil {
		return err
	}
	defer utils.UncheckedErrorFunc(s.Close)

	if export := c.String(exportFlag); export != "" {
		if !c.IsSet(widthFlag) || !c.IsSet(heightFlag) {
			return errors.Errorf("--%s needs --%s and --%s", exportFlag, widthFlag, heightFlag)
		}
		artifact, err := s.Latest(c.Context, c.Int(widthFlag), c.Int(heightFlag))
		if err != nil {
			return err
		}
		if err := transform.WriteModelJSONFile(export, artifact); err != nil {
			return err
		}
		infof(c.App.Writer, "exported calibration %s to %s", artifact.ID, export)
		return nil
	}

	entries, err := s.List(c.Context)
	if err != nil {
		return err
	}
	if len(entries) == 0 {
		infof(c.App.Writer, "no calibrations recorded in %s", cfg.HistoryPath)
		return nil
	}
	t := table.NewWriter()
	t.AppendHeader(table.Row{"ID", "Created", "Resolution", "Views", "Mean (px)", "RMS (px)", "Source"})
	for _, e := range entries {
		t.AppendRow(table.Row{
			e.ID,
			e.CreatedAt.Format("2006-01-02 15:04:05"),
			fmt.Sprintf("%dx%d", e.Width, e.Height),
			e.Observations,
			fmt.Sprintf("%.4f", e.MeanReprojectionError),
			fmt.Sprintf("%.4f", e.RMSError),
			e.Source,
		})
	}
	printf(c.App.Writer, "%s", t.Render())
	return nil
}

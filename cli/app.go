// Package cli contains the lenscal command line interface.
package cli

import (
	"io"

	"github.com/urfave/cli/v2"
)

const (
	debugFlag   = "debug"
	configFlag  = "config"
	logFileFlag = "log-file"

	boardWidthFlag  = "board-width"
	boardHeightFlag = "board-height"
	squareSizeFlag  = "square-size"
	requiredFlag    = "required"
	detectorFlag    = "detector"
	workersFlag     = "workers"
	historyFlag     = "history"

	outputFlag      = "output"
	everyFlag       = "every"
	maxCapturesFlag = "max-captures"
	fpsFlag         = "fps"
	reportFlag      = "report"
	modelFlag       = "model"
	imagesFlag      = "images"
	widthFlag       = "width"
	heightFlag      = "height"
	exportFlag      = "export"
	fixK3Flag       = "fix-k3"
)

var boardFlags = []cli.Flag{
	&cli.IntFlag{
		Name:  boardWidthFlag,
		Usage: "inner corners per board row",
	},
	&cli.IntFlag{
		Name:  boardHeightFlag,
		Usage: "inner corners per board column",
	},
	&cli.Float64Flag{
		Name:  squareSizeFlag,
		Usage: "edge length of a board square, in the unit poses are reported in",
	},
	&cli.IntFlag{
		Name:  requiredFlag,
		Usage: "number of board views calibration needs",
	},
	&cli.StringFlag{
		Name:  detectorFlag,
		Usage: "corner detector, saddle or opencv",
	},
}

var app = &cli.App{
	Name:            "lenscal",
	Usage:           "calibrate a camera from checkerboard footage and remove its lens distortion",
	HideHelpCommand: true,
	Flags: []cli.Flag{
		&cli.StringFlag{
			Name:    configFlag,
			Aliases: []string{"c"},
			Usage:   "load configuration from `FILE`",
		},
		&cli.BoolFlag{
			Name:    debugFlag,
			Aliases: []string{"vvv"},
			Usage:   "enable debug logging",
		},
		&cli.StringFlag{
			Name:  logFileFlag,
			Usage: "also write logs to `FILE`, rotated at 64MB",
		},
	},
	After: closeLogFile,
	Commands: []*cli.Command{
		{
			Name:      "collect",
			Usage:     "sample frames showing the board from a video or image directory",
			ArgsUsage: "<video|directory>",
			Flags: append([]cli.Flag{
				&cli.StringFlag{
					Name:     outputFlag,
					Aliases:  []string{"o"},
					Usage:    "directory the captured frames and corner overlays are written to",
					Required: true,
				},
				&cli.IntFlag{
					Name:  everyFlag,
					Usage: "capture one frame out of every `N`",
				},
				&cli.IntFlag{
					Name:  maxCapturesFlag,
					Usage: "stop after this many boards were found",
				},
				&cli.Float64Flag{
					Name:  fpsFlag,
					Usage: "frame rate of an image directory",
					Value: 30,
				},
			}, boardFlags...),
			Action: CollectAction,
		},
		{
			Name:      "calibrate",
			Usage:     "estimate the camera model from a directory of board images",
			ArgsUsage: "<directory>",
			Flags: append([]cli.Flag{
				&cli.StringFlag{
					Name:    outputFlag,
					Aliases: []string{"o"},
					Usage:   "where the calibration JSON is written",
					Value:   "calibration.json",
				},
				&cli.StringFlag{
					Name:  reportFlag,
					Usage: "directory a residual plot is written to",
				},
				&cli.StringFlag{
					Name:  historyFlag,
					Usage: "sqlite database the run is recorded in",
				},
				&cli.BoolFlag{
					Name:  fixK3Flag,
					Usage: "keep the sixth order radial coefficient at zero",
				},
			}, boardFlags...),
			Action: CalibrateAction,
		},
		{
			Name:      "undistort",
			Usage:     "remove lens distortion from a video or image directory",
			ArgsUsage: "<video|directory>",
			Flags: []cli.Flag{
				&cli.StringFlag{
					Name:     outputFlag,
					Aliases:  []string{"o"},
					Usage:    "output video file, or directory for an image sequence",
					Required: true,
				},
				&cli.StringFlag{
					Name:  modelFlag,
					Usage: "calibration JSON; the latest matching run in --history is used when empty",
				},
				&cli.StringFlag{
					Name:  historyFlag,
					Usage: "sqlite database of calibration runs",
				},
				&cli.IntFlag{
					Name:  workersFlag,
					Usage: "frames undistorted in parallel",
				},
				&cli.Float64Flag{
					Name:  fpsFlag,
					Usage: "frame rate of an image directory",
					Value: 30,
				},
			},
			Action: UndistortAction,
		},
		{
			Name:      "inspect",
			Usage:     "print a calibration and optionally measure it on new board images",
			ArgsUsage: "<calibration.json>",
			Flags: append([]cli.Flag{
				&cli.StringFlag{
					Name:  imagesFlag,
					Usage: "directory of board images to evaluate the calibration on",
				},
			}, boardFlags...),
			Action: InspectAction,
		},
		{
			Name:  "history",
			Usage: "list recorded calibration runs",
			Flags: []cli.Flag{
				&cli.StringFlag{
					Name:  historyFlag,
					Usage: "sqlite database of calibration runs",
				},
				&cli.IntFlag{
					Name:  widthFlag,
					Usage: "with --height and --export, the resolution to export",
				},
				&cli.IntFlag{
					Name:  heightFlag,
					Usage: "with --width and --export, the resolution to export",
				},
				&cli.StringFlag{
					Name:  exportFlag,
					Usage: "write the latest calibration for --width x --height to this JSON file",
				},
			},
			Action: HistoryAction,
		},
	},
}

// NewApp returns a new app with the CLI API, Writer set to out, and ErrWriter
// set to errOut.
func NewApp(out, errOut io.Writer) *cli.App {
	app.Writer = out
	app.ErrWriter = errOut
	return app
}

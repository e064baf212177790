package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/fatih/color"
	"github.com/pkg/errors"
	"github.com/urfave/cli/v2"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/EminentCodfish/GoPro-Calibration-Distortion-Removal/config"
	"github.com/EminentCodfish/GoPro-Calibration-Distortion-Removal/logging"
	"github.com/EminentCodfish/GoPro-Calibration-Distortion-Removal/stream"
	"github.com/EminentCodfish/GoPro-Calibration-Distortion-Removal/stream/ffmpeg"
	"github.com/EminentCodfish/GoPro-Calibration-Distortion-Removal/stream/imageseq"
)

var videoExtensions = []string{".mp4", ".avi", ".mov", ".mkv", ".m4v"}

var (
	infoPrefix    = color.New(color.Bold, color.FgCyan).SprintFunc()
	warningPrefix = color.New(color.Bold, color.FgYellow).SprintFunc()
)

// printf prints a message with no decoration.
func printf(w io.Writer, format string, a ...interface{}) {
	//nolint:errcheck
	fmt.Fprintf(w, format+"\n", a...)
}

// infof prints a message prefixed with a bold cyan "Info: ".
func infof(w io.Writer, format string, a ...interface{}) {
	//nolint:errcheck
	fmt.Fprint(w, infoPrefix("Info:"), " ")
	printf(w, format, a...)
}

// warningf prints a message prefixed with a bold yellow "Warning: ".
func warningf(w io.Writer, format string, a ...interface{}) {
	//nolint:errcheck
	fmt.Fprint(w, warningPrefix("Warning:"), " ")
	printf(w, format, a...)
}

const logFileMetadataKey = "lenscal.log_file"

// newLogger logs to stdout and, with --log-file, to a rotated file that closeLogFile releases.
func newLogger(c *cli.Context) logging.Logger {
	logger := logging.NewLogger("lenscal")
	if c.Bool(debugFlag) {
		logger = logging.NewDebugLogger("lenscal")
	}
	if path := c.String(logFileFlag); path != "" {
		rotating := &lumberjack.Logger{
			Filename:   path,
			MaxSize:    64,
			MaxBackups: 3,
			Compress:   true,
		}
		if c.App.Metadata == nil {
			c.App.Metadata = map[string]interface{}{}
		}
		c.App.Metadata[logFileMetadataKey] = rotating
		logger.AddAppender(logging.NewWriterAppender(rotating))
	}
	return logger
}

// closeLogFile runs after every command.
func closeLogFile(c *cli.Context) error {
	rotating, ok := c.App.Metadata[logFileMetadataKey].(*lumberjack.Logger)
	if !ok {
		return nil
	}
	delete(c.App.Metadata, logFileMetadataKey)
	return rotating.Close()
}

// loadConfig reads --config, or the defaults, and applies the flags of the running command on top.
func loadConfig(c *cli.Context, logger logging.Logger) (*config.Config, error) {
	cfg := config.Default()
	if path := c.String(configFlag); path != "" {
		var err error
		if cfg, err = config.Read(path, logger); err != nil {
			return nil, err
		}
	}
	if c.IsSet(boardWidthFlag) {
		cfg.Board.Width = c.Int(boardWidthFlag)
	}
	if c.IsSet(boardHeightFlag) {
		cfg.Board.Height = c.Int(boardHeightFlag)
	}
	if c.IsSet(squareSizeFlag) {
		cfg.Board.SquareSize = c.Float64(squareSizeFlag)
	}
	if c.IsSet(requiredFlag) {
		cfg.Board.RequiredObservations = c.Int(requiredFlag)
	}
	if c.IsSet(detectorFlag) {
		cfg.Detection.Method = c.String(detectorFlag)
	}
	if c.IsSet(everyFlag) {
		cfg.Collect.EveryNth = c.Int(everyFlag)
	}
	if c.IsSet(maxCapturesFlag) {
		cfg.Collect.MaxCaptures = c.Int(maxCapturesFlag)
	}
	if c.IsSet(workersFlag) {
		cfg.Pipeline.Workers = c.Int(workersFlag)
	}
	if c.IsSet(historyFlag) {
		cfg.HistoryPath = c.String(historyFlag)
	}
	if c.IsSet(fixK3Flag) {
		cfg.Solver.FixK3 = c.Bool(fixK3Flag)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func isVideo(path string) bool {
	ext := strings.ToLower(filepath.Ext(path))
	for _, v := range videoExtensions {
		if ext == v {
			return true
		}
	}
	return false
}

// openSource opens a directory as an image sequence and anything else as a video.
func openSource(ctx context.Context, path string, fps float64, logger logging.Logger) (stream.Source, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, &stream.SourceLoadError{Path: path, Err: err}
	}
	if info.IsDir() {
		return imageseq.Open(path, fps)
	}
	return ffmpeg.OpenVideo(ctx, path, logger)
}

// openSink encodes a video when path has a video extension and writes PNG frames into path otherwise.
func openSink(ctx context.Context, path string, meta stream.Metadata, opts ffmpeg.VideoOptions, logger logging.Logger) (stream.Sink, error) {
	if isVideo(path) {
		return ffmpeg.NewVideoSink(ctx, path, meta, opts, logger)
	}
	return imageseq.NewSink(path, imageseq.DefaultPattern)
}

func singleArg(c *cli.Context) (string, error) {
	if c.Args().Len() != 1 {
		return "", errors.Errorf("expected exactly one argument: %s", c.Command.ArgsUsage)
	}
	return c.Args().First(), nil
}

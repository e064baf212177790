// Package ffmpeg reads and writes video files by piping raw frames through the ffmpeg binary.
package ffmpeg

import (
	"encoding/json"
	"os/exec"
	"strconv"
	"strings"

	"github.com/pkg/errors"
	ffmpeg "github.com/u2takey/ffmpeg-go"

	"github.com/EminentCodfish/GoPro-Calibration-Distortion-Removal/stream"
)

type probeResult struct {
	Streams []probeStream `json:"streams"`
}

type probeStream struct {
	CodecType    string `json:"codec_type"`
	Width        int    `json:"width"`
	Height       int    `json:"height"`
	RFrameRate   string `json:"r_frame_rate"`
	AvgFrameRate string `json:"avg_frame_rate"`
	NbFrames     string `json:"nb_frames"`
}

// CheckInstalled returns an error when ffmpeg or ffprobe is not on the PATH.
func CheckInstalled() error {
	for _, bin := range []string{"ffmpeg", "ffprobe"} {
		if _, err := exec.LookPath(bin); err != nil {
			return errors.Wrapf(err, "%s is required", bin)
		}
	}
	return nil
}

// Probe reads the metadata of the first video stream of path.
func Probe(path string) (stream.Metadata, error) {
	out, err := ffmpeg.Probe(path)
	if err != nil {
		return stream.Metadata{}, err
	}
	return parseProbe([]byte(out))
}

func parseProbe(data []byte) (stream.Metadata, error) {
	var res probeResult
	if err := json.Unmarshal(data, &res); err != nil {
		return stream.Metadata{}, errors.Wrap(err, "cannot parse ffprobe output")
	}
	for _, s := range res.Streams {
		if s.CodecType != "video" {
			continue
		}
		if s.Width <= 0 || s.Height <= 0 {
			return stream.Metadata{}, errors.Errorf("video stream has invalid size %dx%d", s.Width, s.Height)
		}
		meta := stream.Metadata{Width: s.Width, Height: s.Height}
		meta.FPS = parseRate(s.AvgFrameRate)
		if meta.FPS == 0 {
			meta.FPS = parseRate(s.RFrameRate)
		}
		if n, err := strconv.Atoi(s.NbFrames); err == nil {
			meta.FrameCount = n
		}
		return meta, nil
	}
	return stream.Metadata{}, errors.New("no video stream found")
}

// parseRate turns "30000/1001" or "25" into frames per second; unparsable rates are 0.
func parseRate(rate string) float64 {
	num, den, found := strings.Cut(rate, "/")
	n, err := strconv.ParseFloat(num, 64)
	if err != nil {
		return 0
	}
	if !found {
		return n
	}
	d, err := strconv.ParseFloat(den, 64)
	if err != nil || d == 0 {
		return 0
	}
	return n / d
}

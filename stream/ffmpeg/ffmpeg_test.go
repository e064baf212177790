package ffmpeg

import (
	"context"
	"errors"
	"image"
	"image/color"
	"path/filepath"
	"testing"

	"go.viam.com/test"

	"github.com/EminentCodfish/GoPro-Calibration-Distortion-Removal/logging"
	"github.com/EminentCodfish/GoPro-Calibration-Distortion-Removal/stream"
)

const probeOutput = `{
  "streams": [
    {"codec_type": "audio", "sample_rate": "48000"},
    {"codec_type": "video", "width": 1920, "height": 1080,
     "r_frame_rate": "60000/1001", "avg_frame_rate": "30000/1001", "nb_frames": "1800"}
  ]
}`

func TestParseProbe(t *testing.T) {
	meta, err := parseProbe([]byte(probeOutput))
	test.That(t, err, test.ShouldBeNil)
	test.That(t, meta.Width, test.ShouldEqual, 1920)
	test.That(t, meta.Height, test.ShouldEqual, 1080)
	test.That(t, meta.FPS, test.ShouldAlmostEqual, 29.97, 0.01)
	test.That(t, meta.FrameCount, test.ShouldEqual, 1800)

	_, err = parseProbe([]byte(`{"streams": [{"codec_type": "audio"}]}`))
	test.That(t, err, test.ShouldNotBeNil)
	_, err = parseProbe([]byte(`not json`))
	test.That(t, err, test.ShouldNotBeNil)
	_, err = parseProbe([]byte(`{"streams": [{"codec_type": "video", "width": 0, "height": 10}]}`))
	test.That(t, err, test.ShouldNotBeNil)
}

func TestParseRate(t *testing.T) {
	test.That(t, parseRate("25"), test.ShouldEqual, 25.)
	test.That(t, parseRate("30/1"), test.ShouldEqual, 30.)
	test.That(t, parseRate("0/0"), test.ShouldEqual, 0.)
	test.That(t, parseRate(""), test.ShouldEqual, 0.)
}

func TestRGB24(t *testing.T) {
	img := image.NewRGBA(image.Rect(0, 0, 3, 2))
	img.Set(1, 1, color.RGBA{10, 20, 30, 255})
	buf := make([]byte, 3*2*3)
	toRGB24(img, buf)
	test.That(t, buf[12:15], test.ShouldResemble, []byte{10, 20, 30})

	back := rgb24ToNRGBA(buf, 3, 2)
	test.That(t, back.NRGBAAt(1, 1), test.ShouldResemble, color.NRGBA{10, 20, 30, 255})
	test.That(t, back.NRGBAAt(0, 0), test.ShouldResemble, color.NRGBA{0, 0, 0, 255})
}

func TestVideoRoundTrip(t *testing.T) {
	if err := CheckInstalled(); err != nil {
		t.Skip(err)
	}
	ctx := context.Background()
	logger := logging.NewTestLogger(t)
	path := filepath.Join(t.TempDir(), "out.avi")
	meta := stream.Metadata{Width: 64, Height: 48, FPS: 10}

	sink, err := NewVideoSink(ctx, path, meta, VideoOptions{Quality: 2}, logger)
	test.That(t, err, test.ShouldBeNil)
	for i := 0; i < 5; i++ {
		img := image.NewGray(image.Rect(0, 0, 64, 48))
		for k := range img.Pix {
			img.Pix[k] = uint8(40 * i)
		}
		test.That(t, sink.Write(ctx, stream.Frame{Index: i, Image: img}), test.ShouldBeNil)
	}
	test.That(t, sink.Write(ctx, stream.Frame{Index: 5, Image: image.NewGray(image.Rect(0, 0, 10, 10))}), test.ShouldNotBeNil)
	test.That(t, sink.Close(), test.ShouldBeNil)
	test.That(t, sink.Written(), test.ShouldEqual, 5)

	src, err := OpenVideo(ctx, path, logger)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, src.Metadata().Size(), test.ShouldResemble, image.Point{64, 48})
	frames, err := stream.ReadAll(ctx, src)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, frames, test.ShouldHaveLength, 5)
	r, _, _, _ := frames[3].Image.At(30, 20).RGBA()
	test.That(t, float64(r>>8), test.ShouldAlmostEqual, 120, 8)
	test.That(t, src.Close(), test.ShouldBeNil)
}

func TestOpenVideoMissingFile(t *testing.T) {
	if err := CheckInstalled(); err != nil {
		t.Skip(err)
	}
	_, err := OpenVideo(context.Background(), filepath.Join(t.TempDir(), "nope.mp4"), logging.NewTestLogger(t))
	test.That(t, err, test.ShouldNotBeNil)
	var loadErr *stream.SourceLoadError
	test.That(t, errors.As(err, &loadErr), test.ShouldBeTrue)
}

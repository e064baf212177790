package calibration

import (
	"context"
	"image"
	"os"
	"path/filepath"
	"testing"

	"github.com/golang/geo/r2"
	"github.com/pkg/errors"
	"go.viam.com/test"

	"github.com/EminentCodfish/GoPro-Calibration-Distortion-Removal/logging"
	"github.com/EminentCodfish/GoPro-Calibration-Distortion-Removal/rimage"
	"github.com/EminentCodfish/GoPro-Calibration-Distortion-Removal/rimage/detection/chessboard"
	"github.com/EminentCodfish/GoPro-Calibration-Distortion-Removal/stream"
	"github.com/EminentCodfish/GoPro-Calibration-Distortion-Removal/testutils"
)

// scriptedDetector returns the corners stored for an image, or ErrPatternNotFound.
type scriptedDetector struct {
	corners map[image.Image][]r2.Point
	calls   int
}

func (d *scriptedDetector) FindCorners(img image.Image, patternSize image.Point) ([]r2.Point, error) {
	d.calls++
	if c, ok := d.corners[img]; ok {
		return c, nil
	}
	return nil, errors.Wrap(chessboard.ErrPatternNotFound, "scripted miss")
}

type brokenDetector struct{}

func (brokenDetector) FindCorners(img image.Image, patternSize image.Point) ([]r2.Point, error) {
	return nil, errors.New("detector crashed")
}

func smallBoard() BoardSpec {
	return BoardSpec{Width: 3, Height: 2, SquareSize: 10, RequiredObservations: 2}
}

func fakeCorners(offset float64) []r2.Point {
	var out []r2.Point
	for j := 0; j < 2; j++ {
		for i := 0; i < 3; i++ {
			out = append(out, r2.Point{X: offset + float64(i)*10, Y: offset + float64(j)*10})
		}
	}
	return out
}

func newImages(n int) []image.Image {
	imgs := make([]image.Image, n)
	for i := range imgs {
		imgs[i] = image.NewGray(image.Rect(0, 0, 64, 48))
	}
	return imgs
}

func TestNewCollector(t *testing.T) {
	logger := logging.NewTestLogger(t)
	_, err := NewCollector(CollectorConfig{Board: BoardSpec{Width: 3}}, &scriptedDetector{}, logger)
	test.That(t, err, test.ShouldNotBeNil)
	_, err = NewCollector(CollectorConfig{Board: smallBoard()}, nil, logger)
	test.That(t, err, test.ShouldNotBeNil)

	c, err := NewCollector(CollectorConfig{Board: smallBoard()}, &scriptedDetector{}, logger)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, c.MaxCaptures(), test.ShouldEqual, 7)
	test.That(t, c.Board(), test.ShouldResemble, smallBoard())

	c, err = NewCollector(CollectorConfig{Board: smallBoard(), MaxCaptures: 3}, &scriptedDetector{}, logger)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, c.MaxCaptures(), test.ShouldEqual, 3)
}

func TestCollectSkipsMisses(t *testing.T) {
	logger, observed := logging.NewObservedTestLogger(t)
	imgs := newImages(5)
	det := &scriptedDetector{corners: map[image.Image][]r2.Point{
		imgs[1]: fakeCorners(5),
		imgs[3]: fakeCorners(8),
		imgs[4]: fakeCorners(2)[:4], // wrong count
	}}
	c, err := NewCollector(CollectorConfig{Board: smallBoard()}, det, logger)
	test.That(t, err, test.ShouldBeNil)

	obs, err := c.Collect(context.Background(), imgs)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, obs, test.ShouldHaveLength, 2)
	test.That(t, obs[0].Source, test.ShouldEqual, 1)
	test.That(t, obs[1].Source, test.ShouldEqual, 3)
	test.That(t, obs[0].Image, test.ShouldResemble, fakeCorners(5))
	test.That(t, obs[0].Pattern, test.ShouldResemble, GeneratePattern(3, 2, 10))
	test.That(t, obs[0].ImageSize, test.ShouldResemble, image.Point{64, 48})
	test.That(t, observed.FilterMessage("skipping candidate").Len(), test.ShouldEqual, 3)

	_, err = c.Observe(imgs[0], 0)
	test.That(t, errors.Is(err, chessboard.ErrPatternNotFound), test.ShouldBeTrue)

	test.That(t, RequireObservations(obs, 3), test.ShouldNotBeNil)
}

func TestCollectStopsOnCancelAndDetectorFailure(t *testing.T) {
	logger := logging.NewTestLogger(t)
	imgs := newImages(3)
	det := &scriptedDetector{corners: map[image.Image][]r2.Point{imgs[0]: fakeCorners(5)}}
	c, err := NewCollector(CollectorConfig{Board: smallBoard()}, det, logger)
	test.That(t, err, test.ShouldBeNil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	obs, err := c.Collect(ctx, imgs)
	test.That(t, err, test.ShouldEqual, context.Canceled)
	test.That(t, obs, test.ShouldBeEmpty)
	test.That(t, det.calls, test.ShouldEqual, 0)

	c, err = NewCollector(CollectorConfig{Board: smallBoard()}, brokenDetector{}, logger)
	test.That(t, err, test.ShouldBeNil)
	_, err = c.Collect(context.Background(), imgs)
	test.That(t, err, test.ShouldNotBeNil)
	test.That(t, err.Error(), test.ShouldContainSubstring, "detector crashed")
}

func TestCollectFromSourceEveryNth(t *testing.T) {
	logger := logging.NewTestLogger(t)
	imgs := newImages(10)
	corners := map[image.Image][]r2.Point{}
	for i := range imgs {
		if i != 4 {
			corners[imgs[i]] = fakeCorners(float64(i))
		}
	}
	det := &scriptedDetector{corners: corners}
	c, err := NewCollector(CollectorConfig{Board: smallBoard(), MaxCaptures: 3}, det, logger)
	test.That(t, err, test.ShouldBeNil)

	res, err := c.CollectFromSource(context.Background(), stream.NewSliceSource(imgs, 30), EveryNthFrame{N: 2})
	test.That(t, err, test.ShouldBeNil)
	test.That(t, res.Aborted, test.ShouldBeFalse)
	// frames 0, 2, 6 are captured; frame 4 has no board
	test.That(t, res.Observations, test.ShouldHaveLength, 3)
	test.That(t, []int{res.Observations[0].Source, res.Observations[1].Source, res.Observations[2].Source},
		test.ShouldResemble, []int{0, 2, 6})
	test.That(t, res.FramesSeen, test.ShouldEqual, 7)
	test.That(t, det.calls, test.ShouldEqual, 4)

	// end of stream before MaxCaptures
	c, err = NewCollector(CollectorConfig{Board: smallBoard(), MaxCaptures: 50}, det, logger)
	test.That(t, err, test.ShouldBeNil)
	res, err = c.CollectFromSource(context.Background(), stream.NewSliceSource(imgs, 30), EveryNthFrame{N: 1})
	test.That(t, err, test.ShouldBeNil)
	test.That(t, res.Observations, test.ShouldHaveLength, 9)
	test.That(t, res.FramesSeen, test.ShouldEqual, 10)
}

func TestCollectFromSourceAbort(t *testing.T) {
	logger := logging.NewTestLogger(t)
	imgs := newImages(6)
	det := &scriptedDetector{corners: map[image.Image][]r2.Point{
		imgs[0]: fakeCorners(1), imgs[1]: fakeCorners(2), imgs[2]: fakeCorners(3),
	}}
	c, err := NewCollector(CollectorConfig{Board: smallBoard()}, det, logger)
	test.That(t, err, test.ShouldBeNil)

	decisions := make(chan Decision, 4)
	decisions <- Capture
	decisions <- Skip
	decisions <- Capture
	decisions <- Abort
	detections := make(chan Detection, 4)
	presenter := &ChannelPresenter{Decisions: decisions, Detections: detections}

	res, err := c.CollectFromSource(context.Background(), stream.NewSliceSource(imgs, 30), presenter)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, res.Aborted, test.ShouldBeTrue)
	test.That(t, res.Observations, test.ShouldHaveLength, 2)
	test.That(t, res.Observations[1].Source, test.ShouldEqual, 2)
	test.That(t, res.FramesSeen, test.ShouldEqual, 4)
	close(detections)
	var got []Detection
	for d := range detections {
		got = append(got, d)
	}
	test.That(t, got, test.ShouldHaveLength, 2)
	test.That(t, got[0].Found, test.ShouldBeTrue)
	test.That(t, got[1].Frame, test.ShouldEqual, 2)

	// a closed decision channel aborts as well
	closed := make(chan Decision)
	close(closed)
	res, err = c.CollectFromSource(context.Background(), stream.NewSliceSource(imgs, 30), &ChannelPresenter{Decisions: closed})
	test.That(t, err, test.ShouldBeNil)
	test.That(t, res.Aborted, test.ShouldBeTrue)
	test.That(t, res.Observations, test.ShouldBeEmpty)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = c.CollectFromSource(ctx, stream.NewSliceSource(imgs, 30), &ChannelPresenter{Decisions: make(chan Decision)})
	test.That(t, err, test.ShouldEqual, context.Canceled)
}

func TestOverlayWriterWithSaddleDetector(t *testing.T) {
	logger := logging.NewTestLogger(t)
	dir := t.TempDir()
	board := BoardSpec{Width: testBoard.Cols, Height: testBoard.Rows, SquareSize: testBoard.SquareSize, RequiredObservations: 1}
	model := testutils.DefaultSyntheticCamera()
	renderer := testutils.NewBoardRenderer(model, testBoard)
	poses := renderer.SyntheticPoses(2)
	imgs := []image.Image{
		renderer.Render(poses[0]),
		image.NewGray(image.Rect(0, 0, model.Width, model.Height)),
		renderer.Render(poses[1]),
	}

	detector := chessboard.NewSaddleDetector(chessboard.DefaultDetectionConf(), logger)
	c, err := NewCollector(CollectorConfig{Board: board, SubPix: chessboard.DefaultSubPixConf}, detector, logger)
	test.That(t, err, test.ShouldBeNil)
	presenter := NewOverlayWriter(EveryNthFrame{}, dir, board, 200, logger)

	res, err := c.CollectFromSource(context.Background(), stream.NewSliceSource(imgs, 30), presenter)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, res.Observations, test.ShouldHaveLength, 2)

	// refined corners land on the true corners
	for k, obs := range res.Observations {
		truth := renderer.Corners(poses[k])
		var sum float64
		for i, p := range obs.Image {
			sum += p.Sub(truth[i]).Norm()
		}
		test.That(t, sum/float64(len(truth)), test.ShouldBeLessThan, 0.15)
	}

	entries, err := os.ReadDir(dir)
	test.That(t, err, test.ShouldBeNil)
	var names []string
	for _, e := range entries {
		names = append(names, e.Name())
	}
	test.That(t, names, test.ShouldResemble, []string{
		"corners_000000_found.png", "corners_000001_missed.png", "corners_000002_found.png",
	})
	thumb, err := rimage.ReadImageFromFile(filepath.Join(dir, names[0]))
	test.That(t, err, test.ShouldBeNil)
	test.That(t, thumb.Bounds().Dx(), test.ShouldEqual, 200)
	test.That(t, thumb.Bounds().Dy(), test.ShouldEqual, 150)
}

func TestDecisionString(t *testing.T) {
	test.That(t, Skip.String(), test.ShouldEqual, "skip")
	test.That(t, Capture.String(), test.ShouldEqual, "capture")
	test.That(t, Abort.String(), test.ShouldEqual, "abort")
	test.That(t, Decision(9).String(), test.ShouldEqual, "unknown")
}

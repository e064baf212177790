package cli

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"go.viam.com/test"

	"github.com/EminentCodfish/GoPro-Calibration-Distortion-Removal/rimage"
	"github.com/EminentCodfish/GoPro-Calibration-Distortion-Removal/rimage/transform"
	"github.com/EminentCodfish/GoPro-Calibration-Distortion-Removal/stream/imageseq"
	"github.com/EminentCodfish/GoPro-Calibration-Distortion-Removal/testutils"
)

func runApp(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out, errOut bytes.Buffer
	err := NewApp(&out, &errOut).Run(append([]string{"lenscal"}, args...))
	return out.String() + errOut.String(), err
}

// renderBoards writes n views of a 9x6 board taken through the synthetic camera.
func renderBoards(t *testing.T, dir string, n int) *transform.PinholeCameraModel {
	t.Helper()
	model := testutils.DefaultSyntheticCamera()
	renderer := testutils.NewBoardRenderer(model, testutils.SyntheticBoard{Cols: 9, Rows: 6, SquareSize: 25})
	for i, pose := range renderer.SyntheticPoses(n) {
		path := filepath.Join(dir, fmt.Sprintf("board_%02d.png", i))
		test.That(t, rimage.WriteImageToFile(path, renderer.Render(pose)), test.ShouldBeNil)
	}
	return model
}

func TestCalibrateUndistortHistory(t *testing.T) {
	if testing.Short() {
		t.Skip("renders and calibrates 12 views")
	}
	tmp := t.TempDir()
	boards := filepath.Join(tmp, "boards")
	truth := renderBoards(t, boards, 12)
	modelPath := filepath.Join(tmp, "out", "calibration.json")
	history := filepath.Join(tmp, "history.db")
	boardArgs := []string{"--board-width", "9", "--board-height", "6", "--square-size", "25", "--required", "10"}

	out, err := runApp(t, append(append([]string{"calibrate", "--output", modelPath, "--history", history,
		"--report", filepath.Join(tmp, "report"), "--fix-k3"}, boardArgs...), boards)...)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, out, test.ShouldContainSubstring, "wrote calibration to")

	artifact, err := transform.ReadModelJSONFile(modelPath)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, artifact.Width, test.ShouldEqual, truth.Width)
	test.That(t, artifact.Height, test.ShouldEqual, truth.Height)
	test.That(t, artifact.MeanReprojectionError, test.ShouldBeLessThan, 0.5)
	test.That(t, artifact.IntrinsicMatrix[0], test.ShouldAlmostEqual, truth.Fx, 0.02*truth.Fx)
	test.That(t, artifact.DistortionCoefficients[0], test.ShouldAlmostEqual, truth.Distortion.RadialK1, 0.1*0.28)
	_, err = os.Stat(filepath.Join(tmp, "report", "residuals.png"))
	test.That(t, err, test.ShouldBeNil)

	out, err = runApp(t, "history", "--history", history)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, out, test.ShouldContainSubstring, artifact.ID)
	test.That(t, out, test.ShouldContainSubstring, "480x360")

	exported := filepath.Join(tmp, "exported.json")
	_, err = runApp(t, "history", "--history", history, "--width", "480", "--height", "360", "--export", exported)
	test.That(t, err, test.ShouldBeNil)
	again, err := transform.ReadModelJSONFile(exported)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, again.ID, test.ShouldEqual, artifact.ID)

	out, err = runApp(t, append(append([]string{"inspect", "--images", boards}, boardArgs...), modelPath)...)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, out, test.ShouldContainSubstring, "mean reprojection error on")

	corrected := filepath.Join(tmp, "corrected")
	out, err = runApp(t, "undistort", "--history", history, "--workers", "3", "--output", corrected, boards)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, out, test.ShouldContainSubstring, "wrote 12 frames")
	frames, err := imageseq.List(corrected)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, frames, test.ShouldHaveLength, 12)
}

func TestCommandErrors(t *testing.T) {
	tmp := t.TempDir()

	_, err := runApp(t, "calibrate")
	test.That(t, err, test.ShouldNotBeNil)
	test.That(t, err.Error(), test.ShouldContainSubstring, "expected exactly one argument")

	_, err = runApp(t, "calibrate", "--board-width", "1", tmp)
	test.That(t, err, test.ShouldNotBeNil)
	test.That(t, err.Error(), test.ShouldContainSubstring, "at least 2x2 inner corners")

	// an empty directory holds no observations
	_, err = runApp(t, "calibrate", "--output", filepath.Join(tmp, "c.json"), tmp)
	test.That(t, err, test.ShouldNotBeNil)

	_, err = runApp(t, "undistort", "--output", filepath.Join(tmp, "out"), tmp)
	test.That(t, err, test.ShouldNotBeNil)
	test.That(t, err.Error(), test.ShouldContainSubstring, "--model or --history is required")

	_, err = runApp(t, "history")
	test.That(t, err, test.ShouldNotBeNil)
	test.That(t, err.Error(), test.ShouldContainSubstring, "history_path in the config is required")

	_, err = runApp(t, "history", "--history", filepath.Join(tmp, "h.db"), "--export", "x.json")
	test.That(t, err, test.ShouldNotBeNil)
	test.That(t, err.Error(), test.ShouldContainSubstring, "--export needs --width and --height")

	_, err = runApp(t, "inspect", filepath.Join(tmp, "missing.json"))
	test.That(t, err, test.ShouldNotBeNil)
}

func TestCollectFromImageDirectory(t *testing.T) {
	tmp := t.TempDir()
	boards := filepath.Join(tmp, "boards")
	renderBoards(t, boards, 6)
	out := filepath.Join(tmp, "collected")

	logFile := filepath.Join(tmp, "logs", "lenscal.log")
	stdout, err := runApp(t, "--log-file", logFile, "collect", "--output", out, "--every", "2", "--board-width", "9", "--board-height", "6",
		"--square-size", "25", "--required", "2", boards)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, stdout, test.ShouldContainSubstring, "captured 3 boards from 6 frames")

	frames, err := imageseq.List(filepath.Join(out, "frames"))
	test.That(t, err, test.ShouldBeNil)
	test.That(t, frames, test.ShouldResemble, []string{
		filepath.Join(out, "frames", "frame_000000.png"),
		filepath.Join(out, "frames", "frame_000002.png"),
		filepath.Join(out, "frames", "frame_000004.png"),
	})
	overlays, err := imageseq.List(filepath.Join(out, "overlays"))
	test.That(t, err, test.ShouldBeNil)
	test.That(t, overlays, test.ShouldHaveLength, 3)

	logged, err := os.ReadFile(logFile)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, string(logged), test.ShouldContainSubstring, "collection finished")
}

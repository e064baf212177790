package imageseq

import (
	"context"
	"errors"
	"image"
	"image/color"
	"os"
	"path/filepath"
	"testing"

	"go.viam.com/test"

	"github.com/EminentCodfish/GoPro-Calibration-Distortion-Removal/rimage"
	"github.com/EminentCodfish/GoPro-Calibration-Distortion-Removal/stream"
)

func grayFrame(level uint8) *image.Gray {
	img := image.NewGray(image.Rect(0, 0, 8, 6))
	for i := range img.Pix {
		img.Pix[i] = level
	}
	img.SetGray(0, 0, color.Gray{255 - level})
	return img
}

func TestSinkThenSource(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	sink, err := NewSink(dir, "")
	test.That(t, err, test.ShouldBeNil)
	for i := 0; i < 3; i++ {
		test.That(t, sink.Write(ctx, stream.Frame{Index: i, Image: grayFrame(uint8(40 * i))}), test.ShouldBeNil)
	}
	test.That(t, sink.Close(), test.ShouldBeNil)
	test.That(t, sink.Written(), test.ShouldEqual, 3)

	// stray files are ignored
	test.That(t, os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("x"), 0o600), test.ShouldBeNil)

	src, err := Open(dir, 25)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, src.Metadata(), test.ShouldResemble, stream.Metadata{Width: 8, Height: 6, FPS: 25, FrameCount: 3})
	test.That(t, filepath.Base(src.Paths()[0]), test.ShouldEqual, "frame_000000.png")

	frames, err := stream.ReadAll(ctx, src)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, frames, test.ShouldHaveLength, 3)
	for i, f := range frames {
		test.That(t, f.Index, test.ShouldEqual, i)
		r, _, _, _ := f.Image.At(3, 3).RGBA()
		test.That(t, r>>8, test.ShouldEqual, uint32(40*i))
	}
	test.That(t, src.Close(), test.ShouldBeNil)
}

func TestSinkFormats(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	for _, pattern := range []string{"f%03d.ppm", "f%03d.qoi", "f%03d.jpg"} {
		sink, err := NewSink(dir, pattern)
		test.That(t, err, test.ShouldBeNil)
		test.That(t, sink.Write(ctx, stream.Frame{Index: 4, Image: grayFrame(100)}), test.ShouldBeNil)
	}
	paths, err := List(dir)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, paths, test.ShouldHaveLength, 3)
	for _, p := range paths {
		img, err := rimage.ReadImageFromFile(p)
		test.That(t, err, test.ShouldBeNil)
		test.That(t, img.Bounds().Size(), test.ShouldResemble, image.Point{8, 6})
	}

	_, err = NewSink(dir, "frame_%d.txt")
	test.That(t, err, test.ShouldNotBeNil)
}

func TestSourceErrors(t *testing.T) {
	_, err := Open(filepath.Join(t.TempDir(), "missing"), 30)
	var loadErr *stream.SourceLoadError
	test.That(t, errors.As(err, &loadErr), test.ShouldBeTrue)

	dir := t.TempDir()
	test.That(t, rimage.WriteImageToFile(filepath.Join(dir, "a.png"), grayFrame(10)), test.ShouldBeNil)
	test.That(t, os.WriteFile(filepath.Join(dir, "b.png"), []byte("not a png"), 0o600), test.ShouldBeNil)
	src, err := Open(dir, 30)
	test.That(t, err, test.ShouldBeNil)
	frames, err := stream.ReadAll(context.Background(), src)
	test.That(t, frames, test.ShouldHaveLength, 1)
	var readErr *stream.FrameReadError
	test.That(t, errors.As(err, &readErr), test.ShouldBeTrue)
	test.That(t, readErr.Index, test.ShouldEqual, 1)
}

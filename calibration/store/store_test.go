package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/pkg/errors"
	"go.viam.com/test"

	"github.com/EminentCodfish/GoPro-Calibration-Distortion-Removal/rimage/transform"
)

func artifact(t *testing.T, width, height int, fx float64, created time.Time) *transform.CalibrationArtifact {
	t.Helper()
	model, err := transform.NewPinholeCameraModel(transform.PinholeCameraIntrinsics{
		Width: width, Height: height, Fx: fx, Fy: fx, Ppx: float64(width-1) / 2, Ppy: float64(height-1) / 2,
	}, []float64{-0.25, 0.1, 0.0003, -0.0002, -0.02})
	test.That(t, err, test.ShouldBeNil)
	a, err := transform.NewCalibrationArtifact(model, 0.21, 0.27)
	test.That(t, err, test.ShouldBeNil)
	a.CreatedAt = created
	return a
}

func TestStoreRecordAndLatest(t *testing.T) {
	ctx := context.Background()
	s, err := Open(ctx, ":memory:")
	test.That(t, err, test.ShouldBeNil)
	defer func() { test.That(t, s.Close(), test.ShouldBeNil) }()

	_, err = s.Latest(ctx, 1920, 1080)
	test.That(t, errors.Is(err, ErrNotFound), test.ShouldBeTrue)

	base := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	older := artifact(t, 1920, 1080, 1000, base)
	newer := artifact(t, 1920, 1080, 1010, base.Add(time.Hour))
	other := artifact(t, 1280, 720, 700, base.Add(2*time.Hour))
	test.That(t, s.Record(ctx, older, 15, "clip1.mp4"), test.ShouldBeNil)
	test.That(t, s.Record(ctx, newer, 18, "clip2.mp4"), test.ShouldBeNil)
	test.That(t, s.Record(ctx, other, 12, "frames/"), test.ShouldBeNil)

	latest, err := s.Latest(ctx, 1920, 1080)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, latest.ID, test.ShouldEqual, newer.ID)
	test.That(t, latest.IntrinsicMatrix, test.ShouldResemble, newer.IntrinsicMatrix)
	test.That(t, latest.DistortionCoefficients, test.ShouldResemble, newer.DistortionCoefficients)
	test.That(t, latest.CreatedAt.Equal(newer.CreatedAt), test.ShouldBeTrue)

	model, err := latest.Model()
	test.That(t, err, test.ShouldBeNil)
	test.That(t, model.Fx, test.ShouldEqual, 1010.)

	got, err := s.Get(ctx, older.ID)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, got.IntrinsicMatrix[0], test.ShouldEqual, 1000.)
	_, err = s.Get(ctx, "nope")
	test.That(t, errors.Is(err, ErrNotFound), test.ShouldBeTrue)

	// ids are unique
	test.That(t, s.Record(ctx, older, 15, "clip1.mp4"), test.ShouldNotBeNil)
}

func TestStoreList(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "history.db")
	s, err := Open(ctx, path)
	test.That(t, err, test.ShouldBeNil)

	base := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	first := artifact(t, 640, 480, 500, base)
	second := artifact(t, 640, 480, 505, base.Add(time.Minute))
	test.That(t, s.Record(ctx, first, 10, "a"), test.ShouldBeNil)
	test.That(t, s.Record(ctx, second, 11, "b"), test.ShouldBeNil)
	test.That(t, s.Close(), test.ShouldBeNil)

	// the history survives reopening
	s, err = Open(ctx, path)
	test.That(t, err, test.ShouldBeNil)
	defer func() { test.That(t, s.Close(), test.ShouldBeNil) }()

	entries, err := s.List(ctx)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, entries, test.ShouldHaveLength, 2)
	test.That(t, entries[0].ID, test.ShouldEqual, second.ID)
	test.That(t, entries[0].Observations, test.ShouldEqual, 11)
	test.That(t, entries[0].Source, test.ShouldEqual, "b")
	test.That(t, entries[0].CreatedAt.Equal(second.CreatedAt), test.ShouldBeTrue)
	test.That(t, entries[1].ID, test.ShouldEqual, first.ID)
	test.That(t, entries[1].Width, test.ShouldEqual, 640)
	test.That(t, entries[1].MeanReprojectionError, test.ShouldEqual, 0.21)
	test.That(t, entries[1].RMSError, test.ShouldEqual, 0.27)
}

func TestStoreRejectsInvalidArtifact(t *testing.T) {
	ctx := context.Background()
	s, err := Open(ctx, ":memory:")
	test.That(t, err, test.ShouldBeNil)
	defer func() { test.That(t, s.Close(), test.ShouldBeNil) }()

	a := artifact(t, 640, 480, 500, time.Now())
	a.DistortionCoefficients = a.DistortionCoefficients[:4]
	test.That(t, s.Record(ctx, a, 3, ""), test.ShouldNotBeNil)
	entries, err := s.List(ctx)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, entries, test.ShouldBeEmpty)
}

package transform

import (
	"bytes"
	"path/filepath"
	"strings"
	"testing"

	"go.viam.com/test"
)

func TestCalibrationArtifactRoundTrip(t *testing.T) {
	model := testModel(t, []float64{-0.2834917261, 0.0912345678901, 1.1e-4, -3.3e-5, 0.0012})
	model.Fx = 501.23456789012345
	artifact, err := NewCalibrationArtifact(model, 0.1234, 0.2)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, artifact.ID, test.ShouldNotBeEmpty)
	test.That(t, artifact.IntrinsicMatrix, test.ShouldHaveLength, 9)
	test.That(t, artifact.DistortionModel, test.ShouldEqual, BrownConradyDistortionType)

	var buf bytes.Buffer
	test.That(t, WriteModelJSON(&buf, artifact), test.ShouldBeNil)
	read, err := ReadModelJSON(&buf)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, read.IntrinsicMatrix, test.ShouldResemble, artifact.IntrinsicMatrix)
	test.That(t, read.DistortionCoefficients, test.ShouldResemble, artifact.DistortionCoefficients)
	test.That(t, read.CreatedAt.Equal(artifact.CreatedAt), test.ShouldBeTrue)

	readModel, err := read.Model()
	test.That(t, err, test.ShouldBeNil)
	test.That(t, readModel, test.ShouldResemble, model)

	path := filepath.Join(t.TempDir(), "out", "calibration.json")
	test.That(t, WriteModelJSONFile(path, artifact), test.ShouldBeNil)
	fromFile, err := ReadModelJSONFile(path)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, fromFile.ID, test.ShouldEqual, artifact.ID)
	test.That(t, fromFile.IntrinsicMatrix, test.ShouldResemble, artifact.IntrinsicMatrix)
}

func TestReadModelJSONRejectsMalformed(t *testing.T) {
	for name, data := range map[string]string{
		"not json":           `{"width_px":`,
		"short matrix":       `{"width_px":640,"height_px":480,"intrinsic_matrix":[1,0,320,0,1,240,0,0],"distortion_coefficients":[0,0,0,0,0]}`,
		"short coefficients": `{"width_px":640,"height_px":480,"intrinsic_matrix":[1,0,320,0,1,240,0,0,1],"distortion_coefficients":[0,0,0]}`,
		"zero size":          `{"width_px":0,"height_px":480,"intrinsic_matrix":[1,0,320,0,1,240,0,0,1],"distortion_coefficients":[0,0,0,0,0]}`,
		"negative focal":     `{"width_px":640,"height_px":480,"intrinsic_matrix":[-1,0,320,0,1,240,0,0,1],"distortion_coefficients":[0,0,0,0,0]}`,
		"unknown model":      `{"width_px":640,"height_px":480,"intrinsic_matrix":[1,0,320,0,1,240,0,0,1],"distortion_model":"fisheye","distortion_coefficients":[0,0,0,0,0]}`,
		"inverse model":      `{"width_px":640,"height_px":480,"intrinsic_matrix":[1,0,320,0,1,240,0,0,1],"distortion_model":"inverse_brown_conrady","distortion_coefficients":[0,0,0,0,0]}`,
	} {
		t.Run(name, func(t *testing.T) {
			_, err := ReadModelJSON(strings.NewReader(data))
			test.That(t, err, test.ShouldNotBeNil)
		})
	}

	_, err := ReadModelJSONFile(filepath.Join(t.TempDir(), "missing.json"))
	test.That(t, err, test.ShouldNotBeNil)
}

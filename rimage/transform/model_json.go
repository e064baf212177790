package transform

import (
	"encoding/json"
	"image"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"go.uber.org/multierr"
	"go.viam.com/utils"
	"gonum.org/v1/gonum/mat"
)

// CalibrationArtifact is the persisted result of a calibration run. It is the only hand-off between
// calibrating a camera and undistorting its footage later, so numbers are written with full
// precision and read back unchanged.
type CalibrationArtifact struct {
	ID              string    `json:"id"`
	CreatedAt       time.Time `json:"created_at"`
	Width           int       `json:"width_px"`
	Height          int       `json:"height_px"`
	IntrinsicMatrix []float64 `json:"intrinsic_matrix"`
	// DistortionModel is brown_conrady when empty.
	DistortionModel        DistortionType `json:"distortion_model,omitempty"`
	DistortionCoefficients []float64      `json:"distortion_coefficients"`
	MeanReprojectionError  float64        `json:"mean_reprojection_error"`
	RMSError               float64        `json:"rms_error"`
}

// NewCalibrationArtifact wraps a model and its quality metrics in a new artifact.
func NewCalibrationArtifact(model *PinholeCameraModel, meanError, rmsError float64) (*CalibrationArtifact, error) {
	if err := model.CheckValid(); err != nil {
		return nil, err
	}
	return &CalibrationArtifact{
		ID:                     uuid.NewString(),
		CreatedAt:              time.Now().UTC(),
		Width:                  model.Width,
		Height:                 model.Height,
		IntrinsicMatrix:        append([]float64(nil), model.GetCameraMatrix().RawMatrix().Data...),
		DistortionModel:        model.Distortion.ModelType(),
		DistortionCoefficients: model.DistortionCoefficients(),
		MeanReprojectionError:  meanError,
		RMSError:               rmsError,
	}, nil
}

// Model validates the artifact and rebuilds the camera model it describes.
func (a *CalibrationArtifact) Model() (*PinholeCameraModel, error) {
	if a == nil {
		return nil, NewNoIntrinsicsError("calibration artifact is nil")
	}
	if len(a.IntrinsicMatrix) != 9 {
		return nil, errors.Errorf("intrinsic_matrix must have 9 values, got %d", len(a.IntrinsicMatrix))
	}
	if a.DistortionModel != "" {
		d, err := NewDistorter(a.DistortionModel, a.DistortionCoefficients)
		if err != nil {
			return nil, err
		}
		if d.ModelType() != BrownConradyDistortionType {
			return nil, errors.Errorf("cannot undistort with a %s model", d.ModelType())
		}
	}
	if len(a.DistortionCoefficients) != NumDistortionCoefficients {
		return nil, errors.Errorf("distortion_coefficients must have %d values, got %d",
			NumDistortionCoefficients, len(a.DistortionCoefficients))
	}
	k := mat.NewDense(3, 3, append([]float64(nil), a.IntrinsicMatrix...))
	return NewPinholeCameraModelFromMatrix(k, a.DistortionCoefficients, image.Point{a.Width, a.Height})
}

// WriteModelJSON encodes the artifact as indented JSON.
func WriteModelJSON(w io.Writer, a *CalibrationArtifact) error {
	if _, err := a.Model(); err != nil {
		return errors.Wrap(err, "refusing to write invalid calibration")
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(a)
}

// ReadModelJSON decodes and validates an artifact.
func ReadModelJSON(r io.Reader) (*CalibrationArtifact, error) {
	var a CalibrationArtifact
	if err := json.NewDecoder(r).Decode(&a); err != nil {
		return nil, errors.Wrap(err, "error parsing calibration JSON")
	}
	if _, err := a.Model(); err != nil {
		return nil, err
	}
	return &a, nil
}

// WriteModelJSONFile writes the artifact to path, creating parent directories.
func WriteModelJSONFile(path string, a *CalibrationArtifact) (err error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		return err
	}
	//nolint:gosec
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer func() {
		err = multierr.Combine(err, f.Close())
	}()
	return WriteModelJSON(f, a)
}

// ReadModelJSONFile reads an artifact from path.
func ReadModelJSONFile(path string) (*CalibrationArtifact, error) {
	//nolint:gosec
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrapf(err, "error opening calibration file %q", path)
	}
	defer utils.UncheckedErrorFunc(f.Close)
	return ReadModelJSON(f)
}

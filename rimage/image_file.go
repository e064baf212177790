package rimage

import (
	"image"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/disintegration/imaging"
	"github.com/lmittmann/ppm"
	"github.com/pkg/errors"
	"github.com/xfmoulet/qoi"
	"go.uber.org/multierr"
	"go.viam.com/utils"
)

// ImageExtensions lists the file extensions ReadImageFromFile understands.
var ImageExtensions = []string{".png", ".jpg", ".jpeg", ".ppm", ".qoi"}

// IsImageFile reports whether path has a readable image extension.
func IsImageFile(path string) bool {
	ext := strings.ToLower(filepath.Ext(path))
	for _, e := range ImageExtensions {
		if e == ext {
			return true
		}
	}
	return false
}

// ReadImageFromFile decodes the image at path. PNG and JPEG are read through imaging, which also
// applies EXIF orientation; PPM and QOI use their own decoders.
func ReadImageFromFile(path string) (image.Image, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".ppm":
		return decodeWith(path, ppm.Decode)
	case ".qoi":
		return decodeWith(path, qoi.Decode)
	default:
		img, err := imaging.Open(path, imaging.AutoOrientation(true))
		if err != nil {
			return nil, errors.Wrapf(err, "error reading image %q", path)
		}
		return img, nil
	}
}

func decodeWith(path string, decode func(r io.Reader) (image.Image, error)) (image.Image, error) {
	//nolint:gosec
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrapf(err, "error reading image %q", path)
	}
	defer utils.UncheckedErrorFunc(f.Close)
	img, err := decode(f)
	if err != nil {
		return nil, errors.Wrapf(err, "error decoding image %q", path)
	}
	return img, nil
}

// WriteImageToFile encodes img according to the extension of path, creating parent directories.
func WriteImageToFile(path string, img image.Image) (err error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		return err
	}
	switch strings.ToLower(filepath.Ext(path)) {
	case ".ppm", ".qoi":
		var f *os.File
		//nolint:gosec
		f, err = os.Create(path)
		if err != nil {
			return err
		}
		defer func() {
			err = multierr.Combine(err, f.Close())
		}()
		if strings.EqualFold(filepath.Ext(path), ".ppm") {
			return ppm.Encode(f, img)
		}
		return qoi.Encode(f, img)
	default:
		return imaging.Save(img, path)
	}
}

package features

import (
	"bytes"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"os"

	"github.com/disintegration/imaging"
	"github.com/pkg/errors"
	"golang.org/x/image/webp"
)

// DecodeImage decodes JPEG, PNG, GIF and WebP data, honouring EXIF
// orientation where present.
func DecodeImage(data []byte) (image.Image, error) {
	img, err := imaging.Decode(bytes.NewReader(data), imaging.AutoOrientation(true))
	if err == nil {
		return img, nil
	}
	if img, werr := webp.Decode(bytes.NewReader(data)); werr == nil {
		return img, nil
	}
	return nil, errors.Wrap(err, "couldn't decode image")
}

// LoadImage reads and decodes the image at path. A missing file is
// reported as os.ErrNotExist.
func LoadImage(path string) (image.Image, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return DecodeImage(data)
}

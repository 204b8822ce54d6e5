package imageproc

import (
	"bytes"
	"encoding/base64"
	"errors"
	"fmt"
	"image"

	"github.com/disintegration/imaging"
	"github.com/h2non/filetype"
	_ "golang.org/x/image/webp"
)

const (
	// ModelMaxSide bounds the long side of images sent to the line-art model.
	ModelMaxSide = 1536
	modelQuality = 90
)

var ErrUnsupportedFormat = errors.New("unsupported image format")

// DetectContentType sniffs the MIME type from the leading bytes.
func DetectContentType(data []byte) (string, error) {
	head := data
	if len(head) > 512 {
		head = head[:512]
	}
	kind, err := filetype.Match(head)
	if err != nil || kind == filetype.Unknown {
		return "", ErrUnsupportedFormat
	}
	return kind.MIME.Value, nil
}

// Decode decodes JPEG, PNG, GIF or WebP, applying the EXIF orientation tag so
// the result is upright.
func Decode(data []byte) (image.Image, error) {
	img, err := imaging.Decode(bytes.NewReader(data), imaging.AutoOrientation(true))
	if err != nil {
		return nil, fmt.Errorf("failed to decode image: %w", err)
	}
	return img, nil
}

// Normalized is an upright re-encoding of a source image.
type Normalized struct {
	Image       image.Image
	Data        []byte
	ContentType string
}

// Normalize decodes data with EXIF rotation applied and re-encodes it. JPEG
// stays JPEG; everything else becomes PNG since WebP has no encoder here.
func Normalize(data []byte) (*Normalized, error) {
	contentType, err := DetectContentType(data)
	if err != nil {
		return nil, err
	}
	img, err := Decode(data)
	if err != nil {
		return nil, err
	}

	format := imaging.PNG
	outType := "image/png"
	if contentType == "image/jpeg" {
		format = imaging.JPEG
		outType = "image/jpeg"
	}

	encoded, err := Encode(img, format, 92)
	if err != nil {
		return nil, err
	}
	return &Normalized{Image: img, Data: encoded, ContentType: outType}, nil
}

// Encode writes img in the given format. quality only applies to JPEG.
func Encode(img image.Image, format imaging.Format, quality int) ([]byte, error) {
	var buf bytes.Buffer
	if err := imaging.Encode(&buf, img, format, imaging.JPEGQuality(quality)); err != nil {
		return nil, fmt.Errorf("failed to encode image: %w", err)
	}
	return buf.Bytes(), nil
}

// FitWithin downsizes img so neither side exceeds maxSide.
func FitWithin(img image.Image, maxSide int) image.Image {
	b := img.Bounds()
	if b.Dx() <= maxSide && b.Dy() <= maxSide {
		return img
	}
	return imaging.Fit(img, maxSide, maxSide, imaging.Lanczos)
}

// ModelInput encodes img as a JPEG data URI sized for the line-art model.
func ModelInput(img image.Image) (string, error) {
	encoded, err := Encode(FitWithin(img, ModelMaxSide), imaging.JPEG, modelQuality)
	if err != nil {
		return "", err
	}
	return "data:image/jpeg;base64," + base64.StdEncoding.EncodeToString(encoded), nil
}

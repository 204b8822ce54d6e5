package imageproc_test

import (
	"bytes"
	"image"
	"image/color"
	"image/png"
	"math/rand"
	"strings"
	"testing"

	"github.com/disintegration/imaging"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"photolineart-backend/internal/imageproc"
)

func pngBytes(t *testing.T, w, h int, fill func(x, y int) color.Color) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, fill(x, y))
		}
	}
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

func TestDetectContentType(t *testing.T) {
	data := pngBytes(t, 4, 4, func(x, y int) color.Color { return color.White })
	ct, err := imageproc.DetectContentType(data)
	require.NoError(t, err)
	assert.Equal(t, "image/png", ct)

	_, err = imageproc.DetectContentType([]byte("plain text"))
	assert.ErrorIs(t, err, imageproc.ErrUnsupportedFormat)
}

func TestNormalize_PNGStaysPNG(t *testing.T) {
	data := pngBytes(t, 20, 10, func(x, y int) color.Color { return color.RGBA{R: 200, A: 255} })
	n, err := imageproc.Normalize(data)
	require.NoError(t, err)

	assert.Equal(t, "image/png", n.ContentType)
	assert.Equal(t, 20, n.Image.Bounds().Dx())
	assert.Equal(t, 10, n.Image.Bounds().Dy())
	_, err = png.Decode(bytes.NewReader(n.Data))
	assert.NoError(t, err)
}

func TestNormalize_RejectsGarbage(t *testing.T) {
	_, err := imageproc.Normalize([]byte("not an image at all"))
	assert.Error(t, err)
}

func TestModelInput_DownscalesLargeImages(t *testing.T) {
	img := imaging.New(3000, 1500, color.White)
	uri, err := imageproc.ModelInput(img)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(uri, "data:image/jpeg;base64,"))

	fitted := imageproc.FitWithin(img, imageproc.ModelMaxSide)
	assert.Equal(t, 1536, fitted.Bounds().Dx())
	assert.Equal(t, 768, fitted.Bounds().Dy())
}

func TestShrink_WithinBudgetUnchanged(t *testing.T) {
	data := pngBytes(t, 8, 8, func(x, y int) color.Color { return color.Black })
	res := imageproc.Shrink(data, "image/png", int64(len(data)), imageproc.ShrinkAttempts)
	assert.False(t, res.Shrunk)
	assert.Equal(t, data, res.Data)
}

func TestShrink_ReducesNoisyImage(t *testing.T) {
	r := rand.New(rand.NewSource(1))
	data := pngBytes(t, 400, 400, func(x, y int) color.Color {
		return color.RGBA{R: uint8(r.Intn(256)), G: uint8(r.Intn(256)), B: uint8(r.Intn(256)), A: 255}
	})
	budget := int64(len(data) / 2)

	res := imageproc.Shrink(data, "image/png", budget, imageproc.ShrinkAttempts)
	require.True(t, res.Shrunk)
	assert.Equal(t, "image/jpeg", res.ContentType)
	assert.LessOrEqual(t, int64(len(res.Data)), budget)
	assert.GreaterOrEqual(t, res.Attempts, 1)
}

func TestShrink_UndecodableFallsBackToOriginal(t *testing.T) {
	data := bytes.Repeat([]byte{0x01}, 100)
	res := imageproc.Shrink(data, "image/heic", 10, imageproc.ShrinkAttempts)
	assert.False(t, res.Shrunk)
	assert.Equal(t, data, res.Data)
}

package pdfbook_test

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/color"
	"image/png"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"photolineart-backend/internal/logger"
	"photolineart-backend/internal/models"
	"photolineart-backend/internal/pdfbook"
)

func init() {
	logger.Silence()
}

func lineArtPNG(t *testing.T) []byte {
	t.Helper()
	img := image.NewGray(image.Rect(0, 0, 60, 80))
	for y := 0; y < 80; y++ {
		for x := 0; x < 60; x++ {
			v := uint8(255)
			if x == 30 || y == 40 {
				v = 0
			}
			img.SetGray(x, y, color.Gray{Y: v})
		}
	}
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

func items() []models.ManifestItem {
	return []models.ManifestItem{
		{
			Title:      "Garden",
			LineArtURL: "https://blob.test/line-art/a.png",
			Palette:    []models.PaletteColor{{FCNo: 219, FCName: "Deep scarlet red", Hex: "#C41E3A"}},
			Tips:       []models.ColorTip{{Region: "rose petals", FCNo: 219, FCName: "Deep scarlet red", Tip: "Build it up in layers."}},
		},
		{Title: "Café", LineArtURL: "https://blob.test/line-art/missing.png"},
	}
}

func newBuilder(t *testing.T) *pdfbook.Builder {
	art := lineArtPNG(t)
	load := func(ctx context.Context, rawURL string) ([]byte, error) {
		if rawURL == "https://blob.test/line-art/a.png" {
			return art, nil
		}
		return nil, errors.New("not found")
	}
	return pdfbook.NewBuilder(load).WithClock(func() time.Time {
		return time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	})
}

func TestBuild_SingleLayout(t *testing.T) {
	doc, err := newBuilder(t).Build(context.Background(), "Trip", pdfbook.LayoutSingle, items())
	require.NoError(t, err)
	assert.True(t, bytes.HasPrefix(doc.Data, []byte("%PDF-")))
	assert.Equal(t, 2, doc.Pages)
}

func TestBuild_BookLayout(t *testing.T) {
	doc, err := newBuilder(t).Build(context.Background(), "", pdfbook.LayoutBook, items())
	require.NoError(t, err)
	assert.Equal(t, 5, doc.Pages)
}

func TestBuild_UnknownLayout(t *testing.T) {
	_, err := newBuilder(t).Build(context.Background(), "x", "poster", items())
	assert.Error(t, err)
}

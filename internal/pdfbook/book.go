// Package pdfbook renders manifest items into printable coloring pages.
package pdfbook

import (
	"bytes"
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/disintegration/imaging"
	"github.com/go-pdf/fpdf"
	"github.com/sirupsen/logrus"
	"photolineart-backend/internal/imageproc"
	"photolineart-backend/internal/logger"
	"photolineart-backend/internal/models"
	"photolineart-backend/internal/palette"
)

const (
	LayoutSingle = "single"
	LayoutBook   = "book"

	margin       = 12.7
	swatchSize   = 9.0
	swatchRow    = 12.0
	imageMaxSide = 2400
	jpegQuality  = 88
)

// Loader fetches the bytes behind an image URL.
type Loader func(ctx context.Context, rawURL string) ([]byte, error)

type Builder struct {
	load Loader
	now  func() time.Time
}

func NewBuilder(load Loader) *Builder {
	return &Builder{load: load, now: time.Now}
}

// WithClock pins the document creation date.
func (b *Builder) WithClock(now func() time.Time) *Builder {
	b.now = now
	return b
}

type Document struct {
	Data  []byte
	Pages int
}

type page struct {
	pdf *fpdf.Fpdf
	tr  func(string) string
	w   float64
	h   float64
}

// Build renders items. The single layout is one line-art page per item; the
// book layout adds a cover and a palette page after every picture. Images
// that cannot be loaded are replaced by a placeholder note.
func (b *Builder) Build(ctx context.Context, title, layout string, items []models.ManifestItem) (*Document, error) {
	if layout == "" {
		layout = LayoutSingle
	}
	if layout != LayoutSingle && layout != LayoutBook {
		return nil, fmt.Errorf("unknown layout %q", layout)
	}
	if strings.TrimSpace(title) == "" {
		title = "My coloring book"
	}

	pdf := fpdf.New("P", "mm", "Letter", "")
	pdf.SetCreationDate(b.now().UTC())
	pdf.SetCatalogSort(true)
	pdf.SetTitle(title, true)
	pdf.SetCreator("PhotoLineArt", true)
	pdf.SetMargins(margin, margin, margin)
	pdf.SetAutoPageBreak(true, margin)

	w, h := pdf.GetPageSize()
	p := &page{pdf: pdf, tr: pdf.UnicodeTranslatorFromDescriptor(""), w: w, h: h}

	if layout == LayoutBook {
		p.cover(title, len(items))
	}
	for i, item := range items {
		p.lineArt(ctx, b.load, i, item)
		if layout == LayoutBook {
			p.paletteSheet(item)
		}
	}

	if err := pdf.Error(); err != nil {
		return nil, fmt.Errorf("failed to render pdf: %w", err)
	}
	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		return nil, fmt.Errorf("failed to write pdf: %w", err)
	}
	return &Document{Data: buf.Bytes(), Pages: pdf.PageCount()}, nil
}

func (p *page) cover(title string, count int) {
	p.pdf.AddPage()
	p.pdf.SetFont("Helvetica", "B", 28)
	p.pdf.SetY(p.h / 3)
	p.pdf.MultiCell(0, 12, p.tr(title), "", "C", false)
	p.pdf.Ln(6)
	p.pdf.SetFont("Helvetica", "", 14)
	p.pdf.CellFormat(0, 8, fmt.Sprintf("%d coloring pages", count), "", 1, "C", false, 0, "")
}

func (p *page) lineArt(ctx context.Context, load Loader, index int, item models.ManifestItem) {
	p.pdf.AddPage()
	p.pdf.SetFont("Helvetica", "", 10)
	caption := item.Title
	if caption == "" {
		caption = fmt.Sprintf("Page %d", index+1)
	}
	p.pdf.CellFormat(0, 6, p.tr(caption), "", 1, "C", false, 0, "")

	data, err := p.loadImage(ctx, load, item.LineArtURL)
	if err != nil {
		logger.Log.WithError(err).WithFields(logrus.Fields{"url": item.LineArtURL}).Warn("Skipping line art in pdf")
		p.pdf.Ln(20)
		p.pdf.MultiCell(0, 8, "This picture could not be loaded.", "", "C", false)
		return
	}

	name := fmt.Sprintf("art-%d", index)
	opts := fpdf.ImageOptions{ImageType: "JPG", ReadDpi: false}
	info := p.pdf.RegisterImageOptionsReader(name, opts, bytes.NewReader(data))
	if info == nil || p.pdf.Err() {
		return
	}

	top := p.pdf.GetY() + 2
	boxW := p.w - 2*margin
	boxH := p.h - top - margin
	imgW, imgH := info.Width(), info.Height()
	scale := boxW / imgW
	if imgH*scale > boxH {
		scale = boxH / imgH
	}
	drawW, drawH := imgW*scale, imgH*scale
	x := (p.w - drawW) / 2
	p.pdf.ImageOptions(name, x, top, drawW, drawH, false, opts, 0, "")
}

func (p *page) paletteSheet(item models.ManifestItem) {
	p.pdf.AddPage()
	p.pdf.SetFont("Helvetica", "B", 16)
	p.pdf.CellFormat(0, 10, "Pencils for this page", "", 1, "L", false, 0, "")
	p.pdf.Ln(2)

	p.pdf.SetFont("Helvetica", "", 10)
	colW := (p.w - 2*margin) / 2
	for i, c := range item.Palette {
		col := i % 2
		if col == 0 && i > 0 {
			p.pdf.Ln(swatchRow)
		}
		x := margin + float64(col)*colW
		y := p.pdf.GetY()
		r, g, bl := rgb(c.Hex)
		p.pdf.SetFillColor(r, g, bl)
		p.pdf.SetDrawColor(80, 80, 80)
		p.pdf.Rect(x, y, swatchSize, swatchSize, "FD")
		p.pdf.SetXY(x+swatchSize+3, y)
		p.pdf.CellFormat(colW-swatchSize-3, swatchSize, p.tr(fmt.Sprintf("%d %s", c.FCNo, c.FCName)), "", 0, "L", false, 0, "")
	}
	if len(item.Palette) > 0 {
		p.pdf.Ln(swatchRow + 4)
	}

	if len(item.Tips) == 0 {
		return
	}
	p.pdf.SetX(margin)
	p.pdf.SetFont("Helvetica", "B", 14)
	p.pdf.CellFormat(0, 9, "Coloring tips", "", 1, "L", false, 0, "")
	for _, t := range item.Tips {
		p.pdf.SetFont("Helvetica", "B", 10)
		p.pdf.MultiCell(0, 6, p.tr(fmt.Sprintf("%s - %d %s", t.Region, t.FCNo, t.FCName)), "", "L", false)
		p.pdf.SetFont("Helvetica", "", 10)
		p.pdf.MultiCell(0, 5, p.tr(t.Tip), "", "L", false)
		p.pdf.Ln(2)
	}
}

// loadImage re-encodes the image as JPEG so every decodable source format
// embeds the same way.
func (p *page) loadImage(ctx context.Context, load Loader, rawURL string) ([]byte, error) {
	if rawURL == "" {
		return nil, fmt.Errorf("item has no line art")
	}
	data, err := load(ctx, rawURL)
	if err != nil {
		return nil, err
	}
	img, err := imageproc.Decode(data)
	if err != nil {
		return nil, err
	}
	return imageproc.Encode(imageproc.FitWithin(img, imageMaxSide), imaging.JPEG, jpegQuality)
}

func rgb(hex string) (int, int, int) {
	r, g, b, err := palette.HexToRGB(hex)
	if err != nil {
		return 255, 255, 255
	}
	return int(r), int(g), int(b)
}

package imageproc

import (
	"github.com/disintegration/imaging"
)

// Shrink policy for oversized uploads.
const (
	ShrinkBudget     = 4 * 1024 * 1024
	ShrinkAttempts   = 5
	shrinkScale      = 0.85
	shrinkQualityCut = 8
	shrinkStartQual  = 90
	shrinkMinQuality = 40
)

// ShrinkResult reports what Shrink produced. When Shrunk is false Data is the
// original input.
type ShrinkResult struct {
	Data        []byte
	ContentType string
	Shrunk      bool
	Attempts    int
}

// Shrink re-encodes data as JPEG, scaling by 0.85 and lowering quality by 8
// per attempt, until it fits within budget. Inputs already within budget, or
// that cannot be decoded or shrunk far enough, come back unchanged.
func Shrink(data []byte, contentType string, budget int64, attempts int) ShrinkResult {
	original := ShrinkResult{Data: data, ContentType: contentType}
	if int64(len(data)) <= budget {
		return original
	}

	img, err := Decode(data)
	if err != nil {
		return original
	}

	scale := 1.0
	quality := shrinkStartQual
	b := img.Bounds()
	for attempt := 1; attempt <= attempts; attempt++ {
		scale *= shrinkScale
		quality -= shrinkQualityCut
		if quality < shrinkMinQuality {
			quality = shrinkMinQuality
		}

		w := int(float64(b.Dx()) * scale)
		h := int(float64(b.Dy()) * scale)
		if w < 1 || h < 1 {
			break
		}
		resized := imaging.Resize(img, w, h, imaging.Lanczos)
		encoded, err := Encode(resized, imaging.JPEG, quality)
		if err != nil {
			return original
		}
		if int64(len(encoded)) <= budget {
			return ShrinkResult{Data: encoded, ContentType: "image/jpeg", Shrunk: true, Attempts: attempt}
		}
		original.Attempts = attempt
	}
	return original
}

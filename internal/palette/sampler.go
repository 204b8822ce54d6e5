package palette

import (
	"image"
	"sort"
)

const (
	// histogramLevels quantizes each channel into this many buckets.
	histogramLevels = 12
	// maxSamplePixels bounds the work done on large images.
	maxSamplePixels = 40000

	nearWhite = 240
	nearBlack = 16
)

type bucket struct {
	count      int
	r, g, b    int
	firstIndex int
}

// DominantColors returns up to limit hex colors ordered by pixel frequency,
// using a coarse RGB histogram that skips near-white and near-black pixels.
func DominantColors(img image.Image, limit int) []string {
	if img == nil || limit <= 0 {
		return nil
	}
	bounds := img.Bounds()
	total := bounds.Dx() * bounds.Dy()
	if total == 0 {
		return nil
	}

	step := 1
	for total/(step*step) > maxSamplePixels {
		step++
	}

	buckets := make(map[int]*bucket)
	order := 0
	for y := bounds.Min.Y; y < bounds.Max.Y; y += step {
		for x := bounds.Min.X; x < bounds.Max.X; x += step {
			r32, g32, b32, a32 := img.At(x, y).RGBA()
			if a32 < 0x8000 {
				continue
			}
			r, g, b := int(r32>>8), int(g32>>8), int(b32>>8)
			if r >= nearWhite && g >= nearWhite && b >= nearWhite {
				continue
			}
			if r < nearBlack && g < nearBlack && b < nearBlack {
				continue
			}

			key := quantize(r)*histogramLevels*histogramLevels + quantize(g)*histogramLevels + quantize(b)
			bk, ok := buckets[key]
			if !ok {
				bk = &bucket{firstIndex: order}
				order++
				buckets[key] = bk
			}
			bk.count++
			bk.r += r
			bk.g += g
			bk.b += b
		}
	}

	list := make([]*bucket, 0, len(buckets))
	for _, bk := range buckets {
		list = append(list, bk)
	}
	sort.Slice(list, func(i, j int) bool {
		if list[i].count != list[j].count {
			return list[i].count > list[j].count
		}
		return list[i].firstIndex < list[j].firstIndex
	})

	if len(list) > limit {
		list = list[:limit]
	}
	out := make([]string, 0, len(list))
	for _, bk := range list {
		out = append(out, RGBToHex(uint8(bk.r/bk.count), uint8(bk.g/bk.count), uint8(bk.b/bk.count)))
	}
	return out
}

func quantize(c int) int {
	q := c * histogramLevels / 256
	if q >= histogramLevels {
		return histogramLevels - 1
	}
	return q
}

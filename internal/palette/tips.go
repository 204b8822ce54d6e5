package palette

import (
	"fmt"
	"strings"

	"photolineart-backend/internal/models"
)

const (
	MinTips         = 6
	MaxTips         = 8
	MinPaletteSize  = 6
	MaxPaletteSize  = 12
	fallbackRegions = "tones"
)

var tipTemplates = []string{
	"Lay down a light base of %s (%d) across the %s, then build depth with a second, firmer layer.",
	"Glaze %s (%d) thinly over the %s so earlier layers show through and edges stay soft.",
	"Save the paper white for highlights and mix %s (%d) into the %s with small circular strokes.",
}

// BuildTips produces one deterministic tip per match. It never fails and never
// calls out to external services.
func BuildTips(matches []MatchResult) []models.ColorTip {
	tips := make([]models.ColorTip, 0, len(matches))
	for i, m := range matches {
		region := fmt.Sprintf("%s %s", m.Color.FCName, fallbackRegions)
		tips = append(tips, models.ColorTip{
			Region: region,
			FCNo:   m.Color.FCNo,
			FCName: m.Color.FCName,
			Hex:    m.Color.Hex,
			Tip:    fmt.Sprintf(tipTemplates[i%len(tipTemplates)], m.Color.FCName, m.Color.FCNo, strings.ToLower(region)),
		})
	}
	return tips
}

// FallbackTips builds template tips for the matches and, while fewer than
// MinTips exist, for filler pencils the matches do not already cover.
func FallbackTips(matches []MatchResult, filler []models.PaletteColor) []models.ColorTip {
	results := make([]MatchResult, 0, max(len(matches), MinTips))
	results = append(results, matches...)
	used := make(map[int]bool, len(matches))
	for _, m := range matches {
		used[m.Color.FCNo] = true
	}
	for _, c := range filler {
		if len(results) >= MinTips {
			break
		}
		if used[c.FCNo] {
			continue
		}
		used[c.FCNo] = true
		results = append(results, MatchResult{Swatch: c.Hex, Color: c})
	}
	return BuildTips(results)
}

func tipKey(t models.ColorTip) string {
	return strings.ToLower(strings.TrimSpace(t.Region)) + "|" + fmt.Sprint(t.FCNo)
}

// EnsureTipCoverage merges preferred tips with fallback tips. Preferred tips
// come first (deduplicated by region and pencil, capped at MaxTips); fallback
// tips are appended only until MinTips is reached.
func EnsureTipCoverage(preferred, fallback []models.ColorTip) []models.ColorTip {
	out := make([]models.ColorTip, 0, MaxTips)
	seen := make(map[string]bool)

	add := func(t models.ColorTip) {
		k := tipKey(t)
		if seen[k] {
			return
		}
		seen[k] = true
		out = append(out, t)
	}

	for _, t := range preferred {
		if len(out) >= MaxTips {
			break
		}
		add(t)
	}
	for _, t := range fallback {
		if len(out) >= MinTips {
			break
		}
		add(t)
	}
	return out
}

// EnsurePaletteCoverage builds the final palette: pencils referenced by tips
// first, then matched pencils, capped at MaxPaletteSize. When fewer than
// MinPaletteSize remain, filler pencils top it up.
func EnsurePaletteCoverage(preferred, matched, filler []models.PaletteColor) []models.PaletteColor {
	out := make([]models.PaletteColor, 0, MaxPaletteSize)
	seen := make(map[int]bool)

	add := func(c models.PaletteColor, limit int) {
		if len(out) >= limit || seen[c.FCNo] {
			return
		}
		seen[c.FCNo] = true
		out = append(out, c)
	}

	for _, c := range preferred {
		add(c, MaxPaletteSize)
	}
	for _, c := range matched {
		add(c, MaxPaletteSize)
	}
	for _, c := range filler {
		add(c, MinPaletteSize)
	}
	return out
}

// TipColors collects every pencil a set of tips references, in order.
func TipColors(tips []models.ColorTip) []models.PaletteColor {
	var out []models.PaletteColor
	for _, t := range tips {
		out = append(out, models.PaletteColor{FCNo: t.FCNo, FCName: t.FCName, Hex: t.Hex})
		out = append(out, t.Colors...)
	}
	return out
}

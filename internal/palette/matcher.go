package palette

import (
	"github.com/sirupsen/logrus"
	"photolineart-backend/internal/logger"
	"photolineart-backend/internal/models"
)

const (
	// DefaultMaxResults caps Match when the caller passes zero.
	DefaultMaxResults = 12
	// DiversityThreshold is the ΔE76 below which two matches count as the
	// same hue family.
	DiversityThreshold = 12.0
	// reservedSlots is how many trailing result slots ignore the diversity
	// rule so close hues can still land in the result.
	reservedSlots = 3
)

// MatchResult pairs one sampled swatch with its nearest pencil.
type MatchResult struct {
	Swatch string              `json:"swatch"`
	Color  models.PaletteColor `json:"color"`
	DeltaE float64             `json:"deltaE"`
	Lab    Lab                 `json:"lab"`
}

type paletteEntry struct {
	color models.PaletteColor
	lab   Lab
}

// Match maps sampled hex colors onto their nearest pencils and selects a
// diverse subset of at most maxResults entries. The output never holds two
// entries for the same pencil and is deterministic for a given input.
func Match(samples []string, maxResults int, palette []models.PaletteColor) []MatchResult {
	if maxResults <= 0 {
		maxResults = DefaultMaxResults
	}
	entries := make([]paletteEntry, 0, len(palette))
	for _, c := range palette {
		lab, err := HexToLab(c.Hex)
		if err != nil {
			logger.Log.WithFields(logrus.Fields{"fcNo": c.FCNo, "hex": c.Hex}).Warn("skipping palette entry with invalid hex")
			continue
		}
		entries = append(entries, paletteEntry{color: c, lab: lab})
	}
	if len(entries) == 0 {
		return nil
	}

	matches := nearestMatches(samples, entries)
	return selectDiverse(matches, maxResults)
}

func nearestMatches(samples []string, entries []paletteEntry) []MatchResult {
	seen := make(map[string]bool, len(samples))
	matches := make([]MatchResult, 0, len(samples))

	for _, raw := range samples {
		hex, ok := NormalizeHex(raw)
		if !ok {
			logger.Log.WithField("value", raw).Warn("malformed sample color, using black")
			hex = "#000000"
		}
		if seen[hex] {
			continue
		}
		seen[hex] = true

		lab, _ := HexToLab(hex)
		best := 0
		bestDist := DeltaE76(lab, entries[0].lab)
		for i := 1; i < len(entries); i++ {
			if d := DeltaE76(lab, entries[i].lab); d < bestDist {
				best, bestDist = i, d
			}
		}
		matches = append(matches, MatchResult{
			Swatch: hex,
			Color:  entries[best].color,
			DeltaE: bestDist,
			Lab:    lab,
		})
	}
	return matches
}

func selectDiverse(matches []MatchResult, maxResults int) []MatchResult {
	selected := make([]MatchResult, 0, maxResults)
	usedPencil := make(map[int]bool)
	taken := make([]bool, len(matches))

	for i, m := range matches {
		if len(selected) >= maxResults {
			break
		}
		if usedPencil[m.Color.FCNo] {
			continue
		}
		slotsLeft := maxResults - len(selected)
		if slotsLeft >= reservedSlots && tooClose(m, selected) {
			continue
		}
		selected = append(selected, m)
		usedPencil[m.Color.FCNo] = true
		taken[i] = true
	}

	target := min(maxResults, len(matches))
	for i, m := range matches {
		if len(selected) >= target {
			break
		}
		if taken[i] || usedPencil[m.Color.FCNo] {
			continue
		}
		selected = append(selected, m)
		usedPencil[m.Color.FCNo] = true
		taken[i] = true
	}
	return selected
}

func tooClose(m MatchResult, selected []MatchResult) bool {
	for _, s := range selected {
		if DeltaE76(m.Lab, s.Lab) < DiversityThreshold {
			return true
		}
	}
	return false
}

// Colors extracts the matched pencils in result order.
func Colors(matches []MatchResult) []models.PaletteColor {
	out := make([]models.PaletteColor, 0, len(matches))
	for _, m := range matches {
		out = append(out, m.Color)
	}
	return out
}

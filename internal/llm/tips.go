package llm

import (
	"context"
	"fmt"
	"html"
	"strings"

	"github.com/microcosm-cc/bluemonday"
	"github.com/sirupsen/logrus"
	"photolineart-backend/internal/logger"
	"photolineart-backend/internal/models"
	"photolineart-backend/internal/palette"
)

const maxSemanticTips = 8

const semanticTipsPrompt = `You help people color printed line art with Faber-Castell Polychromos pencils.
Look at the photo and name 6 to 8 regions a person would recognize (for example "sky", "left jacket sleeve", "dog's ears").
For each region pick exactly one pencil from the supplied palette and write one short practical coloring tip.
Respond with JSON only, shaped exactly as {"tips":[{"region":"...","tip":"...","fcNo":123,"fcName":"...","hex":"#RRGGBB"}]}.`

const enhancePrompt = `You read colored-pencil tips and list every Polychromos pencil each tip mentions.
Only use pencils from the supplied palette.
Respond with JSON only, shaped exactly as {"regions":[{"region":"...","colors":[{"fcNo":123,"fcName":"...","hex":"#RRGGBB"}]}]}.`

var textPolicy = bluemonday.StrictPolicy()

type semanticTip struct {
	Region string `json:"region"`
	Tip    string `json:"tip"`
	FCNo   int    `json:"fcNo"`
	FCName string `json:"fcName"`
	Hex    string `json:"hex"`
}

type semanticTipsPayload struct {
	Tips []semanticTip `json:"tips"`
}

type pencilRef struct {
	FCNo   int    `json:"fcNo"`
	FCName string `json:"fcName"`
	Hex    string `json:"hex"`
}

type regionColors struct {
	Region string      `json:"region"`
	Colors []pencilRef `json:"colors"`
}

type enhancePayload struct {
	Regions []regionColors `json:"regions"`
}

// TipColors lists every pencil the tip for Region refers to.
type TipColors struct {
	Region string
	Colors []models.PaletteColor
}

// GenerateSemanticTips asks the model for region tips. Any failure yields an
// empty slice; callers fall back to palette.BuildTips.
func (c *Client) GenerateSemanticTips(ctx context.Context, imageURL string, candidates []models.PaletteColor, matches []palette.MatchResult) []models.ColorTip {
	log := logger.Log.WithField("component", "semantic_tips")
	if !c.Configured() {
		log.Debug("OpenAI key not configured, skipping semantic tips")
		return nil
	}
	if imageURL == "" || len(candidates) == 0 {
		return nil
	}

	userPrompt := "Palette:\n" + describePalette(candidates) + "\nNearest pencils sampled from the photo:\n" + describeMatches(matches)
	content, err := c.completeJSON(ctx, semanticTipsPrompt, userPrompt, imageURL)
	if err != nil {
		log.WithError(err).Warn("Semantic tip request failed")
		return nil
	}

	var payload semanticTipsPayload
	if err := DecodeStrict(content, &payload); err != nil {
		log.WithError(err).Warn("Semantic tip response did not match schema")
		return nil
	}

	resolver := newResolver(candidates)
	tips := make([]models.ColorTip, 0, len(payload.Tips))
	for _, t := range payload.Tips {
		region := sanitize(t.Region)
		text := sanitize(t.Tip)
		if region == "" || text == "" {
			continue
		}
		color, ok := resolver.resolve(t.FCNo, t.FCName, t.Hex)
		if !ok {
			if len(matches) == 0 {
				log.WithField("region", region).Debug("Dropping tip with unknown pencil")
				continue
			}
			color = matches[0].Color
		}
		tips = append(tips, models.ColorTip{
			Region: region,
			FCNo:   color.FCNo,
			FCName: color.FCName,
			Hex:    color.Hex,
			Tip:    text,
		})
		if len(tips) == maxSemanticTips {
			break
		}
	}

	log.WithFields(logrus.Fields{"requested": len(payload.Tips), "kept": len(tips)}).Debug("Semantic tips resolved")
	return tips
}

// EnhanceTipColors extracts every pencil mentioned in each tip. It returns an
// error on any failure so callers can keep the tips unchanged.
func (c *Client) EnhanceTipColors(ctx context.Context, tips []models.ColorTip, candidates []models.PaletteColor) ([]TipColors, error) {
	if !c.Configured() {
		return nil, fmt.Errorf("tip enhancement: api key required")
	}
	if len(tips) == 0 {
		return nil, nil
	}

	var b strings.Builder
	b.WriteString("Palette:\n")
	b.WriteString(describePalette(candidates))
	b.WriteString("\nTips:\n")
	for _, t := range tips {
		fmt.Fprintf(&b, "- region %q: %s\n", t.Region, t.Tip)
	}

	content, err := c.completeJSON(ctx, enhancePrompt, b.String(), "")
	if err != nil {
		return nil, fmt.Errorf("tip enhancement: %w", err)
	}

	var payload enhancePayload
	if err := DecodeStrict(content, &payload); err != nil {
		return nil, fmt.Errorf("tip enhancement: %w", err)
	}

	resolver := newResolver(candidates)
	out := make([]TipColors, 0, len(payload.Regions))
	for _, r := range payload.Regions {
		region := sanitize(r.Region)
		if region == "" {
			continue
		}
		entry := TipColors{Region: region}
		seen := make(map[int]bool)
		for _, ref := range r.Colors {
			color, ok := resolver.resolve(ref.FCNo, ref.FCName, ref.Hex)
			if !ok || seen[color.FCNo] {
				continue
			}
			seen[color.FCNo] = true
			entry.Colors = append(entry.Colors, color)
		}
		out = append(out, entry)
	}
	return out, nil
}

// ApplyTipColors attaches enhanced color lists to tips by region name.
func ApplyTipColors(tips []models.ColorTip, enhanced []TipColors) []models.ColorTip {
	byRegion := make(map[string][]models.PaletteColor, len(enhanced))
	for _, e := range enhanced {
		byRegion[regionKey(e.Region)] = e.Colors
	}

	out := make([]models.ColorTip, len(tips))
	for i, t := range tips {
		if colors, ok := byRegion[regionKey(t.Region)]; ok && len(colors) > 0 {
			t.Colors = colors
		}
		out[i] = t
	}
	return out
}

func regionKey(region string) string {
	return strings.ToLower(strings.TrimSpace(region))
}

// sanitize strips markup; the policy escapes entities, which are undone so
// apostrophes survive.
func sanitize(s string) string {
	return strings.TrimSpace(html.UnescapeString(textPolicy.Sanitize(s)))
}

func describePalette(colors []models.PaletteColor) string {
	var b strings.Builder
	for _, c := range colors {
		fmt.Fprintf(&b, "%d %s %s\n", c.FCNo, c.FCName, c.Hex)
	}
	return b.String()
}

func describeMatches(matches []palette.MatchResult) string {
	var b strings.Builder
	for _, m := range matches {
		fmt.Fprintf(&b, "%s -> %d %s\n", m.Swatch, m.Color.FCNo, m.Color.FCName)
	}
	return b.String()
}

// resolver maps a model-supplied pencil reference onto a real palette entry:
// fcNo first, then name, then hex.
type resolver struct {
	byNo   map[int]models.PaletteColor
	byName map[string]models.PaletteColor
	byHex  map[string]models.PaletteColor
}

func newResolver(colors []models.PaletteColor) *resolver {
	r := &resolver{
		byNo:   make(map[int]models.PaletteColor, len(colors)),
		byName: make(map[string]models.PaletteColor, len(colors)),
		byHex:  make(map[string]models.PaletteColor, len(colors)),
	}
	for _, c := range colors {
		r.byNo[c.FCNo] = c
		r.byName[strings.ToLower(strings.TrimSpace(c.FCName))] = c
		if hex, ok := palette.NormalizeHex(c.Hex); ok {
			r.byHex[hex] = c
		}
	}
	return r
}

func (r *resolver) resolve(fcNo int, name, hex string) (models.PaletteColor, bool) {
	if c, ok := r.byNo[fcNo]; ok && fcNo != 0 {
		return c, true
	}
	if c, ok := r.byName[strings.ToLower(strings.TrimSpace(name))]; ok && name != "" {
		return c, true
	}
	if normalized, ok := palette.NormalizeHex(hex); ok {
		if c, ok := r.byHex[normalized]; ok {
			return c, true
		}
	}
	return models.PaletteColor{}, false
}

package models

// PaletteColor is one pencil of the fixed catalog.
type PaletteColor struct {
	FCNo   int    `json:"fcNo" toml:"fc_no"`
	FCName string `json:"fcName" toml:"fc_name"`
	Hex    string `json:"hex" toml:"hex"`
	Sets   []int  `json:"sets,omitempty" toml:"sets"`
}

// ColorTip ties a recognizable image region to a pencil with a short
// instruction. Colors lists every pencil the tip text mentions, when known.
type ColorTip struct {
	Region string         `json:"region"`
	FCNo   int            `json:"fcNo"`
	FCName string         `json:"fcName"`
	Hex    string         `json:"hex"`
	Tip    string         `json:"tip"`
	Colors []PaletteColor `json:"colors,omitempty"`
}

// LineArtAnalysis is produced once per successful generation and never
// mutated afterwards.
type LineArtAnalysis struct {
	SourceImage string         `json:"sourceImage"`
	Palette     []PaletteColor `json:"palette"`
	Tips        []ColorTip     `json:"tips"`
	Model       string         `json:"model"`
	PaletteSet  int            `json:"paletteSet"`
	TipsModel   string         `json:"tipsModel,omitempty"`
}

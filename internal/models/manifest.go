package models

import "time"

type ManifestItem struct {
	Title       string         `json:"title"`
	OriginalURL string         `json:"originalUrl"`
	LineArtURL  string         `json:"lineArtUrl"`
	Palette     []PaletteColor `json:"palette"`
	Tips        []ColorTip     `json:"tips"`
	Set         int            `json:"set,omitempty"`
	// EnhancementError is set by the publish pass when tip enhancement failed
	// for this item; the item is still published.
	EnhancementError string `json:"enhancementError,omitempty"`
}

// PortalManifest is persisted as a single JSON blob and always overwritten
// wholesale.
type PortalManifest struct {
	ID        string         `json:"id"`
	CreatedAt time.Time      `json:"createdAt"`
	Title     string         `json:"title"`
	Items     []ManifestItem `json:"items"`
	PortalURL string         `json:"portalUrl"`
	QRPngURL  string         `json:"qrPngUrl"`
	Model     string         `json:"model,omitempty"`
}

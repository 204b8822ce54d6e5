// Package palette holds the pencil catalog and the color math used to map
// photo colors onto it.
package palette

import (
	_ "embed"
	"fmt"
	"sort"
	"sync"

	"github.com/pelletier/go-toml/v2"
	"photolineart-backend/internal/models"
)

//go:embed catalog.toml
var catalogTOML []byte

type catalogFile struct {
	Name   string         `toml:"name"`
	Colors []catalogEntry `toml:"colors"`
}

type catalogEntry struct {
	FCNo   int    `toml:"fc_no"`
	FCName string `toml:"fc_name"`
	Hex    string `toml:"hex"`
	MinSet int    `toml:"min_set"`
}

// Catalog is the immutable, parsed pencil catalog.
type Catalog struct {
	Name   string
	Colors []models.PaletteColor
}

var (
	defaultOnce    sync.Once
	defaultCatalog *Catalog
	defaultErr     error
)

// Default returns the embedded catalog, parsing it on first use. The result is
// shared process-wide and must not be mutated.
func Default() (*Catalog, error) {
	defaultOnce.Do(func() {
		defaultCatalog, defaultErr = ParseCatalog(catalogTOML)
	})
	return defaultCatalog, defaultErr
}

// MustDefault is Default for callers that cannot proceed without a catalog.
func MustDefault() *Catalog {
	c, err := Default()
	if err != nil {
		panic(fmt.Sprintf("palette: embedded catalog is invalid: %v", err))
	}
	return c
}

func ParseCatalog(data []byte) (*Catalog, error) {
	var file catalogFile
	if err := toml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("failed to parse catalog: %w", err)
	}
	if len(file.Colors) == 0 {
		return nil, fmt.Errorf("catalog %q has no colors", file.Name)
	}

	seen := make(map[int]bool, len(file.Colors))
	colors := make([]models.PaletteColor, 0, len(file.Colors))
	for _, e := range file.Colors {
		if seen[e.FCNo] {
			return nil, fmt.Errorf("duplicate pencil number %d", e.FCNo)
		}
		seen[e.FCNo] = true

		hex, ok := NormalizeHex(e.Hex)
		if !ok {
			return nil, fmt.Errorf("pencil %d has invalid hex %q", e.FCNo, e.Hex)
		}
		colors = append(colors, models.PaletteColor{
			FCNo:   e.FCNo,
			FCName: e.FCName,
			Hex:    hex,
			Sets:   setsFrom(e.MinSet),
		})
	}

	return &Catalog{Name: file.Name, Colors: colors}, nil
}

func setsFrom(minSet int) []int {
	sets := make([]int, 0, len(models.PaletteSets))
	for _, s := range models.PaletteSets {
		if s >= minSet {
			sets = append(sets, s)
		}
	}
	return sets
}

// ForSet returns the pencils contained in a tin of the given size. Zero or an
// unknown size returns the whole catalog.
func (c *Catalog) ForSet(size int) []models.PaletteColor {
	if !ValidSet(size) {
		return c.Colors
	}
	out := make([]models.PaletteColor, 0, size)
	for _, color := range c.Colors {
		for _, s := range color.Sets {
			if s == size {
				out = append(out, color)
				break
			}
		}
	}
	return out
}

// Missing reports how many pencils of a tin the catalog does not list. Zero or
// an unknown size reports 0.
func (c *Catalog) Missing(size int) int {
	if !ValidSet(size) {
		return 0
	}
	return max(size-len(c.ForSet(size)), 0)
}

// Lookup finds a pencil by number.
func (c *Catalog) Lookup(fcNo int) (models.PaletteColor, bool) {
	for _, color := range c.Colors {
		if color.FCNo == fcNo {
			return color, true
		}
	}
	return models.PaletteColor{}, false
}

// Sorted returns the catalog ordered by pencil number.
func (c *Catalog) Sorted() []models.PaletteColor {
	out := append([]models.PaletteColor(nil), c.Colors...)
	sort.Slice(out, func(i, j int) bool { return out[i].FCNo < out[j].FCNo })
	return out
}

func ValidSet(size int) bool {
	for _, s := range models.PaletteSets {
		if s == size {
			return true
		}
	}
	return false
}

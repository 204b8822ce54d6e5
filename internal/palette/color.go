package palette

import (
	"fmt"
	"math"
	"strconv"
	"strings"
)

// Lab is a CIE L*a*b* color relative to the D65 white point.
type Lab struct {
	L float64 `json:"l"`
	A float64 `json:"a"`
	B float64 `json:"b"`
}

// D65 reference white.
const (
	whiteX = 0.95047
	whiteY = 1.00000
	whiteZ = 1.08883
)

// NormalizeHex turns "#abc", "abc", "AABBCC" or "#aabbcc" into "#AABBCC".
func NormalizeHex(s string) (string, bool) {
	s = strings.TrimPrefix(strings.TrimSpace(s), "#")
	if len(s) == 3 {
		s = string([]byte{s[0], s[0], s[1], s[1], s[2], s[2]})
	}
	if len(s) != 6 {
		return "", false
	}
	if _, err := strconv.ParseUint(s, 16, 32); err != nil {
		return "", false
	}
	return "#" + strings.ToUpper(s), true
}

// HexToRGB parses a normalized or raw hex color.
func HexToRGB(s string) (r, g, b uint8, err error) {
	hex, ok := NormalizeHex(s)
	if !ok {
		return 0, 0, 0, fmt.Errorf("invalid hex color %q", s)
	}
	v, _ := strconv.ParseUint(hex[1:], 16, 32)
	return uint8(v >> 16), uint8(v >> 8), uint8(v), nil
}

func RGBToHex(r, g, b uint8) string {
	return fmt.Sprintf("#%02X%02X%02X", r, g, b)
}

func linearize(c uint8) float64 {
	v := float64(c) / 255
	if v <= 0.04045 {
		return v / 12.92
	}
	return math.Pow((v+0.055)/1.055, 2.4)
}

func labF(t float64) float64 {
	if t > 0.008856 {
		return math.Cbrt(t)
	}
	return 7.787*t + 16.0/116.0
}

// RGBToLab converts an sRGB triple to L*a*b*.
func RGBToLab(r, g, b uint8) Lab {
	lr, lg, lb := linearize(r), linearize(g), linearize(b)

	x := lr*0.4124564 + lg*0.3575761 + lb*0.1804375
	y := lr*0.2126729 + lg*0.7151522 + lb*0.0721750
	z := lr*0.0193339 + lg*0.1191920 + lb*0.9503041

	fx := labF(x / whiteX)
	fy := labF(y / whiteY)
	fz := labF(z / whiteZ)

	return Lab{
		L: 116*fy - 16,
		A: 500 * (fx - fy),
		B: 200 * (fy - fz),
	}
}

// HexToLab converts a hex color, failing on malformed input.
func HexToLab(s string) (Lab, error) {
	r, g, b, err := HexToRGB(s)
	if err != nil {
		return Lab{}, err
	}
	return RGBToLab(r, g, b), nil
}

// DeltaE76 is the Euclidean distance in L*a*b* space.
func DeltaE76(a, b Lab) float64 {
	dl := a.L - b.L
	da := a.A - b.A
	db := a.B - b.B
	return math.Sqrt(dl*dl + da*da + db*db)
}

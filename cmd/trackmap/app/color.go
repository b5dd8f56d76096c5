package app

import (
	"image/color"
	"math"

	"github.com/lucasb-eyer/go-colorful"
)

// ColorTheme is a color scheme for altitude visualization. Low altitudes
// map to the start of the ramp and high altitudes to its end.
type ColorTheme string

const (
	ClassicTheme   ColorTheme = "classic"   // Blue to red transition
	GrayscaleTheme ColorTheme = "grayscale" // Light gray to black transition
	ThermalTheme   ColorTheme = "thermal"   // Dark red to yellow transition
	MarineTheme    ColorTheme = "marine"    // Deep blue to cyan transition

	DefaultColorMapSize = 256 // Default number of colors in the map
)

var validThemes = map[ColorTheme]struct{}{
	ClassicTheme:   {},
	GrayscaleTheme: {},
	ThermalTheme:   {},
	MarineTheme:    {},
}

// ColorMapper maps altitudes to colors through a pre-computed ramp
type ColorMapper struct {
	colorMap  []color.RGBA // Pre-computed colors
	theme     func(float64) colorful.Color
	themeName ColorTheme
	size      int
	zMin      float64
	zRange    float64
}

// NewColorMapper creates a color mapper for altitudes between zMin and zMax.
func NewColorMapper(theme ColorTheme, zMin, zMax float64) *ColorMapper {
	return NewColorMapperWithSize(theme, zMin, zMax, DefaultColorMapSize)
}

// NewColorMapperWithSize creates a color mapper with size pre-computed colors.
func NewColorMapperWithSize(theme ColorTheme, zMin, zMax float64, size int) *ColorMapper {
	if size <= 1 {
		size = DefaultColorMapSize
	}

	cm := &ColorMapper{
		colorMap:  make([]color.RGBA, size),
		theme:     getColorTheme(theme),
		themeName: theme,
		size:      size,
	}
	cm.UpdateBounds(zMin, zMax)
	return cm
}

func (cm *ColorMapper) UpdateBounds(zMin, zMax float64) {
	cm.zMin = zMin
	cm.zRange = zMax - zMin

	for i := 0; i < cm.size; i++ {
		r, g, b := cm.theme(float64(i) / float64(cm.size-1)).Clamped().RGB255()
		cm.colorMap[i] = color.RGBA{R: r, G: g, B: b, A: 0xff}
	}
}

// GetColor returns the color of altitude z. Altitudes out of bounds are
// clamped, a flat track maps to the middle of the ramp.
func (cm *ColorMapper) GetColor(z float64) color.RGBA {
	if cm.zRange <= 0 || math.IsNaN(z) {
		return cm.colorMap[cm.size/2]
	}

	normalized := math.Max(0, math.Min(1, (z-cm.zMin)/cm.zRange))
	return cm.colorMap[int(math.Round(normalized*float64(cm.size-1)))]
}

func (cm *ColorMapper) ThemeName() ColorTheme {
	return cm.themeName
}

func (cm *ColorMapper) Size() int {
	return cm.size
}

func getColorTheme(theme ColorTheme) func(float64) colorful.Color {
	switch theme {
	case GrayscaleTheme:
		return func(z float64) colorful.Color {
			return colorful.Hsv(0, 0, 0.8-math.Pow(z, 0.7)*0.8)
		}

	case ThermalTheme:
		low, high := colorful.Hsv(0, 1, 0.45), colorful.Hsv(55, 1, 1)
		return func(z float64) colorful.Color {
			return low.BlendHcl(high, z)
		}

	case MarineTheme:
		return func(z float64) colorful.Color {
			return colorful.Hsv(240-(z*60), 1.0-(z*0.5), 0.4+(math.Pow(z, 0.6)*0.5))
		}

	default: // Blue -> Red
		return func(z float64) colorful.Color {
			return colorful.Hsv(236-(z*236), 1, 0.9)
		}
	}
}

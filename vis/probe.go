package vis

import (
	"fmt"
	"image"
	"image/color"
	"math"
)

// PixelAt returns the color at (x, y) relative to the image origin.
func PixelAt(img image.Image, x, y int) (color.NRGBA, error) {
	b := img.Bounds()
	pt := image.Pt(b.Min.X+x, b.Min.Y+y)
	if !pt.In(b) {
		return color.NRGBA{}, fmt.Errorf("pixel (%d, %d) outside %dx%d image", x, y, b.Dx(), b.Dy())
	}
	return color.NRGBAModel.Convert(img.At(pt.X, pt.Y)).(color.NRGBA), nil
}

// NearestClass returns the palette index whose color is closest to c
// (euclidean RGB) and that distance. It returns -1 for an empty palette.
func NearestClass(c color.Color, palette Palette) (int, float64) {
	n := color.NRGBAModel.Convert(c).(color.NRGBA)
	best, bestDist := -1, math.Inf(1)
	for i, cls := range palette {
		dr := float64(n.R) - float64(cls.Color.R)
		dg := float64(n.G) - float64(cls.Color.G)
		db := float64(n.B) - float64(cls.Color.B)
		d := math.Sqrt(dr*dr + dg*dg + db*db)
		if d < bestDist {
			best, bestDist = i, d
		}
	}
	return best, bestDist
}

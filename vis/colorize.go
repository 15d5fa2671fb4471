package vis

import (
	"fmt"
	"image"
	"image/color"

	"github.com/disintegration/imaging"
	"golang.org/x/image/draw"
)

// Colorize paints a row-major h x w label map with palette colors. Labels
// outside the palette (e.g. ignore index 255) are black.
func Colorize(labels []int64, h, w int, palette Palette) (*image.NRGBA, error) {
	if len(labels) != h*w {
		return nil, fmt.Errorf("got %d labels for a %dx%d map", len(labels), h, w)
	}

	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	black := color.NRGBA{A: 0xff}
	for i, l := range labels {
		c := black
		if l >= 0 && l < int64(len(palette)) {
			c = palette[l].Color
		}
		img.SetNRGBA(i%w, i/w, c)
	}

	return img, nil
}

// ScaleLabels resizes a colorized label map to w x h without mixing colors
// (nearest neighbor).
func ScaleLabels(seg image.Image, w, h int) *image.NRGBA {
	dst := image.NewNRGBA(image.Rect(0, 0, w, h))
	draw.NearestNeighbor.Scale(dst, dst.Bounds(), seg, seg.Bounds(), draw.Src, nil)
	return dst
}

// Overlay blends seg over img as img*(1-opacity) + seg*opacity. seg is
// rescaled to the size of img when they differ.
func Overlay(img, seg image.Image, opacity float64) *image.NRGBA {
	b := img.Bounds()
	if seg.Bounds().Size() != b.Size() {
		seg = ScaleLabels(seg, b.Dx(), b.Dy())
	}

	bg := image.NewNRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
	draw.Copy(bg, image.Point{}, img, b, draw.Src, nil)

	return imaging.Overlay(bg, seg, image.Point{}, opacity)
}

package vis

import (
	"fmt"
	"image/color"
	"math/rand"
)

// Class is a named class color.
type Class struct {
	Name  string
	Color color.NRGBA
}

// Palette maps class index to name and color.
type Palette []Class

// Names returns class names in index order.
func (p Palette) Names() []string {
	names := make([]string, len(p))
	for i, c := range p {
		names[i] = c.Name
	}
	return names
}

func rgb(r, g, b uint8) color.NRGBA {
	return color.NRGBA{R: r, G: g, B: b, A: 0xff}
}

// Cityscapes returns the 19 evaluation classes of Cityscapes.
func Cityscapes() Palette {
	return Palette{
		{"road", rgb(128, 64, 128)},
		{"sidewalk", rgb(244, 35, 232)},
		{"building", rgb(70, 70, 70)},
		{"wall", rgb(102, 102, 156)},
		{"fence", rgb(190, 153, 153)},
		{"pole", rgb(153, 153, 153)},
		{"traffic light", rgb(250, 170, 30)},
		{"traffic sign", rgb(220, 220, 0)},
		{"vegetation", rgb(107, 142, 35)},
		{"terrain", rgb(152, 251, 152)},
		{"sky", rgb(70, 130, 180)},
		{"person", rgb(220, 20, 60)},
		{"rider", rgb(255, 0, 0)},
		{"car", rgb(0, 0, 142)},
		{"truck", rgb(0, 0, 70)},
		{"bus", rgb(0, 60, 100)},
		{"train", rgb(0, 80, 100)},
		{"motorcycle", rgb(0, 0, 230)},
		{"bicycle", rgb(119, 11, 32)},
	}
}

// RandomPalette returns n colors drawn from a seeded source, named by index.
func RandomPalette(n int, seed int64) Palette {
	rnd := rand.New(rand.NewSource(seed))
	p := make(Palette, n)
	for i := range p {
		p[i] = Class{
			Name:  fmt.Sprint(i),
			Color: rgb(uint8(rnd.Intn(256)), uint8(rnd.Intn(256)), uint8(rnd.Intn(256))),
		}
	}
	return p
}

// PaletteFor returns Cityscapes for 19 classes, a random palette otherwise.
func PaletteFor(numClasses int) Palette {
	if numClasses == 19 {
		return Cityscapes()
	}
	return RandomPalette(numClasses, 42)
}

package vis

import (
	"fmt"
	"image"
	"image/jpeg"
	"image/png"
	"os"
	"path/filepath"

	"github.com/chai2010/tiff"
	"github.com/disintegration/imaging"
	"github.com/nfnt/resize"
	"github.com/sugarme/gotch/ts"
)

// ReadImage reads image from file.
func ReadImage(filename string) (image.Image, error) {
	ext := filepath.Ext(filename)
	f, err := os.Open(filename)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	switch ext {
	case ".png", ".PNG":
		return png.Decode(f)
	case ".jpg", ".jpeg", ".JPG", ".JPEG":
		return jpeg.Decode(f)
	case ".tiff", ".tif", ".TIFF", ".TIF":
		return tiff.Decode(f)
	default:
		return nil, fmt.Errorf("unsupported image format: %v", ext)
	}
}

// SaveImage saves img, the format follows the file extension.
func SaveImage(img image.Image, filename string) error {
	if err := os.MkdirAll(filepath.Dir(filename), 0o755); err != nil {
		return err
	}
	return imaging.Save(img, filename)
}

// ToTensor resizes img to h x w (bilinear) and converts it to a float
// tensor [1 3 h w] with RGB values in [0, 1].
func ToTensor(img image.Image, h, w int) *ts.Tensor {
	b := img.Bounds()
	if b.Dx() != w || b.Dy() != h {
		img = resize.Resize(uint(w), uint(h), img, resize.Bilinear)
		b = img.Bounds()
	}

	plane := h * w
	data := make([]float32, 3*plane)
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			r, g, bl, _ := img.At(b.Min.X+x, b.Min.Y+y).RGBA()
			i := y*w + x
			data[i] = float32(r) / 0xffff
			data[plane+i] = float32(g) / 0xffff
			data[2*plane+i] = float32(bl) / 0xffff
		}
	}

	return ts.MustOfSlice(data).MustView([]int64{1, 3, int64(h), int64(w)}, true)
}

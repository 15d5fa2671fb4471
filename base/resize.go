package base

import (
	"reflect"

	"github.com/sugarme/gotch/ts"
)

// Resize interpolates x [B C H W] to outSize [H' W'] with `bilinear` algorithm.
//
// With alignCorners false, sample positions are taken at pixel centers
// (src = (dst + 0.5) * in/out - 0.5), the same convention as
// torch.nn.functional.interpolate.
func Resize(x *ts.Tensor, outSize []int64, alignCorners bool) *ts.Tensor {
	xSize := x.MustSize()
	if reflect.DeepEqual(xSize[2:], outSize) {
		return x.MustShallowClone()
	}

	return x.MustUpsampleBilinear2d(outSize, alignCorners, nil, nil, false)
}

// SpatialSize returns [H W] of a [B C H W] tensor.
func SpatialSize(x *ts.Tensor) []int64 {
	size := x.MustSize()
	return size[len(size)-2:]
}

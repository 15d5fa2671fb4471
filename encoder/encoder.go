package encoder

import (
	"github.com/sugarme/gotch/ts"
)

// Encoder is the backbone interface of a segmentation model.
//
// ForwardAll returns the multi-scale feature maps, finest first.
// Channels and Strides describe each returned tensor, index for index.
type Encoder interface {
	ForwardAll(x *ts.Tensor, train bool) []*ts.Tensor
	Channels() []int64
	Strides() []int64
}

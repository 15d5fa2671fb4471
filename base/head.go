package base

import (
	"github.com/sugarme/gotch/nn"
	"github.com/sugarme/gotch/ts"
)

// NewSegmentationHead creates new SegmentatationHead (nn.SequentialT):
// channel dropout with rate dropout, then a conv projecting cIn to cOut
// class channels.
//
// Dropout is only applied when forwarding with train set to true. It is
// left out when dropout is 0.
func NewSegmentationHead(p *nn.Path, cIn, cOut, ksize int64, dropout float64) *nn.SequentialT {
	seq := nn.SeqT()
	if dropout > 0 {
		seq.AddFn(nn.NewFuncT(func(xs *ts.Tensor, train bool) *ts.Tensor {
			return ts.MustFeatureDropout(xs, dropout, train)
		}))
	}
	seq.Add(Conv2d(p, cIn, cOut, ksize, ksize/2, 1))

	return seq
}

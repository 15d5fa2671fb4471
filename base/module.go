package base

import (
	"errors"

	"github.com/sugarme/gotch/nn"
	"github.com/sugarme/gotch/ts"
)

// ErrConfig is returned when a module is built with invalid hyper-parameters.
var ErrConfig = errors.New("invalid module config")

// Identity is a nn.Module placeholder.
// It forwards the input tensor as such.
type Identity struct{}

// Forward implement nn.Module for Identity struct
func (i *Identity) Forward(x *ts.Tensor) *ts.Tensor {
	return x.MustShallowClone()
}

// ForwardT implement nn.ModuleT for Identity struct.
func (i *Identity) ForwardT(x *ts.Tensor, train bool) *ts.Tensor {
	return x.MustShallowClone()
}

// NewIdentity creates a new Identity struct.
func NewIdentity() *Identity {
	return &Identity{}
}

// Conv2d creates Conv2D module.
func Conv2d(p *nn.Path, cIn, cOut, ksize, padding, stride int64) *nn.Conv2D {
	config := nn.DefaultConv2DConfig()
	config.Stride = []int64{stride, stride}
	config.Padding = []int64{padding, padding}

	return nn.NewConv2D(p, cIn, cOut, ksize, config)
}

// Conv2dNoBias creates Conv2D with no bias.
func Conv2dNoBias(p *nn.Path, cIn, cOut, ksize, padding, stride int64) *nn.Conv2D {
	config := nn.DefaultConv2DConfig()
	config.Bias = false
	config.Stride = []int64{stride, stride}
	config.Padding = []int64{padding, padding}

	return nn.NewConv2D(p, cIn, cOut, ksize, config)
}

// ConvModule creates a SequentialT of Conv2D, optional BatchNorm and a ReLU
// activation.
//
// Without norm the conv carries a bias (`conv.weight`, `conv.bias`). With
// norm the bias is dropped and BatchNorm2D is added at `bn`. Both layouts
// match mmcv ConvModule checkpoints.
func ConvModule(p *nn.Path, cIn, cOut, ksize, padding, stride int64, norm bool) *nn.SequentialT {
	seq := nn.SeqT()
	if norm {
		seq.Add(Conv2dNoBias(p.Sub("conv"), cIn, cOut, ksize, padding, stride))
		seq.Add(nn.BatchNorm2D(p.Sub("bn"), cOut, nn.DefaultBatchNormConfig()))
	} else {
		seq.Add(Conv2d(p.Sub("conv"), cIn, cOut, ksize, padding, stride))
	}
	seq.AddFn(nn.NewFunc(func(xs *ts.Tensor) *ts.Tensor {
		return xs.MustRelu(false)
	}))

	return seq
}

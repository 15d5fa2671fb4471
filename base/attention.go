package base

import (
	"fmt"

	"github.com/sugarme/gotch/nn"
	"github.com/sugarme/gotch/ts"
)

// AttentionConfig holds hyper-parameters of UnifiedAttention.
type AttentionConfig struct {
	Reduction  int64 // channel reduction ratio of the channel gate
	KernelSize int64 // odd kernel size of the spatial gate
}

// DefaultAttentionConfig returns reduction 16 and kernel size 7.
func DefaultAttentionConfig() *AttentionConfig {
	return &AttentionConfig{
		Reduction:  16,
		KernelSize: 7,
	}
}

// Validate checks config against the number of input channels.
func (c *AttentionConfig) Validate(cIn int64) error {
	switch {
	case cIn < 1:
		return fmt.Errorf("%w: input channels must be positive, got %d", ErrConfig, cIn)
	case c.Reduction < 1:
		return fmt.Errorf("%w: reduction must be positive, got %d", ErrConfig, c.Reduction)
	case cIn/c.Reduction < 1:
		return fmt.Errorf("%w: reduction %d is larger than channel count %d", ErrConfig, c.Reduction, cIn)
	case c.KernelSize < 1 || c.KernelSize%2 == 0:
		return fmt.Errorf("%w: spatial kernel size must be odd and positive, got %d", ErrConfig, c.KernelSize)
	}

	return nil
}

// UnifiedAttention gates a feature map with the product of a channel
// attention (global average pool + squeeze/excite) and a spatial attention
// (channel-wise mean and max followed by a single conv).
// Ref. https://arxiv.org/abs/1807.06521
type UnifiedAttention struct {
	Fc1  *nn.Conv2D // C -> C/r
	Fc2  *nn.Conv2D // C/r -> C
	Conv *nn.Conv2D // 2 -> 1, kernel k
}

// NewUnifiedAttention creates UnifiedAttention for cIn channels.
func NewUnifiedAttention(p *nn.Path, cIn int64, cfg *AttentionConfig) (*UnifiedAttention, error) {
	if cfg == nil {
		cfg = DefaultAttentionConfig()
	}
	if err := cfg.Validate(cIn); err != nil {
		return nil, err
	}

	cMid := cIn / cfg.Reduction
	return &UnifiedAttention{
		Fc1:  Conv2dNoBias(p.Sub("fc1"), cIn, cMid, 1, 0, 1),
		Fc2:  Conv2dNoBias(p.Sub("fc2"), cMid, cIn, 1, 0, 1),
		Conv: Conv2dNoBias(p.Sub("conv"), 2, 1, cfg.KernelSize, cfg.KernelSize/2, 1),
	}, nil
}

// ChannelGate returns channel weights of shape [B C 1 1] in [0, 1].
func (a *UnifiedAttention) ChannelGate(x *ts.Tensor, train bool) *ts.Tensor {
	pool := x.MustAdaptiveAvgPool2d([]int64{1, 1}, false)
	fc1 := a.Fc1.ForwardT(pool, train)
	pool.MustDrop()
	fc2 := a.Fc2.ForwardT(fc1, train)
	fc1.MustDrop()

	return fc2.MustSigmoid(true)
}

// SpatialGate returns positional weights of shape [B 1 H W] in [0, 1].
func (a *UnifiedAttention) SpatialGate(x *ts.Tensor, train bool) *ts.Tensor {
	avg := x.MustMeanDim([]int64{1}, true, x.DType(), false)
	max := x.MustAmax([]int64{1}, true, false)
	cat := ts.MustCat([]*ts.Tensor{avg, max}, 1) // [B 2 H W]
	avg.MustDrop()
	max.MustDrop()
	conv := a.Conv.ForwardT(cat, train)
	cat.MustDrop()

	return conv.MustSigmoid(true)
}

// ForwardT implements ts.ModuleT for UnifiedAttention struct.
func (a *UnifiedAttention) ForwardT(x *ts.Tensor, train bool) *ts.Tensor {
	cGate := a.ChannelGate(x, train) // [B C 1 1]
	sGate := a.SpatialGate(x, train) // [B 1 H W]
	gate := cGate.MustMul(sGate, true)
	sGate.MustDrop()

	out := x.MustMul(gate, false)
	gate.MustDrop()

	return out
}

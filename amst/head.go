package amst

import (
	"fmt"

	"github.com/sugarme/gotch/nn"
	"github.com/sugarme/gotch/ts"

	"github.com/sugarme/amst/base"
)

// Head is the AMST decode head: per-level unified attention, linear
// embedding to a shared width, progressive top-down fusion from the coarsest
// level to the finest one, and a 1x1 classifier.
//
// Level 1 is the finest input (smallest stride), level 4 the coarsest.
type Head struct {
	cfg Config

	attn  [NumLevels]*base.UnifiedAttention // ca_sa_c1 ... ca_sa_c4
	embed [NumLevels]*base.MLP              // linear_c1 ... linear_c4
	// fuse[i] merges level i+2 (resized) into level i+1:
	// fuse_c2_c1, fuse_c3_c2, fuse_c4_c3.
	fuse [NumLevels - 1]*nn.SequentialT
	pred *nn.SequentialT // dropout + linear_pred
}

// NewHead creates Head under p. cfg is validated before any variable is
// created.
func NewHead(p *nn.Path, cfg Config) (*Head, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	dp := cfg.DecoderParams
	attnCfg := &base.AttentionConfig{
		Reduction:  dp.Reduction,
		KernelSize: dp.KernelSize,
	}

	h := &Head{cfg: cfg.clone()}
	for i := 0; i < NumLevels; i++ {
		attn, err := base.NewUnifiedAttention(p.Sub(fmt.Sprintf("ca_sa_c%d", i+1)), cfg.InChannels[i], attnCfg)
		if err != nil {
			return nil, fmt.Errorf("level %d: %w", i+1, err)
		}
		h.attn[i] = attn
		h.embed[i] = base.NewMLP(p.Sub(fmt.Sprintf("linear_c%d", i+1)), cfg.InChannels[i], dp.EmbedDim)
	}
	for i := 0; i < NumLevels-1; i++ {
		h.fuse[i] = base.ConvModule(p.Sub(fmt.Sprintf("fuse_c%d_c%d", i+2, i+1)), 2*dp.EmbedDim, dp.EmbedDim, 3, 1, 1, dp.FuseNorm)
	}
	h.pred = base.NewSegmentationHead(p.Sub("linear_pred"), dp.EmbedDim, cfg.NumClasses, 1, cfg.DropoutRatio)

	return h, nil
}

// Config returns a copy of the configuration h was built with.
func (h *Head) Config() Config {
	return h.cfg.clone()
}

// ForwardFeatures computes class logits [B num_classes H1 W1] from backbone
// outputs. The four inputs are picked from features with cfg.InIndex and
// must be ordered finest first.
//
// Dropout before the classifier is only active when train is true.
func (h *Head) ForwardFeatures(features []*ts.Tensor, train bool) (*ts.Tensor, error) {
	inputs, err := h.selectInputs(features)
	if err != nil {
		return nil, err
	}

	// 1. attend
	var attended [NumLevels]*ts.Tensor
	for i, x := range inputs {
		attended[i] = h.attn[i].ForwardT(x, train)
	}

	// 2. embed: [B C_i H_i W_i] -> [B D H_i W_i]
	var embeds [NumLevels]*ts.Tensor
	for i, x := range attended {
		embeds[i] = h.embed[i].ForwardSpatial(x)
		x.MustDrop()
	}

	// 3. progressive top-down fusion: c4 -> c3 -> c2 -> c1
	out := embeds[NumLevels-1]
	for i := NumLevels - 2; i >= 0; i-- {
		up := base.Resize(out, base.SpatialSize(inputs[i]), false)
		out.MustDrop()
		cat := ts.MustCat([]*ts.Tensor{up, embeds[i]}, 1) // [B 2D H_i W_i]
		up.MustDrop()
		embeds[i].MustDrop()
		out = h.fuse[i].ForwardT(cat, train)
		cat.MustDrop()
	}

	// 4. classify
	logit := h.pred.ForwardT(out, train)
	out.MustDrop()

	return logit, nil
}

// selectInputs picks the head inputs from features and checks them against cfg.
func (h *Head) selectInputs(features []*ts.Tensor) ([NumLevels]*ts.Tensor, error) {
	var inputs [NumLevels]*ts.Tensor
	var batch int64
	for i, idx := range h.cfg.InIndex {
		if idx >= len(features) {
			return inputs, fmt.Errorf("%w: in_index %d out of range of %d features", ErrShapeMismatch, idx, len(features))
		}
		x := features[idx]
		if x == nil {
			return inputs, fmt.Errorf("%w: feature %d is nil", ErrShapeMismatch, idx)
		}

		size := x.MustSize()
		switch {
		case len(size) != 4:
			return inputs, fmt.Errorf("%w: level %d: expected [B C H W], got %v", ErrShapeMismatch, i+1, size)
		case size[1] != h.cfg.InChannels[i]:
			return inputs, fmt.Errorf("%w: level %d: expected %d channels, got %d", ErrShapeMismatch, i+1, h.cfg.InChannels[i], size[1])
		case size[2] < 1 || size[3] < 1:
			return inputs, fmt.Errorf("%w: level %d: empty spatial size %v", ErrShapeMismatch, i+1, size[2:])
		}
		if i == 0 {
			batch = size[0]
		} else if size[0] != batch {
			return inputs, fmt.Errorf("%w: level %d: batch size %d differs from %d", ErrShapeMismatch, i+1, size[0], batch)
		}

		inputs[i] = x
	}

	return inputs, nil
}

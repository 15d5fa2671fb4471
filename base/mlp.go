package base

import (
	"github.com/sugarme/gotch/nn"
	"github.com/sugarme/gotch/ts"
)

// MLP is a linear embedding applied independently at every spatial position.
type MLP struct {
	Proj *nn.Linear
}

// NewMLP creates MLP projecting cIn channels to embedDim.
func NewMLP(p *nn.Path, cIn, embedDim int64) *MLP {
	proj := nn.NewLinear(p.Sub("proj"), cIn, embedDim, nn.DefaultLinearConfig())
	return &MLP{proj}
}

// Forward flattens [B C H W] to [B H*W C] in row-major position order and
// projects it to [B H*W D].
func (m *MLP) Forward(x *ts.Tensor) *ts.Tensor {
	flat := x.MustFlatten(2, -1, false)
	seq := flat.MustTranspose(1, 2, true)
	out := m.Proj.Forward(seq)
	seq.MustDrop()

	return out
}

// ForwardSpatial embeds x and restores the spatial layout [B D H W] using
// the height and width of x.
func (m *MLP) ForwardSpatial(x *ts.Tensor) *ts.Tensor {
	size := x.MustSize()
	emb := m.Forward(x)
	perm := emb.MustPermute([]int64{0, 2, 1}, true)

	return perm.MustReshape([]int64{size[0], -1, size[2], size[3]}, true)
}

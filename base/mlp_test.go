package base_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/sugarme/gotch"
	"github.com/sugarme/gotch/nn"
	"github.com/sugarme/gotch/ts"

	"github.com/sugarme/amst/base"
)

func TestMLPShape(t *testing.T) {
	vs := nn.NewVarStore(gotch.CPU)
	mlp := base.NewMLP(vs.Root(), 12, 20)

	x := ts.MustRandn([]int64{3, 12, 4, 6}, gotch.Float, gotch.CPU)
	defer x.MustDrop()

	seq := mlp.Forward(x)
	defer seq.MustDrop()
	assert.Equal(t, []int64{3, 24, 20}, seq.MustSize())

	spatial := mlp.ForwardSpatial(x)
	defer spatial.MustDrop()
	assert.Equal(t, []int64{3, 20, 4, 6}, spatial.MustSize())
}

// Each output position (h, w) must be the projection of input position (h, w).
func TestMLPPositionCorrespondence(t *testing.T) {
	const (
		b, c, h, w, d = 2, 3, 2, 5, 4
	)
	vs := nn.NewVarStore(gotch.CPU)
	mlp := base.NewMLP(vs.Root(), c, d)

	x := ts.MustRandn([]int64{b, c, h, w}, gotch.Float, gotch.CPU)
	defer x.MustDrop()
	out := mlp.ForwardSpatial(x)
	defer out.MustDrop()

	in := x.Float64Values()    // [b c h w]
	got := out.Float64Values() // [b d h w]
	ws := mlp.Proj.Ws.Float64Values()
	bs := mlp.Proj.Bs.Float64Values()
	require.Len(t, ws, d*c)
	require.Len(t, bs, d)

	for bi := 0; bi < b; bi++ {
		for hi := 0; hi < h; hi++ {
			for wi := 0; wi < w; wi++ {
				for di := 0; di < d; di++ {
					want := bs[di]
					for ci := 0; ci < c; ci++ {
						want += ws[di*c+ci] * in[((bi*c+ci)*h+hi)*w+wi]
					}
					idx := ((bi*d+di)*h+hi)*w + wi
					assert.InDelta(t, want, got[idx], 1e-4, "b=%d d=%d h=%d w=%d", bi, di, hi, wi)
				}
			}
		}
	}
}

package base_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/sugarme/gotch"
	"github.com/sugarme/gotch/nn"
	"github.com/sugarme/gotch/ts"

	"github.com/sugarme/amst/base"
)

func TestConvModule(t *testing.T) {
	tests := []struct {
		name     string
		norm     bool
		want     []string
		excluded []string
	}{
		{"conv bias relu", false, []string{"fuse.conv.weight", "fuse.conv.bias"}, []string{"fuse.bn.weight", "fuse.bn.running_mean"}},
		{"conv bn relu", true, []string{"fuse.conv.weight", "fuse.bn.weight", "fuse.bn.running_mean"}, []string{"fuse.conv.bias"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			vs := nn.NewVarStore(gotch.CPU)
			fuse := base.ConvModule(vs.Root().Sub("fuse"), 16, 8, 3, 1, 1, tt.norm)

			x := ts.MustRandn([]int64{2, 16, 6, 5}, gotch.Float, gotch.CPU)
			defer x.MustDrop()
			out := fuse.ForwardT(x, false)
			defer out.MustDrop()

			assert.Equal(t, []int64{2, 8, 6, 5}, out.MustSize())
			for _, v := range out.Float64Values() {
				assert.GreaterOrEqual(t, v, 0.0)
			}

			vars := vs.Variables()
			for _, n := range tt.want {
				assert.Contains(t, vars, n)
			}
			for _, n := range tt.excluded {
				assert.NotContains(t, vars, n)
			}
		})
	}
}

// Without norm, a single training sample at 1x1 resolution is accepted.
func TestConvModuleTrainSinglePixel(t *testing.T) {
	vs := nn.NewVarStore(gotch.CPU)
	fuse := base.ConvModule(vs.Root().Sub("fuse"), 4, 2, 3, 1, 1, false)

	x := ts.MustRandn([]int64{1, 4, 1, 1}, gotch.Float, gotch.CPU)
	defer x.MustDrop()
	out := fuse.ForwardT(x, true)
	defer out.MustDrop()

	assert.Equal(t, []int64{1, 2, 1, 1}, out.MustSize())
}

func TestSegmentationHeadEval(t *testing.T) {
	vs := nn.NewVarStore(gotch.CPU)
	head := base.NewSegmentationHead(vs.Root().Sub("linear_pred"), 8, 3, 1, 0.5)

	x := ts.MustRandn([]int64{1, 8, 4, 4}, gotch.Float, gotch.CPU)
	defer x.MustDrop()

	out1 := head.ForwardT(x, false)
	defer out1.MustDrop()
	out2 := head.ForwardT(x, false)
	defer out2.MustDrop()

	assert.Equal(t, []int64{1, 3, 4, 4}, out1.MustSize())
	assert.Equal(t, out1.Float64Values(), out2.Float64Values())

	vars := vs.Variables()
	assert.Contains(t, vars, "linear_pred.weight")
	assert.Contains(t, vars, "linear_pred.bias")
}

func TestIdentity(t *testing.T) {
	x := ts.MustOfSlice([]float32{1, 2, 3})
	defer x.MustDrop()

	out := base.NewIdentity().ForwardT(x, true)
	defer out.MustDrop()
	assert.Equal(t, x.Float64Values(), out.Float64Values())
}

package amst_test

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/sugarme/gotch"
	"github.com/sugarme/gotch/nn"
	"github.com/sugarme/gotch/ts"

	"github.com/sugarme/amst/amst"
	"github.com/sugarme/amst/encoder"
)

func resnetConfig() amst.SegmentorConfig {
	head := amst.DefaultConfig()
	head.InChannels = []int64{64, 128, 256, 512}
	head.InIndex = []int{2, 3, 4, 5}
	head.NumClasses = 4
	head.DecoderParams.EmbedDim = 32

	return amst.SegmentorConfig{
		Backbone:   amst.BackboneConfig{Type: "resnet18"},
		DecodeHead: head,
	}
}

func TestSegmentorForward(t *testing.T) {
	vs := nn.NewVarStore(gotch.CPU)
	net, err := amst.Build(vs.Root(), resnetConfig())
	require.NoError(t, err)

	image := ts.MustRand([]int64{2, 3, 64, 96}, gotch.Float, gotch.CPU)
	defer image.MustDrop()

	var logit *ts.Tensor
	ts.NoGrad(func() {
		logit, err = net.Forward(image, false)
	})
	require.NoError(t, err)
	defer logit.MustDrop()
	assert.Equal(t, []int64{2, 4, 64, 96}, logit.MustSize())

	pred, err := net.Predict(image)
	require.NoError(t, err)
	defer pred.MustDrop()
	assert.Equal(t, []int64{2, 64, 96}, pred.MustSize())
	for _, v := range pred.Int64Values() {
		assert.GreaterOrEqual(t, v, int64(0))
		assert.Less(t, v, int64(4))
	}

	vars := vs.Variables()
	assert.Contains(t, vars, "backbone.conv1.weight")
	assert.Contains(t, vars, "decode_head.linear_pred.weight")
}

func TestNewSegmentorMismatch(t *testing.T) {
	tests := []struct {
		name   string
		modify func(c *amst.Config)
	}{
		{"channels", func(c *amst.Config) { c.InChannels = []int64{64, 128, 320, 512} }},
		{"strides", func(c *amst.Config) { c.FeatureStrides = []int64{4, 8, 16, 64} }},
		{"index out of range", func(c *amst.Config) { c.InIndex = []int{3, 4, 5, 6} }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := resnetConfig()
			tt.modify(&cfg.DecodeHead)

			vs := nn.NewVarStore(gotch.CPU)
			enc := encoder.NewResNet18Encoder(vs.Root().Sub("backbone"))
			_, err := amst.NewSegmentor(vs.Root(), enc, cfg.DecodeHead)
			assert.True(t, errors.Is(err, amst.ErrConfig))
		})
	}
}

func TestBuildUnknownBackbone(t *testing.T) {
	cfg := resnetConfig()
	cfg.Backbone.Type = "mit_b1"

	vs := nn.NewVarStore(gotch.CPU)
	_, err := amst.Build(vs.Root(), cfg)
	assert.True(t, errors.Is(err, amst.ErrConfig))
}

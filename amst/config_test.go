package amst_test

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sugarme/amst/amst"
)

func TestDefaultConfigValid(t *testing.T) {
	assert.NoError(t, amst.DefaultConfig().Validate())
}

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name   string
		modify func(c *amst.Config)
	}{
		{"three strides for four levels", func(c *amst.Config) { c.FeatureStrides = []int64{4, 8, 16} }},
		{"first stride not minimum", func(c *amst.Config) { c.FeatureStrides = []int64{8, 4, 16, 32} }},
		{"three levels", func(c *amst.Config) {
			c.InChannels = []int64{64, 128, 320}
			c.FeatureStrides = []int64{4, 8, 16}
			c.InIndex = []int{0, 1, 2}
		}},
		{"in_index length", func(c *amst.Config) { c.InIndex = []int{0, 1} }},
		{"negative in_index", func(c *amst.Config) { c.InIndex = []int{0, 1, -1, 3} }},
		{"zero stride", func(c *amst.Config) { c.FeatureStrides = []int64{0, 8, 16, 32} }},
		{"reduction larger than channels", func(c *amst.Config) { c.DecoderParams.Reduction = 100 }},
		{"even kernel", func(c *amst.Config) { c.DecoderParams.KernelSize = 6 }},
		{"zero embed dim", func(c *amst.Config) { c.DecoderParams.EmbedDim = 0 }},
		{"zero classes", func(c *amst.Config) { c.NumClasses = 0 }},
		{"dropout one", func(c *amst.Config) { c.DropoutRatio = 1 }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := amst.DefaultConfig()
			tt.modify(&cfg)
			err := cfg.Validate()
			require.Error(t, err)
			assert.True(t, errors.Is(err, amst.ErrConfig), err.Error())
		})
	}
}

// Only the first stride has to be the minimum.
func TestConfigValidateStrideOrder(t *testing.T) {
	cfg := amst.DefaultConfig()
	cfg.FeatureStrides = []int64{4, 16, 8, 32}
	assert.NoError(t, cfg.Validate())
}

func TestDecodeConfig(t *testing.T) {
	cfg, err := amst.DecodeConfig(map[string]interface{}{
		"type":            "AMSTHead",
		"in_channels":     []interface{}{32, 64, 160, 256},
		"feature_strides": []interface{}{4, 8, 16, 32},
		"channels":        128,
		"num_classes":     "150",
		"dropout_ratio":   0.0,
		"norm_cfg":        map[string]interface{}{"type": "SyncBN", "requires_grad": true},
		"decoder_params": map[string]interface{}{
			"embed_dim":   128,
			"reduction":   8,
			"kernel_size": 3,
		},
	})
	require.NoError(t, err)
	require.NoError(t, cfg.Validate())

	assert.Equal(t, []int64{32, 64, 160, 256}, cfg.InChannels)
	assert.Equal(t, []int{0, 1, 2, 3}, cfg.InIndex)
	assert.Equal(t, int64(150), cfg.NumClasses)
	assert.Equal(t, 0.0, cfg.DropoutRatio)
	assert.Equal(t, int64(255), cfg.IgnoreIndex)
	// norm_cfg only applies to the unused linear_fuse, the fusion blocks
	// stay unnormalized.
	assert.Equal(t, amst.DecoderParams{EmbedDim: 128, Reduction: 8, KernelSize: 3}, cfg.DecoderParams)
}

func TestDecodeConfigFuseNorm(t *testing.T) {
	cfg, err := amst.DecodeConfig(map[string]interface{}{
		"decoder_params": map[string]interface{}{"fuse_norm": true},
	})
	require.NoError(t, err)
	assert.True(t, cfg.DecoderParams.FuseNorm)
	assert.Equal(t, int64(256), cfg.DecoderParams.EmbedDim)
}

func TestLoadConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "amst.yaml")
	doc := `
backbone:
  type: resnet18
decode_head:
  in_channels: [64, 128, 256, 512]
  in_index: [2, 3, 4, 5]
  feature_strides: [4, 8, 16, 32]
  num_classes: 19
  align_corners: false
  decoder_params:
    embed_dim: 64
    reduction: 16
    kernel_size: 7
`
	require.NoError(t, os.WriteFile(path, []byte(doc), 0o644))

	cfg, err := amst.LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, "resnet18", cfg.Backbone.Type)
	assert.Equal(t, []int{2, 3, 4, 5}, cfg.DecodeHead.InIndex)
	assert.Equal(t, int64(64), cfg.DecodeHead.DecoderParams.EmbedDim)
	assert.Equal(t, 0.1, cfg.DecodeHead.DropoutRatio)
}

func TestLoadConfigInvalid(t *testing.T) {
	path := filepath.Join(t.TempDir(), "amst.yaml")
	doc := `
decode_head:
  feature_strides: [8, 4, 16, 32]
`
	require.NoError(t, os.WriteFile(path, []byte(doc), 0o644))

	_, err := amst.LoadConfig(path)
	assert.True(t, errors.Is(err, amst.ErrConfig))

	_, err = amst.LoadConfig(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestLoadConfigShipped(t *testing.T) {
	cfg, err := amst.LoadConfig("../configs/amst_resnet34_cityscapes.yaml")
	require.NoError(t, err)
	assert.Equal(t, "resnet34", cfg.Backbone.Type)
	assert.Equal(t, []int64{64, 128, 256, 512}, cfg.DecodeHead.InChannels)
	assert.Equal(t, int64(19), cfg.DecodeHead.NumClasses)
	assert.Equal(t, amst.DecoderParams{EmbedDim: 256, Reduction: 16, KernelSize: 7}, cfg.DecodeHead.DecoderParams)
}

package amst

import (
	"errors"
	"fmt"
	"os"
	"slices"

	"github.com/mitchellh/mapstructure"
	"gopkg.in/yaml.v3"
)

// NumLevels is the number of feature maps fused by the head.
const NumLevels = 4

var (
	// ErrConfig is returned when a head or segmentor is built with an
	// invalid configuration.
	ErrConfig = errors.New("invalid decode head config")

	// ErrShapeMismatch is returned when forward inputs do not match the
	// shapes the head was built for.
	ErrShapeMismatch = errors.New("shape mismatch")
)

// DecoderParams holds the AMST specific hyper-parameters.
type DecoderParams struct {
	EmbedDim   int64 `mapstructure:"embed_dim"`
	Reduction  int64 `mapstructure:"reduction"`
	KernelSize int64 `mapstructure:"kernel_size"`
	// FuseNorm adds BatchNorm to the fusion blocks. AMSTHead checkpoints
	// have a biased conv and no norm there.
	FuseNorm bool `mapstructure:"fuse_norm"`
}

// Config configures the decode head. Keys follow mmseg `decode_head` dicts.
type Config struct {
	InChannels     []int64       `mapstructure:"in_channels"`
	InIndex        []int         `mapstructure:"in_index"`
	FeatureStrides []int64       `mapstructure:"feature_strides"`
	NumClasses     int64         `mapstructure:"num_classes"`
	DropoutRatio   float64       `mapstructure:"dropout_ratio"`
	AlignCorners   bool          `mapstructure:"align_corners"`
	IgnoreIndex    int64         `mapstructure:"ignore_index"`
	DecoderParams  DecoderParams `mapstructure:"decoder_params"`
}

// DefaultConfig returns the SegFormer-B1 Cityscapes setting.
func DefaultConfig() Config {
	return Config{
		InChannels:     []int64{64, 128, 320, 512},
		InIndex:        []int{0, 1, 2, 3},
		FeatureStrides: []int64{4, 8, 16, 32},
		NumClasses:     19,
		DropoutRatio:   0.1,
		IgnoreIndex:    255,
		DecoderParams: DecoderParams{
			EmbedDim:   256,
			Reduction:  16,
			KernelSize: 7,
		},
	}
}

// Validate checks the invariants the head relies on.
func (c Config) Validate() error {
	if len(c.FeatureStrides) != len(c.InChannels) {
		return fmt.Errorf("%w: got %d feature strides for %d input channels", ErrConfig, len(c.FeatureStrides), len(c.InChannels))
	}
	if len(c.InChannels) != NumLevels {
		return fmt.Errorf("%w: expected %d input levels, got %d", ErrConfig, NumLevels, len(c.InChannels))
	}
	if len(c.InIndex) != len(c.InChannels) {
		return fmt.Errorf("%w: got %d input indexes for %d input channels", ErrConfig, len(c.InIndex), len(c.InChannels))
	}

	minStride := c.FeatureStrides[0]
	for i, s := range c.FeatureStrides {
		if s < 1 {
			return fmt.Errorf("%w: feature stride %d must be positive, got %d", ErrConfig, i, s)
		}
		if s < minStride {
			minStride = s
		}
	}
	if c.FeatureStrides[0] != minStride {
		return fmt.Errorf("%w: first feature stride %d is not the minimum %d", ErrConfig, c.FeatureStrides[0], minStride)
	}

	p := c.DecoderParams
	if p.EmbedDim < 1 {
		return fmt.Errorf("%w: embed_dim must be positive, got %d", ErrConfig, p.EmbedDim)
	}
	if p.Reduction < 1 {
		return fmt.Errorf("%w: reduction must be positive, got %d", ErrConfig, p.Reduction)
	}
	if p.KernelSize < 1 || p.KernelSize%2 == 0 {
		return fmt.Errorf("%w: kernel_size must be odd and positive, got %d", ErrConfig, p.KernelSize)
	}
	for i, ch := range c.InChannels {
		if ch/p.Reduction < 1 {
			return fmt.Errorf("%w: reduction %d is larger than %d channels of level %d", ErrConfig, p.Reduction, ch, i+1)
		}
	}
	for i, idx := range c.InIndex {
		if idx < 0 {
			return fmt.Errorf("%w: in_index[%d] is negative", ErrConfig, i)
		}
	}

	if c.NumClasses < 1 {
		return fmt.Errorf("%w: num_classes must be positive, got %d", ErrConfig, c.NumClasses)
	}
	if c.DropoutRatio < 0 || c.DropoutRatio >= 1 {
		return fmt.Errorf("%w: dropout_ratio must be in [0, 1), got %v", ErrConfig, c.DropoutRatio)
	}

	return nil
}

// clone returns c with its own copies of the slices.
func (c Config) clone() Config {
	c.InChannels = slices.Clone(c.InChannels)
	c.InIndex = slices.Clone(c.InIndex)
	c.FeatureStrides = slices.Clone(c.FeatureStrides)
	return c
}

// DecodeConfig decodes a mmseg style `decode_head` map on top of
// DefaultConfig. Keys the head does not use (type, channels, norm_cfg...)
// are ignored.
func DecodeConfig(m map[string]interface{}) (Config, error) {
	cfg := DefaultConfig()
	// ZeroFields: slices given in m replace the defaults instead of
	// overwriting them element by element.
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           &cfg,
		WeaklyTypedInput: true,
		ZeroFields:       true,
	})
	if err != nil {
		return cfg, err
	}
	if err := dec.Decode(m); err != nil {
		return cfg, fmt.Errorf("%w: %v", ErrConfig, err)
	}

	return cfg, nil
}

// BackboneConfig selects the encoder of a Segmentor.
type BackboneConfig struct {
	Type string `mapstructure:"type"`
}

// SegmentorConfig is the model section of a config file.
type SegmentorConfig struct {
	Backbone   BackboneConfig
	DecodeHead Config
}

// LoadConfig reads a YAML config file of the form:
//
//	backbone:
//	  type: resnet34
//	decode_head:
//	  in_channels: [64, 128, 256, 512]
//	  in_index: [2, 3, 4, 5]
//	  feature_strides: [4, 8, 16, 32]
//	  num_classes: 19
//	  decoder_params:
//	    embed_dim: 256
func LoadConfig(path string) (SegmentorConfig, error) {
	var out SegmentorConfig

	data, err := os.ReadFile(path)
	if err != nil {
		return out, err
	}

	var doc struct {
		Backbone   map[string]interface{} `yaml:"backbone"`
		DecodeHead map[string]interface{} `yaml:"decode_head"`
	}
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return out, fmt.Errorf("parse %s: %w", path, err)
	}

	if err := mapstructure.Decode(doc.Backbone, &out.Backbone); err != nil {
		return out, fmt.Errorf("%w: backbone: %v", ErrConfig, err)
	}
	if out.DecodeHead, err = DecodeConfig(doc.DecodeHead); err != nil {
		return out, err
	}

	return out, out.DecodeHead.Validate()
}

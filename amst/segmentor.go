package amst

import (
	"fmt"
	"path/filepath"

	"github.com/sugarme/gotch/nn"
	"github.com/sugarme/gotch/ts"

	"github.com/sugarme/amst/base"
	"github.com/sugarme/amst/encoder"
)

// Segmentor is an encoder-decoder segmentation model: a backbone encoder
// followed by the AMST decode head. Its logits are resized back to the
// input image size.
type Segmentor struct {
	encoder encoder.Encoder
	head    *Head
}

// NewSegmentor creates a Segmentor with head variables under
// `decode_head`. The encoder must already be built, typically under
// p.Sub("backbone").
func NewSegmentor(p *nn.Path, enc encoder.Encoder, cfg Config) (*Segmentor, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	channels := enc.Channels()
	strides := enc.Strides()
	for i, idx := range cfg.InIndex {
		if idx >= len(channels) {
			return nil, fmt.Errorf("%w: in_index %d out of range of %d encoder outputs", ErrConfig, idx, len(channels))
		}
		if channels[idx] != cfg.InChannels[i] {
			return nil, fmt.Errorf("%w: level %d: encoder output %d has %d channels, head expects %d", ErrConfig, i+1, idx, channels[idx], cfg.InChannels[i])
		}
		if strides[idx] != cfg.FeatureStrides[i] {
			return nil, fmt.Errorf("%w: level %d: encoder output %d has stride %d, head expects %d", ErrConfig, i+1, idx, strides[idx], cfg.FeatureStrides[i])
		}
	}

	head, err := NewHead(p.Sub("decode_head"), cfg)
	if err != nil {
		return nil, err
	}

	return &Segmentor{encoder: enc, head: head}, nil
}

// Build creates both encoder and head from a config file section.
func Build(p *nn.Path, cfg SegmentorConfig) (*Segmentor, error) {
	enc, err := encoder.New(p.Sub("backbone"), cfg.Backbone.Type)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrConfig, err)
	}

	return NewSegmentor(p, enc, cfg.DecodeHead)
}

// Head returns the decode head.
func (s *Segmentor) Head() *Head {
	return s.head
}

// Forward computes logits [B num_classes H W] for images x [B 3 H W].
func (s *Segmentor) Forward(x *ts.Tensor, train bool) (*ts.Tensor, error) {
	features := s.encoder.ForwardAll(x, train)
	defer func() {
		for _, f := range features {
			f.MustDrop()
		}
	}()

	logit, err := s.head.ForwardFeatures(features, train)
	if err != nil {
		return nil, err
	}

	out := base.Resize(logit, base.SpatialSize(x), s.head.cfg.AlignCorners)
	logit.MustDrop()

	return out, nil
}

// ForwardT implements ts.ModuleT for Segmentor struct.
// It panics where Forward returns an error.
func (s *Segmentor) ForwardT(x *ts.Tensor, train bool) *ts.Tensor {
	out, err := s.Forward(x, train)
	if err != nil {
		panic(err)
	}

	return out
}

// Predict returns the class map [B H W] (int64) of images x [B 3 H W].
func (s *Segmentor) Predict(x *ts.Tensor) (*ts.Tensor, error) {
	var (
		pred *ts.Tensor
		err  error
	)
	ts.NoGrad(func() {
		var logit *ts.Tensor
		logit, err = s.Forward(x, false)
		if err != nil {
			return
		}
		pred = logit.MustArgmax([]int64{1}, false, true)
	})

	return pred, err
}

// LoadWeights loads a checkpoint into vs. With partial set, variables
// missing from the file are left as initialized and their names returned.
func LoadWeights(vs *nn.VarStore, path string, partial bool) ([]string, error) {
	modelPath, err := filepath.Abs(path)
	if err != nil {
		return nil, err
	}

	if partial {
		return vs.LoadPartial(modelPath)
	}

	return nil, vs.Load(modelPath)
}

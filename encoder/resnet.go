package encoder

import (
	"fmt"

	"github.com/sugarme/gotch/nn"
	"github.com/sugarme/gotch/ts"

	"github.com/sugarme/amst/base"
)

// ResNetEncoder is a ResNet with basic blocks exposing the stem output and
// the output of each of its four stages.
type ResNetEncoder struct {
	stem   ts.ModuleT
	stages [4]ts.ModuleT
}

// stage widths of basic-block ResNets.
var resnetChannels = [4]int64{64, 128, 256, 512}

// ForwardAll implements Encoder interface for ResNetEncoder.
//
// Output: [normalized input, stem, stage1, stage2, stage3, stage4].
func (e *ResNetEncoder) ForwardAll(x *ts.Tensor, train bool) []*ts.Tensor {
	xn := rgbNormalize(x)
	out := []*ts.Tensor{xn, e.stem.ForwardT(xn, train)}
	for _, stage := range e.stages {
		out = append(out, stage.ForwardT(out[len(out)-1], train))
	}

	return out
}

// Channels implements Encoder interface for ResNetEncoder.
func (e *ResNetEncoder) Channels() []int64 {
	return []int64{3, 64, resnetChannels[0], resnetChannels[1], resnetChannels[2], resnetChannels[3]}
}

// Strides implements Encoder interface for ResNetEncoder.
func (e *ResNetEncoder) Strides() []int64 {
	return []int64{1, 4, 4, 8, 16, 32}
}

// NewResNet18Encoder creates ResNet18 encoder.
func NewResNet18Encoder(p *nn.Path) *ResNetEncoder {
	return newResNetEncoder(p, [4]int64{2, 2, 2, 2})
}

// NewResNet34Encoder creates ResNet34 encoder.
func NewResNet34Encoder(p *nn.Path) *ResNetEncoder {
	return newResNetEncoder(p, [4]int64{3, 4, 6, 3})
}

// New creates an encoder by name.
func New(p *nn.Path, name string) (Encoder, error) {
	switch name {
	case "resnet18":
		return NewResNet18Encoder(p), nil
	case "resnet34", "":
		return NewResNet34Encoder(p), nil
	default:
		return nil, fmt.Errorf("unsupported encoder %q", name)
	}
}

func newResNetEncoder(p *nn.Path, blocks [4]int64) *ResNetEncoder {
	// NOTE. `conv1` and `bn1` are at root of torchvision pretrained model.
	enc := &ResNetEncoder{stem: stem(p)}
	cIn := int64(64)
	for i, cOut := range resnetChannels {
		stride := int64(2)
		if i == 0 {
			stride = 1
		}
		enc.stages[i] = basicLayer(p.Sub(fmt.Sprintf("layer%d", i+1)), cIn, cOut, stride, blocks[i])
		cIn = cOut
	}

	return enc
}

func rgbNormalize(x *ts.Tensor) *ts.Tensor {
	meanVals := []float32{0.485, 0.456, 0.406} // image RGB mean
	sdVals := []float32{0.229, 0.224, 0.225}   // image RGB standard error

	mean := ts.MustOfSlice(meanVals).MustView([]int64{1, 3, 1, 1}, true).MustTo(x.MustDevice(), true)
	sd := ts.MustOfSlice(sdVals).MustView([]int64{1, 3, 1, 1}, true).MustTo(x.MustDevice(), true)

	// x = (x - mean)/sd
	n := x.MustSub(mean, false).MustDiv(sd, true)
	mean.MustDrop()
	sd.MustDrop()

	return n
}

// stem downsamples by 4: 7x7/2 conv, BN, ReLU, 3x3/2 maxpool.
func stem(p *nn.Path) ts.ModuleT {
	seq := nn.SeqT()
	seq.Add(base.Conv2dNoBias(p.Sub("conv1"), 3, 64, 7, 3, 2))
	seq.Add(nn.BatchNorm2D(p.Sub("bn1"), 64, nn.DefaultBatchNormConfig()))
	seq.AddFn(nn.NewFunc(func(xs *ts.Tensor) *ts.Tensor {
		return xs.MustRelu(false)
	}))
	seq.AddFn(nn.NewFunc(func(xs *ts.Tensor) *ts.Tensor {
		return xs.MustMaxPool2d([]int64{3, 3}, []int64{2, 2}, []int64{1, 1}, []int64{1, 1}, false, false)
	}))

	return seq
}

func basicLayer(path *nn.Path, cIn, cOut, stride, cnt int64) ts.ModuleT {
	layer := nn.SeqT()
	layer.Add(NewBasicBlock(path.Sub("0"), cIn, cOut, stride))
	for blockIndex := 1; blockIndex < int(cnt); blockIndex++ {
		layer.Add(NewBasicBlock(path.Sub(fmt.Sprint(blockIndex)), cOut, cOut, 1))
	}

	return layer
}

func downSample(path *nn.Path, cIn, cOut, stride int64) ts.ModuleT {
	if stride != 1 || cIn != cOut {
		seq := nn.SeqT()
		seq.Add(base.Conv2dNoBias(path.Sub("0"), cIn, cOut, 1, 0, stride))
		seq.Add(nn.BatchNorm2D(path.Sub("1"), cOut, nn.DefaultBatchNormConfig()))

		return seq
	}
	return base.NewIdentity()
}

// BasicBlock is the two 3x3 conv residual block of ResNet18/34.
type BasicBlock struct {
	Conv1      *nn.Conv2D
	Bn1        *nn.BatchNorm
	Conv2      *nn.Conv2D
	Bn2        *nn.BatchNorm
	Downsample ts.ModuleT
}

// NewBasicBlock creates BasicBlock.
func NewBasicBlock(path *nn.Path, cIn, cOut, stride int64) *BasicBlock {
	return &BasicBlock{
		Conv1:      base.Conv2dNoBias(path.Sub("conv1"), cIn, cOut, 3, 1, stride),
		Bn1:        nn.BatchNorm2D(path.Sub("bn1"), cOut, nn.DefaultBatchNormConfig()),
		Conv2:      base.Conv2dNoBias(path.Sub("conv2"), cOut, cOut, 3, 1, 1),
		Bn2:        nn.BatchNorm2D(path.Sub("bn2"), cOut, nn.DefaultBatchNormConfig()),
		Downsample: downSample(path.Sub("downsample"), cIn, cOut, stride),
	}
}

// ForwardT implements ts.ModuleT for BasicBlock.
func (bb *BasicBlock) ForwardT(x *ts.Tensor, train bool) *ts.Tensor {
	c1 := bb.Conv1.ForwardT(x, train)
	bn1Ts := bb.Bn1.ForwardT(c1, train)
	c1.MustDrop()
	relu := bn1Ts.MustRelu(true)
	c2 := bb.Conv2.ForwardT(relu, train)
	relu.MustDrop()
	bn2Ts := bb.Bn2.ForwardT(c2, train)
	c2.MustDrop()
	dsl := bb.Downsample.ForwardT(x, train)
	dslAdd := dsl.MustAdd(bn2Ts, true)
	bn2Ts.MustDrop()

	return dslAdd.MustRelu(true)
}

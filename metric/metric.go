package metric

import (
	"fmt"
	"math"

	"github.com/sugarme/gotch/ts"
)

// binarize flattens x and thresholds it at 0.5.
func binarize(x *ts.Tensor) []bool {
	vals := x.Float64Values()
	out := make([]bool, len(vals))
	for i, v := range vals {
		out[i] = v > 0.5
	}
	return out
}

func overlap(pred, target *ts.Tensor) (inter, predSum, targetSum float64) {
	p := binarize(pred)
	t := binarize(target)
	if len(p) != len(t) {
		panic(fmt.Sprintf("metric: pred has %d elements, target has %d", len(p), len(t)))
	}

	for i := range p {
		if p[i] {
			predSum++
		}
		if t[i] {
			targetSum++
		}
		if p[i] && t[i] {
			inter++
		}
	}
	return inter, predSum, targetSum
}

// DiceCoeff computes the Dice coefficient 2|P∩T| / (|P| + |T|) of two
// binary masks. Values above 0.5 are foreground.
func DiceCoeff(pred, target *ts.Tensor) float64 {
	inter, p, t := overlap(pred, target)
	if p+t == 0 {
		return 1
	}
	return 2 * inter / (p + t)
}

// IoU computes |P∩T| / |P∪T| of two binary masks.
func IoU(pred, target *ts.Tensor) float64 {
	inter, p, t := overlap(pred, target)
	union := p + t - inter
	if union == 0 {
		return 1
	}
	return inter / union
}

// JaccardIndex computes the mean IoU of label maps pred and target over the
// classes that appear in either of them.
func JaccardIndex(pred, target *ts.Tensor, numClasses int64) float64 {
	cm := NewConfusionMatrix(numClasses, -1)
	if err := cm.Update(pred, target); err != nil {
		panic(err)
	}
	return cm.MeanIoU()
}

// toLabels flattens x into int64 class labels.
func toLabels(x *ts.Tensor) []int64 {
	vals := x.Float64Values()
	out := make([]int64, len(vals))
	for i, v := range vals {
		out[i] = int64(math.Round(v))
	}
	return out
}

package metric

import (
	"fmt"
	"math"
	"sync"

	"github.com/sugarme/gotch/ts"
)

// ConfusionMatrix accumulates pixel counts of (target, pred) class pairs
// over many label maps. It is safe for concurrent use.
type ConfusionMatrix struct {
	numClasses  int64
	ignoreIndex int64

	mu     sync.Mutex
	counts []int64 // row-major [target][pred]
}

// NewConfusionMatrix creates a matrix for numClasses classes. Target pixels
// equal to ignoreIndex are skipped.
func NewConfusionMatrix(numClasses, ignoreIndex int64) *ConfusionMatrix {
	return &ConfusionMatrix{
		numClasses:  numClasses,
		ignoreIndex: ignoreIndex,
		counts:      make([]int64, numClasses*numClasses),
	}
}

// NumClasses returns the number of classes.
func (m *ConfusionMatrix) NumClasses() int64 {
	return m.numClasses
}

// Update adds label maps pred and target (same number of elements).
func (m *ConfusionMatrix) Update(pred, target *ts.Tensor) error {
	return m.UpdateLabels(toLabels(pred), toLabels(target))
}

// UpdateLabels adds flattened label maps.
func (m *ConfusionMatrix) UpdateLabels(pred, target []int64) error {
	if len(pred) != len(target) {
		return fmt.Errorf("metric: pred has %d labels, target has %d", len(pred), len(target))
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	local := make([]int64, len(m.counts))
	for i, t := range target {
		if t == m.ignoreIndex {
			continue
		}
		p := pred[i]
		if t < 0 || t >= m.numClasses {
			return fmt.Errorf("metric: target label %d out of range [0, %d)", t, m.numClasses)
		}
		if p < 0 || p >= m.numClasses {
			return fmt.Errorf("metric: predicted label %d out of range [0, %d)", p, m.numClasses)
		}
		local[t*m.numClasses+p]++
	}
	for i, c := range local {
		m.counts[i] += c
	}

	return nil
}

// Count returns the number of pixels of class target predicted as pred.
func (m *ConfusionMatrix) Count(target, pred int64) int64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.counts[target*m.numClasses+pred]
}

// stats returns per-class intersection, ground truth and prediction counts.
func (m *ConfusionMatrix) stats() (inter, gt, pr []int64) {
	m.mu.Lock()
	defer m.mu.Unlock()

	n := m.numClasses
	inter = make([]int64, n)
	gt = make([]int64, n)
	pr = make([]int64, n)
	for t := int64(0); t < n; t++ {
		for p := int64(0); p < n; p++ {
			c := m.counts[t*n+p]
			gt[t] += c
			pr[p] += c
			if t == p {
				inter[t] += c
			}
		}
	}
	return inter, gt, pr
}

// ClassIoU returns IoU per class. Classes absent from both prediction and
// ground truth are NaN.
func (m *ConfusionMatrix) ClassIoU() []float64 {
	inter, gt, pr := m.stats()
	out := make([]float64, len(inter))
	for i := range inter {
		union := gt[i] + pr[i] - inter[i]
		if union == 0 {
			out[i] = math.NaN()
			continue
		}
		out[i] = float64(inter[i]) / float64(union)
	}
	return out
}

// ClassAccuracy returns recall per class. Classes absent from the ground
// truth are NaN.
func (m *ConfusionMatrix) ClassAccuracy() []float64 {
	inter, gt, _ := m.stats()
	out := make([]float64, len(inter))
	for i := range inter {
		if gt[i] == 0 {
			out[i] = math.NaN()
			continue
		}
		out[i] = float64(inter[i]) / float64(gt[i])
	}
	return out
}

// MeanIoU averages ClassIoU ignoring NaN classes.
func (m *ConfusionMatrix) MeanIoU() float64 {
	return nanMean(m.ClassIoU())
}

// PixelAccuracy returns the ratio of correctly labelled pixels.
func (m *ConfusionMatrix) PixelAccuracy() float64 {
	inter, gt, _ := m.stats()
	var correct, total int64
	for i := range inter {
		correct += inter[i]
		total += gt[i]
	}
	if total == 0 {
		return math.NaN()
	}
	return float64(correct) / float64(total)
}

func nanMean(xs []float64) float64 {
	var (
		sum float64
		n   int
	)
	for _, x := range xs {
		if math.IsNaN(x) {
			continue
		}
		sum += x
		n++
	}
	if n == 0 {
		return math.NaN()
	}
	return sum / float64(n)
}

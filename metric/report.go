package metric

import (
	"fmt"
	"io"
	"math"

	"github.com/go-gota/gota/dataframe"
	"github.com/go-gota/gota/series"
	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"
)

// classNames returns names, falling back to class indexes.
func classNames(n int64, names []string) []string {
	out := make([]string, n)
	for i := range out {
		if i < len(names) {
			out[i] = names[i]
		} else {
			out[i] = fmt.Sprint(i)
		}
	}
	return out
}

// Report tabulates per-class IoU, accuracy and ground truth pixel counts.
func Report(m *ConfusionMatrix, names []string) dataframe.DataFrame {
	_, gt, _ := m.stats()
	pixels := make([]int, len(gt))
	for i, c := range gt {
		pixels[i] = int(c)
	}

	return dataframe.New(
		series.New(classNames(m.numClasses, names), series.String, "class"),
		series.New(m.ClassIoU(), series.Float, "iou"),
		series.New(m.ClassAccuracy(), series.Float, "acc"),
		series.New(pixels, series.Int, "pixels"),
	)
}

// WriteReport writes df as CSV.
func WriteReport(df dataframe.DataFrame, w io.Writer) error {
	if df.Err != nil {
		return df.Err
	}
	return df.WriteCSV(w)
}

// PlotClassIoU saves a bar chart of per-class IoU to path. The format
// follows the file extension (png, svg, pdf...).
func PlotClassIoU(m *ConfusionMatrix, names []string, path string) error {
	ious := m.ClassIoU()
	values := make(plotter.Values, len(ious))
	for i, v := range ious {
		if !math.IsNaN(v) {
			values[i] = v
		}
	}

	p, err := plot.New()
	if err != nil {
		return err
	}
	p.Title.Text = fmt.Sprintf("Class IoU (mIoU %.4f)", m.MeanIoU())
	p.Y.Label.Text = "IoU"
	p.Y.Min = 0
	p.Y.Max = 1

	bars, err := plotter.NewBarChart(values, vg.Points(10))
	if err != nil {
		return err
	}
	p.Add(bars)
	p.NominalX(classNames(m.numClasses, names)...)

	width := vg.Length(len(values)) * vg.Points(18)
	if width < 4*vg.Inch {
		width = 4 * vg.Inch
	}

	return p.Save(width, 4*vg.Inch, path)
}

package main

import (
	"fmt"
	"image"
	"image/color"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"

	"github.com/go-gota/gota/dataframe"
	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"

	"github.com/sugarme/amst/metric"
	"github.com/sugarme/amst/vis"
)

func NewEvalCmd() *cobra.Command {
	var (
		mf     modelFlags
		list   string
		report string
		plot   string
	)

	cmd := &cobra.Command{
		Use:   "eval",
		Short: "Compute per-class IoU over image/mask pairs",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			pairs, err := readPairs(list)
			if err != nil {
				return err
			}

			net, _, cfg, err := mf.load()
			if err != nil {
				return err
			}

			// grad mode is thread local in libtorch.
			runtime.LockOSThread()
			defer runtime.UnlockOSThread()

			device := mf.device()
			cm := metric.NewConfusionMatrix(cfg.DecodeHead.NumClasses, cfg.DecodeHead.IgnoreIndex)
			for i, p := range pairs {
				img, err := vis.ReadImage(p[0])
				if err != nil {
					return err
				}
				mask, err := vis.ReadImage(p[1])
				if err != nil {
					return err
				}

				// predict at mask resolution
				mb := mask.Bounds()
				x := vis.ToTensor(img, mb.Dy(), mb.Dx()).MustTo(device, true)
				pred, err := net.Predict(x)
				x.MustDrop()
				if err != nil {
					return fmt.Errorf("%s: %w", p[0], err)
				}
				labels := pred.Int64Values()
				pred.MustDrop()

				if err := cm.UpdateLabels(labels, maskLabels(mask)); err != nil {
					return fmt.Errorf("%s: %w", p[1], err)
				}
				slog.Debug("evaluated", "n", i+1, "of", len(pairs), "image", p[0])
			}

			names := vis.PaletteFor(int(cfg.DecodeHead.NumClasses)).Names()
			df := metric.Report(cm, names)
			printReport(df)
			fmt.Printf("mIoU: %.4f\taAcc: %.4f\n", cm.MeanIoU(), cm.PixelAccuracy())

			if report != "" {
				f, err := os.Create(report)
				if err != nil {
					return err
				}
				if err := metric.WriteReport(df, f); err != nil {
					f.Close()
					return err
				}
				if err := f.Close(); err != nil {
					return err
				}
			}
			if plot != "" {
				return metric.PlotClassIoU(cm, names, plot)
			}
			return nil
		},
	}

	mf.register(cmd)
	cmd.Flags().StringVarP(&list, "list", "l", "", "CSV file with 'image' and 'mask' columns")
	cmd.Flags().StringVar(&report, "report", "", "Write per-class report CSV to this file")
	cmd.Flags().StringVar(&plot, "plot", "", "Save per-class IoU bar chart to this file")
	_ = cmd.MarkFlagRequired("list")

	return cmd
}

// readPairs reads (image, mask) paths. Relative paths are resolved against
// the directory of the list file.
func readPairs(filename string) ([][2]string, error) {
	f, err := os.Open(filename)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	df := dataframe.ReadCSV(f, dataframe.HasHeader(true))
	if df.Err != nil {
		return nil, df.Err
	}
	images := df.Col("image")
	masks := df.Col("mask")
	if images.Err != nil || masks.Err != nil {
		return nil, fmt.Errorf("%s: expected 'image' and 'mask' columns", filename)
	}

	dir := filepath.Dir(filename)
	resolve := func(p string) string {
		if filepath.IsAbs(p) {
			return p
		}
		return filepath.Join(dir, p)
	}

	imgs := images.Records()
	msks := masks.Records()
	pairs := make([][2]string, len(imgs))
	for i := range imgs {
		pairs[i] = [2]string{resolve(imgs[i]), resolve(msks[i])}
	}
	return pairs, nil
}

// maskLabels reads class ids stored as gray levels.
func maskLabels(mask image.Image) []int64 {
	b := mask.Bounds()
	out := make([]int64, 0, b.Dx()*b.Dy())
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			g := color.GrayModel.Convert(mask.At(x, y)).(color.Gray)
			out = append(out, int64(g.Y))
		}
	}
	return out
}

func printReport(df dataframe.DataFrame) {
	table := tablewriter.NewWriter(os.Stdout)
	table.SetHeader(df.Names())
	table.SetHeaderAlignment(tablewriter.ALIGN_LEFT)
	table.SetAlignment(tablewriter.ALIGN_LEFT)
	table.SetBorder(false)
	table.AppendBulk(df.Records()[1:])
	table.Render()
}

package main

import (
	"fmt"
	"image"
	"log/slog"
	"path/filepath"
	"runtime"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"github.com/sugarme/gotch"
	"golang.org/x/sync/errgroup"

	"github.com/sugarme/amst/amst"
	"github.com/sugarme/amst/vis"
)

func NewInferCmd() *cobra.Command {
	var (
		mf      modelFlags
		outDir  string
		size    string
		opacity float64
		workers int
	)

	cmd := &cobra.Command{
		Use:   "infer IMAGE [IMAGE...]",
		Short: "Segment images and save color overlays",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if workers < 1 {
				return fmt.Errorf("--workers must be at least 1, got %d", workers)
			}
			h, w, err := parseSize(size)
			if err != nil {
				return err
			}

			net, _, cfg, err := mf.load()
			if err != nil {
				return err
			}
			palette := vis.PaletteFor(int(cfg.DecodeHead.NumClasses))

			g, ctx := errgroup.WithContext(cmd.Context())
			g.SetLimit(workers)
			for _, path := range args {
				path := path
				g.Go(func() error {
					if err := ctx.Err(); err != nil {
						return err
					}
					return inferOne(net, mf.device(), path, outDir, h, w, opacity, palette)
				})
			}

			return g.Wait()
		},
	}

	mf.register(cmd)
	cmd.Flags().StringVarP(&outDir, "out", "o", "./output", "Output directory")
	cmd.Flags().StringVar(&size, "size", "512x1024", "Model input size HxW")
	cmd.Flags().Float64Var(&opacity, "opacity", 0.5, "Overlay opacity of the class colors")
	cmd.Flags().IntVar(&workers, "workers", 1, "Number of images processed concurrently")

	return cmd
}

func inferOne(net *amst.Segmentor, device gotch.Device, path, outDir string, h, w int, opacity float64, palette vis.Palette) error {
	// grad mode is thread local in libtorch.
	runtime.LockOSThread()
	defer runtime.UnlockOSThread()

	start := time.Now()
	img, err := vis.ReadImage(path)
	if err != nil {
		return err
	}

	x := vis.ToTensor(img, h, w).MustTo(device, true)
	pred, err := net.Predict(x)
	x.MustDrop()
	if err != nil {
		return fmt.Errorf("%s: %w", path, err)
	}
	labels := pred.Int64Values()
	pred.MustDrop()

	seg, err := vis.Colorize(labels, h, w, palette)
	if err != nil {
		return err
	}

	name := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	b := img.Bounds()
	if err := vis.SaveImage(vis.Overlay(img, seg, opacity), filepath.Join(outDir, name+"_overlay.png")); err != nil {
		return err
	}
	if err := vis.SaveImage(labelImage(labels, h, w, b.Dx(), b.Dy()), filepath.Join(outDir, name+"_label.png")); err != nil {
		return err
	}

	slog.Info("segmented", "image", path, "elapsed", time.Since(start).Round(time.Millisecond))
	return nil
}

// labelImage stores class ids as gray levels, rescaled to dw x dh by
// nearest neighbor.
func labelImage(labels []int64, h, w, dw, dh int) *image.Gray {
	out := image.NewGray(image.Rect(0, 0, dw, dh))
	for y := 0; y < dh; y++ {
		sy := y * h / dh
		for x := 0; x < dw; x++ {
			sx := x * w / dw
			out.Pix[y*out.Stride+x] = uint8(labels[sy*w+sx])
		}
	}
	return out
}

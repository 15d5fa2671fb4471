package main

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/sugarme/amst/vis"
)

func NewProbeCmd() *cobra.Command {
	var classes int

	cmd := &cobra.Command{
		Use:   "probe IMAGE X Y",
		Short: "Print the color at a pixel of an overlay and its nearest class",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			x, err := strconv.Atoi(args[1])
			if err != nil {
				return fmt.Errorf("invalid x: %w", err)
			}
			y, err := strconv.Atoi(args[2])
			if err != nil {
				return fmt.Errorf("invalid y: %w", err)
			}

			img, err := vis.ReadImage(args[0])
			if err != nil {
				return err
			}
			c, err := vis.PixelAt(img, x, y)
			if err != nil {
				return err
			}

			palette := vis.PaletteFor(classes)
			idx, dist := vis.NearestClass(c, palette)
			fmt.Fprintf(cmd.OutOrStdout(), "Pixel value at (%d, %d): [%d %d %d]\n", x, y, c.R, c.G, c.B)
			if idx >= 0 {
				fmt.Fprintf(cmd.OutOrStdout(), "Nearest class: %d %s (distance %.1f)\n", idx, palette[idx].Name, dist)
			}
			return nil
		},
	}

	cmd.Flags().IntVar(&classes, "classes", 19, "Number of classes of the palette")
	return cmd
}

package main

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"

	"github.com/spf13/cobra"
	"github.com/sugarme/gotch"
	"github.com/sugarme/gotch/nn"

	"github.com/sugarme/amst/amst"
)

func NewRootCmd() *cobra.Command {
	var verbose bool

	rootCmd := &cobra.Command{
		Use:          "amst",
		Short:        "Semantic segmentation with the AMST decode head",
		SilenceUsage: true,
		CompletionOptions: cobra.CompletionOptions{
			DisableDefaultCmd: true,
		},
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			level := slog.LevelInfo
			if verbose {
				level = slog.LevelDebug
			}
			slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))
		},
	}
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable debug logging")

	rootCmd.AddCommand(
		NewInferCmd(),
		NewEvalCmd(),
		NewVarsCmd(),
		NewProbeCmd(),
	)

	return rootCmd
}

func main() {
	if err := NewRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

// modelFlags are shared by commands that build a Segmentor.
type modelFlags struct {
	config  string
	weights string
	partial bool
	cuda    bool
}

func (f *modelFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVarP(&f.config, "config", "c", "", "Model config file (YAML)")
	cmd.Flags().StringVarP(&f.weights, "weights", "w", "", "Model weights '.ot' file")
	cmd.Flags().BoolVar(&f.partial, "partial", false, "Allow weights missing from the file (e.g. backbone-only checkpoint)")
	cmd.Flags().BoolVar(&f.cuda, "cuda", false, "Use CUDA when available")
	_ = cmd.MarkFlagRequired("config")
}

func (f *modelFlags) device() gotch.Device {
	if f.cuda {
		return gotch.CudaIfAvailable()
	}
	return gotch.CPU
}

// load builds the Segmentor described by the config file and loads its weights.
func (f *modelFlags) load() (*amst.Segmentor, *nn.VarStore, amst.SegmentorConfig, error) {
	cfg, err := amst.LoadConfig(f.config)
	if err != nil {
		return nil, nil, cfg, err
	}

	device := f.device()
	vs := nn.NewVarStore(device)
	net, err := amst.Build(vs.Root(), cfg)
	if err != nil {
		return nil, nil, cfg, err
	}
	slog.Debug("model built", "backbone", cfg.Backbone.Type, "classes", cfg.DecodeHead.NumClasses, "device", device)

	if f.weights == "" {
		slog.Warn("no weights given, using random initialization")
		return net, vs, cfg, nil
	}

	missing, err := amst.LoadWeights(vs, f.weights, f.partial)
	if err != nil {
		return nil, nil, cfg, fmt.Errorf("load weights: %w", err)
	}
	for _, m := range missing {
		slog.Debug("missing variable", "name", m)
	}
	slog.Info("weights loaded", "path", f.weights, "missing", len(missing))

	return net, vs, cfg, nil
}

// parseSize parses "HxW".
func parseSize(s string) (h, w int, err error) {
	parts := strings.Split(strings.ToLower(s), "x")
	if len(parts) != 2 {
		return 0, 0, fmt.Errorf("invalid size %q, expected HxW", s)
	}
	if h, err = strconv.Atoi(parts[0]); err != nil {
		return 0, 0, fmt.Errorf("invalid size %q: %w", s, err)
	}
	if w, err = strconv.Atoi(parts[1]); err != nil {
		return 0, 0, fmt.Errorf("invalid size %q: %w", s, err)
	}
	if h < 1 || w < 1 {
		return 0, 0, fmt.Errorf("invalid size %q", s)
	}
	return h, w, nil
}

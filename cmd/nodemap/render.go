package main

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/signalsfoundry/nodemap/internal/backdrop"
	"github.com/signalsfoundry/nodemap/internal/config"
	"github.com/signalsfoundry/nodemap/internal/logging"
	"github.com/signalsfoundry/nodemap/internal/nodesource"
	"github.com/signalsfoundry/nodemap/internal/observability"
	"github.com/signalsfoundry/nodemap/internal/viz"
	"github.com/signalsfoundry/nodemap/model"
)

type renderOptions struct {
	variant  string
	width    float64
	height   float64
	lambda   float64
	phi      float64
	nodes    string
	backdrop string
	out      string
	quiet    bool
}

func renderCmd(root *rootOptions) *cobra.Command {
	opts := &renderOptions{}
	cmd := &cobra.Command{
		Use:   "render [nodes-file]",
		Short: "Render a node file to an SVG map",
		Example: "  nodemap render nodes.yaml -o map.svg\n" +
			"  nodemap render --variant globe --lambda -100 --phi -30 nodes.json > globe.svg",
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) == 1 {
				opts.nodes = args[0]
			}
			cfg, err := root.load()
			if err != nil {
				return err
			}
			opts.apply(cmd, cfg)
			if err := validate(cfg); err != nil {
				return err
			}
			if cfg.Data.NodesFile == "" {
				return fmt.Errorf("no nodes file: pass one as an argument or set data.nodes_file")
			}
			return runRender(cmd.Context(), cfg, opts, cmd.OutOrStdout(), cmd.ErrOrStderr())
		},
	}

	f := cmd.Flags()
	f.StringVar(&opts.variant, "variant", "", "Map variant: flat or globe")
	f.Float64Var(&opts.width, "width", 0, "Surface width in pixels")
	f.Float64Var(&opts.height, "height", 0, "Surface height in pixels")
	f.Float64Var(&opts.lambda, "lambda", 0, "Globe rotation about the polar axis, degrees")
	f.Float64Var(&opts.phi, "phi", 0, "Globe tilt, degrees")
	f.StringVar(&opts.backdrop, "backdrop", "", "GeoJSON land outline drawn under the markers")
	f.StringVarP(&opts.out, "out", "o", "", "Write the SVG here instead of stdout")
	f.BoolVarP(&opts.quiet, "quiet", "q", false, "Suppress the status legend and record warnings")
	return cmd
}

// apply copies explicitly set flags over the loaded configuration.
func (o *renderOptions) apply(cmd *cobra.Command, cfg *config.Config) {
	f := cmd.Flags()
	if f.Changed("variant") {
		cfg.Engine.Variant = o.variant
	}
	if f.Changed("width") {
		cfg.Engine.Width = o.width
	}
	if f.Changed("height") {
		cfg.Engine.Height = o.height
	}
	if f.Changed("lambda") {
		cfg.Engine.Lambda = o.lambda
	}
	if f.Changed("phi") {
		cfg.Engine.Phi = o.phi
	}
	if f.Changed("backdrop") {
		cfg.Data.BackdropFile = o.backdrop
	}
	if o.nodes != "" {
		cfg.Data.NodesFile = o.nodes
	}
}

func runRender(ctx context.Context, cfg *config.Config, opts *renderOptions, stdout, stderr io.Writer) (err error) {
	logCfg := cfg.LoggingConfig()
	logCfg.Output = stderr
	log := logging.New(logCfg)

	tracingCfg := cfg.TracingConfig()
	tracingCfg.Output = stderr
	shutdown, err := observability.InitTracing(ctx, tracingCfg, log)
	if err != nil {
		return err
	}
	defer observability.ShutdownWithTimeout(context.Background(), shutdown, log)

	nodes, err := nodesource.LoadFile(cfg.Data.NodesFile)
	if err != nil {
		return err
	}

	engineOpts := []viz.Option{viz.WithLogger(log)}
	if r := cfg.Rand(); r != nil {
		engineOpts = append(engineOpts, viz.WithRand(r))
	}
	if cfg.Data.BackdropFile != "" {
		tracker := backdrop.NewTracker()
		if err := tracker.Load(ctx, backdrop.FileLoader{Path: cfg.Data.BackdropFile}); err != nil && !opts.quiet {
			Warn.Fprintf(stderr, "backdrop unavailable: %v\n", err)
		}
		engineOpts = append(engineOpts, viz.WithBackdrop(tracker))
	}

	w := stdout
	if opts.out != "" {
		file, ferr := os.Create(opts.out)
		if ferr != nil {
			return ferr
		}
		defer func() {
			if cerr := file.Close(); err == nil {
				err = cerr
			}
		}()
		w = file
	}

	if err := viz.RenderSVG(ctx, w, cfg.VizConfig(), nodes, engineOpts...); err != nil {
		return err
	}

	if !opts.quiet {
		reportNodes(stderr, nodes)
	}
	return nil
}

// reportNodes prints skipped records and a per-status legend of the rest.
// Duplicate ids count once, with the last record's status.
func reportNodes(w io.Writer, nodes []model.NodeRecord) {
	latest := make(map[string]model.Status)
	skipped := 0
	for _, n := range nodes {
		if err := n.Validate(); err != nil {
			Warn.Fprintf(w, "  skipped: %v\n", err)
			skipped++
			continue
		}
		latest[n.ID] = n.Status
	}
	counts := make(map[model.Status]int)
	for _, s := range latest {
		counts[s]++
	}
	printLegend(w, counts)
	if skipped > 0 {
		Subtle.Fprintf(w, "  %d of %d records skipped\n", skipped, len(nodes))
	}
}

package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/signalsfoundry/nodemap/internal/backdrop"
	"github.com/signalsfoundry/nodemap/internal/config"
	"github.com/signalsfoundry/nodemap/internal/logging"
	"github.com/signalsfoundry/nodemap/internal/nodesource"
	"github.com/signalsfoundry/nodemap/internal/observability"
	"github.com/signalsfoundry/nodemap/internal/server"
	"github.com/signalsfoundry/nodemap/kb"
)

func serveCmd(root *rootOptions) *cobra.Command {
	var httpAddr, grpcAddr, nodes, backdropFile string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve SVG renders, live websocket sessions, metrics and health",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := root.load()
			if err != nil {
				return err
			}
			f := cmd.Flags()
			if f.Changed("http-addr") {
				cfg.Server.HTTPAddr = httpAddr
			}
			if f.Changed("grpc-addr") {
				cfg.Server.GRPCAddr = grpcAddr
			}
			if f.Changed("nodes") {
				cfg.Data.NodesFile = nodes
			}
			if f.Changed("backdrop") {
				cfg.Data.BackdropFile = backdropFile
			}
			if err := validate(cfg); err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return runServe(ctx, cfg, logging.New(cfg.LoggingConfig()))
		},
	}
	f := cmd.Flags()
	f.StringVar(&httpAddr, "http-addr", "", "HTTP listen address (default from config, :8080)")
	f.StringVar(&grpcAddr, "grpc-addr", "", "gRPC health listen address (default from config, :9090)")
	f.StringVar(&nodes, "nodes", "", "YAML or JSON node file to publish and watch")
	f.StringVar(&backdropFile, "backdrop", "", "GeoJSON land outline")
	return cmd
}

// runServe blocks until ctx is done, then drains both listeners within the
// configured shutdown timeout.
func runServe(ctx context.Context, cfg *config.Config, log logging.Logger) error {
	shutdownTracing, err := observability.InitTracing(ctx, cfg.TracingConfig(), log)
	if err != nil {
		return err
	}
	defer observability.ShutdownWithTimeout(context.Background(), shutdownTracing, log)

	collector, err := observability.NewVizCollector(nil)
	if err != nil {
		return fmt.Errorf("metrics: %w", err)
	}

	feed := kb.NewFeed()
	tracker := backdrop.NewTracker()

	web := server.New(server.Options{
		Engine:        cfg.VizConfig(),
		FrameInterval: cfg.FrameInterval(),
		Feed:          feed,
		Backdrop:      tracker,
		Metrics:       collector,
		Log:           log,
		Seed:          cfg.Engine.Seed,
	})
	httpSrv := &http.Server{
		Addr:              cfg.Server.HTTPAddr,
		Handler:           web.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	rpc := server.NewGRPC(feed, collector, log)

	httpLis, err := net.Listen("tcp", cfg.Server.HTTPAddr)
	if err != nil {
		return fmt.Errorf("listen http %s: %w", cfg.Server.HTTPAddr, err)
	}
	grpcLis, err := net.Listen("tcp", cfg.Server.GRPCAddr)
	if err != nil {
		httpLis.Close()
		return fmt.Errorf("listen grpc %s: %w", cfg.Server.GRPCAddr, err)
	}

	g, gctx := errgroup.WithContext(ctx)

	if path := cfg.Data.BackdropFile; path != "" {
		g.Go(func() error {
			if err := tracker.Load(gctx, backdrop.FileLoader{Path: path}); err != nil {
				log.Warn(gctx, "backdrop load failed; maps show a placeholder", logging.Err(err))
			}
			return nil
		})
	}
	if path := cfg.Data.NodesFile; path != "" {
		g.Go(func() error {
			if !cfg.Data.Watch {
				loaded, err := nodesource.LoadFile(path)
				if err != nil {
					return err
				}
				feed.Publish(loaded)
				return nil
			}
			return nodesource.Watch(gctx, path, feed, log)
		})
	} else {
		log.Warn(ctx, "no nodes file configured; serving an empty map")
		feed.Publish(nil)
	}

	g.Go(func() error {
		log.Info(gctx, "serving http", logging.String("addr", httpLis.Addr().String()))
		if err := httpSrv.Serve(httpLis); !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		log.Info(gctx, "serving grpc health", logging.String("addr", grpcLis.Addr().String()))
		return rpc.Server.Serve(grpcLis)
	})
	g.Go(func() error {
		<-gctx.Done()
		log.Info(context.Background(), "shutting down")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout.Duration)
		defer cancel()
		web.Close()
		if err := httpSrv.Shutdown(shutdownCtx); err != nil {
			log.Warn(shutdownCtx, "http shutdown incomplete", logging.Err(err))
		}
		rpc.Stop(shutdownCtx)
		return nil
	})

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

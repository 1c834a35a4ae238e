// Package server hosts map engines over HTTP: one-shot SVG renders, a
// websocket channel for interactive sessions, Prometheus metrics and a
// health probe. A companion gRPC server exposes the standard health service.
package server

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"math"
	"math/rand"
	"net/http"
	"strconv"
	"time"

	"github.com/signalsfoundry/nodemap/internal/backdrop"
	"github.com/signalsfoundry/nodemap/internal/logging"
	"github.com/signalsfoundry/nodemap/internal/observability"
	"github.com/signalsfoundry/nodemap/internal/viz"
	"github.com/signalsfoundry/nodemap/kb"
	"github.com/signalsfoundry/nodemap/model"
)

// Options configures a Server.
type Options struct {
	// Engine supplies defaults for renders and sessions; requests may
	// override the variant, size and rotation.
	Engine        viz.Config
	FrameInterval time.Duration
	Feed          *kb.Feed
	Backdrop      *backdrop.Tracker
	Metrics       *observability.VizCollector
	Log           logging.Logger
	// Seed fixes pulse phases for every engine; 0 seeds from the clock.
	Seed          int64
}

// Server serves the HTTP surface. Handlers are safe for concurrent use; each
// request or session owns its own engine.
type Server struct {
	opts Options
	log  logging.Logger
	mux  *http.ServeMux

	// ctx ends every open session when Close is called.
	ctx    context.Context
	cancel context.CancelFunc
}

// New builds a Server. A nil Feed is replaced by an empty one.
func New(opts Options) *Server {
	if opts.Log == nil {
		opts.Log = logging.Noop()
	}
	if opts.Feed == nil {
		opts.Feed = kb.NewFeed()
	}
	s := &Server{opts: opts, log: opts.Log, mux: http.NewServeMux()}
	s.ctx, s.cancel = context.WithCancel(context.Background())
	s.mux.HandleFunc("GET /map.svg", s.handleRender(viz.VariantFlat))
	s.mux.HandleFunc("GET /globe.svg", s.handleRender(viz.VariantGlobe))
	s.mux.HandleFunc("GET /healthz", s.handleHealth)
	s.mux.HandleFunc("GET /ws", s.handleSession)
	s.mux.Handle("GET /metrics", opts.Metrics.Handler())
	return s
}

// Handler returns the HTTP handler.
func (s *Server) Handler() http.Handler { return s.mux }

// Close ends every open websocket session. http.Server.Shutdown does not
// track hijacked connections, so hosts call this alongside it.
func (s *Server) Close() { s.cancel() }

func (s *Server) handleRender(variant viz.Variant) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		cfg, err := s.requestConfig(r, variant)
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}

		var nodes []model.NodeRecord
		if snap, ok := s.opts.Feed.Snapshot(); ok {
			nodes = snap.Nodes
		}

		var buf bytes.Buffer
		if err := viz.RenderSVG(r.Context(), &buf, cfg, nodes, s.engineOptions(s.log)...); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		w.Header().Set("Content-Type", "image/svg+xml")
		w.Header().Set("Cache-Control", "no-store")
		_, _ = w.Write(buf.Bytes())
	}
}

type healthResponse struct {
	Status   string `json:"status"`
	Version  uint64 `json:"feed_version"`
	Nodes    int    `json:"nodes"`
	Backdrop string `json:"backdrop"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	resp := healthResponse{Status: "ok", Backdrop: backdrop.StateLoading.String()}
	resp.Version = s.opts.Feed.Version()
	resp.Nodes = s.opts.Feed.Len()
	if resp.Version == 0 {
		resp.Status = "waiting_for_nodes"
	}
	if s.opts.Backdrop != nil {
		state, _ := s.opts.Backdrop.Current()
		resp.Backdrop = state.String()
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(resp)
}

// requestConfig applies the variant, width, height, lambda and phi query
// parameters to the configured defaults. The variant parameter is honoured
// only when the route does not fix one.
func (s *Server) requestConfig(r *http.Request, variant viz.Variant) (viz.Config, error) {
	cfg := s.opts.Engine
	q := r.URL.Query()

	if variant == "" {
		variant = cfg.Variant
		if v := q.Get("variant"); v != "" {
			parsed, err := viz.ParseVariant(v)
			if err != nil {
				return cfg, err
			}
			variant = parsed
		}
	}
	cfg.Variant = variant

	fields := []struct {
		name string
		dst  *float64
	}{
		{"width", &cfg.Width},
		{"height", &cfg.Height},
		{"lambda", &cfg.Rotation.Lambda},
		{"phi", &cfg.Rotation.Phi},
	}
	for _, f := range fields {
		raw := q.Get(f.name)
		if raw == "" {
			continue
		}
		v, err := strconv.ParseFloat(raw, 64)
		if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
			return cfg, fmt.Errorf("query parameter %s=%q is not a finite number", f.name, raw)
		}
		*f.dst = v
	}
	if cfg.Width <= 0 || cfg.Height <= 0 {
		return cfg, fmt.Errorf("size %vx%v must be positive", cfg.Width, cfg.Height)
	}
	if cfg.Rotation.Phi < -90 || cfg.Rotation.Phi > 90 {
		return cfg, fmt.Errorf("phi %v must be within [-90,90]", cfg.Rotation.Phi)
	}
	return cfg, nil
}

func (s *Server) engineOptions(log logging.Logger) []viz.Option {
	opts := []viz.Option{viz.WithLogger(log)}
	if s.opts.Metrics != nil {
		opts = append(opts, viz.WithMetrics(s.opts.Metrics))
	}
	if s.opts.Backdrop != nil {
		opts = append(opts, viz.WithBackdrop(s.opts.Backdrop))
	}
	if s.opts.Seed != 0 {
		opts = append(opts, viz.WithRand(rand.New(rand.NewSource(s.opts.Seed))))
	}
	return opts
}

package observability

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"google.golang.org/grpc"
	"google.golang.org/grpc/status"
)

// VizCollector bundles Prometheus metrics for map engines, their host
// sessions and the gRPC health surface. It satisfies viz.MetricsRecorder.
type VizCollector struct {
	gatherer prometheus.Gatherer

	Markers           *prometheus.GaugeVec
	ProjectionRejects *prometheus.CounterVec
	RecordRejects     *prometheus.CounterVec
	InteractionEvents *prometheus.CounterVec
	SessionsActive    prometheus.Gauge
	FrameDuration     prometheus.Histogram
	TasksPending      prometheus.Gauge

	RPCRequests  *prometheus.CounterVec
	RPCDurations *prometheus.HistogramVec
}

// NewVizCollector registers the metrics against reg, defaulting to the global
// Prometheus registry when nil.
func NewVizCollector(reg prometheus.Registerer) (*VizCollector, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	gatherer := prometheus.DefaultGatherer
	if g, ok := reg.(prometheus.Gatherer); ok {
		gatherer = g
	}

	markers, err := register(reg, prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "nodemap_markers",
		Help: "Markers currently held by engines, labeled by map variant and animation state.",
	}, []string{"variant", "state"}), "nodemap_markers")
	if err != nil {
		return nil, err
	}
	projRejected, err := register(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "nodemap_projection_rejected_total",
		Help: "Marker layouts that had no screen position, labeled by variant and reason.",
	}, []string{"variant", "reason"}), "nodemap_projection_rejected_total")
	if err != nil {
		return nil, err
	}
	recRejected, err := register(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "nodemap_records_rejected_total",
		Help: "Node records dropped by engine updates, labeled by reason.",
	}, []string{"reason"}), "nodemap_records_rejected_total")
	if err != nil {
		return nil, err
	}
	events, err := register(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "nodemap_interaction_events_total",
		Help: "Hover and rotation notifications emitted by engines, labeled by kind.",
	}, []string{"kind"}), "nodemap_interaction_events_total")
	if err != nil {
		return nil, err
	}
	sessions, err := register(reg, prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "nodemap_sessions_active",
		Help: "Open interactive websocket sessions.",
	}), "nodemap_sessions_active")
	if err != nil {
		return nil, err
	}
	frames, err := register(reg, prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "nodemap_frame_duration_seconds",
		Help:    "Time spent ticking and rendering one frame.",
		Buckets: []float64{0.0005, 0.001, 0.0025, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25},
	}), "nodemap_frame_duration_seconds")
	if err != nil {
		return nil, err
	}
	pending, err := register(reg, prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "nodemap_animation_tasks_pending",
		Help: "Animation tasks outstanding on the most recently ticked engine.",
	}), "nodemap_animation_tasks_pending")
	if err != nil {
		return nil, err
	}

	requests, err := register(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "nodemap_rpc_requests_total",
		Help: "Total number of handled RPCs, labeled by service, method, and gRPC status code.",
	}, []string{"service", "method", "code"}), "nodemap_rpc_requests_total")
	if err != nil {
		return nil, err
	}
	durations, err := register(reg, prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "nodemap_rpc_duration_seconds",
		Help:    "RPC latency in seconds.",
		Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10},
	}, []string{"service", "method"}), "nodemap_rpc_duration_seconds")
	if err != nil {
		return nil, err
	}

	return &VizCollector{
		gatherer:          gatherer,
		Markers:           markers,
		ProjectionRejects: projRejected,
		RecordRejects:     recRejected,
		InteractionEvents: events,
		SessionsActive:    sessions,
		FrameDuration:     frames,
		TasksPending:      pending,
		RPCRequests:       requests,
		RPCDurations:      durations,
	}, nil
}

// Gatherer returns the Prometheus gatherer associated with the collector.
func (c *VizCollector) Gatherer() prometheus.Gatherer {
	if c == nil {
		return nil
	}
	return c.gatherer
}

// MarkerStateDelta adjusts the marker gauge for one variant and state.
func (c *VizCollector) MarkerStateDelta(variant, state string, delta int) {
	if c == nil || c.Markers == nil {
		return
	}
	c.Markers.WithLabelValues(variant, state).Add(float64(delta))
}

// ProjectionRejected counts markers the projection could not place. The
// reason follows from the variant: flat maps cut off the polar caps, globes
// hide the far hemisphere.
func (c *VizCollector) ProjectionRejected(variant string, n int) {
	if c == nil || c.ProjectionRejects == nil || n <= 0 {
		return
	}
	reason := "outside_mercator_band"
	if variant == "globe" {
		reason = "far_hemisphere"
	}
	c.ProjectionRejects.WithLabelValues(variant, reason).Add(float64(n))
}

// RecordsRejected counts dropped node records.
func (c *VizCollector) RecordsRejected(reason string, n int) {
	if c == nil || c.RecordRejects == nil || n <= 0 {
		return
	}
	c.RecordRejects.WithLabelValues(reason).Add(float64(n))
}

// InteractionEvent counts one emitted interaction event.
func (c *VizCollector) InteractionEvent(kind string) {
	if c == nil || c.InteractionEvents == nil {
		return
	}
	c.InteractionEvents.WithLabelValues(kind).Inc()
}

// SessionOpened and SessionClosed track live interactive sessions.
func (c *VizCollector) SessionOpened() {
	if c != nil && c.SessionsActive != nil {
		c.SessionsActive.Inc()
	}
}

func (c *VizCollector) SessionClosed() {
	if c != nil && c.SessionsActive != nil {
		c.SessionsActive.Dec()
	}
}

// ObserveFrame records how long one frame took to produce.
func (c *VizCollector) ObserveFrame(d time.Duration) {
	if c == nil || c.FrameDuration == nil {
		return
	}
	c.FrameDuration.Observe(d.Seconds())
}

// SetPendingTasks updates the animation task gauge.
func (c *VizCollector) SetPendingTasks(n int) {
	if c == nil || c.TasksPending == nil {
		return
	}
	c.TasksPending.Set(float64(n))
}

// UnaryServerInterceptor records request counts and durations for unary RPCs.
func (c *VizCollector) UnaryServerInterceptor() grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req interface{}, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (interface{}, error) {
		start := time.Now()
		resp, err := handler(ctx, req)

		if c == nil {
			return resp, err
		}

		fullMethod := ""
		if info != nil {
			fullMethod = info.FullMethod
		}
		service, method := SplitMethod(fullMethod)
		code := status.Code(err).String()

		if c.RPCRequests != nil {
			c.RPCRequests.WithLabelValues(service, method, code).Inc()
		}
		if c.RPCDurations != nil {
			c.RPCDurations.WithLabelValues(service, method).Observe(time.Since(start).Seconds())
		}

		return resp, err
	}
}

// Handler exposes a ready-to-use /metrics handler.
func (c *VizCollector) Handler() http.Handler {
	gatherer := prometheus.DefaultGatherer
	if c != nil && c.gatherer != nil {
		gatherer = c.gatherer
	}
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}

// SplitMethod parses a fully-qualified gRPC method name into service and method
// components, returning "unknown"/"unknown" when parsing fails.
func SplitMethod(fullMethod string) (string, string) {
	fullMethod = strings.TrimPrefix(fullMethod, "/")
	parts := strings.Split(fullMethod, "/")
	if len(parts) < 2 {
		return "unknown", "unknown"
	}
	service := parts[len(parts)-2]
	method := parts[len(parts)-1]
	if dot := strings.LastIndex(service, "."); dot >= 0 && dot+1 < len(service) {
		service = service[dot+1:]
	}
	if service == "" {
		service = "unknown"
	}
	if method == "" {
		method = "unknown"
	}
	return service, method
}

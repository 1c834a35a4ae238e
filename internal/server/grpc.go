package server

import (
	"context"

	"go.opentelemetry.io/contrib/instrumentation/google.golang.org/grpc/otelgrpc"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"

	"github.com/signalsfoundry/nodemap/internal/logging"
	"github.com/signalsfoundry/nodemap/internal/observability"
	"github.com/signalsfoundry/nodemap/kb"
)

// HealthService is the service name reported alongside the overall ("")
// status. It turns SERVING once the feed holds a snapshot.
const HealthService = "nodemap.v1.NodeMap"

// GRPC wraps the gRPC server that exposes health and reflection.
type GRPC struct {
	Server *grpc.Server
	Health *health.Server

	unsubscribe func()
}

// NewGRPC builds the gRPC server. Health stays NOT_SERVING until feed has
// published its first snapshot.
func NewGRPC(feed *kb.Feed, metrics *observability.VizCollector, log logging.Logger) *GRPC {
	if log == nil {
		log = logging.Noop()
	}
	srv := grpc.NewServer(
		grpc.StatsHandler(otelgrpc.NewServerHandler()),
		grpc.ChainUnaryInterceptor(
			SessionIDUnaryServerInterceptor(log),
			TracingUnaryServerInterceptor(),
			metrics.UnaryServerInterceptor(),
		),
	)

	hs := health.NewServer()
	healthpb.RegisterHealthServer(srv, hs)
	reflection.Register(srv)

	g := &GRPC{Server: srv, Health: hs, unsubscribe: func() {}}
	g.setServing(false)
	if feed != nil {
		g.unsubscribe = feed.Subscribe(func(kb.Snapshot) { g.setServing(true) })
		if _, ok := feed.Snapshot(); ok {
			g.setServing(true)
		}
	}
	return g
}

func (g *GRPC) setServing(ok bool) {
	status := healthpb.HealthCheckResponse_NOT_SERVING
	if ok {
		status = healthpb.HealthCheckResponse_SERVING
	}
	g.Health.SetServingStatus("", status)
	g.Health.SetServingStatus(HealthService, status)
}

// Stop drains in-flight RPCs until ctx expires, then stops hard.
func (g *GRPC) Stop(ctx context.Context) {
	g.unsubscribe()
	g.Health.Shutdown()

	done := make(chan struct{})
	go func() {
		g.Server.GracefulStop()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		g.Server.Stop()
		<-done
	}
}

package grpcserver

import (
	"context"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/google.golang.org/grpc/otelgrpc"
	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"
)

// New returns a gRPC server exposing the standard health service. The
// overall status ("") and serviceName both start as SERVING.
func New(serviceName string) (*grpc.Server, *health.Server) {
	srv := grpc.NewServer(grpc.StatsHandler(otelgrpc.NewServerHandler()))

	hs := health.NewServer()
	hs.SetServingStatus("", healthpb.HealthCheckResponse_SERVING)
	hs.SetServingStatus(serviceName, healthpb.HealthCheckResponse_SERVING)
	healthpb.RegisterHealthServer(srv, hs)
	reflection.Register(srv)

	return srv, hs
}

type Pinger interface {
	PingContext(ctx context.Context) error
}

// WatchDatabase flips serviceName to NOT_SERVING while the database does not
// answer pings. It returns when ctx is done.
func WatchDatabase(ctx context.Context, db Pinger, hs *health.Server, serviceName string, interval time.Duration, logger *zap.Logger) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	serving := true
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			pingCtx, cancel := context.WithTimeout(ctx, interval)
			err := db.PingContext(pingCtx)
			cancel()

			switch {
			case err != nil && serving:
				logger.Warn("Database unreachable, reporting NOT_SERVING", zap.Error(err))
				hs.SetServingStatus(serviceName, healthpb.HealthCheckResponse_NOT_SERVING)
				serving = false
			case err == nil && !serving:
				logger.Info("Database reachable again, reporting SERVING")
				hs.SetServingStatus(serviceName, healthpb.HealthCheckResponse_SERVING)
				serving = true
			}
		}
	}
}

package grpcserver

import (
	"context"
	"net"
	"time"

	"github.com/apsdehal/go-logger"
	grpc_prometheus "github.com/grpc-ecosystem/go-grpc-prometheus"
	"github.com/openzipkin/zipkin-go"
	zipkingrpc "github.com/openzipkin/zipkin-go/middleware/grpc"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

// ServiceName is the health service reported for the payment callbacks.
const ServiceName = "paynow.Enrolment"

// Server is the operations endpoint: gRPC health checking backed by a
// database probe.
type Server struct {
	addr   string
	health *health.Server
	check  func(ctx context.Context) error
	logger *logger.Logger
	Server *grpc.Server
}

func New(addr string, tracer *zipkin.Tracer, check func(ctx context.Context) error, log *logger.Logger) *Server {
	opts := []grpc.ServerOption{
		grpc.StreamInterceptor(grpc_prometheus.StreamServerInterceptor),
		grpc.UnaryInterceptor(grpc_prometheus.UnaryServerInterceptor),
	}
	if tracer != nil {
		opts = append(opts, grpc.StatsHandler(zipkingrpc.NewServerHandler(tracer)))
	}

	s := grpc.NewServer(opts...)
	hs := health.NewServer()
	healthpb.RegisterHealthServer(s, hs)
	grpc_prometheus.Register(s)

	return &Server{
		addr:   addr,
		health: hs,
		check:  check,
		logger: log,
		Server: s,
	}
}

// Probe runs the check once and publishes the result.
func (s *Server) Probe(ctx context.Context) healthpb.HealthCheckResponse_ServingStatus {
	status := healthpb.HealthCheckResponse_SERVING
	if s.check != nil {
		if err := s.check(ctx); err != nil {
			status = healthpb.HealthCheckResponse_NOT_SERVING
			if s.logger != nil {
				s.logger.Errorf("[SERVER] health probe failed: %s", err)
			}
		}
	}
	s.health.SetServingStatus("", status)
	s.health.SetServingStatus(ServiceName, status)
	return status
}

// Watch probes every interval until ctx is cancelled.
func (s *Server) Watch(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	s.Probe(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.Probe(ctx)
		}
	}
}

func (s *Server) Start() error {
	lis, err := net.Listen("tcp", s.addr)
	if err != nil {
		return err
	}

	// start gRPC server
	if s.logger != nil {
		s.logger.Info("gRPC Server Started, Listening on " + s.addr)
	}
	return s.Server.Serve(lis)
}

func (s *Server) Stop() {
	if s.logger != nil {
		s.logger.Info("Shutting down gRPC Server")
	}
	s.health.Shutdown()
	s.Server.GracefulStop()
}

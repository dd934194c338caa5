package sdk

import (
	"context"
	"fmt"

	"github.com/openzipkin/zipkin-go"
	zipkingrpc "github.com/openzipkin/zipkin-go/middleware/grpc"
	"github.com/trakkie-id/paynow/config/grpcserver"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

// HealthService is the service name the paynow gRPC endpoint reports.
const HealthService = grpcserver.ServiceName

func GetConn(addr string, tracer *zipkin.Tracer) (*grpc.ClientConn, error) {
	opts := []grpc.DialOption{grpc.WithTransportCredentials(insecure.NewCredentials())}
	if tracer != nil {
		opts = append(opts, grpc.WithStatsHandler(zipkingrpc.NewClientHandler(tracer)))
	}
	return grpc.NewClient(addr, opts...)
}

func CloseConn(conn *grpc.ClientConn) {
	defer conn.Close()
}

// Healthy asks the paynow service at addr whether it is serving.
func Healthy(ctx context.Context, addr string, tracer *zipkin.Tracer) (bool, error) {
	conn, err := GetConn(addr, tracer)
	if err != nil {
		return false, fmt.Errorf("connect to %s: %w", addr, err)
	}
	defer CloseConn(conn)

	res, err := healthpb.NewHealthClient(conn).Check(ctx, &healthpb.HealthCheckRequest{Service: HealthService})
	if err != nil {
		return false, err
	}
	return res.Status == healthpb.HealthCheckResponse_SERVING, nil
}

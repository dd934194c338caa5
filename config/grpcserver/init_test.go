package grpcserver

import (
	"context"
	"errors"
	"net"
	"testing"
	"time"

	"github.com/trakkie-id/paynow/testutil"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

func TestHealthFollowsProbe(t *testing.T) {
	var failing bool
	check := func(context.Context) error {
		if failing {
			return errors.New("database gone")
		}
		return nil
	}

	s := New("127.0.0.1:0", nil, check, testutil.NewLogger(t))

	lis, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	go func() { _ = s.Server.Serve(lis) }()
	t.Cleanup(s.Stop)

	conn, err := grpc.NewClient(lis.Addr().String(), grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()
	client := healthpb.NewHealthClient(conn)

	tests := []struct {
		name    string
		failing bool
		want    healthpb.HealthCheckResponse_ServingStatus
	}{
		{name: "Given a reachable database When probing Then SERVING", want: healthpb.HealthCheckResponse_SERVING},
		{name: "Given a failing database When probing Then NOT_SERVING", failing: true, want: healthpb.HealthCheckResponse_NOT_SERVING},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			failing = tt.failing
			if got := s.Probe(context.Background()); got != tt.want {
				t.Fatalf("Probe() = %v, want %v", got, tt.want)
			}

			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			res, err := client.Check(ctx, &healthpb.HealthCheckRequest{Service: ServiceName})
			if err != nil {
				t.Fatalf("Check() error = %v", err)
			}
			if res.Status != tt.want {
				t.Errorf("Check() status = %v, want %v", res.Status, tt.want)
			}
		})
	}
}

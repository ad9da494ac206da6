package grpcapi_test

import (
	"context"
	"net"
	"testing"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/status"
	"google.golang.org/grpc/test/bufconn"

	"github.com/BrandonDHaskell/Portunus/lockgate/internal/grpcapi"
)

func startServer(t *testing.T) (*grpcapi.Server, healthpb.HealthClient) {
	t.Helper()

	lis := bufconn.Listen(1 << 20)
	srv := grpcapi.NewServer(nil)
	go func() { _ = srv.Serve(lis) }()
	t.Cleanup(srv.Stop)

	conn, err := grpc.NewClient("passthrough:///bufnet",
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) {
			return lis.DialContext(ctx)
		}),
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	return srv, healthpb.NewHealthClient(conn)
}

func check(t *testing.T, c healthpb.HealthClient, service string) (healthpb.HealthCheckResponse_ServingStatus, error) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	resp, err := c.Check(ctx, &healthpb.HealthCheckRequest{Service: service})
	if err != nil {
		return 0, err
	}
	return resp.GetStatus(), nil
}

func TestHealth_StartsNotServing(t *testing.T) {
	_, c := startServer(t)

	st, err := check(t, c, "")
	if err != nil {
		t.Fatalf("Check: %v", err)
	}
	if st != healthpb.HealthCheckResponse_NOT_SERVING {
		t.Errorf("status = %s", st)
	}
}

func TestHealth_SetServing(t *testing.T) {
	srv, c := startServer(t)
	srv.SetServing(true)

	for _, svc := range []string{"", grpcapi.ServiceName} {
		st, err := check(t, c, svc)
		if err != nil {
			t.Fatalf("Check(%q): %v", svc, err)
		}
		if st != healthpb.HealthCheckResponse_SERVING {
			t.Errorf("Check(%q) = %s", svc, st)
		}
	}

	srv.SetServing(false)
	if st, _ := check(t, c, grpcapi.ServiceName); st != healthpb.HealthCheckResponse_NOT_SERVING {
		t.Errorf("after SetServing(false): %s", st)
	}
}

func TestHealth_UnknownService(t *testing.T) {
	_, c := startServer(t)

	_, err := check(t, c, "nope")
	if status.Code(err) != codes.NotFound {
		t.Fatalf("expected NotFound, got %v", err)
	}
}

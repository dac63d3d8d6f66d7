package grpc

import (
	"context"
	stderrors "errors"
	"net"
	"testing"
	"time"

	"TradeDeskPlatform/pkg/errors"
	"TradeDeskPlatform/pkg/logger"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/status"
	"google.golang.org/grpc/test/bufconn"
)

func startServer(t *testing.T) (*Server, healthpb.HealthClient) {
	t.Helper()

	lis := bufconn.Listen(1 << 20)
	srv := NewServer(logger.NewNop())
	go func() { _ = srv.Serve(lis) }()
	t.Cleanup(srv.GracefulStop)

	conn, err := grpc.NewClient("passthrough:///bufnet",
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) {
			return lis.DialContext(ctx)
		}),
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })

	return srv, healthpb.NewHealthClient(conn)
}

func TestServer_HealthStatus(t *testing.T) {
	srv, client := startServer(t)
	ctx := context.Background()

	srv.SetServing("tenant-service", false)
	resp, err := client.Check(ctx, &healthpb.HealthCheckRequest{Service: "tenant-service"})
	require.NoError(t, err)
	assert.Equal(t, healthpb.HealthCheckResponse_NOT_SERVING, resp.GetStatus())

	srv.SetServing("tenant-service", true)
	resp, err = client.Check(ctx, &healthpb.HealthCheckRequest{Service: "tenant-service"})
	require.NoError(t, err)
	assert.Equal(t, healthpb.HealthCheckResponse_SERVING, resp.GetStatus())
}

func TestServer_WatchHealth(t *testing.T) {
	srv, client := startServer(t)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		srv.WatchHealth(ctx, 10*time.Millisecond, "db", func(context.Context) error {
			return stderrors.New("postgres down")
		})
		close(done)
	}()

	assert.Eventually(t, func() bool {
		resp, err := client.Check(context.Background(), &healthpb.HealthCheckRequest{Service: "db"})
		return err == nil && resp.GetStatus() == healthpb.HealthCheckResponse_NOT_SERVING
	}, time.Second, 10*time.Millisecond)

	cancel()
	<-done
}

func TestUnaryErrorInterceptor(t *testing.T) {
	interceptor := UnaryErrorInterceptor(logger.NewNop())
	info := &grpc.UnaryServerInfo{FullMethod: "/tenant.v1/Get"}

	tests := []struct {
		name    string
		err     error
		want    codes.Code
		wantErr errors.ErrorCode
	}{
		{"coded error", errors.New(errors.ErrTenantNotFound, "no tenant"), codes.NotFound, errors.ErrTenantNotFound},
		{"plain error", stderrors.New("boom"), codes.Internal, errors.ErrInternal},
		{"status passes through", status.Error(codes.Unavailable, "down"), codes.Unavailable, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := interceptor(context.Background(), nil, info, func(context.Context, interface{}) (interface{}, error) {
				return nil, tt.err
			})
			st, ok := status.FromError(err)
			require.True(t, ok)
			assert.Equal(t, tt.want, st.Code())
			if tt.wantErr != "" {
				assert.Equal(t, tt.wantErr, errors.FromGRPCErr(err).Code)
			}
		})
	}

	resp, err := interceptor(context.Background(), nil, info, func(context.Context, interface{}) (interface{}, error) {
		return "ok", nil
	})
	assert.NoError(t, err)
	assert.Equal(t, "ok", resp)
}

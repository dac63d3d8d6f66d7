package grpc

import (
	"context"
	"fmt"
	"net"
	"time"

	"TradeDeskPlatform/pkg/errors"
	"TradeDeskPlatform/pkg/logger"

	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/status"
)

// Server gRPC сервер со стандартным сервисом grpc.health.v1
type Server struct {
	server *grpc.Server
	health *health.Server
	logger logger.Logger
}

// NewServer создает gRPC сервер с логирующим interceptor
func NewServer(log logger.Logger, opts ...grpc.ServerOption) *Server {
	opts = append(opts, grpc.ChainUnaryInterceptor(UnaryErrorInterceptor(log)))
	srv := grpc.NewServer(opts...)

	hs := health.NewServer()
	healthpb.RegisterHealthServer(srv, hs)

	return &Server{server: srv, health: hs, logger: log}
}

// GRPC возвращает *grpc.Server для регистрации дополнительных сервисов
func (s *Server) GRPC() *grpc.Server {
	return s.server
}

// SetServing устанавливает статус сервиса (пустое имя = весь сервер)
func (s *Server) SetServing(service string, serving bool) {
	st := healthpb.HealthCheckResponse_NOT_SERVING
	if serving {
		st = healthpb.HealthCheckResponse_SERVING
	}
	s.health.SetServingStatus(service, st)
}

// WatchHealth периодически выполняет check и обновляет статус до отмены ctx
func (s *Server) WatchHealth(ctx context.Context, interval time.Duration, service string, check func(context.Context) error) {
	update := func() {
		checkCtx, cancel := context.WithTimeout(ctx, interval)
		defer cancel()
		err := check(checkCtx)
		if err != nil {
			s.logger.Warn("Health check failed", logger.String("service", service), logger.Error(err))
		}
		s.SetServing(service, err == nil)
	}

	update()
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			update()
		}
	}
}

// Serve начинает обслуживание на listener
func (s *Server) Serve(lis net.Listener) error {
	if err := s.server.Serve(lis); err != nil {
		return fmt.Errorf("grpc serve: %w", err)
	}
	return nil
}

// ListenAndServe слушает порт и обслуживает запросы
func (s *Server) ListenAndServe(port int) error {
	lis, err := net.Listen("tcp", fmt.Sprintf(":%d", port))
	if err != nil {
		return fmt.Errorf("failed to listen on %d: %w", port, err)
	}
	return s.Serve(lis)
}

// GracefulStop переводит все сервисы в NOT_SERVING и останавливает сервер
func (s *Server) GracefulStop() {
	s.health.Shutdown()
	s.server.GracefulStop()
}

// UnaryErrorInterceptor логирует ошибки обработчиков и переводит
// *errors.Error в gRPC статус с errdetails
func UnaryErrorInterceptor(log logger.Logger) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req interface{}, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (interface{}, error) {
		resp, err := handler(ctx, req)
		if err == nil {
			return resp, nil
		}

		log.Error("Operation failed",
			logger.CtxField(ctx),
			logger.String("operation", info.FullMethod),
			logger.Error(err),
		)

		if _, ok := status.FromError(err); ok {
			return resp, err
		}
		if e, ok := errors.As(err); ok {
			return resp, e.WithContext(ctx).ToGRPCErr()
		}
		return resp, errors.Wrap(err, errors.ErrInternal, "internal error").ToGRPCErr()
	}
}

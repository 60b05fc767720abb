package grpc

import (
	"context"
	"fmt"
	"net"
	"runtime/debug"
	"time"

	"github.com/DRSN-tech/storefront/internal/cfg"
	"github.com/DRSN-tech/storefront/internal/usecase"
	"github.com/DRSN-tech/storefront/pkg/logger"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/status"
)

// GRPCServer обслуживает OrderService и стандартный health-сервис на одном порту.
type GRPCServer struct {
	server *grpc.Server
	health *health.Server
	cfg    *cfg.GRPCConfig
	logger logger.Logger
}

func NewGRPCServer(cfg *cfg.GRPCConfig, logger logger.Logger) *GRPCServer {
	s := &GRPCServer{
		health: health.NewServer(),
		cfg:    cfg,
		logger: logger,
	}
	s.server = grpc.NewServer(grpc.ChainUnaryInterceptor(s.recoverUnary, s.logUnary))

	return s
}

func (s *GRPCServer) RegisterServices(orUC usecase.OrderUC) {
	RegisterOrderServiceServer(s.server, NewOrderService(orUC, s.logger))
	healthpb.RegisterHealthServer(s.server, s.health)

	s.health.SetServingStatus("", healthpb.HealthCheckResponse_SERVING)
	s.health.SetServingStatus(OrderServiceName, healthpb.HealthCheckResponse_SERVING)
}

func (s *GRPCServer) Start() error {
	addr := net.JoinHostPort("", s.cfg.Port)
	lis, err := net.Listen(s.cfg.NetworkMode, addr)
	if err != nil {
		return fmt.Errorf("grpc listen %s: %w", addr, err)
	}

	s.logger.Infof("gRPC server listening on %s", lis.Addr())
	return s.Serve(lis)
}

func (s *GRPCServer) Serve(lis net.Listener) error {
	return s.server.Serve(lis)
}

// Stop переводит health в NOT_SERVING и ждёт активные вызовы, пока не истечёт ctx.
func (s *GRPCServer) Stop(ctx context.Context) error {
	s.health.Shutdown()

	stopped := make(chan struct{})
	go func() {
		defer close(stopped)
		s.server.GracefulStop()
	}()

	select {
	case <-stopped:
		return nil
	case <-ctx.Done():
		s.server.Stop()
		s.logger.Warnf("gRPC server: graceful stop timed out, active calls dropped")
		return ctx.Err()
	}
}

// recoverUnary превращает панику обработчика в codes.Internal, не роняя процесс.
func (s *GRPCServer) recoverUnary(ctx context.Context, req any, info *grpc.UnaryServerInfo,
	handler grpc.UnaryHandler) (resp any, err error) {
	defer func() {
		if p := recover(); p != nil {
			s.logger.Errorf(fmt.Errorf("panic: %v", p), "%s panicked\n%s", info.FullMethod, debug.Stack())
			err = status.Error(codes.Internal, "internal server error")
		}
	}()

	return handler(ctx, req)
}

func (s *GRPCServer) logUnary(ctx context.Context, req any, info *grpc.UnaryServerInfo,
	handler grpc.UnaryHandler) (any, error) {
	start := time.Now()
	resp, err := handler(ctx, req)

	code := status.Code(err)
	if code == codes.Internal || code == codes.Unavailable {
		s.logger.Warnf("grpc %s -> %s in %s", info.FullMethod, code, time.Since(start))
	} else {
		s.logger.Debugf("grpc %s -> %s in %s", info.FullMethod, code, time.Since(start))
	}

	return resp, err
}

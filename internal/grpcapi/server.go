package grpcapi

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"

	"github.com/BrandonDHaskell/Portunus/register/internal/register/service"
	"github.com/BrandonDHaskell/Portunus/register/internal/register/types"
)

// OperatorKey is the metadata key carrying the acting operator's id.
const OperatorKey = "x-operator-id"

type Dependencies struct {
	Logger *zap.Logger
	Addr   string
	Engine *service.Engine
	// ExportLimit caps the limit a ListVisits caller may request.
	ExportLimit int
}

// Server owns the grpc.Server hosting register.v1.Register and the
// standard health service.
type Server struct {
	logger *zap.Logger
	addr   string
	grpc   *grpc.Server
	health *health.Server
}

func NewServer(deps Dependencies) (*Server, error) {
	if deps.Engine == nil {
		return nil, errors.New("grpcapi: engine is required")
	}
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	if deps.ExportLimit <= 0 {
		deps.ExportLimit = 10000
	}

	s := &Server{
		logger: logger,
		addr:   deps.Addr,
		health: health.NewServer(),
	}
	s.grpc = grpc.NewServer(grpc.ChainUnaryInterceptor(
		unaryLogger(logger),
		unaryRecovery(logger),
		unaryOperator(deps.Engine.Registry),
	))
	s.grpc.RegisterService(&serviceDesc, &registerService{engine: deps.Engine, exportLimit: deps.ExportLimit})
	healthpb.RegisterHealthServer(s.grpc, s.health)
	s.health.SetServingStatus(ServiceName, healthpb.HealthCheckResponse_SERVING)
	return s, nil
}

// Start listens on the configured address and serves until Shutdown.
func (s *Server) Start() error {
	lis, err := net.Listen("tcp", s.addr)
	if err != nil {
		return fmt.Errorf("grpc listen %s: %w", s.addr, err)
	}
	return s.Serve(lis)
}

func (s *Server) Serve(lis net.Listener) error {
	s.logger.Info("grpc server listening", zap.String("addr", lis.Addr().String()))
	if err := s.grpc.Serve(lis); err != nil && !errors.Is(err, grpc.ErrServerStopped) {
		return err
	}
	return nil
}

// Shutdown drains in-flight calls, falling back to a hard stop when ctx
// expires first.
func (s *Server) Shutdown(ctx context.Context) {
	s.health.Shutdown()
	done := make(chan struct{})
	go func() {
		s.grpc.GracefulStop()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		s.grpc.Stop()
	}
}

// ── Interceptors ────────────────────────────────────────────────────────────

type operatorCtxKey struct{}

func unaryLogger(logger *zap.Logger) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, next grpc.UnaryHandler) (any, error) {
		start := time.Now()
		resp, err := next(ctx, req)
		code := status.Code(err)

		fields := []zap.Field{
			zap.String("method", info.FullMethod),
			zap.String("code", code.String()),
			zap.Duration("latency", time.Since(start)),
		}
		switch code {
		case codes.OK:
			logger.Info("rpc done", fields...)
		case codes.Internal, codes.Unknown:
			logger.Error("rpc failed", append(fields, zap.Error(err))...)
		default:
			logger.Warn("rpc rejected", append(fields, zap.Error(err))...)
		}
		return resp, err
	}
}

func unaryRecovery(logger *zap.Logger) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, next grpc.UnaryHandler) (resp any, err error) {
		defer func() {
			if rec := recover(); rec != nil {
				logger.Error("panic in rpc", zap.Any("panic", rec), zap.String("method", info.FullMethod))
				err = status.Error(codes.Internal, "unexpected server error")
			}
		}()
		return next(ctx, req)
	}
}

// unaryOperator resolves the operator named in OperatorKey metadata for
// register.v1.Register calls. Health checks pass through.
func unaryOperator(reg *service.LocationRegistry) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, next grpc.UnaryHandler) (any, error) {
		if !strings.HasPrefix(info.FullMethod, "/"+ServiceName+"/") {
			return next(ctx, req)
		}
		md, _ := metadata.FromIncomingContext(ctx)
		vals := md.Get(OperatorKey)
		if len(vals) == 0 {
			return nil, status.Error(codes.Unauthenticated, "missing "+OperatorKey)
		}
		id, err := strconv.ParseInt(strings.TrimSpace(vals[0]), 10, 64)
		if err != nil || id <= 0 {
			return nil, status.Error(codes.Unauthenticated, "invalid "+OperatorKey)
		}
		op, err := reg.Operator(ctx, id)
		if err != nil {
			return nil, status.Error(codes.Unauthenticated, "unknown operator")
		}
		return next(context.WithValue(ctx, operatorCtxKey{}, op), req)
	}
}

func operatorFrom(ctx context.Context) types.Operator {
	op, _ := ctx.Value(operatorCtxKey{}).(types.Operator)
	return op
}

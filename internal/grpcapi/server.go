package grpcapi

import (
	"context"
	"errors"
	"net"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/BrandonDHaskell/Portunus/controller/internal/portunus/guard"
	"github.com/BrandonDHaskell/Portunus/controller/internal/portunus/service"
	"github.com/BrandonDHaskell/Portunus/controller/internal/portunus/wire"
)

type Dependencies struct {
	Logger   *zap.Logger
	Addr     string
	Commands *service.CommandService

	// RateLimit is calls per second across all clients; 0 disables limiting.
	RateLimit float64
	Burst     int
}

type Server struct {
	grpc     *grpc.Server
	addr     string
	logger   *zap.Logger
	commands *service.CommandService
}

func NewServer(d Dependencies) *Server {
	logger := d.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	logger = logger.Named("grpcapi")

	interceptors := []grpc.UnaryServerInterceptor{loggingInterceptor(logger)}
	if d.RateLimit > 0 {
		burst := d.Burst
		if burst <= 0 {
			burst = 1
		}
		interceptors = append(interceptors, rateLimitInterceptor(rate.NewLimiter(rate.Limit(d.RateLimit), burst)))
	}

	s := &Server{
		grpc:     grpc.NewServer(grpc.ChainUnaryInterceptor(interceptors...)),
		addr:     d.Addr,
		logger:   logger,
		commands: d.Commands,
	}
	RegisterCommandsServer(s.grpc, s)
	return s
}

// Start listens on the configured address and serves until Stop.
func (s *Server) Start() error {
	lis, err := net.Listen("tcp", s.addr)
	if err != nil {
		return err
	}
	return s.Serve(lis)
}

func (s *Server) Serve(lis net.Listener) error {
	return s.grpc.Serve(lis)
}

func (s *Server) Stop() {
	s.grpc.GracefulStop()
}

// Execute implements CommandsServer. Commands that were processed but
// rejected (bad UID, unknown type) come back as a normal response with
// ok=false so the caller still sees the result string.
func (s *Server) Execute(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	req, err := wire.CommandRequestFromStruct(in)
	if err != nil {
		return nil, status.Error(codes.InvalidArgument, err.Error())
	}
	if req.Source == "" {
		req.Source = "grpc"
	}

	resp, err := s.commands.Execute(ctx, req)
	switch {
	case err == nil, service.IsProcessed(err):
	case errors.Is(err, service.ErrInvalidCommand):
		return nil, status.Error(codes.InvalidArgument, err.Error())
	case errors.Is(err, service.ErrDuplicateCommand):
		return nil, status.Error(codes.AlreadyExists, err.Error())
	case errors.Is(err, guard.ErrTimeout):
		return nil, status.Error(codes.Unavailable, "store busy, retry")
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return nil, status.FromContextError(err).Err()
	default:
		s.logger.Error("command error", zap.Error(err))
		return nil, status.Error(codes.Internal, "unexpected server error")
	}

	out, err := wire.CommandResponseToStruct(resp)
	if err != nil {
		return nil, status.Error(codes.Internal, err.Error())
	}
	return out, nil
}

func loggingInterceptor(logger *zap.Logger) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		start := time.Now()
		resp, err := handler(ctx, req)
		logger.Info("rpc",
			zap.String("method", info.FullMethod),
			zap.String("code", status.Code(err).String()),
			zap.Duration("dur", time.Since(start)),
		)
		return resp, err
	}
}

func rateLimitInterceptor(lim *rate.Limiter) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, _ *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		if !lim.Allow() {
			return nil, status.Error(codes.ResourceExhausted, "too many requests")
		}
		return handler(ctx, req)
	}
}

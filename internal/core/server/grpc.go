// Package server provides gRPC and HTTP server lifecycle management.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/health"
	"google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/solatis/healthsignals/internal/core/api"
	"github.com/solatis/healthsignals/internal/core/config"
	"github.com/solatis/healthsignals/internal/types"
)

/*
 * gRPC transport.
 *
 * The service is declared by hand rather than generated from a .proto file.
 * Every method takes and returns google.protobuf.Struct; the Struct body is
 * the same JSON document the HTTP transport accepts, so both transports share
 * one request schema (api.EvaluateRequest / api.EvaluateResponse).
 *
 * Methods:
 *   Evaluate       {rules?, metrics}   -> {evaluationId, results, ...}
 *   ListRules      {}                  -> {rules, etag}
 *   GetEvaluation  {evaluationId}      -> audit record
 */

// Fully qualified gRPC names.
const (
	ServiceName         = "healthsignals.v1.EvaluationService"
	MethodEvaluate      = "/" + ServiceName + "/Evaluate"
	MethodListRules     = "/" + ServiceName + "/ListRules"
	MethodGetEvaluation = "/" + ServiceName + "/GetEvaluation"
)

const shutdownTimeout = 30 * time.Second

// EvaluationServer is the handler type of the hand-declared service.
type EvaluationServer interface {
	Evaluate(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error)
	ListRules(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error)
	GetEvaluation(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error)
}

// ServiceDesc describes healthsignals.v1.EvaluationService.
var ServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*EvaluationServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "Evaluate", Handler: structHandler(MethodEvaluate, EvaluationServer.Evaluate)},
		{MethodName: "ListRules", Handler: structHandler(MethodListRules, EvaluationServer.ListRules)},
		{MethodName: "GetEvaluation", Handler: structHandler(MethodGetEvaluation, EvaluationServer.GetEvaluation)},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "healthsignals/v1/evaluation.proto",
}

type structMethod func(EvaluationServer, context.Context, *structpb.Struct) (*structpb.Struct, error)

// structHandler adapts a Struct-in/Struct-out method to grpc.MethodDesc.
func structHandler(fullMethod string, method structMethod) func(any, context.Context, func(any) error, grpc.UnaryServerInterceptor) (any, error) {
	return func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
		in := new(structpb.Struct)
		if err := dec(in); err != nil {
			return nil, err
		}
		if interceptor == nil {
			return method(srv.(EvaluationServer), ctx, in)
		}
		info := &grpc.UnaryServerInfo{Server: srv, FullMethod: fullMethod}
		handler := func(ctx context.Context, req any) (any, error) {
			return method(srv.(EvaluationServer), ctx, req.(*structpb.Struct))
		}
		return interceptor(ctx, in, info, handler)
	}
}

// evaluationHandler implements EvaluationServer over api.EvaluationService.
type evaluationHandler struct {
	service *api.EvaluationService
}

func (h *evaluationHandler) Evaluate(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	var req api.EvaluateRequest
	if err := fromStruct(in, &req); err != nil {
		return nil, status.Errorf(codes.InvalidArgument, "malformed request: %v", err)
	}

	resp, err := h.service.Evaluate(ctx, req)
	if err != nil {
		return nil, statusFromError(err)
	}
	return toStruct(resp)
}

func (h *evaluationHandler) ListRules(ctx context.Context, _ *structpb.Struct) (*structpb.Struct, error) {
	catalog, err := h.service.ListRules(ctx)
	if err != nil {
		return nil, statusFromError(err)
	}
	return toStruct(catalog)
}

func (h *evaluationHandler) GetEvaluation(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	raw := in.GetFields()["evaluationId"].GetStringValue()
	id, err := types.ParseEvaluationID(raw)
	if err != nil {
		return nil, status.Errorf(codes.InvalidArgument, "invalid evaluationId %q", raw)
	}

	rec, err := h.service.Lookup(ctx, id)
	if err != nil {
		return nil, statusFromError(err)
	}
	return toStruct(rec)
}

// fromStruct decodes a Struct into v through its JSON form.
func fromStruct(in *structpb.Struct, v any) error {
	b, err := protojson.Marshal(in)
	if err != nil {
		return err
	}
	return json.Unmarshal(b, v)
}

// toStruct encodes v into a Struct through its JSON form.
func toStruct(v any) (*structpb.Struct, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, status.Errorf(codes.Internal, "failed to encode response: %v", err)
	}
	out := new(structpb.Struct)
	if err := protojson.Unmarshal(b, out); err != nil {
		return nil, status.Errorf(codes.Internal, "failed to encode response: %v", err)
	}
	return out, nil
}

// statusFromError maps service errors to gRPC status codes.
func statusFromError(err error) error {
	var code codes.Code
	switch api.KindOf(err) {
	case api.KindInvalid:
		code = codes.InvalidArgument
	case api.KindNotFound:
		code = codes.NotFound
	case api.KindUnavailable:
		code = codes.Unavailable
	case api.KindCanceled:
		code = codes.Canceled
	case api.KindDeadline:
		code = codes.DeadlineExceeded
	default:
		code = codes.Internal
	}
	return status.Error(code, err.Error())
}

// GRPCServer manages gRPC server lifecycle.
type GRPCServer struct {
	server   *grpc.Server
	health   *health.Server
	listener net.Listener
	config   *config.ServiceConfig
}

// NewGRPCServer creates gRPC server with interceptors and service registration.
func NewGRPCServer(cfg *config.ServiceConfig, service *api.EvaluationService, logger *slog.Logger) (*GRPCServer, error) {
	if cfg == nil {
		return nil, fmt.Errorf("cfg cannot be nil")
	}
	if service == nil {
		return nil, fmt.Errorf("service cannot be nil")
	}
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	opts := []grpc.ServerOption{
		grpc.ChainUnaryInterceptor(
			recoveryInterceptor(logger),
			timeoutInterceptor(cfg.RequestTimeout),
			loggingInterceptor(logger),
		),
	}

	server := grpc.NewServer(opts...)
	server.RegisterService(&ServiceDesc, &evaluationHandler{service: service})

	healthServer := health.NewServer()
	grpc_health_v1.RegisterHealthServer(server, healthServer)
	healthServer.SetServingStatus("", grpc_health_v1.HealthCheckResponse_SERVING)
	healthServer.SetServingStatus(ServiceName, grpc_health_v1.HealthCheckResponse_SERVING)

	return &GRPCServer{
		server: server,
		health: healthServer,
		config: cfg,
	}, nil
}

// Start binds listener and serves gRPC requests.
// Serve blocks until Shutdown is called.
func (s *GRPCServer) Start(ctx context.Context) error {
	addr := s.config.GRPCAddr()
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("failed to bind %s: %w", addr, err)
	}
	return s.Serve(listener)
}

// Serve serves gRPC requests on an existing listener.
func (s *GRPCServer) Serve(listener net.Listener) error {
	s.listener = listener
	if err := s.server.Serve(listener); err != nil && !errors.Is(err, grpc.ErrServerStopped) {
		return err
	}
	return nil
}

// Shutdown marks the service not serving and gracefully stops the server
// with a 30-second timeout.
func (s *GRPCServer) Shutdown(ctx context.Context) error {
	s.health.Shutdown()

	stopped := make(chan struct{})
	go func() {
		s.server.GracefulStop()
		close(stopped)
	}()

	select {
	case <-stopped:
		return nil
	case <-ctx.Done():
		s.server.Stop()
		return fmt.Errorf("shutdown cancelled by context: %w", ctx.Err())
	case <-time.After(shutdownTimeout):
		s.server.Stop()
		return fmt.Errorf("graceful shutdown timeout, forced stop")
	}
}

func recoveryInterceptor(logger *slog.Logger) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (resp any, err error) {
		defer func() {
			if r := recover(); r != nil {
				logger.Error("panic in grpc handler", "method", info.FullMethod, "panic", r)
				err = status.Error(codes.Internal, "internal error")
			}
		}()
		return handler(ctx, req)
	}
}

func timeoutInterceptor(timeout time.Duration) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, _ *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		if timeout <= 0 {
			return handler(ctx, req)
		}
		ctx, cancel := context.WithTimeout(ctx, timeout)
		defer cancel()
		return handler(ctx, req)
	}
}

func loggingInterceptor(logger *slog.Logger) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		start := time.Now()
		resp, err := handler(ctx, req)
		logger.Debug("grpc request",
			"method", info.FullMethod,
			"code", status.Code(err).String(),
			"duration", time.Since(start))
		return resp, err
	}
}

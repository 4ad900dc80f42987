package grpcmodel

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/ekisa-team/flamingo/internal/backend"
	"github.com/google/uuid"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/status"
)

// Server hosts models built by a local loader behind the model gRPC service.
type Server struct {
	loader backend.Loader

	mu     sync.RWMutex
	models map[string]backend.Model
}

// NewServer wraps loader.
func NewServer(loader backend.Loader) *Server {
	return &Server{
		loader: loader,
		models: make(map[string]backend.Model),
	}
}

// Register adds the model service and a SERVING health status to s.
func Register(s *grpc.Server, srv *Server) {
	s.RegisterService(&serviceDesc, srv)

	hs := health.NewServer()
	hs.SetServingStatus(ServiceName, healthpb.HealthCheckResponse_SERVING)
	healthpb.RegisterHealthServer(s, hs)
}

func (s *Server) model(handle string) (backend.Model, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	m, ok := s.models[handle]
	if !ok {
		return nil, status.Errorf(codes.NotFound, "unknown model handle %q", handle)
	}
	return m, nil
}

func (s *Server) load(ctx context.Context, req *loadRequest) (*loadResponse, error) {
	m, err := s.loader.Load(ctx, req.Spec)
	if err != nil {
		return nil, toStatus(err)
	}

	handle := uuid.NewString()
	s.mu.Lock()
	s.models[handle] = m
	s.mu.Unlock()

	slog.Info("Model loaded", "handle", handle, "variant", req.Spec.Variant, "modality", req.Spec.Modality)
	return &loadResponse{Handle: handle, Contract: m.Contract()}, nil
}

func (s *Server) parameters(ctx context.Context, req *handleRequest) (*parametersResponse, error) {
	m, err := s.model(req.Handle)
	if err != nil {
		return nil, err
	}
	shapes, err := m.Parameters(ctx)
	if err != nil {
		return nil, toStatus(err)
	}
	return &parametersResponse{Shapes: shapes}, nil
}

func (s *Server) loadState(ctx context.Context, req *loadStateRequest) (*empty, error) {
	m, err := s.model(req.Handle)
	if err != nil {
		return nil, err
	}
	if err := m.LoadStateDict(ctx, req.State, req.Strict); err != nil {
		return nil, toStatus(err)
	}
	return &empty{}, nil
}

func (s *Server) decode(ctx context.Context, req *decodeRequest) (*decodeResponse, error) {
	m, err := s.model(req.Handle)
	if err != nil {
		return nil, err
	}
	if req.Request == nil {
		return nil, status.Error(codes.InvalidArgument, "missing decode request")
	}
	hyps, err := m.Decode(ctx, req.Request)
	if err != nil {
		return nil, toStatus(err)
	}
	return &decodeResponse{Hypotheses: hyps}, nil
}

func (s *Server) unload(_ context.Context, req *handleRequest) (*empty, error) {
	s.mu.Lock()
	m, ok := s.models[req.Handle]
	delete(s.models, req.Handle)
	s.mu.Unlock()

	if !ok {
		return &empty{}, nil
	}
	if err := m.Close(); err != nil {
		return nil, toStatus(fmt.Errorf("close model: %w", err))
	}
	return &empty{}, nil
}

// Close releases every hosted model.
func (s *Server) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for handle, m := range s.models {
		if err := m.Close(); err != nil {
			slog.Error("Failed to close model", "handle", handle, "error", err)
		}
	}
	s.models = make(map[string]backend.Model)
	return nil
}

type modelService interface {
	load(context.Context, *loadRequest) (*loadResponse, error)
	parameters(context.Context, *handleRequest) (*parametersResponse, error)
	loadState(context.Context, *loadStateRequest) (*empty, error)
	decode(context.Context, *decodeRequest) (*decodeResponse, error)
	unload(context.Context, *handleRequest) (*empty, error)
}

func unary[Req, Resp any](fullMethod string, call func(modelService, context.Context, *Req) (*Resp, error)) grpc.MethodHandler {
	return func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
		in := new(Req)
		if err := dec(in); err != nil {
			return nil, err
		}
		if interceptor == nil {
			return call(srv.(modelService), ctx, in)
		}
		info := &grpc.UnaryServerInfo{Server: srv, FullMethod: fullMethod}
		handler := func(ctx context.Context, req any) (any, error) {
			return call(srv.(modelService), ctx, req.(*Req))
		}
		return interceptor(ctx, in, info, handler)
	}
}

var serviceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*modelService)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "Load", Handler: unary(methodLoad, modelService.load)},
		{MethodName: "Parameters", Handler: unary(methodParameters, modelService.parameters)},
		{MethodName: "LoadStateDict", Handler: unary(methodLoadState, modelService.loadState)},
		{MethodName: "Decode", Handler: unary(methodDecode, modelService.decode)},
		{MethodName: "Unload", Handler: unary(methodUnload, modelService.unload)},
	},
	Metadata: "flamingo/model/v1/model.proto",
}

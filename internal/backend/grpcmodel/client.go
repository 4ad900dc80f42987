// Package grpcmodel talks to a transcription model hosted in a separate
// process over gRPC with a msgpack codec.
package grpcmodel

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/ekisa-team/flamingo/internal/backend"
	"github.com/ekisa-team/flamingo/internal/tensor"
	"github.com/ekisa-team/flamingo/internal/wire"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/status"
)

// Spawn describes a model server process the loader starts on first use.
type Spawn struct {
	BinPath      string
	Args         []string
	Env          map[string]string
	Port         int
	ReadyTimeout time.Duration
}

// Config configures a Loader.
type Config struct {
	// Endpoint is the gRPC target, e.g. "localhost:50051".
	Endpoint string

	// Spawn is optional; when nil the server is expected to be running.
	Spawn *Spawn

	// CallTimeout bounds each RPC. Zero means no limit beyond the caller's context.
	CallTimeout time.Duration

	DialOptions []grpc.DialOption
}

// Loader implements backend.Loader for remote model servers.
type Loader struct {
	cfg     Config
	conn    *grpc.ClientConn
	health  healthpb.HealthClient
	servers *backend.ServerManager
}

// NewLoader creates a loader. The connection is established lazily.
func NewLoader(cfg Config, servers *backend.ServerManager) (*Loader, error) {
	if cfg.Endpoint == "" {
		return nil, errors.New("grpcmodel: endpoint is required")
	}
	if servers == nil {
		servers = backend.NewServerManager()
	}

	opts := append([]grpc.DialOption{
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	}, cfg.DialOptions...)

	conn, err := grpc.NewClient(cfg.Endpoint, opts...)
	if err != nil {
		return nil, fmt.Errorf("grpcmodel: failed to create client: %w", err)
	}

	return &Loader{
		cfg:     cfg,
		conn:    conn,
		health:  healthpb.NewHealthClient(conn),
		servers: servers,
	}, nil
}

func (l *Loader) Provider() backend.Provider {
	return backend.ProviderGRPC
}

// Ready checks the model server's gRPC health status.
func (l *Loader) Ready(ctx context.Context) error {
	resp, err := l.health.Check(ctx, &healthpb.HealthCheckRequest{Service: ServiceName})
	if err != nil {
		return err
	}
	if resp.GetStatus() != healthpb.HealthCheckResponse_SERVING {
		return fmt.Errorf("model server is %s", resp.GetStatus())
	}
	return nil
}

func (l *Loader) ensureServer() error {
	if l.cfg.Spawn == nil {
		return nil
	}

	s := l.cfg.Spawn
	return l.servers.StartServer(backend.ServerConfig{
		Name:         string(backend.ProviderGRPC),
		BinPath:      s.BinPath,
		Args:         s.Args,
		Env:          s.Env,
		Port:         s.Port,
		ReadyTimeout: s.ReadyTimeout,
		Ready:        l.Ready,
	})
}

func (l *Loader) invoke(ctx context.Context, method string, in, out any) error {
	if l.cfg.CallTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, l.cfg.CallTimeout)
		defer cancel()
	}

	if err := l.conn.Invoke(ctx, method, in, out, wire.CallOption()); err != nil {
		return fromStatus(err)
	}
	return nil
}

// Load asks the model server to build a model from spec.
func (l *Loader) Load(ctx context.Context, spec backend.LoadSpec) (backend.Model, error) {
	if err := l.ensureServer(); err != nil {
		return nil, fmt.Errorf("grpcmodel: %w", err)
	}

	var resp loadResponse
	if err := l.invoke(ctx, methodLoad, &loadRequest{Spec: spec}, &resp); err != nil {
		return nil, fmt.Errorf("grpcmodel: load %s: %w", spec.Variant, err)
	}

	slog.Info("Remote model loaded", "endpoint", l.cfg.Endpoint, "handle", resp.Handle, "variant", spec.Variant)

	return &Model{loader: l, handle: resp.Handle, contract: resp.Contract}, nil
}

// Close stops a spawned server and closes the connection.
func (l *Loader) Close() error {
	if s := l.cfg.Spawn; s != nil && l.servers.Running(string(backend.ProviderGRPC), s.Port) {
		if err := l.servers.StopServer(string(backend.ProviderGRPC), s.Port); err != nil {
			slog.Error("Failed to stop model server", "error", err)
		}
	}
	return l.conn.Close()
}

// Model is a handle to a model living in the server process.
type Model struct {
	loader   *Loader
	handle   string
	contract backend.Contract
}

func (m *Model) Contract() backend.Contract {
	return m.contract
}

func (m *Model) Parameters(ctx context.Context) (map[string][]int, error) {
	var resp parametersResponse
	if err := m.loader.invoke(ctx, methodParameters, &handleRequest{Handle: m.handle}, &resp); err != nil {
		return nil, err
	}
	return resp.Shapes, nil
}

func (m *Model) LoadStateDict(ctx context.Context, state map[string]*tensor.Tensor, strict bool) error {
	req := &loadStateRequest{Handle: m.handle, State: state, Strict: strict}
	return m.loader.invoke(ctx, methodLoadState, req, &empty{})
}

func (m *Model) Decode(ctx context.Context, req *backend.DecodeRequest) ([]backend.Hypothesis, error) {
	var resp decodeResponse
	if err := m.loader.invoke(ctx, methodDecode, &decodeRequest{Handle: m.handle, Request: req}, &resp); err != nil {
		return nil, err
	}
	return resp.Hypotheses, nil
}

func (m *Model) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	return m.loader.invoke(ctx, methodUnload, &handleRequest{Handle: m.handle}, &empty{})
}

func fromStatus(err error) error {
	st, ok := status.FromError(err)
	if !ok {
		return err
	}

	switch st.Code() {
	case codes.FailedPrecondition:
		return fmt.Errorf("%w: %s", backend.ErrStrictLoad, st.Message())
	case codes.NotFound:
		return fmt.Errorf("%w: %s", backend.ErrModelClosed, st.Message())
	default:
		return err
	}
}

func toStatus(err error) error {
	switch {
	case errors.Is(err, backend.ErrStrictLoad):
		return status.Error(codes.FailedPrecondition, err.Error())
	case errors.Is(err, backend.ErrModelClosed):
		return status.Error(codes.NotFound, err.Error())
	case errors.Is(err, context.Canceled):
		return status.Error(codes.Canceled, err.Error())
	case errors.Is(err, context.DeadlineExceeded):
		return status.Error(codes.DeadlineExceeded, err.Error())
	default:
		return status.Error(codes.Internal, err.Error())
	}
}

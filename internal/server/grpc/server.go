// Package grpc exposes the transcription service over gRPC with the msgpack
// codec, alongside the standard health service.
package grpc

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/ekisa-team/flamingo/internal/avsr"
	"github.com/google/uuid"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/status"
)

const (
	// ServiceName is the fully qualified transcription service name.
	ServiceName = "flamingo.v1.Transcription"

	methodTranscribe = "/" + ServiceName + "/Transcribe"
)

// TranscribeRequest carries the raw inputs of one transcription.
type TranscribeRequest struct {
	Audio     []byte         `msgpack:"audio"`
	Video     []byte         `msgpack:"video"`
	VideoName string         `msgpack:"video_name"`
	Params    map[string]any `msgpack:"params"`
}

// TranscribeResponse is the transcription result.
type TranscribeResponse struct {
	RequestID string         `msgpack:"request_id"`
	Text      string         `msgpack:"text"`
	Language  string         `msgpack:"language"`
	Metrics   map[string]any `msgpack:"metrics"`
}

// Transcriber runs transcription requests.
type Transcriber interface {
	Transcribe(ctx context.Context, req *avsr.Request) (*avsr.Result, error)
}

// Server implements the transcription service.
type Server struct {
	service Transcriber
	tempDir string
	logger  *slog.Logger
}

// NewServer creates a transcription server. Uploaded videos are staged in
// tempDir for the duration of a call.
func NewServer(svc Transcriber, tempDir string, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{service: svc, tempDir: tempDir, logger: logger}
}

// Register adds the transcription service and a SERVING health status to s.
func Register(s *grpc.Server, srv *Server) *health.Server {
	s.RegisterService(&serviceDesc, srv)

	hs := health.NewServer()
	hs.SetServingStatus(ServiceName, healthpb.HealthCheckResponse_SERVING)
	healthpb.RegisterHealthServer(s, hs)
	return hs
}

func (s *Server) transcribe(ctx context.Context, in *TranscribeRequest) (*TranscribeResponse, error) {
	req := &avsr.Request{
		ID:     uuid.NewString(),
		Audio:  in.Audio,
		Params: avsr.ParamsFromMap(in.Params),
	}

	if len(in.Video) > 0 {
		path, err := s.stage(in.Video, in.VideoName)
		if err != nil {
			return nil, status.Errorf(codes.Internal, "stage video: %v", err)
		}
		defer func() {
			if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
				s.logger.Warn("Failed to remove staged video", "path", path, "error", err)
			}
		}()
		req.Video = path
	}

	res, err := s.service.Transcribe(ctx, req)
	if err != nil {
		return nil, toStatus(err)
	}

	return &TranscribeResponse{
		RequestID: req.ID,
		Text:      res.Text,
		Language:  res.Language,
		Metrics:   res.Metrics,
	}, nil
}

func (s *Server) stage(data []byte, name string) (string, error) {
	dir := s.tempDir
	if dir == "" {
		dir = os.TempDir()
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", err
	}

	path := filepath.Join(dir, uuid.NewString()+filepath.Ext(filepath.Base(name)))
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return "", err
	}
	return path, nil
}

// toStatus maps a pipeline error to a gRPC status.
func toStatus(err error) error {
	switch {
	case avsr.IsClientError(err):
		return status.Error(codes.InvalidArgument, err.Error())
	case errors.Is(err, avsr.ErrCheckpoint):
		return status.Error(codes.Unavailable, err.Error())
	case errors.Is(err, context.DeadlineExceeded):
		return status.Error(codes.DeadlineExceeded, err.Error())
	case errors.Is(err, context.Canceled):
		return status.Error(codes.Canceled, err.Error())
	default:
		return status.Error(codes.Internal, err.Error())
	}
}

type transcriptionService interface {
	transcribe(context.Context, *TranscribeRequest) (*TranscribeResponse, error)
}

func transcribeHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(TranscribeRequest)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(transcriptionService).transcribe(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: methodTranscribe}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(transcriptionService).transcribe(ctx, req.(*TranscribeRequest))
	}
	return interceptor(ctx, in, info, handler)
}

var serviceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*transcriptionService)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "Transcribe", Handler: transcribeHandler},
	},
	Metadata: "flamingo/v1/transcription.proto",
}

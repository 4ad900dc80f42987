package http

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"

	"github.com/danielgtaylor/huma/v2"
	"github.com/ekisa-team/flamingo/internal/avsr"
	"github.com/google/uuid"
)

// Form field names of the transcribe operation.
const (
	FieldAudio  = "audio_file"
	FieldVideo  = "video_file"
	FieldParams = "params"
)

// Transcriber runs transcription requests.
type Transcriber interface {
	Transcribe(ctx context.Context, req *avsr.Request) (*avsr.Result, error)
}

type (
	// TranscribeInput is the huma input for the Transcribe operation.
	TranscribeInput struct {
		RawBody multipart.Form
	}

	// TranscribeOutput is the huma output for the Transcribe operation.
	TranscribeOutput struct {
		RequestID string `header:"X-Request-ID"`
		Body      avsr.Result
	}
)

// TranscribeHandler handles HTTP requests for transcription.
type TranscribeHandler struct {
	service Transcriber
	tempDir string
	logger  *slog.Logger
}

// NewTranscribeHandler creates a new TranscribeHandler instance. Uploaded
// videos are staged in tempDir for the duration of a request.
func NewTranscribeHandler(api huma.API, svc Transcriber, tempDir string, maxBodyBytes int64, logger *slog.Logger) *TranscribeHandler {
	if logger == nil {
		logger = slog.Default()
	}
	h := &TranscribeHandler{service: svc, tempDir: tempDir, logger: logger}

	huma.Register(api, huma.Operation{
		OperationID:   "transcribe",
		Method:        http.MethodPost,
		Path:          "/transcribe",
		Summary:       "Transcribe audio and lip video",
		Tags:          []string{"transcription"},
		DefaultStatus: http.StatusOK,
		MaxBodyBytes:  maxBodyBytes,
	}, h.handleTranscribe)

	return h
}

// handleTranscribe handles the transcribe operation.
func (h *TranscribeHandler) handleTranscribe(ctx context.Context, input *TranscribeInput) (*TranscribeOutput, error) {
	req := &avsr.Request{ID: uuid.NewString()}

	params, err := avsr.ParseParams([]byte(formValue(&input.RawBody, FieldParams)))
	if err != nil {
		return nil, toHTTPError(err)
	}
	req.Params = params

	if fh := formFile(&input.RawBody, FieldAudio); fh != nil {
		data, err := readFile(fh)
		if err != nil {
			return nil, huma.Error400BadRequest("failed to read audio_file", err)
		}
		req.Audio = data
	}

	if fh := formFile(&input.RawBody, FieldVideo); fh != nil {
		path, err := h.stage(fh)
		if err != nil {
			return nil, huma.Error500InternalServerError("failed to stage video_file", err)
		}
		defer func() {
			if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
				h.logger.Warn("Failed to remove staged video", "path", path, "error", err)
			}
		}()
		req.Video = path
	}

	res, err := h.service.Transcribe(ctx, req)
	if err != nil {
		return nil, toHTTPError(err)
	}

	return &TranscribeOutput{RequestID: req.ID, Body: *res}, nil
}

// stage copies an uploaded video to a uniquely named file under tempDir.
func (h *TranscribeHandler) stage(fh *multipart.FileHeader) (string, error) {
	dir := h.tempDir
	if dir == "" {
		dir = os.TempDir()
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", err
	}

	src, err := fh.Open()
	if err != nil {
		return "", err
	}
	defer src.Close()

	path := filepath.Join(dir, uuid.NewString()+filepath.Ext(fh.Filename))
	dst, err := os.Create(path)
	if err != nil {
		return "", err
	}

	if _, err := io.Copy(dst, src); err != nil {
		dst.Close()
		os.Remove(path)
		return "", fmt.Errorf("copy %s: %w", fh.Filename, err)
	}
	if err := dst.Close(); err != nil {
		os.Remove(path)
		return "", err
	}

	return path, nil
}

func formValue(form *multipart.Form, name string) string {
	if form.Value == nil || len(form.Value[name]) == 0 {
		return ""
	}
	return form.Value[name][0]
}

func formFile(form *multipart.Form, name string) *multipart.FileHeader {
	if form.File == nil || len(form.File[name]) == 0 {
		return nil
	}
	return form.File[name][0]
}

func readFile(fh *multipart.FileHeader) ([]byte, error) {
	f, err := fh.Open()
	if err != nil {
		return nil, err
	}
	defer f.Close()

	return io.ReadAll(f)
}

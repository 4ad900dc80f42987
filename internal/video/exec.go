package video

import (
	"bytes"
	"context"
	"fmt"
	"io"

	"github.com/ekisa-team/flamingo/internal/tensor"
)

// Runner executes the extractor binary and returns its stdout.
type Runner interface {
	Execute(ctx context.Context, args []string, stdin io.Reader) ([]byte, error)
}

// ExecExtractor runs an external lip-region extractor that writes a
// msgpack-encoded tensor to stdout.
type ExecExtractor struct {
	runner Runner
}

// NewExecExtractor creates an extractor around runner, usually a *backend.Executor.
func NewExecExtractor(runner Runner) *ExecExtractor {
	return &ExecExtractor{runner: runner}
}

func (e *ExecExtractor) Extract(ctx context.Context, path string, train bool) (*tensor.Tensor, error) {
	mode := "eval"
	if train {
		mode = "train"
	}

	out, err := e.runner.Execute(ctx, []string{"--input", path, "--mode", mode}, nil)
	if err != nil {
		return nil, fmt.Errorf("video extractor failed: %w", err)
	}

	t, err := tensor.Decode(bytes.NewReader(out))
	if err != nil {
		return nil, fmt.Errorf("video extractor output: %w", err)
	}
	return t, nil
}

package video

import (
	"bytes"
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/ekisa-team/flamingo/internal/avsr"
	"github.com/ekisa-team/flamingo/internal/tensor"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type MockExtractor struct {
	mock.Mock
}

func (m *MockExtractor) Extract(ctx context.Context, path string, train bool) (*tensor.Tensor, error) {
	args := m.Called(ctx, path, train)
	if t, ok := args.Get(0).(*tensor.Tensor); ok {
		return t, args.Error(1)
	}
	return nil, args.Error(1)
}

type MockRunner struct {
	mock.Mock
}

func (m *MockRunner) Execute(ctx context.Context, args []string, stdin io.Reader) ([]byte, error) {
	a := m.Called(ctx, args, stdin)
	out, _ := a.Get(0).([]byte)
	return out, a.Error(1)
}

func videoFile(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "clip.mp4")
	require.NoError(t, os.WriteFile(path, []byte("fake"), 0o644))
	return path
}

func TestPipeline_Layout(t *testing.T) {
	path := videoFile(t)
	raw := tensor.New(5, 88, 88, 1)
	for i := range raw.Data {
		raw.Data[i] = float32(i)
	}

	ext := new(MockExtractor)
	ext.On("Extract", mock.Anything, path, false).Return(raw, nil).Once()

	out, err := NewPipeline(ext).Extract(context.Background(), path)
	require.NoError(t, err)

	assert.Equal(t, []int{1, 1, 5, 88, 88}, out.Shape)
	assert.Equal(t, raw.At(3, 10, 20, 0), out.At(0, 0, 3, 10, 20))
	assert.Equal(t, 5, Frames(out))
	ext.AssertExpectations(t)
}

func TestPipeline_MissingFile(t *testing.T) {
	ext := new(MockExtractor)

	_, err := NewPipeline(ext).Extract(context.Background(), filepath.Join(t.TempDir(), "missing.mp4"))
	assert.ErrorIs(t, err, avsr.ErrResource)
	ext.AssertNotCalled(t, "Extract", mock.Anything, mock.Anything, mock.Anything)
}

func TestPipeline_NoFrames(t *testing.T) {
	path := videoFile(t)
	ext := new(MockExtractor)
	ext.On("Extract", mock.Anything, path, false).Return(tensor.New(0, 88, 88, 1), nil)

	_, err := NewPipeline(ext).Extract(context.Background(), path)
	assert.ErrorIs(t, err, avsr.ErrInvalidInput)
}

func TestPipeline_ExtractorFailure(t *testing.T) {
	path := videoFile(t)
	ext := new(MockExtractor)
	ext.On("Extract", mock.Anything, path, false).Return(nil, errors.New("codec not supported"))

	_, err := NewPipeline(ext).Extract(context.Background(), path)
	assert.ErrorIs(t, err, avsr.ErrResource)
}

func TestPipeline_BadRank(t *testing.T) {
	path := videoFile(t)
	ext := new(MockExtractor)
	ext.On("Extract", mock.Anything, path, false).Return(tensor.New(2, 88, 88), nil)

	_, err := NewPipeline(ext).Extract(context.Background(), path)
	assert.ErrorIs(t, err, avsr.ErrResource)
}

func TestExecExtractor(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, tensor.Encode(&buf, tensor.New(3, 4, 4, 1)))

	runner := new(MockRunner)
	runner.On("Execute", mock.Anything, []string{"--input", "/v.mp4", "--mode", "eval"}, nil).
		Return(buf.Bytes(), nil).Once()

	out, err := NewExecExtractor(runner).Extract(context.Background(), "/v.mp4", false)
	require.NoError(t, err)
	assert.Equal(t, []int{3, 4, 4, 1}, out.Shape)
	runner.AssertExpectations(t)
}

func TestExecExtractor_Garbage(t *testing.T) {
	runner := new(MockRunner)
	runner.On("Execute", mock.Anything, mock.Anything, nil).Return([]byte{0xc1}, nil)

	_, err := NewExecExtractor(runner).Extract(context.Background(), "/v.mp4", true)
	assert.Error(t, err)
}

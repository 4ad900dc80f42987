package service

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/ekisa-team/flamingo/internal/audio"
	"github.com/ekisa-team/flamingo/internal/audio/audiotest"
	"github.com/ekisa-team/flamingo/internal/avsr"
	"github.com/ekisa-team/flamingo/internal/backend"
	mockbackend "github.com/ekisa-team/flamingo/internal/backend/mock"
	"github.com/ekisa-team/flamingo/internal/cache"
	"github.com/ekisa-team/flamingo/internal/config"
	"github.com/ekisa-team/flamingo/internal/envvar"
	"github.com/ekisa-team/flamingo/internal/model"
	"github.com/ekisa-team/flamingo/internal/noise"
	"github.com/ekisa-team/flamingo/internal/tensor"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

// MockVideo is a mock implementation of VideoFeatures.
type MockVideo struct {
	mock.Mock
}

func (m *MockVideo) Extract(ctx context.Context, path string) (*tensor.Tensor, error) {
	args := m.Called(ctx, path)
	t, _ := args.Get(0).(*tensor.Tensor)
	return t, args.Error(1)
}

// MockModel is a mock implementation of backend.Model.
type MockModel struct {
	mock.Mock
}

func (m *MockModel) Contract() backend.Contract {
	return m.Called().Get(0).(backend.Contract)
}

func (m *MockModel) Parameters(ctx context.Context) (map[string][]int, error) {
	args := m.Called(ctx)
	return args.Get(0).(map[string][]int), args.Error(1)
}

func (m *MockModel) LoadStateDict(ctx context.Context, state map[string]*tensor.Tensor, strict bool) error {
	return m.Called(ctx, state, strict).Error(0)
}

func (m *MockModel) Decode(ctx context.Context, req *backend.DecodeRequest) ([]backend.Hypothesis, error) {
	args := m.Called(ctx, req)
	hyps, _ := args.Get(0).([]backend.Hypothesis)
	return hyps, args.Error(1)
}

func (m *MockModel) Close() error {
	return m.Called().Error(0)
}

type fixture struct {
	transcriber *Transcriber
	loader      *mockbackend.Loader
	video       *MockVideo
	videoPath   string
	cfg         *config.Config
}

func newFixture(t *testing.T, opts ...Option) *fixture {
	t.Helper()
	t.Setenv(envvar.FlamingoModelsPath, "")

	cfg := config.Default()
	cfg.Storage.ModelsDir = t.TempDir()

	loader := mockbackend.NewLoader()
	loaders := backend.NewRegistry()
	require.NoError(t, loaders.Register(loader))

	manager := model.NewManager(cfg, loaders, nil)
	t.Cleanup(func() { _ = manager.Close() })

	videoPath := filepath.Join(t.TempDir(), "clip.mp4")
	require.NoError(t, os.WriteFile(videoPath, []byte("not really a video"), 0o644))

	video := new(MockVideo)
	return &fixture{
		transcriber: NewTranscriber(manager, audio.NewPipeline(), video, opts...),
		loader:      loader,
		video:       video,
		videoPath:   videoPath,
		cfg:         cfg,
	}
}

func speechWAV(t *testing.T, sampleRate int) []byte {
	return audiotest.WAV(t, sampleRate, 1, 16, audiotest.Sine(sampleRate, sampleRate, 220, 8000))
}

func lipFrames(n int) *tensor.Tensor {
	return tensor.New(1, 1, n, 4, 4)
}

func request(modality string, audioBytes []byte, video string) *avsr.Request {
	p := avsr.DefaultParams()
	p.Modalities = modality
	return &avsr.Request{Audio: audioBytes, Video: video, Params: p}
}

func TestTranscribe_AudioOnlyNeverTouchesVideo(t *testing.T) {
	f := newFixture(t)

	res, err := f.transcriber.Transcribe(context.Background(), request("asr", speechWAV(t, 16000), ""))
	require.NoError(t, err)

	assert.Equal(t, "hello world", res.Text)
	assert.Equal(t, "en", res.Language)
	assert.Equal(t, "asr", res.Metrics["modality"])
	assert.Equal(t, 1, res.Metrics["beam_size"])
	assert.InDelta(t, 1.0, res.Metrics["audio_seconds"], 1e-9)
	assert.NotContains(t, res.Metrics, "video_frames")
	f.video.AssertNotCalled(t, "Extract", mock.Anything, mock.Anything)
}

func TestTranscribe_AudioVisual(t *testing.T) {
	f := newFixture(t)
	f.video.On("Extract", mock.Anything, f.videoPath).Return(lipFrames(25), nil).Once()

	res, err := f.transcriber.Transcribe(context.Background(), request("avsr", speechWAV(t, 16000), f.videoPath))
	require.NoError(t, err)

	assert.Equal(t, "hello world", res.Text)
	assert.Equal(t, 25, res.Metrics["video_frames"])
	assert.Contains(t, res.Metrics, "feature_ms")
	assert.Contains(t, res.Metrics, "decode_ms")
	f.video.AssertExpectations(t)
}

func TestTranscribe_VideoOnlyWithoutAudio(t *testing.T) {
	f := newFixture(t)
	f.video.On("Extract", mock.Anything, f.videoPath).Return(lipFrames(10), nil).Once()

	res, err := f.transcriber.Transcribe(context.Background(), request("vsr", nil, f.videoPath))
	require.NoError(t, err)

	assert.Equal(t, "hello world", res.Text)
	assert.NotContains(t, res.Metrics, "audio_seconds")
}

func TestTranscribe_Lrs2DecodesAsEnglish(t *testing.T) {
	f := newFixture(t)
	req := request("asr", speechWAV(t, 16000), "")
	req.Params.Language = "lrs2"

	res, err := f.transcriber.Transcribe(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, "en", res.Language)
}

func TestTranscribe_RejectsBeforeModelWork(t *testing.T) {
	f := newFixture(t)

	tests := []struct {
		name  string
		req   func() *avsr.Request
		class error
	}{
		{
			name: "unsupported language",
			req: func() *avsr.Request {
				r := request("asr", speechWAV(t, 16000), "")
				r.Params.Language = "xx"
				return r
			},
			class: avsr.ErrValidation,
		},
		{
			name:  "missing video",
			req:   func() *avsr.Request { return request("avsr", speechWAV(t, 16000), "") },
			class: avsr.ErrValidation,
		},
		{
			name:  "missing audio",
			req:   func() *avsr.Request { return request("asr", nil, "") },
			class: avsr.ErrValidation,
		},
		{
			name:  "unknown modality",
			req:   func() *avsr.Request { return request("text", speechWAV(t, 16000), "") },
			class: avsr.ErrUnsupportedModality,
		},
		{
			name:  "wrong sample rate",
			req:   func() *avsr.Request { return request("asr", speechWAV(t, 8000), "") },
			class: avsr.ErrInvalidInput,
		},
		{
			name:  "not a wav",
			req:   func() *avsr.Request { return request("asr", []byte("garbage"), "") },
			class: avsr.ErrInvalidInput,
		},
		{
			name: "checkpoint outside models dir",
			req: func() *avsr.Request {
				r := request("asr", speechWAV(t, 16000), "")
				r.Params.CheckpointPath = "../../etc/passwd"
				return r
			},
			class: avsr.ErrValidation,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.transcriber.Transcribe(context.Background(), tt.req())
			require.Error(t, err)
			assert.ErrorIs(t, err, tt.class)
			assert.True(t, avsr.IsClientError(err))
		})
	}

	assert.Zero(t, f.loader.Loads())
	f.video.AssertNotCalled(t, "Extract", mock.Anything, mock.Anything)
}

func TestTranscribe_VideoFailurePropagates(t *testing.T) {
	f := newFixture(t)
	f.video.On("Extract", mock.Anything, f.videoPath).
		Return(nil, assert.AnError).Once()

	_, err := f.transcriber.Transcribe(context.Background(), request("vsr", nil, f.videoPath))
	require.Error(t, err)
	assert.ErrorIs(t, err, assert.AnError)
	assert.Zero(t, f.loader.Loads())
}

func TestTranscribe_ExtractsFeaturesBeforeModelLoad(t *testing.T) {
	f := newFixture(t)
	f.video.On("Extract", mock.Anything, f.videoPath).
		Run(func(mock.Arguments) {
			assert.Zero(t, f.loader.Loads())
			assert.Empty(t, f.transcriber.States())
		}).
		Return(lipFrames(4), nil).Once()

	res, err := f.transcriber.Transcribe(context.Background(), request("vsr", nil, f.videoPath))
	require.NoError(t, err)
	assert.Equal(t, 4, res.Metrics["video_frames"])
	assert.Equal(t, 1, f.loader.Loads())
}

func TestTranscribe_Noise(t *testing.T) {
	dir := t.TempDir()
	audiotest.WriteWAV(t, filepath.Join(dir, "babble.wav"), 16000, 1, 16, audiotest.Sine(800, 16000, 1000, 3000))
	manifest := filepath.Join(dir, "test.tsv")
	require.NoError(t, os.WriteFile(manifest, []byte("babble.wav\n"), 0o644))

	f := newFixture(t, WithNoise(noise.NewAugmenter(noise.WithSelector(noise.IndexSelector(0)))))

	req := request("asr", speechWAV(t, 16000), "")
	req.Params.NoiseSNR = 0
	req.Params.NoiseManifest = manifest

	res, err := f.transcriber.Transcribe(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, true, res.Metrics["noise_applied"])
}

func TestTranscribe_NoiseWithoutManifest(t *testing.T) {
	f := newFixture(t, WithNoise(noise.NewAugmenter()))

	req := request("asr", speechWAV(t, 16000), "")
	req.Params.NoiseSNR = 5

	_, err := f.transcriber.Transcribe(context.Background(), req)
	assert.ErrorIs(t, err, avsr.ErrConfiguration)
}

func TestTranscribe_CachesDeterministicRequests(t *testing.T) {
	f := newFixture(t, WithCache(cache.NewResults(cache.NewMemory(), 0, nil)))
	f.video.On("Extract", mock.Anything, f.videoPath).Return(lipFrames(5), nil).Once()

	req := request("avsr", speechWAV(t, 16000), f.videoPath)

	first, err := f.transcriber.Transcribe(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, false, first.Metrics["cached"])

	second, err := f.transcriber.Transcribe(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, true, second.Metrics["cached"])
	assert.Equal(t, first.Text, second.Text)
	assert.Equal(t, first.Language, second.Language)

	f.video.AssertNumberOfCalls(t, "Extract", 1)
}

func TestDispatch_Routing(t *testing.T) {
	silence := audio.NewPipeline().Silence
	mel := tensor.New(1, 80, 3000)
	video := lipFrames(3)

	tests := []struct {
		name     string
		modality avsr.Modality
		contract backend.Contract
		check    func(t *testing.T, req *backend.DecodeRequest)
	}{
		{
			name:     "avsr",
			modality: avsr.AudioVisual,
			check: func(t *testing.T, req *backend.DecodeRequest) {
				assert.Same(t, mel, req.Mel)
				assert.Same(t, video, req.Video)
				assert.Equal(t, backend.ModalityFlags{}, req.Flags)
			},
		},
		{
			name:     "asr",
			modality: avsr.AudioOnly,
			check: func(t *testing.T, req *backend.DecodeRequest) {
				assert.Same(t, mel, req.Mel)
				assert.Nil(t, req.Video)
				assert.Equal(t, backend.ModalityFlags{AudioOnly: true}, req.Flags)
			},
		},
		{
			name:     "vsr with placeholder mel",
			modality: avsr.VideoOnly,
			contract: backend.Contract{NumMels: 80, RequiresMel: true},
			check: func(t *testing.T, req *backend.DecodeRequest) {
				require.NotNil(t, req.Mel)
				assert.NotSame(t, mel, req.Mel)
				assert.Equal(t, []int{1, 80, 3000}, req.Mel.Shape)
				for _, v := range req.Mel.Data {
					require.Zero(t, v)
				}
				assert.Same(t, video, req.Video)
				assert.Equal(t, backend.ModalityFlags{VideoOnly: true}, req.Flags)
			},
		},
		{
			name:     "vsr without mel",
			modality: avsr.VideoOnly,
			contract: backend.Contract{NumMels: 80},
			check: func(t *testing.T, req *backend.DecodeRequest) {
				assert.Nil(t, req.Mel)
				assert.Equal(t, backend.ModalityFlags{VideoOnly: true}, req.Flags)
			},
		},
	}

	opts := avsr.DecodingOptions{Task: avsr.TaskTranslate, Language: "es", BeamSize: 4, WithoutTimestamps: true}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := new(MockModel)
			m.On("Contract").Return(tt.contract).Maybe()
			m.On("Decode", mock.Anything, mock.Anything).
				Run(func(args mock.Arguments) {
					req := args.Get(1).(*backend.DecodeRequest)
					assert.Equal(t, opts, req.Options)
					tt.check(t, req)
				}).
				Return([]backend.Hypothesis{{Text: "  hola mundo \n"}, {Text: "hola"}}, nil).Once()

			text, err := NewDispatcher(silence).Dispatch(context.Background(), m, tt.modality, mel, video, opts)
			require.NoError(t, err)
			assert.Equal(t, "hola mundo", text)
			m.AssertExpectations(t)
		})
	}
}

func TestDispatch_Idempotent(t *testing.T) {
	m, err := mockbackend.NewLoader().Load(context.Background(), backend.LoadSpec{Variant: "small", Modality: avsr.AudioVisual})
	require.NoError(t, err)

	wave, err := audio.DecodeWAV(speechWAV(t, 16000))
	require.NoError(t, err)
	pipeline := audio.NewPipeline()
	mel, err := pipeline.Extract(wave, 80)
	require.NoError(t, err)

	d := NewDispatcher(pipeline.Silence)
	opts := avsr.DecodingOptions{Task: avsr.TaskTranscribe, Language: "en", BeamSize: 1, WithoutTimestamps: true}

	first, err := d.Dispatch(context.Background(), m, avsr.AudioVisual, mel, lipFrames(6), opts)
	require.NoError(t, err)
	second, err := d.Dispatch(context.Background(), m, avsr.AudioVisual, mel, lipFrames(6), opts)
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.Equal(t, 2, m.(*mockbackend.Model).Decodes())
}

func TestDispatch_UnknownModality(t *testing.T) {
	m := new(MockModel)

	_, err := NewDispatcher(nil).Dispatch(context.Background(), m, avsr.Modality("text"), nil, nil, avsr.DecodingOptions{})
	var target *avsr.UnsupportedModalityError
	require.ErrorAs(t, err, &target)
	assert.Equal(t, "text", target.Modality)
	m.AssertNotCalled(t, "Decode", mock.Anything, mock.Anything)
}

func TestDispatch_NoHypothesis(t *testing.T) {
	m := new(MockModel)
	m.On("Decode", mock.Anything, mock.Anything).Return([]backend.Hypothesis{}, nil).Once()

	_, err := NewDispatcher(nil).Dispatch(context.Background(), m, avsr.AudioOnly, tensor.New(1, 80, 3000), nil, avsr.DecodingOptions{})
	assert.ErrorIs(t, err, backend.ErrNoHypothesis)
}

func TestDispatch_MissingFeatures(t *testing.T) {
	m := new(MockModel)
	d := NewDispatcher(nil)

	_, err := d.Dispatch(context.Background(), m, avsr.AudioVisual, tensor.New(1, 80, 3000), nil, avsr.DecodingOptions{})
	assert.ErrorIs(t, err, avsr.ErrInvalidInput)

	_, err = d.Dispatch(context.Background(), m, avsr.VideoOnly, nil, nil, avsr.DecodingOptions{})
	assert.ErrorIs(t, err, avsr.ErrInvalidInput)
}

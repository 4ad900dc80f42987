package noise

import (
	"context"
	"math/rand"
	"os"
	"path/filepath"
	"testing"

	"github.com/ekisa-team/flamingo/internal/audio"
	"github.com/ekisa-team/flamingo/internal/audio/audiotest"
	"github.com/ekisa-team/flamingo/internal/avsr"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func speech(n int) audio.Waveform {
	samples := audiotest.Sine(n, 16000, 220, 8000)
	out := make([]int16, n)
	for i, s := range samples {
		out[i] = int16(s)
	}
	return audio.Waveform{SampleRate: 16000, Samples: out}
}

func writeManifest(t *testing.T, dir string, lines ...string) string {
	t.Helper()
	path := filepath.Join(dir, "test.tsv")
	content := ""
	for _, l := range lines {
		content += l + "\n"
	}
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestAugment_DisabledIsIdentity(t *testing.T) {
	a := NewAugmenter()
	w := speech(1600)

	for _, snr := range []int{100, 1000} {
		out, err := a.Augment(context.Background(), w, "does/not/exist.tsv", snr)
		require.NoError(t, err)
		assert.Equal(t, w.Samples, out.Samples)
	}
}

func TestAugment_MixesNoise(t *testing.T) {
	dir := t.TempDir()
	audiotest.WriteWAV(t, filepath.Join(dir, "babble.wav"), 16000, 1, 16, audiotest.Sine(400, 16000, 1000, 3000))
	manifest := writeManifest(t, dir, "babble.wav")

	a := NewAugmenter(WithSelector(IndexSelector(0)))
	w := speech(1600)
	orig := w.Clone()

	out, err := a.Augment(context.Background(), w, manifest, 0)
	require.NoError(t, err)

	assert.Len(t, out.Samples, len(w.Samples))
	assert.NotEqual(t, w.Samples, out.Samples)
	assert.Equal(t, orig.Samples, w.Samples, "input must not be modified")
}

func TestAugment_MissingManifest(t *testing.T) {
	a := NewAugmenter()

	_, err := a.Augment(context.Background(), speech(160), filepath.Join(t.TempDir(), "missing.tsv"), 0)
	assert.ErrorIs(t, err, avsr.ErrConfiguration)

	_, err = a.Augment(context.Background(), speech(160), "", 0)
	assert.ErrorIs(t, err, avsr.ErrConfiguration)
}

func TestAugment_EmptyManifest(t *testing.T) {
	manifest := writeManifest(t, t.TempDir(), "", "   ")

	_, err := NewAugmenter().Augment(context.Background(), speech(160), manifest, 5)
	assert.ErrorIs(t, err, ErrManifestEmpty)
	assert.ErrorIs(t, err, avsr.ErrConfiguration)
}

func TestAugment_UnreadableNoise(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "broken.wav"), []byte("nope"), 0o644))

	for _, entry := range []string{"gone.wav", "broken.wav"} {
		manifest := writeManifest(t, dir, entry)
		a := NewAugmenter()

		_, err := a.Augment(context.Background(), speech(160), manifest, 5)
		assert.ErrorIs(t, err, avsr.ErrResource, entry)
	}
}

func TestAugment_SilentNoise(t *testing.T) {
	dir := t.TempDir()
	audiotest.WriteWAV(t, filepath.Join(dir, "silence.wav"), 16000, 1, 16, make([]int, 320))
	manifest := writeManifest(t, dir, "silence.wav")

	w := speech(1600)
	out, err := NewAugmenter().Augment(context.Background(), w, manifest, 0)
	require.NoError(t, err)
	assert.Equal(t, w.Samples, out.Samples)
}

func TestAugment_ResamplesNoise(t *testing.T) {
	dir := t.TempDir()
	audiotest.WriteWAV(t, filepath.Join(dir, "cafe.wav"), 8000, 2, 16, audiotest.Sine(16000, 8000, 300, 4000))
	manifest := writeManifest(t, dir, "cafe.wav")

	w := speech(3200)
	out, err := NewAugmenter().Augment(context.Background(), w, manifest, 10)
	require.NoError(t, err)
	assert.Len(t, out.Samples, 3200)
	assert.Equal(t, 16000, out.SampleRate)
}

func TestManifest_CachedAndResolved(t *testing.T) {
	dir := t.TempDir()
	manifest := writeManifest(t, dir, "a.wav", "", "/abs/b.wav")

	a := NewAugmenter()
	entries, err := a.Manifest(manifest)
	require.NoError(t, err)
	assert.Equal(t, []string{filepath.Join(dir, "a.wav"), "/abs/b.wav"}, entries)

	require.NoError(t, os.Remove(manifest))
	again, err := a.Manifest(manifest)
	require.NoError(t, err)
	assert.Equal(t, entries, again)

	rooted := NewAugmenter(WithRoot("/data/noise"))
	manifest = writeManifest(t, dir, "c.wav")
	entries, err = rooted.Manifest(manifest)
	require.NoError(t, err)
	assert.Equal(t, []string{"/data/noise/c.wav"}, entries)
}

func TestTile(t *testing.T) {
	assert.Equal(t, []int16{1, 2, 3, 1, 2, 3, 1}, Tile([]int16{1, 2, 3}, 7))
	assert.Equal(t, []int16{1, 2}, Tile([]int16{1, 2, 3}, 2))
	assert.Equal(t, []int16{0, 0}, Tile(nil, 2))
}

func TestMix_TargetSNR(t *testing.T) {
	clean := make([]int16, 1000)
	noise := make([]int16, 1000)
	for i := range clean {
		clean[i] = 1000
		if i%2 == 0 {
			noise[i] = 500
		} else {
			noise[i] = -500
		}
	}

	out, ok := Mix(clean, noise, 0)
	require.True(t, ok)

	added := make([]int16, len(out))
	for i := range out {
		added[i] = out[i] - clean[i]
	}
	assert.InDelta(t, audio.Power(clean), audio.Power(added), 1)
}

func TestMix_Clips(t *testing.T) {
	clean := []int16{32000, -32000}
	noise := []int16{1, -1}

	out, ok := Mix(clean, noise, -60)
	require.True(t, ok)
	assert.Equal(t, []int16{32767, -32768}, out)
}

func TestSelectors(t *testing.T) {
	assert.Equal(t, 2, IndexSelector(5).Select(3))
	assert.Equal(t, 0, NewSelector("first", 0).Select(10))

	a := NewRandomSelector(rand.NewSource(7))
	b := NewRandomSelector(rand.NewSource(7))
	for i := 0; i < 10; i++ {
		n := a.Select(100)
		assert.Equal(t, n, b.Select(100))
		assert.True(t, n >= 0 && n < 100)
	}
}

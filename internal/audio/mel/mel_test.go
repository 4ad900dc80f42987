package mel

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBinsForVariant(t *testing.T) {
	assert.Equal(t, 80, BinsForVariant("small"))
	assert.Equal(t, 80, BinsForVariant("medium.en"))
	assert.Equal(t, 80, BinsForVariant("large-v2"))
	assert.Equal(t, 128, BinsForVariant("large-v3"))
}

func TestSlaneyScale(t *testing.T) {
	assert.InDelta(t, 15.0, hzToMel(1000), 1e-9)
	assert.InDelta(t, 7.5, hzToMel(500), 1e-9)
	for _, hz := range []float64{0, 300, 1000, 4000, 8000} {
		assert.InDelta(t, hz, melToHz(hzToMel(hz)), 1e-6)
	}
}

func TestFilterBank(t *testing.T) {
	bank := slaneyFilterBank(80, 400, 16000)
	require.Len(t, bank, 80)

	for i, f := range bank {
		require.NotEmpty(t, f.weights, "filter %d", i)
		assert.LessOrEqual(t, f.start+len(f.weights), 201)
	}
	// Filters move up the spectrum.
	assert.Less(t, bank[0].start, bank[40].start)
	assert.Less(t, bank[40].start, bank[79].start)
}

func TestHannWindow(t *testing.T) {
	w := hannWindow(400)
	assert.InDelta(t, 0.0, w[0], 1e-12)
	assert.InDelta(t, 1.0, w[200], 1e-12)
}

func TestReflectPad(t *testing.T) {
	got := reflectPad([]float32{1, 2, 3, 4}, 2)
	assert.Equal(t, []float64{3, 2, 1, 2, 3, 4, 3, 2}, got)
}

func TestExtract_Silence(t *testing.T) {
	e := New(DefaultConfig(80))
	out := e.Extract(make([]float32, 16000))

	assert.Equal(t, []int{80, 100}, out.Shape)
	for _, v := range out.Data {
		assert.InDelta(t, -1.5, v, 1e-6)
	}
}

func TestExtract_TonePeaksInMatchingBin(t *testing.T) {
	e := New(DefaultConfig(80))

	samples := make([]float32, 16000)
	for i := range samples {
		samples[i] = float32(0.5 * math.Sin(2*math.Pi*1000*float64(i)/16000))
	}
	out := e.Extract(samples)

	frame := 50
	best, bestVal := -1, float32(math.Inf(-1))
	for m := 0; m < 80; m++ {
		if v := out.At(m, frame); v > bestVal {
			best, bestVal = m, v
		}
	}

	// 1 kHz sits on mel 15; bins are spaced by hzToMel(8000)/81.
	want := int(math.Round(hzToMel(1000)/(hzToMel(8000)/81))) - 1
	assert.InDelta(t, want, best, 1)
}

func TestExtract_DynamicRangeClamp(t *testing.T) {
	e := New(DefaultConfig(80))

	samples := make([]float32, 3200)
	for i := range samples {
		samples[i] = float32(math.Sin(2 * math.Pi * 440 * float64(i) / 16000))
	}
	out := e.Extract(samples)

	minVal, maxVal := float32(math.Inf(1)), float32(math.Inf(-1))
	for _, v := range out.Data {
		minVal = min(minVal, v)
		maxVal = max(maxVal, v)
	}
	assert.InDelta(t, 2.0, maxVal-minVal, 1e-5)
}

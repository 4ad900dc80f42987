package mel

import "math"

// filter is one triangular mel filter restricted to its non-zero FFT bins.
type filter struct {
	start   int
	weights []float64
}

const (
	slaneyFSp       = 200.0 / 3
	slaneyMinLogHz  = 1000.0
	slaneyMinLogMel = slaneyMinLogHz / slaneyFSp
)

var slaneyLogStep = math.Log(6.4) / 27.0

// hzToMel converts Hz to the Slaney mel scale (linear below 1 kHz, log above).
func hzToMel(hz float64) float64 {
	if hz < slaneyMinLogHz {
		return hz / slaneyFSp
	}
	return slaneyMinLogMel + math.Log(hz/slaneyMinLogHz)/slaneyLogStep
}

// melToHz converts a Slaney mel value back to Hz.
func melToHz(mel float64) float64 {
	if mel < slaneyMinLogMel {
		return mel * slaneyFSp
	}
	return slaneyMinLogHz * math.Exp(slaneyLogStep*(mel-slaneyMinLogMel))
}

// slaneyFilterBank builds area-normalized triangular filters spanning 0 Hz to
// Nyquist over nfft/2+1 bins.
func slaneyFilterBank(numMels, nfft, sampleRate int) []filter {
	bins := nfft/2 + 1
	fmax := float64(sampleRate) / 2

	fftFreqs := make([]float64, bins)
	for k := range fftFreqs {
		fftFreqs[k] = float64(k) * float64(sampleRate) / float64(nfft)
	}

	lowMel, highMel := hzToMel(0), hzToMel(fmax)
	melF := make([]float64, numMels+2)
	for i := range melF {
		melF[i] = melToHz(lowMel + (highMel-lowMel)*float64(i)/float64(numMels+1))
	}

	bank := make([]filter, numMels)
	for m := 0; m < numMels; m++ {
		lower, center, upper := melF[m], melF[m+1], melF[m+2]
		norm := 2.0 / (upper - lower)

		full := make([]float64, bins)
		first, last := -1, -1
		for k, f := range fftFreqs {
			down := (f - lower) / (center - lower)
			up := (upper - f) / (upper - center)
			w := math.Max(0, math.Min(down, up))
			if w > 0 {
				if first < 0 {
					first = k
				}
				last = k
			}
			full[k] = w * norm
		}

		if first < 0 {
			bank[m] = filter{}
			continue
		}
		bank[m] = filter{start: first, weights: full[first : last+1]}
	}

	return bank
}

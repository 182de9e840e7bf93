package analysis

import (
	"math"
	"math/cmplx"

	"github.com/mjibson/go-dsp/fft"
)

// PowerSpectrum returns the magnitude of the first half of the spectrum of
// data after removing its mean and applying a Hann window.
func PowerSpectrum(data []float64) []float64 {
	n := len(data)
	if n < 2 {
		return nil
	}

	mean := 0.0
	for _, v := range data {
		mean += v
	}
	mean /= float64(n)

	windowed := make([]float64, n)
	for i, v := range data {
		w := 0.5 * (1 - math.Cos(2*math.Pi*float64(i)/float64(n-1)))
		windowed[i] = (v - mean) * w
	}

	spectrum := fft.FFTReal(windowed)
	ps := make([]float64, n/2)
	for i := range ps {
		ps[i] = cmplx.Abs(spectrum[i])
	}
	return ps
}

// noiseFloor scales with the sample count; peaks below it are rounding
// residue left after the mean is removed.
const noiseFloor = 1e-9

// DominantFrequency returns the strongest non-DC frequency in hertz of data
// sampled at rateHz, with its magnitude. A flat signal yields zero.
func DominantFrequency(data []float64, rateHz float64) (float64, float64) {
	ps := PowerSpectrum(data)
	maxPower := 0.0
	maxIdx := 0
	for i := 1; i < len(ps); i++ {
		if ps[i] > maxPower {
			maxPower = ps[i]
			maxIdx = i
		}
	}
	if maxIdx == 0 || maxPower < noiseFloor*float64(len(data)) {
		return 0, 0
	}
	return float64(maxIdx) * rateHz / float64(len(data)), maxPower
}

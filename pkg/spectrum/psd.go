// Package spectrum estimates power spectral densities of QA time series.
package spectrum

import (
	"fmt"
	"math"
	"math/cmplx"

	"gonum.org/v1/gonum/dsp/fourier"
)

// Hanning returns the symmetric Hann window of length n
func Hanning(n int) []float64 {
	w := make([]float64, n)
	if n == 1 {
		w[0] = 1
		return w
	}
	for i := range w {
		w[i] = 0.5 - 0.5*math.Cos(2*math.Pi*float64(i)/float64(n-1))
	}
	return w
}

// Welch computes the one-sided power spectral density of x by averaging
// Hann-windowed periodograms of length nfft that overlap by overlap samples.
//
// Series shorter than nfft are zero-padded to a single segment. Power is
// scaled as a density (per Hz) for sampling frequency fs, with every bin
// except DC and Nyquist doubled to fold in the negative frequencies.
//
// Returns:
//   - freqs: nfft/2+1 frequencies in Hz
//   - power: the density at each frequency
func Welch(x []float64, fs float64, nfft, overlap int) (freqs, power []float64, err error) {
	if nfft < 2 {
		return nil, nil, fmt.Errorf("nfft must be at least 2, got %d", nfft)
	}
	if overlap < 0 || overlap >= nfft {
		return nil, nil, fmt.Errorf("overlap must be in [0, %d), got %d", nfft, overlap)
	}
	if fs <= 0 {
		return nil, nil, fmt.Errorf("sampling frequency must be positive, got %g", fs)
	}
	if len(x) == 0 {
		return nil, nil, fmt.Errorf("cannot estimate the spectrum of an empty series")
	}

	if len(x) < nfft {
		padded := make([]float64, nfft)
		copy(padded, x)
		x = padded
	}

	step := nfft - overlap
	nseg := (len(x) - overlap) / step
	nfreq := nfft/2 + 1

	window := Hanning(nfft)
	var windowPower float64
	for _, w := range window {
		windowPower += w * w
	}

	fft := fourier.NewFFT(nfft)
	seg := make([]float64, nfft)
	coeffs := make([]complex128, nfreq)
	power = make([]float64, nfreq)

	for s := 0; s < nseg; s++ {
		start := s * step
		for i := 0; i < nfft; i++ {
			seg[i] = x[start+i] * window[i]
		}
		coeffs = fft.Coefficients(coeffs, seg)
		for k, c := range coeffs {
			a := cmplx.Abs(c)
			power[k] += a * a
		}
	}

	// bins that have a negative-frequency twin
	lastTwin := nfreq - 1
	if nfft%2 == 1 {
		lastTwin = nfreq
	}

	freqs = make([]float64, nfreq)
	for k := range power {
		power[k] /= float64(nseg)
		if k > 0 && k < lastTwin {
			power[k] *= 2
		}
		power[k] /= fs * windowPower
		freqs[k] = fft.Freq(k) * fs
	}

	return freqs, power, nil
}

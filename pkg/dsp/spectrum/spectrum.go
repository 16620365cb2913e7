// Package spectrum turns a block of IQ samples into a power spectrum frame
// for display.
package spectrum

import (
	"math"
	"math/cmplx"
	"sort"

	"github.com/mjibson/go-dsp/window"
	"gonum.org/v1/gonum/dsp/fourier"
	"gonum.org/v1/gonum/floats"
)

const (
	// FFTSize is the number of bins in every frame.
	FFTSize = 2048
	// NoiseFloorPercentile selects the power value reported as the noise floor.
	NoiseFloorPercentile = 10

	epsilon = 1e-12
)

// Frame is one power spectrum. Power is in dB with the zero frequency bin
// centred, lowest frequency first.
type Frame struct {
	Power        []float64
	NoiseFloorDB float64
	PeakDB       float64
	BandwidthHz  float64
}

// Analyzer holds the FFT plan and window for a fixed frame size. It is not
// safe for concurrent use; give each goroutine its own.
type Analyzer struct {
	size   int
	fft    *fourier.CmplxFFT
	window []float64
	buf    []complex128
	coeffs []complex128
}

func NewAnalyzer(size int) *Analyzer {
	return &Analyzer{
		size:   size,
		fft:    fourier.NewCmplxFFT(size),
		window: window.Hann(size),
		buf:    make([]complex128, size),
		coeffs: make([]complex128, size),
	}
}

// Compute analyses the first FFTSize samples of a block. Blocks shorter than
// the frame size are zero padded at the end.
func Compute(samples []complex64, bandwidthHz float64) *Frame {
	return NewAnalyzer(FFTSize).Compute(samples, bandwidthHz)
}

func (a *Analyzer) Compute(samples []complex64, bandwidthHz float64) *Frame {
	for i := 0; i < a.size; i++ {
		if i < len(samples) {
			a.buf[i] = complex128(samples[i]) * complex(a.window[i], 0)
		} else {
			a.buf[i] = 0
		}
	}

	a.coeffs = a.fft.Coefficients(a.coeffs, a.buf)

	power := make([]float64, a.size)
	for i := range power {
		power[i] = 20 * math.Log10(cmplx.Abs(a.coeffs[a.fft.ShiftIdx(i)])+epsilon)
	}

	return &Frame{
		Power:        power,
		NoiseFloorDB: Percentile(power, NoiseFloorPercentile),
		PeakDB:       floats.Max(power),
		BandwidthHz:  bandwidthHz,
	}
}

// Percentile returns the p-th percentile of values, interpolating linearly
// between the two closest ranks. values is not modified.
func Percentile(values []float64, p float64) float64 {
	if len(values) == 0 {
		return math.NaN()
	}
	sorted := make([]float64, len(values))
	copy(sorted, values)
	sort.Float64s(sorted)

	rank := p / 100 * float64(len(sorted)-1)
	lo := int(math.Floor(rank))
	hi := int(math.Ceil(rank))
	if lo < 0 {
		lo = 0
	}
	if hi >= len(sorted) {
		hi = len(sorted) - 1
	}
	frac := rank - float64(lo)
	return sorted[lo] + (sorted[hi]-sorted[lo])*frac
}

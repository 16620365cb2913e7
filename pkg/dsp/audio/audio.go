// Package audio conditions demodulated baseband into 48 kHz mono PCM16.
package audio

import (
	"github.com/norasector/tuner/pkg/dsp/filters/fir"
)

// OutputRate is the sample rate of every PCM frame produced by Condition.
const OutputRate = 48000

// Stride is the decimation factor that brings sampleRate closest to
// OutputRate from above. Rates that do not divide evenly drift slightly.
func Stride(sampleRate int64) int {
	stride := int(sampleRate / OutputRate)
	if stride < 1 {
		return 1
	}
	return stride
}

// NewLowPass returns the band limiting filter for a demodulated signal, or
// nil when bandwidthHz disables filtering.
func NewLowPass(bandwidthHz float64, sampleRate int64) *fir.Filter {
	if bandwidthHz <= 0 || sampleRate <= 0 {
		return nil
	}
	return fir.NewFilter(fir.MakeLowPass(fir.AudioTaps, float64(sampleRate), bandwidthHz))
}

// LowPass filters signal to bandwidthHz. A non-positive bandwidth returns
// the signal untouched.
func LowPass(signal []float32, bandwidthHz float64, sampleRate int64) []float32 {
	f := NewLowPass(bandwidthHz, sampleRate)
	if f == nil {
		return signal
	}
	return f.Work(signal)
}

// Condition runs the whole audio chain: low pass, decimate, normalize and
// encode to little endian PCM16.
func Condition(demodulated []float32, bandwidthHz float64, sampleRate int64) []byte {
	filtered := LowPass(demodulated, bandwidthHz, sampleRate)
	decimated := NewDecimator(Stride(sampleRate)).Work(filtered)
	normalized := Normalizer{}.Work(decimated)
	return PCM16Encoder{}.Work(normalized)
}

// Package am is an envelope detector.
package am

import (
	"math/cmplx"
)

// EnvelopeDemod outputs the magnitude of each sample minus the mean
// magnitude of the buffer, which removes the carrier's DC offset.
type EnvelopeDemod struct{}

func NewEnvelopeDemod() *EnvelopeDemod {
	return &EnvelopeDemod{}
}

func (e *EnvelopeDemod) PredictOutputSize(inputSize int) int {
	return inputSize
}

func (e *EnvelopeDemod) WorkBuffer(input []complex64, output []float32) int {
	if len(input) == 0 {
		return 0
	}
	var sum float64
	for i, s := range input {
		mag := cmplx.Abs(complex128(s))
		output[i] = float32(mag)
		sum += mag
	}
	mean := float32(sum / float64(len(input)))
	for i := range input {
		output[i] -= mean
	}
	return len(input)
}

func (e *EnvelopeDemod) Work(data []complex64) []float32 {
	ret := make([]float32, len(data))
	e.WorkBuffer(data, ret)
	return ret
}

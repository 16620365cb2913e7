package audio

import (
	"encoding/binary"
	"math"
)

// peakFloor is the largest peak treated as silence by Normalizer.
const peakFloor = 1e-12

// Decimator keeps every stride-th sample, starting with the first.
type Decimator struct {
	stride int
}

func NewDecimator(stride int) *Decimator {
	if stride < 1 {
		stride = 1
	}
	return &Decimator{stride: stride}
}

func (d *Decimator) PredictOutputSize(inputSize int) int {
	return (inputSize + d.stride - 1) / d.stride
}

func (d *Decimator) WorkBuffer(input, output []float32) int {
	n := 0
	for i := 0; i < len(input); i += d.stride {
		output[n] = input[i]
		n++
	}
	return n
}

func (d *Decimator) Work(data []float32) []float32 {
	ret := make([]float32, d.PredictOutputSize(len(data)))
	d.WorkBuffer(data, ret)
	return ret
}

// Normalizer scales a buffer so its largest magnitude is 1. Silent buffers
// pass through unscaled.
type Normalizer struct{}

func (Normalizer) PredictOutputSize(inputSize int) int {
	return inputSize
}

func (Normalizer) WorkBuffer(input, output []float32) int {
	var peak float64
	for _, v := range input {
		if a := math.Abs(float64(v)); a > peak {
			peak = a
		}
	}
	if peak < peakFloor {
		peak = 1
	}
	for i, v := range input {
		output[i] = float32(float64(v) / peak)
	}
	return len(input)
}

func (n Normalizer) Work(data []float32) []float32 {
	ret := make([]float32, len(data))
	n.WorkBuffer(data, ret)
	return ret
}

// PCM16Encoder clips to [-1, 1], scales by 32767 and truncates toward zero,
// writing little endian int16. 1.0 encodes as 32767 and -1.0 as -32767.
type PCM16Encoder struct{}

func (PCM16Encoder) PredictOutputSize(inputSize int) int {
	return inputSize * 2
}

func (PCM16Encoder) WorkBuffer(input []float32, output []byte) int {
	for i, v := range input {
		binary.LittleEndian.PutUint16(output[2*i:], uint16(EncodeSample(v)))
	}
	return len(input) * 2
}

func (e PCM16Encoder) Work(data []float32) []byte {
	ret := make([]byte, e.PredictOutputSize(len(data)))
	e.WorkBuffer(data, ret)
	return ret
}

func EncodeSample(v float32) int16 {
	switch {
	case math.IsNaN(float64(v)):
		return 0
	case v > 1:
		v = 1
	case v < -1:
		v = -1
	}
	return int16(float64(v) * math.MaxInt16)
}

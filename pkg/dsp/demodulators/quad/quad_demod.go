package quad

import (
	"math"

	"github.com/racerxdl/segdsp/dsp"
)

// QuadDemod is a quadrature FM discriminator: the phase difference between
// consecutive samples, which equals the first difference of the unwrapped
// phase. It keeps no history, so n samples in produce n-1 out.
type QuadDemod struct {
	gain float32
}

func MakeQuadDemod(gain float32) *QuadDemod {
	return &QuadDemod{gain: gain}
}

func (f *QuadDemod) Work(data []complex64) []float32 {
	out := make([]float32, f.PredictOutputSize(len(data)))

	f.WorkBuffer(data, out)

	return out
}

func (f *QuadDemod) WorkBuffer(input []complex64, output []float32) int {
	n := f.PredictOutputSize(len(input))
	if n == 0 {
		return 0
	}
	var tmp = dsp.MultiplyConjugate(input[1:], input, n)

	for i := 0; i < n; i++ {
		output[i] = f.gain * float32(math.Atan2(float64(imag(tmp[i])), float64(real(tmp[i]))))
	}

	return n
}

func (f *QuadDemod) PredictOutputSize(inputLength int) int {
	if inputLength < 2 {
		return 0
	}
	return inputLength - 1
}

// Package ssb approximates single sideband reception by taking one
// quadrature component of the baseband signal. It is not a product detector.
package ssb

type Sideband int

const (
	Upper Sideband = iota
	Lower
)

type Demod struct {
	sideband Sideband
}

func NewDemod(sideband Sideband) *Demod {
	return &Demod{sideband: sideband}
}

func (d *Demod) PredictOutputSize(inputSize int) int {
	return inputSize
}

func (d *Demod) WorkBuffer(input []complex64, output []float32) int {
	for i, s := range input {
		if d.sideband == Lower {
			output[i] = imag(s)
		} else {
			output[i] = real(s)
		}
	}
	return len(input)
}

func (d *Demod) Work(data []complex64) []float32 {
	ret := make([]float32, len(data))
	d.WorkBuffer(data, ret)
	return ret
}

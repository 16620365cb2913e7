package fir

// Filter convolves real samples with a fixed set of taps. Each call is
// independent: edges are zero padded and no history is carried between
// buffers. The output is aligned with the input (centre of the kernel) and
// has the same length.
type Filter struct {
	taps []float32
}

func NewFilter(taps []float32) *Filter {
	return &Filter{taps: taps}
}

func (f *Filter) Taps() []float32 {
	return f.taps
}

func (f *Filter) PredictOutputSize(inputSize int) int {
	return inputSize
}

func (f *Filter) WorkBuffer(input, output []float32) int {
	n := len(input)
	half := (len(f.taps) - 1) / 2

	for i := 0; i < n; i++ {
		var acc float32
		for k, tap := range f.taps {
			j := i + half - k
			if j < 0 || j >= n {
				continue
			}
			acc += input[j] * tap
		}
		output[i] = acc
	}
	return n
}

func (f *Filter) Work(data []float32) []float32 {
	ret := make([]float32, len(data))
	f.WorkBuffer(data, ret)
	return ret
}

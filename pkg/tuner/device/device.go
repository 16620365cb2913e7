package device

import "github.com/norasector/turbine-common/types"

// Tuning is everything a device needs to know to produce samples.
type Tuning struct {
	CenterFreq int64
	SampleRate int64
	// Gain in dB, ignored when AutoGain is set.
	Gain     int
	AutoGain bool
}

// Device is a tunable IQ source. A Device is owned by exactly one session and
// is not safe for concurrent use.
type Device interface {
	Name() string
	// Tune may be called repeatedly, including between reads.
	Tune(t Tuning) error
	// ReadSamples blocks until out is full or the device fails.
	ReadSamples(out []complex64) (int, error)
	Close() error
	MaxSampleRate() int64
}

// Opener acquires a device. It is called once per connect.
type Opener func() (Device, error)

// CU8ToComplex64 converts interleaved unsigned 8 bit IQ (the rtl_sdr wire
// format) into complex samples in [-1, 1]. It returns the number of samples
// written.
func CU8ToComplex64(in []byte, out []complex64) int {
	n := len(in) / 2
	if n > len(out) {
		n = len(out)
	}
	for i := 0; i < n; i++ {
		out[i] = complex(
			(float32(in[2*i])-127.5)/127.5,
			(float32(in[2*i+1])-127.5)/127.5,
		)
	}
	return n
}

// CS8ToComplex64 converts a signed 8 bit IQ segment (the hackrf wire format)
// into complex samples scaled to the same [-1, 1] range as CU8ToComplex64.
func CS8ToComplex64(seg types.SegmentCS8Raw) []complex64 {
	samples := seg.ToComplex64().Data
	for i := range samples {
		samples[i] /= 128
	}
	return samples
}

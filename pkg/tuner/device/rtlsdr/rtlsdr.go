package rtlsdr

import (
	"fmt"

	gsdr "github.com/jpoirier/gortlsdr"
	"github.com/norasector/tuner/pkg/tuner/device"
)

const (
	maxSampleRate = 3.2e6
	// librtlsdr wants sync reads in multiples of 512 bytes.
	readAlignment = 512
)

type RTLSDRDevice struct {
	deviceIdx int
	device    *gsdr.Context
	buf       []byte
}

// NewOpener returns an Opener for the dongle at deviceIdx.
func NewOpener(deviceIdx int) device.Opener {
	return func() (device.Device, error) {
		return Open(deviceIdx)
	}
}

func Open(deviceIdx int) (*RTLSDRDevice, error) {
	if count := gsdr.GetDeviceCount(); count <= deviceIdx {
		return nil, fmt.Errorf("rtlsdr device %d not found (%d attached)", deviceIdx, count)
	}
	dev, err := gsdr.Open(deviceIdx)
	if err != nil {
		return nil, err
	}
	if err := dev.ResetBuffer(); err != nil {
		dev.Close()
		return nil, err
	}
	return &RTLSDRDevice{deviceIdx: deviceIdx, device: dev}, nil
}

func (r *RTLSDRDevice) Name() string {
	return fmt.Sprintf("rtlsdr:%d", r.deviceIdx)
}

func (r *RTLSDRDevice) MaxSampleRate() int64 {
	return maxSampleRate
}

func (r *RTLSDRDevice) Tune(t device.Tuning) error {
	if err := r.device.SetCenterFreq(int(t.CenterFreq)); err != nil {
		return err
	}
	if err := r.device.SetSampleRate(int(t.SampleRate)); err != nil {
		return err
	}
	if t.AutoGain {
		return r.device.SetTunerGainMode(false)
	}
	if err := r.device.SetTunerGainMode(true); err != nil {
		return err
	}
	// librtlsdr takes tenths of a dB.
	return r.device.SetTunerGain(t.Gain * 10)
}

func (r *RTLSDRDevice) ReadSamples(out []complex64) (int, error) {
	want := len(out) * 2
	size := (want + readAlignment - 1) / readAlignment * readAlignment
	if len(r.buf) < size {
		r.buf = make([]byte, size)
	}

	filled := 0
	for filled < len(out) {
		n, err := r.device.ReadSync(r.buf[:size], size)
		if err != nil {
			return filled, err
		}
		if n == 0 {
			return filled, fmt.Errorf("rtlsdr: short read")
		}
		filled += device.CU8ToComplex64(r.buf[:n], out[filled:])
	}
	return filled, nil
}

func (r *RTLSDRDevice) Close() error {
	return r.device.Close()
}

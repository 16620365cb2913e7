package hackrf

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/norasector/tuner/pkg/tuner/device"
	"github.com/norasector/turbine-common/types"
	"github.com/samuel/go-hackrf/hackrf"
)

const (
	maxSampleRate = 20e6

	// Transfers buffered between the USB callback and ReadSamples. Older
	// transfers are dropped when the reader falls behind.
	transferQueue = 32
	readTimeout   = 2 * time.Second

	defaultLNAGain = 16
	defaultVGAGain = 20
	maxLNAGain     = 40
)

var errClosed = errors.New("hackrf: device closed")

type HackRFDevice struct {
	device *hackrf.Device

	centerFreq int64
	sampleRate int64

	mu        sync.Mutex
	receiving bool
	closed    bool
	transfers chan []byte
	pending   []complex64
	dropped   int
}

// NewOpener returns an Opener for the first HackRF. hackrf.Init must have
// been called by the process.
func NewOpener() device.Opener {
	return func() (device.Device, error) {
		return Open()
	}
}

func Open() (*HackRFDevice, error) {
	dev, err := hackrf.Open()
	if err != nil {
		return nil, err
	}

	return &HackRFDevice{
		device:    dev,
		transfers: make(chan []byte, transferQueue),
	}, nil
}

func (h *HackRFDevice) Name() string {
	return "hackrf"
}

func (h *HackRFDevice) MaxSampleRate() int64 {
	return maxSampleRate
}

// lnaGain maps a requested gain onto the 8 dB LNA steps.
func lnaGain(t device.Tuning) int {
	if t.AutoGain {
		return defaultLNAGain
	}
	g := t.Gain / 8 * 8
	if g < 0 {
		return 0
	}
	if g > maxLNAGain {
		return maxLNAGain
	}
	return g
}

func (h *HackRFDevice) Tune(t device.Tuning) error {
	h.mu.Lock()
	h.centerFreq = t.CenterFreq
	h.sampleRate = t.SampleRate
	h.mu.Unlock()

	if err := h.device.SetFreq(uint64(t.CenterFreq)); err != nil {
		return err
	}
	if err := h.device.SetSampleRateManual(int(t.SampleRate)*2, 2); err != nil {
		return err
	}
	if err := h.device.SetBasebandFilterBandwidth(int(t.SampleRate)); err != nil {
		return err
	}
	if err := h.device.SetLNAGain(lnaGain(t)); err != nil {
		return err
	}
	return h.device.SetVGAGain(defaultVGAGain)
}

func (h *HackRFDevice) callback(buf []byte) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return errClosed
	}

	transfer := make([]byte, len(buf))
	copy(transfer, buf)

	select {
	case h.transfers <- transfer:
	default:
		h.dropped++
	}
	return nil
}

func (h *HackRFDevice) startRX() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.receiving {
		return nil
	}
	if err := h.device.StartRX(h.callback); err != nil {
		return err
	}
	h.receiving = true
	return nil
}

func (h *HackRFDevice) ReadSamples(out []complex64) (int, error) {
	if err := h.startRX(); err != nil {
		return 0, err
	}

	filled := copy(out, h.pending)
	h.pending = h.pending[filled:]

	for filled < len(out) {
		select {
		case buf := <-h.transfers:
			h.mu.Lock()
			seg := types.SegmentCS8Raw{
				SampleRate: int(h.sampleRate),
				Data:       buf,
				Frequency:  int(h.centerFreq),
			}
			h.mu.Unlock()

			samples := device.CS8ToComplex64(seg)
			n := copy(out[filled:], samples)
			filled += n
			if n < len(samples) {
				h.pending = append(h.pending[:0], samples[n:]...)
			}
		case <-time.After(readTimeout):
			return filled, fmt.Errorf("hackrf: no samples within %s", readTimeout)
		}
	}
	return filled, nil
}

func (h *HackRFDevice) Close() error {
	h.mu.Lock()
	h.closed = true
	receiving := h.receiving
	h.receiving = false
	h.mu.Unlock()

	if receiving {
		if err := h.device.StopRX(); err != nil {
			h.device.Close()
			return err
		}
	}
	return h.device.Close()
}

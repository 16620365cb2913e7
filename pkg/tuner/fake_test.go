package tuner

import (
	"errors"
	"math"
	"sync"
	"time"

	"github.com/norasector/tuner/pkg/tuner/device"
	"github.com/rs/zerolog"
)

var errFakeRead = errors.New("usb transfer failed")

// fakeDevice produces a complex tone. It can be told to fail after a number
// of reads or to block each read until released.
type fakeDevice struct {
	mu        sync.Mutex
	tunings   []device.Tuning
	reads     int
	failAfter int
	closed    bool
	maxRate   int64

	// reading, when set, receives a value as each read starts.
	reading chan struct{}
	// release, when set, must be readable before a read completes.
	release chan struct{}
	// levels, when set, makes each read a DC level chosen by the current
	// centre frequency instead of a tone.
	levels map[int64]float32
}

func newFakeDevice() *fakeDevice {
	return &fakeDevice{maxRate: 3200000}
}

func (f *fakeDevice) Name() string { return "fake" }

func (f *fakeDevice) Tune(t device.Tuning) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.tunings = append(f.tunings, t)
	return nil
}

func (f *fakeDevice) ReadSamples(out []complex64) (int, error) {
	if f.reading != nil {
		f.reading <- struct{}{}
	}
	if f.release != nil {
		<-f.release
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return 0, errors.New("read on closed device")
	}
	f.reads++
	if f.failAfter > 0 && f.reads > f.failAfter {
		return 0, errFakeRead
	}
	if f.levels != nil && len(f.tunings) > 0 {
		level := f.levels[f.tunings[len(f.tunings)-1].CenterFreq]
		for i := range out {
			out[i] = complex(level, 0)
		}
		return len(out), nil
	}
	for i := range out {
		phase := 2 * math.Pi * 0.05 * float64(i)
		out[i] = complex64(complex(0.5*math.Cos(phase), 0.5*math.Sin(phase)))
	}
	time.Sleep(time.Millisecond)
	return len(out), nil
}

func (f *fakeDevice) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	return nil
}

func (f *fakeDevice) MaxSampleRate() int64 { return f.maxRate }

func (f *fakeDevice) isClosed() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closed
}

func (f *fakeDevice) tuneCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.tunings)
}

func (f *fakeDevice) lastTuning() device.Tuning {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.tunings) == 0 {
		return device.Tuning{}
	}
	return f.tunings[len(f.tunings)-1]
}

func openerFor(dev *fakeDevice) device.Opener {
	return func() (device.Device, error) {
		return dev, nil
	}
}

func testOptions() Options {
	return Options{
		StreamBlockSize: 4096,
		ScanBlockSize:   8192,
		Pace:            time.Millisecond,
		StreamBuffer:    4,
	}
}

func newTestReceiver(dev *fakeDevice) (*Receiver, error) {
	return NewReceiver(openerFor(dev), DefaultSettings(), testOptions(), WithLogger(zerolog.Nop()))
}

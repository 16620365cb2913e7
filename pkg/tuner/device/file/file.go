package file

import (
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/norasector/tuner/pkg/tuner/device"
	"github.com/norasector/turbine-common/types"
)

// Format is the on-disk IQ sample encoding.
type Format string

const (
	// FormatCU8 is unsigned 8 bit IQ as written by rtl_sdr.
	FormatCU8 Format = "cu8"
	// FormatCS8 is signed 8 bit IQ as written by hackrf_transfer.
	FormatCS8 Format = "cs8"
)

// FileDevice plays back a recorded IQ capture as if it were a receiver.
type FileDevice struct {
	path     string
	readFile *os.File
	format   Format
	loop     bool
	realtime bool

	sampleRate int64
	centerFreq int64

	buf      []byte
	nextRead time.Time
}

type Options struct {
	Format Format
	// Loop rewinds to the start of the capture at EOF.
	Loop bool
	// Realtime throttles reads to the tuned sample rate.
	Realtime bool
}

func NewOpener(path string, opts Options) device.Opener {
	return func() (device.Device, error) {
		return NewFileDevice(path, opts)
	}
}

func NewFileDevice(path string, opts Options) (*FileDevice, error) {
	switch opts.Format {
	case "":
		opts.Format = FormatCU8
	case FormatCU8, FormatCS8:
	default:
		return nil, fmt.Errorf("unknown sample format %q", opts.Format)
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, err
	}
	if info.Size() < 2 {
		f.Close()
		return nil, fmt.Errorf("%s holds no samples", path)
	}

	return &FileDevice{
		path:     path,
		readFile: f,
		format:   opts.Format,
		loop:     opts.Loop,
		realtime: opts.Realtime,
	}, nil
}

func (f *FileDevice) Name() string {
	return "file:" + f.path
}

func (f *FileDevice) MaxSampleRate() int64 {
	return 20e6
}

func (f *FileDevice) Tune(t device.Tuning) error {
	f.sampleRate = t.SampleRate
	f.centerFreq = t.CenterFreq
	return nil
}

func (f *FileDevice) fill(buf []byte) error {
	for {
		_, err := io.ReadFull(f.readFile, buf)
		if err == nil {
			return nil
		}
		if !f.loop || !(errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF)) {
			return err
		}
		if _, err := f.readFile.Seek(0, io.SeekStart); err != nil {
			return err
		}
		// A partial block at the end of the file is discarded and the
		// read restarts from the beginning of the capture.
		if info, err := f.readFile.Stat(); err == nil && info.Size() < int64(len(buf)) {
			return fmt.Errorf("%s is shorter than one read (%d bytes)", f.path, len(buf))
		}
	}
}

func (f *FileDevice) ReadSamples(out []complex64) (int, error) {
	size := len(out) * 2
	if len(f.buf) < size {
		f.buf = make([]byte, size)
	}
	buf := f.buf[:size]

	if err := f.fill(buf); err != nil {
		return 0, err
	}

	var n int
	switch f.format {
	case FormatCS8:
		seg := types.SegmentCS8Raw{
			SampleRate: int(f.sampleRate),
			Data:       buf,
			Frequency:  int(f.centerFreq),
		}
		n = copy(out, device.CS8ToComplex64(seg))
	default:
		n = device.CU8ToComplex64(buf, out)
	}

	if f.realtime && f.sampleRate > 0 {
		f.throttle(n)
	}
	return n, nil
}

func (f *FileDevice) throttle(samples int) {
	now := time.Now()
	if f.nextRead.Before(now) {
		f.nextRead = now
	}
	f.nextRead = f.nextRead.Add(time.Duration(samples) * time.Second / time.Duration(f.sampleRate))
	time.Sleep(time.Until(f.nextRead))
}

func (f *FileDevice) Close() error {
	return f.readFile.Close()
}

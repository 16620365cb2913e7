package file

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/norasector/tuner/pkg/tuner/device"
)

func writeCapture(t *testing.T, data []byte) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "capture.cu8")
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestFileDeviceReadsCU8(t *testing.T) {
	path := writeCapture(t, []byte{255, 0, 0, 255})
	dev, err := NewFileDevice(path, Options{Format: FormatCU8})
	if err != nil {
		t.Fatal(err)
	}
	defer dev.Close()

	if err := dev.Tune(device.Tuning{CenterFreq: 100e6, SampleRate: 2.4e6, AutoGain: true}); err != nil {
		t.Fatal(err)
	}

	out := make([]complex64, 2)
	n, err := dev.ReadSamples(out)
	if err != nil {
		t.Fatal(err)
	}
	if n != 2 || out[0] != complex(1, -1) || out[1] != complex(-1, 1) {
		t.Errorf("ReadSamples() = %d %v", n, out)
	}

	if _, err := dev.ReadSamples(out); err == nil {
		t.Error("expected EOF without loop")
	}
}

func TestFileDeviceReadsCS8(t *testing.T) {
	path := writeCapture(t, []byte{0x80, 0x7f, 0x40, 0x00})
	dev, err := NewFileDevice(path, Options{Format: FormatCS8})
	if err != nil {
		t.Fatal(err)
	}
	defer dev.Close()

	out := make([]complex64, 2)
	n, err := dev.ReadSamples(out)
	if err != nil {
		t.Fatal(err)
	}
	// Same scale as cu8 so spectra compare across backends.
	if n != 2 || out[0] != complex(127.0/128, -1) || out[1] != complex(0, 0.5) {
		t.Errorf("ReadSamples() = %d %v", n, out)
	}
}

func TestFileDeviceLoops(t *testing.T) {
	path := writeCapture(t, []byte{255, 255, 0, 0})
	dev, err := NewFileDevice(path, Options{Loop: true})
	if err != nil {
		t.Fatal(err)
	}
	defer dev.Close()

	out := make([]complex64, 2)
	for i := 0; i < 3; i++ {
		if _, err := dev.ReadSamples(out); err != nil {
			t.Fatalf("read %d: %v", i, err)
		}
		if out[0] != complex(1, 1) || out[1] != complex(-1, -1) {
			t.Fatalf("read %d: got %v", i, out)
		}
	}
}

func TestFileDeviceLoopShorterThanRead(t *testing.T) {
	path := writeCapture(t, []byte{1, 2})
	dev, err := NewFileDevice(path, Options{Loop: true})
	if err != nil {
		t.Fatal(err)
	}
	defer dev.Close()

	if _, err := dev.ReadSamples(make([]complex64, 4)); err == nil {
		t.Error("expected error for capture shorter than a read")
	}
}

func TestNewFileDeviceRejects(t *testing.T) {
	if _, err := NewFileDevice(writeCapture(t, nil), Options{}); err == nil {
		t.Error("expected error for empty capture")
	}
	if _, err := NewFileDevice(writeCapture(t, []byte{1, 2}), Options{Format: "wav"}); err == nil {
		t.Error("expected error for unknown format")
	}
}

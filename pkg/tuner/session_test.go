package tuner

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/norasector/tuner/pkg/tuner/device"
	"github.com/rs/zerolog"
)

func TestSessionConnect(t *testing.T) {
	dev := newFakeDevice()
	s := NewSession(openerFor(dev), zerolog.Nop())

	if status, err := s.Status(); status != StatusDisconnected || err != nil {
		t.Fatalf("initial status %s %v", status, err)
	}
	if err := s.Connect(context.Background()); err != nil {
		t.Fatal(err)
	}
	if status, err := s.Status(); status != StatusConnected || err != nil {
		t.Fatalf("status %s %v", status, err)
	}
	// Connecting again keeps the same handle.
	if err := s.Connect(context.Background()); err != nil {
		t.Fatal(err)
	}
	if err := s.Disconnect(); err != nil {
		t.Fatal(err)
	}
	if !dev.isClosed() {
		t.Error("device not closed on disconnect")
	}
	if status, _ := s.Status(); status != StatusDisconnected {
		t.Errorf("status %s after disconnect", status)
	}
}

func TestSessionConnectUnavailable(t *testing.T) {
	s := NewSession(func() (device.Device, error) {
		return nil, errors.New("no devices found")
	}, zerolog.Nop())

	err := s.Connect(context.Background())
	if !errors.Is(err, ErrDeviceUnavailable) {
		t.Fatalf("got %v, want ErrDeviceUnavailable", err)
	}
	status, lastErr := s.Status()
	if status != StatusDisconnected || !errors.Is(lastErr, ErrDeviceUnavailable) {
		t.Errorf("status %s, last error %v", status, lastErr)
	}
}

func TestSessionApplyTuningIdempotent(t *testing.T) {
	dev := newFakeDevice()
	s := NewSession(openerFor(dev), zerolog.Nop())

	if err := s.ApplyTuning(DefaultSettings()); !errors.Is(err, ErrNotConnected) {
		t.Fatalf("got %v, want ErrNotConnected", err)
	}
	if err := s.Connect(context.Background()); err != nil {
		t.Fatal(err)
	}

	settings := DefaultSettings()
	for i := 0; i < 3; i++ {
		if err := s.ApplyTuning(settings); err != nil {
			t.Fatal(err)
		}
	}
	if n := dev.tuneCount(); n != 1 {
		t.Errorf("device tuned %d times, want 1", n)
	}

	settings.GainMode = GainModeAuto
	if err := s.ApplyTuning(settings); err != nil {
		t.Fatal(err)
	}
	if n := dev.tuneCount(); n != 2 {
		t.Errorf("device tuned %d times, want 2", n)
	}
	if !dev.lastTuning().AutoGain {
		t.Error("auto gain mode not applied")
	}
}

func TestSessionReadTuned(t *testing.T) {
	dev := newFakeDevice()
	s := NewSession(openerFor(dev), zerolog.Nop())

	if _, err := s.ReadTuned(DefaultSettings(), 16); !errors.Is(err, ErrNotConnected) {
		t.Fatalf("got %v, want ErrNotConnected", err)
	}
	if err := s.Connect(context.Background()); err != nil {
		t.Fatal(err)
	}
	block, err := s.ReadTuned(DefaultSettings(), 1024)
	if err != nil {
		t.Fatal(err)
	}
	if len(block.Samples) != 1024 || block.Bytes != 2048 {
		t.Errorf("got %d samples, %d bytes", len(block.Samples), block.Bytes)
	}
	if block.SampleRateHz != 2400000 || block.CenterFreqHz != 101900000 {
		t.Errorf("block tagged %d S/s at %d Hz", block.SampleRateHz, block.CenterFreqHz)
	}
}

func TestSessionReadFailureDisconnects(t *testing.T) {
	dev := newFakeDevice()
	dev.failAfter = 1
	s := NewSession(openerFor(dev), zerolog.Nop())
	if err := s.Connect(context.Background()); err != nil {
		t.Fatal(err)
	}

	if _, err := s.ReadTuned(DefaultSettings(), 64); err != nil {
		t.Fatal(err)
	}
	_, err := s.ReadTuned(DefaultSettings(), 64)
	if !errors.Is(err, ErrDeviceIO) {
		t.Fatalf("got %v, want ErrDeviceIO", err)
	}
	if !dev.isClosed() {
		t.Error("failed device not closed")
	}
	status, lastErr := s.Status()
	if status != StatusDisconnected || !errors.Is(lastErr, ErrDeviceIO) {
		t.Errorf("status %s, last error %v", status, lastErr)
	}
	if _, err := s.ReadTuned(DefaultSettings(), 64); !errors.Is(err, ErrNotConnected) {
		t.Errorf("got %v after failure, want ErrNotConnected", err)
	}
}

func TestSessionDisconnectDuringRead(t *testing.T) {
	dev := newFakeDevice()
	dev.reading = make(chan struct{})
	dev.release = make(chan struct{})
	s := NewSession(openerFor(dev), zerolog.Nop())
	if err := s.Connect(context.Background()); err != nil {
		t.Fatal(err)
	}

	result := make(chan error, 1)
	go func() {
		_, err := s.ReadTuned(DefaultSettings(), 64)
		result <- err
	}()
	<-dev.reading

	disconnected := make(chan error, 1)
	go func() {
		disconnected <- s.Disconnect()
	}()

	for s.Connected() {
		time.Sleep(time.Millisecond)
	}
	if dev.isClosed() {
		t.Fatal("device closed during read")
	}

	// Disconnect waits for the read before closing the handle.
	close(dev.release)
	if err := <-result; !errors.Is(err, ErrNotConnected) {
		t.Errorf("read got %v, want ErrNotConnected", err)
	}
	if err := <-disconnected; err != nil {
		t.Fatal(err)
	}
	if !dev.isClosed() {
		t.Error("device not closed")
	}
}

func TestSessionReadTunedHoldsTuning(t *testing.T) {
	dev := newFakeDevice()
	dev.reading = make(chan struct{})
	dev.release = make(chan struct{})
	s := NewSession(openerFor(dev), zerolog.Nop())
	if err := s.Connect(context.Background()); err != nil {
		t.Fatal(err)
	}

	first := DefaultSettings()
	second := DefaultSettings()
	second.FrequencyHz = 200000000
	second.SampleRateHz = 1200000

	type readResult struct {
		block *SampleBlock
		err   error
	}
	result := make(chan readResult, 1)
	go func() {
		block, err := s.ReadTuned(first, 64)
		result <- readResult{block, err}
	}()
	<-dev.reading

	retuned := make(chan error, 1)
	go func() {
		retuned <- s.ApplyTuning(second)
	}()

	time.Sleep(20 * time.Millisecond)
	if n := dev.tuneCount(); n != 1 {
		t.Fatalf("device retuned during a read, %d tunings", n)
	}

	close(dev.release)
	res := <-result
	if res.err != nil {
		t.Fatal(res.err)
	}
	if res.block.CenterFreqHz != first.FrequencyHz || res.block.SampleRateHz != first.SampleRateHz {
		t.Errorf("block tagged %d S/s at %d Hz", res.block.SampleRateHz, res.block.CenterFreqHz)
	}
	if err := <-retuned; err != nil {
		t.Fatal(err)
	}
	if got := dev.lastTuning(); got.CenterFreq != second.FrequencyHz {
		t.Errorf("last tuning %+v", got)
	}
}

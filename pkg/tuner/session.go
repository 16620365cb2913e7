package tuner

import (
	"context"
	"fmt"
	"sync"

	"github.com/norasector/tuner/pkg/tuner/device"
	"github.com/norasector/tuner/pkg/util"
	"github.com/rs/zerolog"
)

const (
	StatusConnected    = "connected"
	StatusDisconnected = "disconnected"
)

// sessionState is one of disconnected, *connected or faulted.
type sessionState interface {
	status() string
}

type disconnected struct{}

func (disconnected) status() string { return StatusDisconnected }

type connected struct {
	dev   device.Device
	tuned *device.Tuning
	// closed is set under Session.mu once the session no longer owns dev.
	closed bool
}

func (*connected) status() string { return StatusConnected }

// faulted is a disconnected session that remembers why.
type faulted struct {
	err error
}

func (faulted) status() string { return StatusDisconnected }

// SampleBlock is one read from the device.
type SampleBlock struct {
	Samples      []complex64
	SampleRateHz int64
	CenterFreqHz int64
	// Bytes is the size of the block in the device's 8 bit IQ wire format.
	Bytes int
}

// Session owns at most one device handle. mu guards the state, ioMu
// serializes every call into the device. When both are needed ioMu is taken
// first.
type Session struct {
	open   device.Opener
	logger zerolog.Logger

	ioMu  sync.Mutex
	mu    sync.Mutex
	state sessionState
}

func NewSession(open device.Opener, logger zerolog.Logger) *Session {
	return &Session{
		open:   open,
		logger: logger,
		state:  disconnected{},
	}
}

// Connect opens the device. It is a no-op on a connected session.
func (s *Session) Connect(ctx context.Context) error {
	s.ioMu.Lock()
	defer s.ioMu.Unlock()

	s.mu.Lock()
	if _, ok := s.state.(*connected); ok {
		s.mu.Unlock()
		return nil
	}
	s.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return err
	}

	dev, err := s.open()
	if err != nil {
		err = fmt.Errorf("%w: %v", ErrDeviceUnavailable, err)
		s.mu.Lock()
		s.state = faulted{err: err}
		s.mu.Unlock()
		return err
	}

	s.mu.Lock()
	s.state = &connected{dev: dev}
	s.mu.Unlock()

	s.logger.Info().Str("device", dev.Name()).Msg("device connected")
	return nil
}

// Disconnect releases the device. Any read in progress completes first; the
// handle is closed by the time Disconnect returns.
func (s *Session) Disconnect() error {
	s.mu.Lock()
	conn, ok := s.state.(*connected)
	if ok {
		conn.closed = true
	}
	s.state = disconnected{}
	s.mu.Unlock()

	if !ok {
		return nil
	}

	s.ioMu.Lock()
	defer s.ioMu.Unlock()
	s.logger.Info().Str("device", conn.dev.Name()).Msg("device disconnected")
	return conn.dev.Close()
}

// Status returns the session status and the error that ended the last
// session, if any.
func (s *Session) Status() (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if f, ok := s.state.(faulted); ok {
		return f.status(), f.err
	}
	return s.state.status(), nil
}

func (s *Session) Connected() bool {
	status, _ := s.Status()
	return status == StatusConnected
}

// MaxSampleRate returns the device limit, or false when disconnected.
func (s *Session) MaxSampleRate() (int64, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	conn, ok := s.state.(*connected)
	if !ok {
		return 0, false
	}
	return conn.dev.MaxSampleRate(), true
}

// current returns the live connection. Callers hold ioMu.
func (s *Session) current() (*connected, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	conn, ok := s.state.(*connected)
	if !ok || conn.closed {
		return nil, ErrNotConnected
	}
	return conn, nil
}

func (s *Session) released(conn *connected) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return conn.closed
}

// fault ends the session after a device failure. Callers hold ioMu.
func (s *Session) fault(conn *connected, err error) {
	s.mu.Lock()
	if conn.closed {
		s.mu.Unlock()
		return
	}
	conn.closed = true
	s.state = faulted{err: err}
	s.mu.Unlock()

	s.logger.Error().Err(err).Str("device", conn.dev.Name()).Msg("device failed, disconnecting")
	if cerr := conn.dev.Close(); cerr != nil {
		s.logger.Warn().Err(cerr).Msg("error closing failed device")
	}
}

// ApplyTuning pushes settings to the device. Repeating the last tuning does
// not touch the hardware.
func (s *Session) ApplyTuning(settings Settings) error {
	s.ioMu.Lock()
	defer s.ioMu.Unlock()

	conn, err := s.current()
	if err != nil {
		return err
	}
	return s.tune(conn, settings)
}

// ReadTuned tunes to settings and blocks until n samples have been read. No
// other tuning can land between the two, so the block always belongs to
// settings. A device failure ends the session; a disconnect during the read
// yields ErrNotConnected.
func (s *Session) ReadTuned(settings Settings, n int) (*SampleBlock, error) {
	s.ioMu.Lock()
	defer s.ioMu.Unlock()

	conn, err := s.current()
	if err != nil {
		return nil, err
	}
	if err := s.tune(conn, settings); err != nil {
		return nil, err
	}
	return s.read(conn, n)
}

// tune and read are called with ioMu held.
func (s *Session) tune(conn *connected, settings Settings) error {
	t := settings.Tuning()
	if conn.tuned != nil && *conn.tuned == t {
		return nil
	}

	if err := conn.dev.Tune(t); err != nil {
		err = fmt.Errorf("%w: tune %s: %v", ErrDeviceIO, util.MHzToString(t.CenterFreq), err)
		s.fault(conn, err)
		return err
	}
	conn.tuned = &t

	ev := s.logger.Debug().
		Str("frequency", util.MHzToString(t.CenterFreq)).
		Str("sample_rate", util.MHzToString(t.SampleRate))
	if t.AutoGain {
		ev = ev.Str("gain", "auto")
	} else {
		ev = ev.Int("gain", t.Gain)
	}
	ev.Msg("tuned")

	return nil
}

func (s *Session) read(conn *connected, n int) (*SampleBlock, error) {
	buf := make([]complex64, n)
	read, err := conn.dev.ReadSamples(buf)
	if s.released(conn) {
		return nil, ErrNotConnected
	}
	if err != nil {
		err = fmt.Errorf("%w: read: %v", ErrDeviceIO, err)
		s.fault(conn, err)
		return nil, err
	}

	block := &SampleBlock{
		Samples: buf[:read],
		Bytes:   read * 2,
	}
	if conn.tuned != nil {
		block.SampleRateHz = conn.tuned.SampleRate
		block.CenterFreqHz = conn.tuned.CenterFreq
	}
	return block, nil
}

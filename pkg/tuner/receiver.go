package tuner

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/influxdata/influxdb-client-go/api"
	"github.com/norasector/tuner/pkg/dsp/spectrum"
	"github.com/norasector/tuner/pkg/tuner/device"
	"github.com/norasector/tuner/pkg/util"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

type Options struct {
	// StreamBlockSize is the number of samples read per streaming cycle.
	StreamBlockSize int
	// ScanBlockSize is the number of samples read by a Scan.
	ScanBlockSize int
	// Pace is the delay between streaming cycles.
	Pace time.Duration
	// StreamBuffer is the number of frames queued for a slow consumer
	// before frames are dropped.
	StreamBuffer int
}

func DefaultOptions() Options {
	return Options{
		StreamBlockSize: 128 * 1024,
		ScanBlockSize:   256 * 1024,
		Pace:            20 * time.Millisecond,
		StreamBuffer:    4,
	}
}

// Receiver is the application context: one device session, one settings
// store and at most one streaming loop.
type Receiver struct {
	session  *Session
	settings *SettingsStore
	opts     Options
	logger   zerolog.Logger
	writeAPI api.WriteAPI
	metrics  *Metrics

	scanMu sync.Mutex

	mu       sync.Mutex
	lastScan string
	stream   *activeStream
}

type ReceiverOption func(r *Receiver) error

func WithLogger(logger zerolog.Logger) ReceiverOption {
	return func(r *Receiver) error {
		r.logger = logger
		return nil
	}
}

func WithInfluxDB(writeAPI api.WriteAPI) ReceiverOption {
	return func(r *Receiver) error {
		r.writeAPI = writeAPI
		return nil
	}
}

// WithMetrics registers the receiver's Prometheus metrics on reg.
func WithMetrics(reg prometheus.Registerer) ReceiverOption {
	return func(r *Receiver) error {
		r.metrics = NewMetrics(reg)
		return nil
	}
}

func NewReceiver(open device.Opener, initial Settings, options Options, opts ...ReceiverOption) (*Receiver, error) {
	if open == nil {
		return nil, errors.New("no device opener")
	}
	if options.StreamBlockSize <= 0 || options.ScanBlockSize <= 0 || options.StreamBuffer <= 0 || options.Pace < 0 {
		return nil, fmt.Errorf("must specify stream block size, scan block size and stream buffer")
	}

	store, err := NewSettingsStore(initial)
	if err != nil {
		return nil, err
	}

	r := &Receiver{
		settings: store,
		opts:     options,
		logger:   log.Logger,
		writeAPI: &util.MockWriteAPI{}, // overwritten with option
	}

	for _, opt := range opts {
		if err := opt(r); err != nil {
			return nil, err
		}
	}

	if r.metrics == nil {
		r.metrics = NewMetrics(prometheus.NewRegistry())
	}
	r.session = NewSession(open, r.logger)

	return r, nil
}

// Connect opens the device and tunes it to the current settings. Connecting
// an already connected receiver does nothing.
func (r *Receiver) Connect(ctx context.Context) error {
	if r.session.Connected() {
		return nil
	}
	if err := r.session.Connect(ctx); err != nil {
		r.logger.Error().Err(err).Msg("connect failed")
		return err
	}

	s := r.settings.Snapshot()
	if maxRate, ok := r.session.MaxSampleRate(); ok && s.SampleRateHz > maxRate {
		r.logger.Warn().
			Str("sample_rate", util.MHzToString(s.SampleRateHz)).
			Str("max_sample_rate", util.MHzToString(maxRate)).
			Msg("sample rate exceeds device limit")
	}
	return r.session.ApplyTuning(s)
}

// Disconnect releases the device. A running stream stops at its next read.
func (r *Receiver) Disconnect() error {
	return r.session.Disconnect()
}

func (r *Receiver) Settings() Settings {
	return r.settings.Snapshot()
}

// SetSettings commits the result of fn as the new settings and, when a device
// is connected, tunes it right away. Rejected settings leave the previous
// ones in place.
func (r *Receiver) SetSettings(fn func(*Settings) error) (Settings, error) {
	next, err := r.settings.Update(func(s *Settings) error {
		if err := fn(s); err != nil {
			return err
		}
		if maxRate, ok := r.session.MaxSampleRate(); ok && s.SampleRateHz > maxRate {
			return fmt.Errorf("%w: sample rate %s exceeds device limit %s",
				ErrInvalidSettings, util.MHzToString(s.SampleRateHz), util.MHzToString(maxRate))
		}
		return nil
	})
	if err != nil {
		return next, err
	}

	r.logger.Info().
		Str("frequency", util.MHzToString(next.FrequencyHz)).
		Str("sample_rate", util.MHzToString(next.SampleRateHz)).
		Str("mode", string(next.Mode)).
		Float64("bandwidth", next.BandwidthHz).
		Msg("settings updated")

	if err := r.session.ApplyTuning(next); err != nil && !errors.Is(err, ErrNotConnected) {
		return next, err
	}
	return next, nil
}

type Status struct {
	State     string
	Settings  Settings
	LastError error
	LastScan  string
}

func (s Status) Connected() bool {
	return s.State == StatusConnected
}

func (r *Receiver) Status() Status {
	state, lastErr := r.session.Status()
	r.mu.Lock()
	lastScan := r.lastScan
	r.mu.Unlock()
	return Status{
		State:     state,
		Settings:  r.settings.Snapshot(),
		LastError: lastErr,
		LastScan:  lastScan,
	}
}

type ScanResult struct {
	Result   string
	Frame    *spectrum.Frame
	Settings Settings
}

// Scan reads one block at the current settings and summarizes its spectrum.
// The frame bandwidth is the sample rate. Only one scan runs at a time.
func (r *Receiver) Scan(ctx context.Context) (*ScanResult, error) {
	if !r.scanMu.TryLock() {
		r.metrics.scans.WithLabelValues("busy").Inc()
		return nil, ErrScanInProgress
	}
	defer r.scanMu.Unlock()

	res, err := r.scan(ctx)
	if err != nil {
		r.metrics.scans.WithLabelValues("error").Inc()
		r.logger.Warn().Err(err).Msg("scan failed")
		return nil, err
	}
	r.metrics.scans.WithLabelValues("ok").Inc()
	return res, nil
}

func (r *Receiver) scan(ctx context.Context) (*ScanResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	start := time.Now()
	settings := r.settings.Snapshot()
	block, err := r.session.ReadTuned(settings, r.opts.ScanBlockSize)
	if err != nil {
		return nil, err
	}

	// A scan covers the whole span, not just the demodulator passband.
	frame := spectrum.Compute(block.Samples, float64(settings.SampleRateHz))
	result := fmt.Sprintf("Peak %.1f dB at %.2f MHz", frame.PeakDB, util.HzToMHz(settings.FrequencyHz))

	r.mu.Lock()
	r.lastScan = result
	r.mu.Unlock()

	r.metrics.noiseFloor.Set(frame.NoiseFloorDB)
	r.metrics.peak.Set(frame.PeakDB)

	r.logger.Info().
		Str("frequency", util.MHzToString(settings.FrequencyHz)).
		Float64("noise_floor", frame.NoiseFloorDB).
		Float64("peak", frame.PeakDB).
		Dur("duration", time.Since(start)).
		Msg("scan complete")

	return &ScanResult{
		Result:   result,
		Frame:    frame,
		Settings: settings,
	}, nil
}

package tuner

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	influxdb2 "github.com/influxdata/influxdb-client-go"
	"github.com/norasector/tuner/pkg/dsp/processor"
	"github.com/norasector/tuner/pkg/dsp/spectrum"
	"github.com/norasector/tuner/pkg/util"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
)

const (
	MessageStreamStarted    = "Streaming started."
	MessageStreamStopped    = "Streaming stopped."
	MessageDeviceDisconnect = "Device disconnected."
)

// Sink receives the output of a streaming loop. Spectrum, when enabled, is
// always delivered before the audio of the same cycle.
type Sink interface {
	Status(message string) error
	Spectrum(frame *spectrum.Frame) error
	Audio(pcm []byte) error
}

type StreamOptions struct {
	// Spectrum enables a spectrum frame per cycle.
	Spectrum bool
}

// Frame is the output of one streaming cycle.
type Frame struct {
	Settings Settings
	Spectrum *spectrum.Frame
	Audio    []byte
}

type activeStream struct {
	id     string
	cancel context.CancelFunc
	done   chan struct{}
}

var errSink = errors.New("sink write failed")

// claimStream makes the caller the only streaming loop, stopping and waiting
// for any loop that was already running.
func (r *Receiver) claimStream(ctx context.Context) (context.Context, *activeStream, func()) {
	ctx, cancel := context.WithCancel(ctx)
	s := &activeStream{
		id:     uuid.New().String(),
		cancel: cancel,
		done:   make(chan struct{}),
	}

	r.mu.Lock()
	prev := r.stream
	r.stream = s
	r.mu.Unlock()

	if prev != nil {
		r.logger.Info().Str("stream_id", prev.id).Msg("stream preempted")
		prev.cancel()
		<-prev.done
	}

	release := func() {
		cancel()
		r.mu.Lock()
		if r.stream == s {
			r.stream = nil
		}
		r.mu.Unlock()
		close(s.done)
	}
	return ctx, s, release
}

// Stream runs the streaming loop into sink until ctx is cancelled, the
// device is disconnected, the device fails or the sink stops accepting
// writes. A final status message is sent unless the sink itself failed.
// Only a device failure or a sink failure is returned as an error.
func (r *Receiver) Stream(ctx context.Context, sink Sink, opts StreamOptions) error {
	if !r.session.Connected() {
		_ = sink.Status(MessageDeviceDisconnect)
		return ErrNotConnected
	}

	ctx, s, release := r.claimStream(ctx)
	defer release()

	logger := r.logger.With().Str("stream_id", s.id).Logger()
	logger.Info().Bool("spectrum", opts.Spectrum).Msg("stream started")

	r.metrics.streams.Inc()
	defer r.metrics.streams.Dec()

	if err := sink.Status(MessageStreamStarted); err != nil {
		return fmt.Errorf("%w: %v", errSink, err)
	}

	frames := make(chan *Frame, r.opts.StreamBuffer)
	eg, egCtx := errgroup.WithContext(ctx)

	eg.Go(func() error {
		defer close(frames)
		return r.produce(egCtx, frames, opts, logger)
	})

	eg.Go(func() error {
		for f := range frames {
			if f.Spectrum != nil {
				if err := sink.Spectrum(f.Spectrum); err != nil {
					return fmt.Errorf("%w: %v", errSink, err)
				}
			}
			if err := sink.Audio(f.Audio); err != nil {
				return fmt.Errorf("%w: %v", errSink, err)
			}
		}
		return nil
	})

	err := eg.Wait()

	switch {
	case errors.Is(err, errSink):
		logger.Info().Err(err).Msg("stream client gone")
		return err
	case errors.Is(err, ErrNotConnected):
		logger.Info().Msg("stream stopped, device disconnected")
		_ = sink.Status(MessageDeviceDisconnect)
		return nil
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		logger.Info().Msg("stream stopped")
		_ = sink.Status(MessageStreamStopped)
		return nil
	case err != nil:
		logger.Error().Err(err).Msg("stream failed")
		_ = sink.Status(err.Error())
		return err
	}
	return nil
}

// produce reads, analyzes and conditions one block per cycle. Settings are
// snapshotted once at the start of each cycle. Frames are dropped when the
// consumer is behind.
func (r *Receiver) produce(ctx context.Context, out chan<- *Frame, opts StreamOptions, logger zerolog.Logger) error {
	analyzer := spectrum.NewAnalyzer(spectrum.FFTSize)

	var (
		chain   *processor.Processor
		key     chainKey
		dropped int
	)

	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		start := time.Now()
		settings := r.settings.Snapshot()

		block, err := r.session.ReadTuned(settings, r.opts.StreamBlockSize)
		if err != nil {
			return err
		}

		metrics := map[string]interface{}{
			"sample_length": len(block.Samples),
			"sample_bytes":  block.Bytes,
		}

		frame := &Frame{Settings: settings}
		if opts.Spectrum {
			metrics["spectrum_duration"] = util.TimeOperationMicroseconds(func() {
				frame.Spectrum = analyzer.Compute(block.Samples, settings.SpectrumBandwidth())
			})
			r.metrics.noiseFloor.Set(frame.Spectrum.NoiseFloorDB)
			r.metrics.peak.Set(frame.Spectrum.PeakDB)
		}

		next := chainKey{mode: settings.Mode, sampleRate: settings.SampleRateHz, bandwidthHz: settings.BandwidthHz}
		if chain == nil || next != key {
			if chain, err = newAudioChain(next); err != nil {
				return err
			}
			key = next
			logger.Debug().
				Str("mode", string(settings.Mode)).
				Str("sample_rate", util.MHzToString(settings.SampleRateHz)).
				Float64("bandwidth", settings.BandwidthHz).
				Msg("audio chain rebuilt")
		}

		if frame.Audio, err = chain.ProcessComplexToBinary(block.Samples, metrics); err != nil {
			return err
		}

		skipped := 0
		select {
		case out <- frame:
		default:
			skipped = 1
			dropped++
			r.metrics.droppedFrames.Inc()
			if dropped%100 == 1 {
				logger.Warn().Int("dropped", dropped).Msg("stream consumer lagging, dropping frames")
			}
		}

		metrics["skipped_frames"] = skipped
		metrics["pcm_bytes"] = len(frame.Audio)
		metrics["duration"] = time.Since(start).Microseconds()

		r.metrics.cycles.Inc()
		r.metrics.cycleDuration.Observe(time.Since(start).Seconds())

		go r.writeAPI.WritePoint(influxdb2.NewPoint("tuner.stream.cycle",
			map[string]string{
				"frequency": util.MHzToString(settings.FrequencyHz),
				"mode":      string(settings.Mode),
			},
			metrics, start))

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(r.opts.Pace):
		}
	}
}

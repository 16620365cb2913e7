package output

import (
	"io"
	"sync"

	"github.com/norasector/tuner/pkg/dsp/audio"
	"github.com/norasector/tuner/pkg/dsp/spectrum"
)

type flusher interface {
	Flush()
}

// WAVSink writes an open ended WAV stream: the header goes out with the first
// message, followed by raw PCM for every audio frame. Status and spectrum
// messages have no representation in the file.
type WAVSink struct {
	dest io.Writer

	mu            sync.Mutex
	headerWritten bool
	bytesWritten  int64
}

func NewWAVSink(dest io.Writer) *WAVSink {
	return &WAVSink{dest: dest}
}

func (s *WAVSink) writeHeader() error {
	if s.headerWritten {
		return nil
	}
	if err := audio.WriteStreamingWAVHeader(s.dest); err != nil {
		return err
	}
	s.headerWritten = true
	s.flush()
	return nil
}

func (s *WAVSink) flush() {
	if f, ok := s.dest.(flusher); ok {
		f.Flush()
	}
}

func (s *WAVSink) Status(message string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.writeHeader()
}

func (s *WAVSink) Spectrum(frame *spectrum.Frame) error {
	return nil
}

func (s *WAVSink) Audio(pcm []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.writeHeader(); err != nil {
		return err
	}
	n, err := s.dest.Write(pcm)
	s.bytesWritten += int64(n)
	if err != nil {
		return err
	}
	s.flush()
	return nil
}

// BytesWritten is the number of PCM bytes written after the header.
func (s *WAVSink) BytesWritten() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.bytesWritten
}

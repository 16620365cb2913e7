// Package output delivers streaming loop frames to clients.
package output

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/norasector/tuner/pkg/dsp/spectrum"
)

const writeTimeout = 10 * time.Second

var Upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 64 * 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

type StatusMessage struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

type SpectrumMessage struct {
	Type       string    `json:"type"`
	Data       []float64 `json:"data"`
	NoiseFloor float64   `json:"noise_floor"`
	SignalPeak float64   `json:"signal_peak"`
	Bandwidth  float64   `json:"bandwidth"`
}

// WebsocketSink writes status and spectrum messages as JSON text frames and
// audio as binary frames of little endian PCM16.
type WebsocketSink struct {
	conn    *websocket.Conn
	writeMu sync.Mutex
}

func NewWebsocketSink(conn *websocket.Conn) *WebsocketSink {
	return &WebsocketSink{conn: conn}
}

func (s *WebsocketSink) write(messageType int, data []byte) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	s.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	return s.conn.WriteMessage(messageType, data)
}

func (s *WebsocketSink) writeJSON(v interface{}) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return s.write(websocket.TextMessage, data)
}

func (s *WebsocketSink) Status(message string) error {
	return s.writeJSON(StatusMessage{Type: "status", Message: message})
}

func (s *WebsocketSink) Spectrum(frame *spectrum.Frame) error {
	return s.writeJSON(SpectrumMessage{
		Type:       "fft",
		Data:       frame.Power,
		NoiseFloor: frame.NoiseFloorDB,
		SignalPeak: frame.PeakDB,
		Bandwidth:  frame.BandwidthHz,
	})
}

func (s *WebsocketSink) Audio(pcm []byte) error {
	return s.write(websocket.BinaryMessage, pcm)
}

// WatchClose returns a context that is cancelled once the client closes the
// connection. Incoming messages are discarded.
func (s *WebsocketSink) WatchClose(ctx context.Context) context.Context {
	ctx, cancel := context.WithCancel(ctx)
	go func() {
		defer cancel()
		for {
			if _, _, err := s.conn.ReadMessage(); err != nil {
				return
			}
		}
	}()
	return ctx
}

// Close sends a normal closure and closes the connection.
func (s *WebsocketSink) Close() error {
	s.writeMu.Lock()
	_ = s.conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(time.Second))
	s.writeMu.Unlock()
	return s.conn.Close()
}

// Package api is the HTTP control plane: settings, connection, scans and the
// audio and spectrum streams.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/julienschmidt/httprouter"
	"github.com/norasector/tuner/pkg/dsp/viz"
	"github.com/norasector/tuner/pkg/tuner"
	"github.com/norasector/tuner/pkg/tuner/output"
	"github.com/norasector/tuner/pkg/util"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

type Server struct {
	receiver  *tuner.Receiver
	router    *httprouter.Router
	srv       *http.Server
	logger    zerolog.Logger
	staticDir string
	gatherer  prometheus.Gatherer
}

type ServerOption func(s *Server)

func WithLogger(logger zerolog.Logger) ServerOption {
	return func(s *Server) {
		s.logger = logger
	}
}

// WithStaticDir serves the web UI from dir for every path without a route.
func WithStaticDir(dir string) ServerOption {
	return func(s *Server) {
		s.staticDir = dir
	}
}

// WithGatherer exposes g on /metrics.
func WithGatherer(g prometheus.Gatherer) ServerOption {
	return func(s *Server) {
		s.gatherer = g
	}
}

func NewServer(addr string, receiver *tuner.Receiver, opts ...ServerOption) *Server {
	s := &Server{
		receiver: receiver,
		logger:   log.Logger,
	}
	for _, opt := range opts {
		opt(s)
	}

	router := httprouter.New()
	router.GET("/api/status", s.handleStatus)
	router.POST("/api/settings", s.handleSettings)
	router.POST("/api/connect", s.handleConnect)
	router.POST("/api/disconnect", s.handleDisconnect)
	router.POST("/api/scan", s.handleScan)
	router.GET("/api/scan.png", s.handleScanPNG)
	router.GET("/api/audio.wav", s.handleAudioWAV)
	router.GET("/ws/stream", s.handleStream)
	if s.gatherer != nil {
		router.Handler(http.MethodGet, "/metrics", promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{}))
	}
	if s.staticDir != "" {
		router.NotFound = http.FileServer(http.Dir(s.staticDir))
	}

	s.router = router
	s.srv = &http.Server{Addr: addr, Handler: router}
	return s
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// Run serves until ctx is cancelled.
func (s *Server) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		s.logger.Info().Str("addr", s.srv.Addr).Msg("control plane listening")
		errCh <- s.srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := s.srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	return ctx.Err()
}

type settingsJSON struct {
	Frequency  float64 `json:"frequency"`
	SampleRate float64 `json:"sample_rate"`
	Gain       *int    `json:"gain"`
	GainMode   string  `json:"gain_mode"`
	Mode       string  `json:"mode"`
	Bandwidth  float64 `json:"bandwidth"`
}

func toSettingsJSON(s tuner.Settings) settingsJSON {
	return settingsJSON{
		Frequency:  util.HzToMHz(s.FrequencyHz),
		SampleRate: util.HzToMHz(s.SampleRateHz),
		Gain:       s.Gain,
		GainMode:   string(s.GainMode),
		Mode:       string(s.Mode),
		Bandwidth:  s.BandwidthHz,
	}
}

// optionalInt tells an absent field apart from an explicit null.
type optionalInt struct {
	Set   bool
	Value *int
}

func (o *optionalInt) UnmarshalJSON(data []byte) error {
	o.Set = true
	return json.Unmarshal(data, &o.Value)
}

// settingsRequest is a partial update. Absent fields keep their value.
type settingsRequest struct {
	Frequency  *float64    `json:"frequency"`
	SampleRate *float64    `json:"sample_rate"`
	Gain       optionalInt `json:"gain"`
	GainMode   *string     `json:"gain_mode"`
	Mode       *string     `json:"mode"`
	Bandwidth  *float64    `json:"bandwidth"`
}

func (req settingsRequest) apply(s *tuner.Settings) error {
	if req.Frequency != nil {
		s.FrequencyHz = util.MHzToHz(*req.Frequency)
	}
	if req.SampleRate != nil {
		s.SampleRateHz = util.MHzToHz(*req.SampleRate)
	}
	if req.Gain.Set {
		s.Gain = req.Gain.Value
	}
	if req.GainMode != nil {
		s.GainMode = tuner.GainMode(*req.GainMode)
	}
	if req.Mode != nil {
		s.Mode = tuner.Mode(*req.Mode)
	}
	if req.Bandwidth != nil {
		s.BandwidthHz = *req.Bandwidth
	}
	return nil
}

func errorString(err error) *string {
	if err == nil {
		return nil
	}
	msg := err.Error()
	return &msg
}

func statusCode(err error) int {
	switch {
	case errors.Is(err, tuner.ErrInvalidSettings):
		return http.StatusBadRequest
	case errors.Is(err, tuner.ErrNotConnected):
		return http.StatusConflict
	case errors.Is(err, tuner.ErrScanInProgress):
		return http.StatusTooManyRequests
	case errors.Is(err, tuner.ErrDeviceUnavailable):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func (s *Server) writeJSON(w http.ResponseWriter, code int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Warn().Err(err).Msg("error writing response")
	}
}

func (s *Server) writeError(w http.ResponseWriter, err error) {
	s.writeJSON(w, statusCode(err), map[string]string{"error": err.Error()})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	st := s.receiver.Status()
	var lastScan *string
	if st.LastScan != "" {
		lastScan = &st.LastScan
	}
	s.writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":     st.State,
		"settings":   toSettingsJSON(st.Settings),
		"last_scan":  lastScan,
		"last_error": errorString(st.LastError),
	})
}

func (s *Server) handleSettings(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	var req settingsRequest
	// An empty body is an update that changes nothing.
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		s.writeError(w, fmt.Errorf("%w: %v", tuner.ErrInvalidSettings, err))
		return
	}

	next, err := s.receiver.SetSettings(req.apply)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]interface{}{
		"ok":       true,
		"settings": toSettingsJSON(next),
	})
}

// handleConnect connects the device. With ?toggle, as sent by the web UI's
// single connect button, a connected device is disconnected instead.
func (s *Server) handleConnect(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	if r.URL.Query().Has("toggle") && s.receiver.Status().Connected() {
		s.handleDisconnect(w, r, nil)
		return
	}

	err := s.receiver.Connect(r.Context())
	st := s.receiver.Status()
	code := http.StatusOK
	if err != nil {
		code = statusCode(err)
		if st.LastError == nil {
			st.LastError = err
		}
	}
	s.writeJSON(w, code, map[string]interface{}{
		"status": st.State,
		"error":  errorString(st.LastError),
	})
}

func (s *Server) handleDisconnect(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	if err := s.receiver.Disconnect(); err != nil {
		s.logger.Warn().Err(err).Msg("error closing device")
	}
	s.writeJSON(w, http.StatusOK, map[string]interface{}{
		"status": s.receiver.Status().State,
	})
}

func (s *Server) handleScan(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	res, err := s.receiver.Scan(r.Context())
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":      "scanned",
		"result":      res.Result,
		"noise_floor": res.Frame.NoiseFloorDB,
		"signal_peak": res.Frame.PeakDB,
		"bandwidth":   res.Frame.BandwidthHz,
	})
}

func (s *Server) handleScanPNG(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	res, err := s.receiver.Scan(r.Context())
	if err != nil {
		s.writeError(w, err)
		return
	}

	img, err := viz.SpectrumPlot{
		Title:      res.Result,
		CenterFreq: res.Settings.FrequencyHz,
		SampleRate: res.Settings.SampleRateHz,
	}.RenderPNG(res.Frame)
	if err != nil {
		s.writeError(w, err)
		return
	}

	w.Header().Set("Content-Type", "image/png")
	w.Header().Set("Cache-Control", "no-store")
	w.Write(img)
}

func (s *Server) handleAudioWAV(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	if !s.receiver.Status().Connected() {
		s.writeError(w, tuner.ErrNotConnected)
		return
	}

	w.Header().Set("Content-Type", "audio/wav")
	w.Header().Set("Cache-Control", "no-store")

	sink := output.NewWAVSink(w)
	err := s.receiver.Stream(r.Context(), sink, tuner.StreamOptions{})
	s.logger.Info().Err(err).Int64("pcm_bytes", sink.BytesWritten()).Msg("wav download finished")
}

func (s *Server) handleStream(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	conn, err := output.Upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn().Err(err).Msg("websocket upgrade failed")
		return
	}

	sink := output.NewWebsocketSink(conn)
	defer sink.Close()

	ctx := sink.WatchClose(r.Context())
	if err := s.receiver.Stream(ctx, sink, tuner.StreamOptions{Spectrum: true}); err != nil {
		s.logger.Info().Err(err).Msg("stream ended")
	}
}

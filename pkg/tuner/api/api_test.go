package api

import (
	"bytes"
	"encoding/json"
	"io"
	"math"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"reflect"
	"regexp"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/norasector/tuner/pkg/tuner"
	"github.com/norasector/tuner/pkg/tuner/device/file"
	"github.com/norasector/tuner/pkg/tuner/output"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
)

// writeTone writes an 8 bit unsigned IQ capture holding a single tone.
func writeTone(t *testing.T, samples int) string {
	t.Helper()
	data := make([]byte, samples*2)
	for i := 0; i < samples; i++ {
		phase := 2 * math.Pi * 0.1 * float64(i)
		data[2*i] = byte(127.5 + 100*math.Cos(phase))
		data[2*i+1] = byte(127.5 + 100*math.Sin(phase))
	}
	path := filepath.Join(t.TempDir(), "tone.cu8")
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

type testEnv struct {
	srv      *httptest.Server
	receiver *tuner.Receiver
}

func newTestEnv(t *testing.T, capture string) *testEnv {
	t.Helper()

	opts := tuner.Options{
		StreamBlockSize: 8192,
		ScanBlockSize:   16384,
		Pace:            5 * time.Millisecond,
		StreamBuffer:    4,
	}
	reg := prometheus.NewRegistry()
	receiver, err := tuner.NewReceiver(
		file.NewOpener(capture, file.Options{Format: file.FormatCU8, Loop: true}),
		tuner.DefaultSettings(), opts,
		tuner.WithLogger(zerolog.Nop()),
		tuner.WithMetrics(reg))
	if err != nil {
		t.Fatal(err)
	}

	static := t.TempDir()
	if err := os.WriteFile(filepath.Join(static, "index.html"), []byte("<html>tuner</html>"), 0o644); err != nil {
		t.Fatal(err)
	}

	s := NewServer("", receiver,
		WithLogger(zerolog.Nop()),
		WithStaticDir(static),
		WithGatherer(reg))
	srv := httptest.NewServer(s)
	t.Cleanup(func() {
		receiver.Disconnect()
		srv.Close()
	})
	return &testEnv{srv: srv, receiver: receiver}
}

func (e *testEnv) do(t *testing.T, method, path, body string) (int, map[string]interface{}) {
	t.Helper()
	req, err := http.NewRequest(method, e.srv.URL+path, strings.NewReader(body))
	if err != nil {
		t.Fatal(err)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()

	var out map[string]interface{}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		t.Fatalf("%s %s: %v", method, path, err)
	}
	return resp.StatusCode, out
}

func TestStatus(t *testing.T) {
	env := newTestEnv(t, writeTone(t, 65536))

	code, body := env.do(t, http.MethodGet, "/api/status", "")
	if code != http.StatusOK {
		t.Fatalf("status code %d", code)
	}
	if body["status"] != "disconnected" || body["last_scan"] != nil || body["last_error"] != nil {
		t.Errorf("got %v", body)
	}
	settings := body["settings"].(map[string]interface{})
	if settings["frequency"] != 101.9 || settings["sample_rate"] != 2.4 || settings["gain"] != 28.0 ||
		settings["mode"] != "FM" || settings["gain_mode"] != "manual" || settings["bandwidth"] != 25000.0 {
		t.Errorf("settings %v", settings)
	}
}

func TestConnectAndDisconnect(t *testing.T) {
	env := newTestEnv(t, writeTone(t, 65536))

	code, body := env.do(t, http.MethodPost, "/api/connect", "")
	if code != http.StatusOK || body["status"] != "connected" || body["error"] != nil {
		t.Fatalf("connect %d %v", code, body)
	}
	code, body = env.do(t, http.MethodPost, "/api/connect", "")
	if code != http.StatusOK || body["status"] != "connected" {
		t.Fatalf("second connect %d %v", code, body)
	}
	code, body = env.do(t, http.MethodPost, "/api/disconnect", "")
	if code != http.StatusOK || body["status"] != "disconnected" {
		t.Fatalf("disconnect %d %v", code, body)
	}
}

func TestConnectToggle(t *testing.T) {
	env := newTestEnv(t, writeTone(t, 65536))

	for i, want := range []string{"connected", "disconnected", "connected"} {
		code, body := env.do(t, http.MethodPost, "/api/connect?toggle", "")
		if code != http.StatusOK || body["status"] != want {
			t.Fatalf("toggle %d: %d %v, want %s", i, code, body, want)
		}
	}
	if !env.receiver.Status().Connected() {
		t.Error("receiver not connected after third toggle")
	}
}

func TestConnectUnavailable(t *testing.T) {
	env := newTestEnv(t, filepath.Join(t.TempDir(), "missing.cu8"))

	code, body := env.do(t, http.MethodPost, "/api/connect", "")
	if code != http.StatusServiceUnavailable || body["status"] != "disconnected" {
		t.Fatalf("connect %d %v", code, body)
	}
	if msg, _ := body["error"].(string); !strings.HasPrefix(msg, "device unavailable") {
		t.Errorf("error %q", msg)
	}

	_, status := env.do(t, http.MethodGet, "/api/status", "")
	if status["last_error"] == nil {
		t.Error("last_error not reported")
	}
}

func TestSettingsPartialUpdate(t *testing.T) {
	env := newTestEnv(t, writeTone(t, 65536))

	code, body := env.do(t, http.MethodPost, "/api/settings", `{"frequency": 100.5, "mode": "AM"}`)
	if code != http.StatusOK || body["ok"] != true {
		t.Fatalf("settings %d %v", code, body)
	}
	s := env.receiver.Settings()
	if s.FrequencyHz != 100500000 || s.Mode != tuner.ModeAM || s.SampleRateHz != 2400000 || *s.Gain != 28 {
		t.Errorf("settings %+v", s)
	}

	code, _ = env.do(t, http.MethodPost, "/api/settings", `{"gain": null, "gain_mode": "auto"}`)
	if code != http.StatusOK {
		t.Fatalf("settings code %d", code)
	}
	s = env.receiver.Settings()
	if s.Gain != nil || s.GainMode != tuner.GainModeAuto {
		t.Errorf("gain %v %s", s.Gain, s.GainMode)
	}
}

func TestSettingsEmptyBody(t *testing.T) {
	env := newTestEnv(t, writeTone(t, 65536))

	code, body := env.do(t, http.MethodPost, "/api/settings", "")
	if code != http.StatusOK || body["ok"] != true {
		t.Fatalf("settings %d %v", code, body)
	}
	if s := env.receiver.Settings(); !reflect.DeepEqual(s, tuner.DefaultSettings()) {
		t.Errorf("settings changed to %+v", s)
	}
}

func TestSettingsRejected(t *testing.T) {
	env := newTestEnv(t, writeTone(t, 65536))
	_, before := env.do(t, http.MethodGet, "/api/status", "")

	tests := []struct {
		name string
		body string
	}{
		{"above nyquist", `{"frequency": 90.1, "bandwidth": 1300000}`},
		{"unknown mode", `{"mode": "CW"}`},
		{"malformed", `{"frequency": "fast"}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			code, body := env.do(t, http.MethodPost, "/api/settings", tt.body)
			if code != http.StatusBadRequest || body["error"] == nil {
				t.Errorf("got %d %v", code, body)
			}
			_, after := env.do(t, http.MethodGet, "/api/status", "")
			a, _ := json.Marshal(after["settings"])
			b, _ := json.Marshal(before["settings"])
			if !bytes.Equal(a, b) {
				t.Errorf("settings changed from %s to %s", b, a)
			}
		})
	}
}

func TestScan(t *testing.T) {
	env := newTestEnv(t, writeTone(t, 65536))

	code, body := env.do(t, http.MethodPost, "/api/scan", "")
	if code != http.StatusConflict || body["error"] == nil {
		t.Fatalf("scan while disconnected %d %v", code, body)
	}

	env.do(t, http.MethodPost, "/api/connect", "")
	env.do(t, http.MethodPost, "/api/settings", `{"frequency": 100.5, "sample_rate": 2.4, "mode": "FM"}`)

	code, body = env.do(t, http.MethodPost, "/api/scan", "")
	if code != http.StatusOK || body["status"] != "scanned" {
		t.Fatalf("scan %d %v", code, body)
	}
	result, _ := body["result"].(string)
	if !regexp.MustCompile(`^Peak -?\d+\.\d dB at 100\.50 MHz$`).MatchString(result) {
		t.Errorf("result %q", result)
	}
	if body["bandwidth"] != 2400000.0 {
		t.Errorf("bandwidth %v", body["bandwidth"])
	}
	if body["signal_peak"].(float64) < body["noise_floor"].(float64) {
		t.Errorf("peak below noise floor: %v", body)
	}

	_, status := env.do(t, http.MethodGet, "/api/status", "")
	if status["last_scan"] != result {
		t.Errorf("last_scan %v", status["last_scan"])
	}

	resp, err := http.Get(env.srv.URL + "/metrics")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	metrics, _ := io.ReadAll(resp.Body)
	if !strings.Contains(string(metrics), `tuner_scans_total{result="ok"} 1`) {
		t.Errorf("scan metric missing from\n%s", metrics)
	}
}

func TestScanPNG(t *testing.T) {
	env := newTestEnv(t, writeTone(t, 65536))
	env.do(t, http.MethodPost, "/api/connect", "")

	resp, err := http.Get(env.srv.URL + "/api/scan.png")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	img, _ := io.ReadAll(resp.Body)
	if resp.StatusCode != http.StatusOK || resp.Header.Get("Content-Type") != "image/png" {
		t.Fatalf("got %d %s", resp.StatusCode, resp.Header.Get("Content-Type"))
	}
	if !bytes.HasPrefix(img, []byte("\x89PNG")) {
		t.Error("not a PNG")
	}
}

func TestStaticFiles(t *testing.T) {
	env := newTestEnv(t, writeTone(t, 65536))
	resp, err := http.Get(env.srv.URL + "/index.html")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)
	if resp.StatusCode != http.StatusOK || string(body) != "<html>tuner</html>" {
		t.Errorf("got %d %q", resp.StatusCode, body)
	}
}

func TestAudioWAV(t *testing.T) {
	env := newTestEnv(t, writeTone(t, 65536))

	resp, err := http.Get(env.srv.URL + "/api/audio.wav")
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusConflict {
		t.Fatalf("download while disconnected got %d", resp.StatusCode)
	}

	env.do(t, http.MethodPost, "/api/connect", "")
	resp, err = http.Get(env.srv.URL + "/api/audio.wav")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if resp.Header.Get("Content-Type") != "audio/wav" {
		t.Errorf("content type %s", resp.Header.Get("Content-Type"))
	}

	head := make([]byte, 64)
	if _, err := io.ReadFull(resp.Body, head); err != nil {
		t.Fatal(err)
	}
	if string(head[0:4]) != "RIFF" || string(head[8:12]) != "WAVE" {
		t.Errorf("bad header %q", head[:12])
	}
}

func TestStreamWebsocket(t *testing.T) {
	env := newTestEnv(t, writeTone(t, 65536))
	env.do(t, http.MethodPost, "/api/connect", "")

	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(env.srv.URL, "http")+"/ws/stream", nil)
	if err != nil {
		t.Fatal(err)
	}
	defer conn.Close()
	conn.SetReadDeadline(time.Now().Add(10 * time.Second))

	readText := func(v interface{}) {
		t.Helper()
		typ, data, err := conn.ReadMessage()
		if err != nil {
			t.Fatal(err)
		}
		if typ != websocket.TextMessage {
			t.Fatalf("got message type %d", typ)
		}
		if err := json.Unmarshal(data, v); err != nil {
			t.Fatal(err)
		}
	}

	var started output.StatusMessage
	readText(&started)
	if started.Type != "status" || started.Message != tuner.MessageStreamStarted {
		t.Fatalf("got %+v", started)
	}

	var fft output.SpectrumMessage
	readText(&fft)
	if fft.Type != "fft" || len(fft.Data) != 2048 || fft.SignalPeak < fft.NoiseFloor {
		t.Errorf("fft type %s, %d bins, peak %v floor %v", fft.Type, len(fft.Data), fft.SignalPeak, fft.NoiseFloor)
	}

	typ, pcm, err := conn.ReadMessage()
	if err != nil {
		t.Fatal(err)
	}
	if typ != websocket.BinaryMessage || len(pcm) == 0 || len(pcm)%2 != 0 {
		t.Errorf("audio message type %d, %d bytes", typ, len(pcm))
	}

	env.do(t, http.MethodPost, "/api/disconnect", "")

	for {
		typ, data, err := conn.ReadMessage()
		if err != nil {
			t.Fatalf("stream closed without final status: %v", err)
		}
		if typ != websocket.TextMessage {
			continue
		}
		var msg output.StatusMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			t.Fatal(err)
		}
		if msg.Type == "status" {
			if msg.Message != tuner.MessageDeviceDisconnect {
				t.Errorf("final status %q", msg.Message)
			}
			return
		}
	}
}

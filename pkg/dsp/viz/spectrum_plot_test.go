package viz

import (
	"bytes"
	"testing"

	"github.com/norasector/tuner/pkg/dsp/spectrum"
)

func TestRenderPNG(t *testing.T) {
	frame := spectrum.Compute([]complex64{1, 1i, -1, -1i}, 0)
	img, err := SpectrumPlot{Title: "test", CenterFreq: 100.5e6, SampleRate: 2.4e6}.RenderPNG(frame)
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.HasPrefix(img, []byte("\x89PNG")) {
		t.Errorf("output is not a PNG")
	}
}

func TestRenderPNGEmpty(t *testing.T) {
	if _, err := (SpectrumPlot{}).RenderPNG(&spectrum.Frame{}); err == nil {
		t.Error("expected error for empty frame")
	}
}

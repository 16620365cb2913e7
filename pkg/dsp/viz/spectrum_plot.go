package viz

import (
	"bytes"
	"fmt"

	"github.com/norasector/tuner/pkg/dsp/spectrum"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/plotutil"
	"gonum.org/v1/plot/vg"
)

// SpectrumPlot describes where a frame sits in RF so the X axis can be
// labelled in MHz.
type SpectrumPlot struct {
	Title      string
	CenterFreq int64
	SampleRate int64
	Width      vg.Length
	Height     vg.Length
}

// RenderPNG draws the frame's power against frequency, with the noise floor
// as a second trace.
func (sp SpectrumPlot) RenderPNG(frame *spectrum.Frame) ([]byte, error) {
	if len(frame.Power) == 0 {
		return nil, fmt.Errorf("empty spectrum frame")
	}
	if sp.Width == 0 {
		sp.Width = 8 * vg.Inch
	}
	if sp.Height == 0 {
		sp.Height = 4 * vg.Inch
	}

	p := plotWithDefaults()
	p.Title.Text = sp.Title
	p.Y.Label.Text = "Power (dB)"
	p.X.Label.Text = "Frequency (MHz)"
	p.Add(plotter.NewGrid())

	n := len(frame.Power)
	binWidth := float64(sp.SampleRate) / float64(n)
	power := make(plotter.XYs, n)
	floor := make(plotter.XYs, n)
	for i, db := range frame.Power {
		freq := float64(sp.CenterFreq) + float64(i-n/2)*binWidth
		power[i] = plotter.XY{X: freq / 1e6, Y: db}
		floor[i] = plotter.XY{X: freq / 1e6, Y: frame.NoiseFloorDB}
	}

	if err := plotutil.AddLines(p, "power", power, "noise floor", floor); err != nil {
		return nil, err
	}

	w, err := p.WriterTo(sp.Width, sp.Height, "png")
	if err != nil {
		return nil, err
	}
	var imageData bytes.Buffer
	if _, err := w.WriteTo(&imageData); err != nil {
		return nil, err
	}
	return imageData.Bytes(), nil
}

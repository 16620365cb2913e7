// Package viz renders spectrum frames as images.
package viz

import (
	"image/color"

	"gonum.org/v1/plot"
)

func plotWithDefaults() *plot.Plot {
	p := plot.New()
	p.BackgroundColor = color.Black
	for _, c := range []*color.Color{
		&p.Title.TextStyle.Color,
		&p.X.Color, &p.Y.Color,
		&p.X.Label.TextStyle.Color, &p.Y.Label.TextStyle.Color,
		&p.X.Tick.Color, &p.Y.Tick.Color,
		&p.X.Tick.Label.Color, &p.Y.Tick.Label.Color,
		&p.Legend.TextStyle.Color,
	} {
		*c = color.White
	}
	return p
}

package fir

import "math"

// HannWindow is the symmetric Hann window; both end points are zero.
func HannWindow(ntaps int) []float32 {
	ret := make([]float32, ntaps)
	if ntaps == 1 {
		ret[0] = 1
		return ret
	}
	M := float64(ntaps - 1)
	for i := range ret {
		ret[i] = float32(0.5 - 0.5*math.Cos(2*math.Pi*float64(i)/M))
	}
	return ret
}

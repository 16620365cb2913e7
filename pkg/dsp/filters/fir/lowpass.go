package fir

import (
	"math"
)

// AudioTaps is the filter length used for audio band limiting.
const AudioTaps = 101

// MakeLowPass designs a Hann windowed-sinc low pass filter with ntaps taps
// (forced odd) and unity gain at DC.
func MakeLowPass(ntaps int, sampleRate, cutFrequency float64) []float32 {
	ntaps |= 1
	var taps = make([]float32, ntaps)
	var w = HannWindow(ntaps)

	var M = (ntaps - 1) / 2
	var fwT0 = 2 * math.Pi * cutFrequency / sampleRate

	for i := -M; i <= M; i++ {
		if i == 0 {
			taps[i+M] = float32(fwT0 / math.Pi * float64(w[i+M]))
		} else {
			fi := float64(i)
			taps[i+M] = float32(math.Sin(fi*fwT0) / (fi * math.Pi) * float64(w[i+M]))
		}
	}

	var fmax = float64(taps[0+M])
	for i := 1; i <= M; i++ {
		fmax += 2 * float64(taps[i+M])
	}

	gain := 1.0 / fmax

	for i := 0; i < ntaps; i++ {
		taps[i] = float32(float64(taps[i]) * gain)
	}

	return taps
}

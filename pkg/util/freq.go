package util

import (
	"fmt"
	"math"
)

func MHzToString(hz int64) string {
	return fmt.Sprintf("%0.4f MHz", float64(hz)/1e6)
}

// MHzToHz converts a frequency given in MHz (as the web UI sends it) to whole Hz.
func MHzToHz(mhz float64) int64 {
	return int64(math.Round(mhz * 1e6))
}

func HzToMHz(hz int64) float64 {
	return float64(hz) / 1e6
}

package am

import (
	"math"
	"testing"
)

func TestEnvelopeDemod(t *testing.T) {
	tests := []struct {
		name string
		in   []complex64
		want []float32
	}{
		{"empty", nil, []float32{}},
		{"constant carrier", []complex64{3 + 4i, -5, 5i}, []float32{0, 0, 0}},
		{"modulated", []complex64{1, 3i, -2}, []float32{-1, 1, 0}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := NewEnvelopeDemod().Work(tt.in)
			if len(got) != len(tt.in) {
				t.Fatalf("len = %d, want %d", len(got), len(tt.in))
			}
			for i := range tt.want {
				if math.Abs(float64(got[i]-tt.want[i])) > 1e-6 {
					t.Fatalf("Work() = %v, want %v", got, tt.want)
				}
			}
		})
	}
}

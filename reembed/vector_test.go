package reembed

import (
	"testing"

	"github.com/poiesic/ragstore/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMagnitude(t *testing.T) {
	tests := []struct {
		name string
		in   []float32
		want float64
	}{
		{name: "nil", in: nil, want: 0},
		{name: "pythagorean", in: []float32{3, 4}, want: 5},
		{name: "negative components", in: []float32{-2, 0, 0}, want: 2},
		{name: "unit", in: []float32{0, 1, 0}, want: 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.want, Magnitude(tt.in), 1e-9)
		})
	}
}

func TestNormalizeVector(t *testing.T) {
	tests := []struct {
		name string
		in   []float32
		want []float32
	}{
		{name: "already unit", in: []float32{0, 0, 1}, want: []float32{0, 0, 1}},
		{name: "scaled down", in: []float32{1, 2, 2}, want: []float32{1.0 / 3, 2.0 / 3, 2.0 / 3}},
		{name: "tiny components", in: []float32{3e-4, 4e-4}, want: []float32{0.6, 0.8}},
		{name: "zero stays zero", in: []float32{0, 0}, want: []float32{0, 0}},
		{name: "empty", in: []float32{}, want: []float32{}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := NormalizeVector(tt.in)
			require.Len(t, got, len(tt.want))
			for i := range got {
				assert.InDelta(t, tt.want[i], got[i], 1e-6, "component %d", i)
			}
		})
	}
}

func TestNormalizeVector_KeepsInputAndRanking(t *testing.T) {
	in := []float32{1, 2, 2}
	out := NormalizeVector(in)
	assert.Equal(t, []float32{1, 2, 2}, in)
	assert.InDelta(t, 1.0, Magnitude(out), 1e-6)

	// normalized vectors rank the same under every distance strategy
	q := NormalizeVector([]float32{1, 1, 0})
	near := NormalizeVector([]float32{2, 1.5, 0})
	far := NormalizeVector([]float32{0, 1, 5})
	for _, d := range []core.DistanceStrategy{core.DistanceCosine, core.DistanceEuclidean, core.DistanceMaxInnerProduct} {
		assert.Less(t, d.Distance(q, near), d.Distance(q, far), string(d))
	}
}

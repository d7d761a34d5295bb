package search

import (
	"testing"

	"github.com/poiesic/ragstore/core"
	"github.com/stretchr/testify/assert"
)

func hitsWithScores(scores ...float32) []core.SearchHit {
	hits := make([]core.SearchHit, len(scores))
	for i, s := range scores {
		hits[i] = core.SearchHit{Score: s}
	}
	return hits
}

func scoresOf(hits []core.SearchHit) []float32 {
	out := make([]float32, len(hits))
	for i, h := range hits {
		out[i] = h.Score
	}
	return out
}

func TestFilterByScore(t *testing.T) {
	tests := []struct {
		name      string
		strategy  core.DistanceStrategy
		scores    []float32
		threshold float32
		expected  []float32
	}{
		{
			name:      "exact match present",
			strategy:  core.DistanceCosine,
			scores:    []float32{0, 0.3, 0.6, 1.4},
			threshold: 0.5,
			expected:  []float32{0, 0.3},
		},
		{
			name:      "no exact match widens to scores above one",
			strategy:  core.DistanceCosine,
			scores:    []float32{0.3, 0.6, 1.0, 1.4},
			threshold: 0.5,
			expected:  []float32{0.3, 1.4},
		},
		{
			name:      "near zero counts as exact",
			strategy:  core.DistanceEuclidean,
			scores:    []float32{5e-7, 0.8},
			threshold: 0.5,
			expected:  []float32{5e-7},
		},
		{
			name:      "inner product exact at minus one",
			strategy:  core.DistanceMaxInnerProduct,
			scores:    []float32{-1, -0.9, -0.2},
			threshold: -0.5,
			expected:  []float32{-1, -0.9},
		},
		{
			name:      "inner product without exact match",
			strategy:  core.DistanceMaxInnerProduct,
			scores:    []float32{-0.9, -0.2},
			threshold: -0.5,
			expected:  []float32{-0.9},
		},
		{
			name:      "empty input",
			strategy:  core.DistanceCosine,
			scores:    nil,
			threshold: 0.5,
			expected:  []float32{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			kept := FilterByScore(hitsWithScores(tt.scores...), tt.threshold, tt.strategy)
			assert.Equal(t, tt.expected, scoresOf(kept))
		})
	}
}

func TestIsExactMatch(t *testing.T) {
	assert.True(t, IsExactMatch(0, core.DistanceCosine))
	assert.True(t, IsExactMatch(-1, core.DistanceMaxInnerProduct))
	assert.False(t, IsExactMatch(0, core.DistanceMaxInnerProduct))
	assert.False(t, IsExactMatch(0.01, core.DistanceEuclidean))
}

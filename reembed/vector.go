package reembed

import "math"

// Magnitude returns the Euclidean length of v.
func Magnitude(v []float32) float64 {
	var sum float64
	for _, x := range v {
		sum += float64(x) * float64(x)
	}
	return math.Sqrt(sum)
}

// NormalizeVector returns a unit-length copy of v. The zero vector cannot be
// normalized and comes back as zeros.
func NormalizeVector(v []float32) []float32 {
	if len(v) == 0 {
		return v
	}

	result := make([]float32, len(v))
	magnitude := Magnitude(v)
	if magnitude == 0 {
		return result
	}
	for i, x := range v {
		result[i] = float32(float64(x) / magnitude)
	}
	return result
}

// Copyright 2025 Poiesic Systems
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.


package core

import (
	"fmt"
	"math"
	"strings"
)

// DistanceStrategy selects the metric used to rank search results.
// Every strategy orders ascending: smaller is closer.
type DistanceStrategy string

const (
	DistanceEuclidean       DistanceStrategy = "euclidean"
	DistanceCosine          DistanceStrategy = "cosine"
	DistanceMaxInnerProduct DistanceStrategy = "max_inner_product"
)

// DefaultDistanceStrategy is used when none is configured.
const DefaultDistanceStrategy = DistanceCosine

// ParseDistanceStrategy accepts the strategy names plus the short aliases
// "l2", "ip" and "inner_product".
func ParseDistanceStrategy(s string) (DistanceStrategy, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "cosine":
		return DistanceCosine, nil
	case "euclidean", "l2":
		return DistanceEuclidean, nil
	case "max_inner_product", "inner_product", "ip":
		return DistanceMaxInnerProduct, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownDistance, s)
}

// Validate returns ErrUnknownDistance for values outside the enum.
func (d DistanceStrategy) Validate() error {
	switch d {
	case DistanceEuclidean, DistanceCosine, DistanceMaxInnerProduct:
		return nil
	}
	return fmt.Errorf("%w: %q", ErrUnknownDistance, string(d))
}

// Distance computes the distance between a and b. The vectors must have
// the same length; callers check dimensions before ranking.
func (d DistanceStrategy) Distance(a, b []float32) float32 {
	switch d {
	case DistanceEuclidean:
		return EuclideanDistance(a, b)
	case DistanceMaxInnerProduct:
		return -DotProduct(a, b)
	default:
		return CosineDistance(a, b)
	}
}

// MinDistance is the smallest distance the strategy can report for unit
// vectors. A score at this value is an exact match.
func (d DistanceStrategy) MinDistance() float32 {
	if d == DistanceMaxInnerProduct {
		return -1
	}
	return 0
}

// DotProduct calculates the dot product of two vectors.
func DotProduct(a, b []float32) float32 {
	var sum float32
	n := min(len(a), len(b))
	for i := 0; i < n; i++ {
		sum += a[i] * b[i]
	}
	return sum
}

// EuclideanDistance is the L2 distance between a and b.
func EuclideanDistance(a, b []float32) float32 {
	var sum float64
	n := min(len(a), len(b))
	for i := 0; i < n; i++ {
		diff := float64(a[i] - b[i])
		sum += diff * diff
	}
	return float32(math.Sqrt(sum))
}

// CosineDistance is 1 - cos(a, b). Zero vectors are at distance 1 from everything.
func CosineDistance(a, b []float32) float32 {
	var dot, na, nb float64
	n := min(len(a), len(b))
	for i := 0; i < n; i++ {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 1
	}
	return float32(1 - dot/(math.Sqrt(na)*math.Sqrt(nb)))
}

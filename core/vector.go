package core

import "math"

// NormalizeVector scales v to unit length and returns a new vector.
// Returns ErrZeroVector if v has no magnitude.
func NormalizeVector(v []float32) ([]float32, error) {
	// Accumulate in float64 so identical input always rounds the same way.
	var sum float64
	for _, val := range v {
		sum += float64(val) * float64(val)
	}
	magnitude := math.Sqrt(sum)
	if magnitude == 0 {
		return nil, ErrZeroVector
	}

	result := make([]float32, len(v))
	for i, val := range v {
		result[i] = float32(float64(val) / magnitude)
	}
	return result, nil
}

// Dot returns the dot product of a and b. For unit vectors this is the cosine similarity.
// The vectors must have equal length.
func Dot(a, b []float32) float32 {
	var sum float32
	for i := range a {
		sum += a[i] * b[i]
	}
	return sum
}

package grouping

import "math"

// CosineSimilarity returns dot(a,b) / (|a|*|b|). It is 0 when either vector
// has zero norm or the dimensions differ, and exactly 1 for identical
// non-zero vectors. The result is always finite and within [-1, 1].
func CosineSimilarity(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}

	var dot, normA, normB float64
	identical := true
	for i := range a {
		x, y := float64(a[i]), float64(b[i])
		dot += x * y
		normA += x * x
		normB += y * y
		if a[i] != b[i] {
			identical = false
		}
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	if identical {
		return 1
	}

	sim := dot / (math.Sqrt(normA) * math.Sqrt(normB))
	switch {
	case math.IsNaN(sim):
		return 0
	case sim > 1:
		return 1
	case sim < -1:
		return -1
	}
	return sim
}

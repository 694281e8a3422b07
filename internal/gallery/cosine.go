package gallery

import "math"

// CosineDistance returns 1 - cosine similarity, clamped to [0,1].
// Mismatched or zero vectors are maximally distant.
func CosineDistance(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 1
	}

	var dotProduct, normA, normB float64
	for i := range a {
		dotProduct += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}

	if normA == 0 || normB == 0 {
		return 1
	}

	similarity := dotProduct / (math.Sqrt(normA) * math.Sqrt(normB))
	return clampDistance(1 - similarity)
}

func clampDistance(d float64) float64 {
	if math.IsNaN(d) || d > 1 {
		return 1
	}
	if d < 0 {
		return 0
	}
	return d
}

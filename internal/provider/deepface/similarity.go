package deepface

import (
	"math"
)

// NormalizeEmbedding converts a sidecar embedding to float32 with unit
// length. A zero vector is returned unchanged.
func NormalizeEmbedding(embedding []float64) []float32 {
	out := make([]float32, len(embedding))

	var norm float64
	for _, v := range embedding {
		norm += v * v
	}

	if norm == 0 {
		for i, v := range embedding {
			out[i] = float32(v)
		}
		return out
	}

	norm = math.Sqrt(norm)
	for i, v := range embedding {
		out[i] = float32(v / norm)
	}

	return out
}

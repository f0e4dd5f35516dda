package embedding

import (
	"math"
	"strings"
)

// fallbackMultiplier is Knuth's multiplicative hash constant, used to
// scatter character positions across the vector.
const fallbackMultiplier = 2654435761

// FallbackVector produces a deterministic pseudo-embedding for text when
// the embedding service is unavailable. It carries no semantic meaning,
// but identical input always yields a bit-identical, L2-normalized vector,
// which keeps re-runs idempotent and similarity math well-defined.
func FallbackVector(text string, dim int) []float32 {
	vec := make([]float32, dim)
	if dim <= 0 {
		return vec
	}

	tokens := strings.Fields(strings.ToLower(text))
	for ti, token := range tokens {
		ci := 0
		for _, r := range token {
			h := (uint64(r)*fallbackMultiplier + uint64(ti)*31 + uint64(ci)*7) % uint64(dim)
			vec[h] += float32(math.Sin(float64(r)*0.1) * 0.1)
			ci++
		}
	}

	return normalize(vec)
}

// normalize scales vec to unit L2 length. A zero vector stays zero.
func normalize(vec []float32) []float32 {
	var sum float64
	for _, v := range vec {
		sum += float64(v) * float64(v)
	}

	mag := math.Sqrt(sum)
	if mag == 0 {
		return vec
	}

	for i := range vec {
		vec[i] = float32(float64(vec[i]) / mag)
	}
	return vec
}

package toolfilter

import (
	"context"
	"hash/fnv"
	"math"
	"strings"
)

// hashDimension matches nothing in particular; it just needs to be large
// enough that unrelated tool names don't collide into the same buckets too
// often.
const hashDimension = 256

// hashEmbedder is the always-available "local embedding runtime": a
// deterministic bag-of-words hashing embedding with no network dependency.
// It never errors and needs no configuration, so Index can fall back to it
// whenever the remote backend isn't configured.
type hashEmbedder struct{}

func newHashEmbedder() *hashEmbedder { return &hashEmbedder{} }

func (hashEmbedder) Embed(_ context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, text := range texts {
		out[i] = hashVector(text)
	}
	return out, nil
}

// hashVector tokenizes text on whitespace/punctuation, hashes each token
// into a bucket with FNV-1a, and accumulates a term-frequency vector,
// L2-normalized so cosine similarity behaves the way it would for a real
// embedding.
func hashVector(text string) []float32 {
	vec := make([]float32, hashDimension)
	for _, token := range tokenize(text) {
		h := fnv.New32a()
		_, _ = h.Write([]byte(token))
		vec[h.Sum32()%hashDimension]++
	}

	var norm float64
	for _, v := range vec {
		norm += float64(v) * float64(v)
	}
	if norm == 0 {
		return vec
	}
	norm = math.Sqrt(norm)
	for i, v := range vec {
		vec[i] = float32(float64(v) / norm)
	}
	return vec
}

func tokenize(text string) []string {
	return strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !(r >= 'a' && r <= 'z') && !(r >= '0' && r <= '9')
	})
}

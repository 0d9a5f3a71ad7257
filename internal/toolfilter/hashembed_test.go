package toolfilter

import (
	"context"
	"math"
	"testing"
)

func TestHashEmbedderIsDeterministic(t *testing.T) {
	e := newHashEmbedder()
	v1, err := e.Embed(context.Background(), []string{"search_files: search for files by glob"})
	if err != nil {
		t.Fatalf("Embed: %v", err)
	}
	v2, err := e.Embed(context.Background(), []string{"search_files: search for files by glob"})
	if err != nil {
		t.Fatalf("Embed: %v", err)
	}
	if len(v1[0]) != len(v2[0]) {
		t.Fatalf("vector length mismatch")
	}
	for i := range v1[0] {
		if v1[0][i] != v2[0][i] {
			t.Fatalf("hash embedding is not deterministic at index %d", i)
		}
	}
}

func TestHashEmbedderIsL2Normalized(t *testing.T) {
	e := newHashEmbedder()
	vecs, err := e.Embed(context.Background(), []string{"one two three four five"})
	if err != nil {
		t.Fatalf("Embed: %v", err)
	}
	var norm float64
	for _, v := range vecs[0] {
		norm += float64(v) * float64(v)
	}
	if math.Abs(math.Sqrt(norm)-1) > 1e-6 {
		t.Fatalf("norm = %v, want ~1", math.Sqrt(norm))
	}
}

func TestHashEmbedderSimilarTextScoresHigherThanUnrelated(t *testing.T) {
	e := newHashEmbedder()
	vecs, err := e.Embed(context.Background(), []string{
		"search_files: search the filesystem for files matching a glob pattern",
		"search_files: search for files matching a glob",
		"send_email: compose and send an email message",
	})
	if err != nil {
		t.Fatalf("Embed: %v", err)
	}

	related := cosineSimilarity(vecs[0], vecs[1])
	unrelated := cosineSimilarity(vecs[0], vecs[2])
	if related <= unrelated {
		t.Fatalf("related score %v not greater than unrelated score %v", related, unrelated)
	}
}

package toolfilter

import (
	"context"
	"math"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
)

// indexedTool is one entry of the live index: the tool plus its precomputed
// embedding and the server it came from.
type indexedTool struct {
	tool      ToolDescriptor
	serverID  string
	embedding []float32
}

// Index is the C7 embedding-backed tool registry for one tenant. Initialize
// fully replaces its contents; Filter scores the current contents against a
// conversation window. Safe for concurrent use.
type Index struct {
	embedder Embedder

	mu          sync.RWMutex
	tools       []indexedTool
	byName      map[string]int // name -> index into tools, for pin lookup and dedup
	initialized bool
}

// New constructs an Index. embedder is nil-safe: a nil Embedder puts the
// index into permanent degraded mode (every Filter call returns the
// first-registered tools unchanged).
func New(embedder Embedder) *Index {
	return &Index{embedder: embedder, byName: make(map[string]int)}
}

// Initialize computes and stores an embedding for each tool's
// "name: description" and fully replaces prior index contents. Duplicate
// tool names across servers keep the first occurrence and drop the rest,
// logging a warning for each drop.
func (idx *Index) Initialize(ctx context.Context, servers []ServerTools) error {
	var deduped []indexedTool
	seen := make(map[string]bool)

	var texts []string
	for _, s := range servers {
		for _, t := range s.Tools {
			if seen[t.Name] {
				log.Warn().Str("tool", t.Name).Str("serverId", s.ID).Msg("toolfilter: duplicate tool name dropped")
				continue
			}
			seen[t.Name] = true
			deduped = append(deduped, indexedTool{tool: t, serverID: s.ID})
			texts = append(texts, embeddingInput(t))
		}
	}

	var vectors [][]float32
	if idx.embedder != nil && len(texts) > 0 {
		v, err := idx.embedder.Embed(ctx, texts)
		if err != nil {
			return err
		}
		vectors = v
	}

	for i := range deduped {
		if i < len(vectors) {
			deduped[i].embedding = vectors[i]
		}
	}

	byName := make(map[string]int, len(deduped))
	for i, t := range deduped {
		byName[t.tool.Name] = i
	}

	idx.mu.Lock()
	idx.tools = deduped
	idx.byName = byName
	idx.initialized = true
	idx.mu.Unlock()

	return nil
}

// Initialized reports whether Initialize has ever been called on this index.
// The façade uses this to reject filter calls with FilterNotInitialized
// rather than silently scoring against an empty registry.
func (idx *Index) Initialized() bool {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	return idx.initialized
}

func embeddingInput(t ToolDescriptor) string {
	return t.Name + ": " + t.Description
}

// Filter scores the index's tools against the most recent contextMessages
// turns of messages and returns up to topK results at or above minScore,
// in descending score order. Pinned tools bypass scoring entirely and are
// prepended in submission order.
func (idx *Index) Filter(ctx context.Context, messages []Message, opts FilterOptions, pins []string) ([]ScoredTool, Metrics, error) {
	start := time.Now()
	opts = opts.withDefaults()

	idx.mu.RLock()
	tools := make([]indexedTool, len(idx.tools))
	copy(tools, idx.tools)
	byName := idx.byName
	idx.mu.RUnlock()

	pinned, pinnedSet := idx.resolvePins(tools, byName, pins)

	if idx.embedder == nil {
		return idx.degradedResult(tools, pinned, pinnedSet, start)
	}

	contextText := buildContextText(messages, opts.ContextMessages, opts.MaxContextTokens)

	embedStart := time.Now()
	vectors, err := idx.embedder.Embed(ctx, []string{contextText})
	embeddingTime := time.Since(embedStart).Seconds()
	if err != nil || len(vectors) == 0 {
		return idx.degradedResult(tools, pinned, pinnedSet, start)
	}
	contextVec := vectors[0]

	scoreStart := time.Now()
	scored := make([]ScoredTool, 0, len(tools))
	for _, t := range tools {
		if pinnedSet[t.tool.Name] {
			continue
		}
		score := cosineSimilarity(contextVec, t.embedding)
		if score < opts.MinScore {
			continue
		}
		scored = append(scored, ScoredTool{ToolDescriptor: t.tool, ServerID: t.serverID, Score: score})
	}

	sort.Slice(scored, func(i, j int) bool {
		if scored[i].Score != scored[j].Score {
			return scored[i].Score > scored[j].Score
		}
		return tieBreakLess(scored[i].Name, scored[j].Name)
	})
	if len(scored) > opts.TopK {
		scored = scored[:opts.TopK]
	}
	scoringTime := time.Since(scoreStart).Seconds()

	result := append(pinned, scored...)
	return result, Metrics{
		TotalTime:     time.Since(start).Seconds(),
		EmbeddingTime: embeddingTime,
		ScoringTime:   scoringTime,
		ContextTokens: approxTokenCount(contextText),
	}, nil
}

// resolvePins looks up each pinned tool name in the index (missing names
// are silently skipped, since a pin naming a tool that no longer exists
// isn't an error condition the caller needs to handle) and deduplicates
// while preserving submission order.
func (idx *Index) resolvePins(tools []indexedTool, byName map[string]int, pins []string) ([]ScoredTool, map[string]bool) {
	seen := make(map[string]bool, len(pins))
	var pinned []ScoredTool
	for _, name := range pins {
		if seen[name] {
			continue
		}
		i, ok := byName[name]
		if !ok || i >= len(tools) {
			continue
		}
		seen[name] = true
		t := tools[i]
		pinned = append(pinned, ScoredTool{ToolDescriptor: t.tool, ServerID: t.serverID, Pinned: true})
	}
	return pinned, seen
}

// degradedResult is returned when no embedding backend is configured, or the
// one configured failed to embed the context: the first degradedModeLimit
// registered tools, pins still prepended and excluded from the main slice,
// with metrics.totalTime reported as zero per the degraded-mode contract.
func (idx *Index) degradedResult(tools []indexedTool, pinned []ScoredTool, pinnedSet map[string]bool, _ time.Time) ([]ScoredTool, Metrics, error) {
	var rest []ScoredTool
	for _, t := range tools {
		if pinnedSet[t.tool.Name] {
			continue
		}
		if len(rest) >= degradedModeLimit {
			break
		}
		rest = append(rest, ScoredTool{ToolDescriptor: t.tool, ServerID: t.serverID})
	}

	return append(pinned, rest...), Metrics{Degraded: true}, nil
}

// buildContextText joins the most recent contextMessages of messages into
// one string for a single context embedding call, trimmed to
// maxContextTokens using the same word-count approximation as
// approxTokenCount.
func buildContextText(messages []Message, contextMessages, maxContextTokens int) string {
	if len(messages) > contextMessages {
		messages = messages[len(messages)-contextMessages:]
	}

	var parts []string
	for _, m := range messages {
		parts = append(parts, m.Content)
	}
	text := strings.Join(parts, "\n")

	words := strings.Fields(text)
	if len(words) > maxContextTokens {
		words = words[len(words)-maxContextTokens:]
		text = strings.Join(words, " ")
	}
	return text
}

// approxTokenCount approximates token count as word count; good enough for
// the metrics field, which is informational rather than a billing number.
func approxTokenCount(text string) int {
	return len(strings.Fields(text))
}

func cosineSimilarity(a, b []float32) float64 {
	if len(a) == 0 || len(b) == 0 || len(a) != len(b) {
		return 0
	}
	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}

// tieBreakLess breaks a score tie by shorter name first, then lexicographic.
func tieBreakLess(a, b string) bool {
	if len(a) != len(b) {
		return len(a) < len(b)
	}
	return a < b
}

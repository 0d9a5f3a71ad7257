// Package toolfilter implements C7: an embedding-backed index over a
// tenant's registered tools that, given a running conversation, returns a
// small semantically-relevant subset instead of the full catalogue.
package toolfilter

import "context"

// ToolDescriptor is a tool exactly as an upstream MCP server advertises it.
type ToolDescriptor struct {
	Name        string
	Description string
	InputSchema map[string]any
}

// ServerTools groups one upstream server's tools under its id/name for
// Initialize.
type ServerTools struct {
	ID    string
	Name  string
	Tools []ToolDescriptor
}

// Message is one turn of the conversation Filter scores against. Role is
// "user", "assistant", or "tool"; Content is whatever text that turn carries
// (tool results are flattened to their text representation by the caller).
type Message struct {
	Role    string
	Content string
}

// ScoredTool is one entry of Filter's result: the tool plus the score it
// was ranked on. Pinned tools carry Score 0 and Pinned true since they
// bypass scoring entirely.
type ScoredTool struct {
	ToolDescriptor
	ServerID string
	Score    float64
	Pinned   bool
}

// Metrics reports the time breakdown and resulting context size for one
// Filter call.
type Metrics struct {
	TotalTime     float64 // seconds
	EmbeddingTime float64 // seconds
	ScoringTime   float64 // seconds
	ContextTokens int
	Degraded      bool
}

// FilterOptions tunes one Filter call; the zero value selects every default.
type FilterOptions struct {
	TopK             int
	MinScore         float64
	ContextMessages  int
	MaxContextTokens int
}

const (
	defaultTopK             = 22
	defaultMinScore         = 0.30
	defaultContextMessages  = 3
	defaultMaxContextTokens = 500
	degradedModeLimit       = 120
)

func (o FilterOptions) withDefaults() FilterOptions {
	if o.TopK <= 0 {
		o.TopK = defaultTopK
	}
	if o.MinScore <= 0 {
		o.MinScore = defaultMinScore
	}
	if o.ContextMessages <= 0 {
		o.ContextMessages = defaultContextMessages
	}
	if o.MaxContextTokens <= 0 {
		o.MaxContextTokens = defaultMaxContextTokens
	}
	return o
}

// Embedder turns text into a fixed-dimension vector. Both the local hashing
// embedder and the remote openai-go-backed embedder implement it, so Index
// never knows which one it's using.
type Embedder interface {
	Embed(ctx context.Context, texts []string) ([][]float32, error)
}

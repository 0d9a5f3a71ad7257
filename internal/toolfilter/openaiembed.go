package toolfilter

import (
	"context"
	"fmt"

	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"
)

// defaultEmbeddingModel is OpenAI's current small embedding model, used
// when no override is configured.
const defaultEmbeddingModel = "text-embedding-3-small"

// openaiEmbedder is the remote embedding backend, used when an API key is
// configured. Grounded on aiopenai.OpenAIProvider.EmbedDocuments: one
// Embeddings.New call per batch, vectors decoded in request order.
type openaiEmbedder struct {
	client openai.Client
	model  string
}

func newOpenAIEmbedder(apiKey, model string, opts ...option.RequestOption) *openaiEmbedder {
	if model == "" {
		model = defaultEmbeddingModel
	}
	options := append([]option.RequestOption{option.WithAPIKey(apiKey)}, opts...)
	return &openaiEmbedder{
		client: openai.NewClient(options...),
		model:  model,
	}
}

func (e *openaiEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	params := openai.EmbeddingNewParams{
		Model: e.model,
		Input: openai.EmbeddingNewParamsInputUnion{
			OfArrayOfStrings: texts,
		},
	}

	resp, err := e.client.Embeddings.New(ctx, params)
	if err != nil {
		return nil, fmt.Errorf("toolfilter: remote embed: %w", err)
	}
	if len(resp.Data) != len(texts) {
		return nil, fmt.Errorf("toolfilter: remote embed returned %d vectors for %d inputs", len(resp.Data), len(texts))
	}

	out := make([][]float32, len(resp.Data))
	for i, d := range resp.Data {
		out[i] = toFloat32(d.Embedding)
	}
	return out, nil
}

func toFloat32(in []float64) []float32 {
	out := make([]float32, len(in))
	for i, v := range in {
		out[i] = float32(v)
	}
	return out
}

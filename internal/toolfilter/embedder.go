package toolfilter

// NewEmbedder selects the embedding backend: the remote openai-go-backed
// embedder when apiKey is set, the local hashing embedder otherwise. It
// never returns nil, since the local embedder is always available — a
// caller that wants the degraded no-embedder mode should pass a nil
// Embedder to New directly instead of calling this.
func NewEmbedder(apiKey, model string) Embedder {
	if apiKey == "" {
		return newHashEmbedder()
	}
	return newOpenAIEmbedder(apiKey, model)
}

// ClearCache drops every indexed tool. The index still reports Initialized,
// so Filter calls succeed but return no tools, pinned ones included since no
// name resolves any more, until the next Initialize.
func (idx *Index) ClearCache() {
	idx.mu.Lock()
	idx.tools = nil
	idx.byName = make(map[string]int)
	idx.mu.Unlock()
}

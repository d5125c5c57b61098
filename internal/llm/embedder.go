package llm

import (
	"context"
	"fmt"
)

// Embedder produces text embeddings with one named model.
type Embedder struct {
	models ModelProvider
	model  string
}

func NewEmbedder(models ModelProvider, model string) *Embedder {
	return &Embedder{models: models, model: model}
}

func (e *Embedder) Model() string { return e.model }

func (e *Embedder) Embed(ctx context.Context, text string) ([]float32, error) {
	m, err := e.models.Model(ctx, e.model)
	if err != nil {
		return nil, err
	}
	vec, err := m.Embed(ctx, text)
	if err != nil {
		return nil, fmt.Errorf("embedding with %s: %w", e.model, err)
	}
	return vec, nil
}

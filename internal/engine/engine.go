package engine

import "context"

// Engine abstracts the local inference backend. The lab, cognitive, retinal
// and recommendation agents reach models through this interface instead of
// depending on a concrete client.
type Engine interface {
	// Generate runs one deterministic completion for prompt, optionally
	// conditioned on images, and returns the decoded text.
	Generate(ctx context.Context, model string, req GenerateRequest) (string, error)

	// Embed returns the embedding vector for the given text using the specified model.
	Embed(ctx context.Context, model string, text string) ([]float32, error)

	// IsRunning reports whether the inference backend is reachable.
	IsRunning(ctx context.Context) bool

	// ListModels returns the names of all locally available models.
	ListModels(ctx context.Context) ([]string, error)

	// HasModel reports whether the given model name is available locally.
	HasModel(ctx context.Context, name string) bool

	// PullModel downloads a model. The optional callback receives progress updates.
	PullModel(ctx context.Context, name string, onProgress func(PullProgress)) error
}

package engine

// GenerateRequest is a single-turn generation request.
type GenerateRequest struct {
	Prompt string
	// Images are raw encoded images (PNG or JPEG).
	Images    [][]byte
	MaxTokens int
}

// PullProgress reports download progress for a model pull operation.
type PullProgress struct {
	Status    string `json:"status"`
	Total     int64  `json:"total,omitempty"`
	Completed int64  `json:"completed,omitempty"`
}

package retinal

import (
	"context"
	"fmt"
	"strings"
)

// Captioner describes an image in text.
type Captioner interface {
	GenerateWithImage(ctx context.Context, prompt string, image []byte, maxTokens int) (string, error)
}

// TextEmbedder embeds text.
type TextEmbedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

const captionPrompt = "Describe the visible structures of this retinal fundus photograph (optic disc, vessels, macula, lesions) in two factual sentences."

const maxCaptionTokens = 96

// CaptionEmbedder embeds an image by captioning it with a vision model and
// embedding the caption.
type CaptionEmbedder struct {
	captioner Captioner
	embedder  TextEmbedder
}

func NewCaptionEmbedder(c Captioner, e TextEmbedder) *CaptionEmbedder {
	return &CaptionEmbedder{captioner: c, embedder: e}
}

func (c *CaptionEmbedder) EmbedImage(ctx context.Context, image []byte) ([]float32, error) {
	caption, err := c.captioner.GenerateWithImage(ctx, captionPrompt, image, maxCaptionTokens)
	if err != nil {
		return nil, fmt.Errorf("captioning image: %w", err)
	}
	caption = strings.TrimSpace(caption)
	if caption == "" {
		return nil, nil
	}
	return c.embedder.Embed(ctx, caption)
}

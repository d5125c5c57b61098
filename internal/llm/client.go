// Package llm is the text-generation boundary used by the agents. Decoding is
// greedy, so a fixed model and prompt always produce the same output.
package llm

import (
	"context"
	"fmt"
	"strings"

	"github.com/diarisk/diarisk/internal/engine"
)

// ModelProvider resolves a model name to an initialized handle.
// *engine.Registry satisfies it.
type ModelProvider interface {
	Model(ctx context.Context, name string) (*engine.Model, error)
}

// Client generates text with one named model.
type Client struct {
	models ModelProvider
	model  string
}

// New creates a Client that generates with model.
func New(models ModelProvider, model string) *Client {
	return &Client{models: models, model: model}
}

// Model returns the model name.
func (c *Client) Model() string { return c.model }

// Generate returns the decoded completion for prompt.
func (c *Client) Generate(ctx context.Context, prompt string, maxTokens int) (string, error) {
	return c.generate(ctx, engine.GenerateRequest{Prompt: prompt, MaxTokens: maxTokens})
}

// GenerateLines is Generate split into trimmed non-empty lines.
func (c *Client) GenerateLines(ctx context.Context, prompt string, maxTokens int) ([]string, error) {
	text, err := c.Generate(ctx, prompt, maxTokens)
	if err != nil {
		return nil, err
	}
	return SplitLines(text), nil
}

// GenerateWithImage returns the completion for prompt conditioned on one image.
func (c *Client) GenerateWithImage(ctx context.Context, prompt string, image []byte, maxTokens int) (string, error) {
	return c.generate(ctx, engine.GenerateRequest{
		Prompt:    prompt,
		Images:    [][]byte{image},
		MaxTokens: maxTokens,
	})
}

// GenerateLinesWithImage is GenerateWithImage split into trimmed non-empty lines.
func (c *Client) GenerateLinesWithImage(ctx context.Context, prompt string, image []byte, maxTokens int) ([]string, error) {
	text, err := c.GenerateWithImage(ctx, prompt, image, maxTokens)
	if err != nil {
		return nil, err
	}
	return SplitLines(text), nil
}

func (c *Client) generate(ctx context.Context, req engine.GenerateRequest) (string, error) {
	m, err := c.models.Model(ctx, c.model)
	if err != nil {
		return "", err
	}
	text, err := m.Generate(ctx, req)
	if err != nil {
		return "", fmt.Errorf("generating with %s: %w", c.model, err)
	}
	return text, nil
}

// SplitLines splits text into lines, trimming each and dropping blanks.
func SplitLines(text string) []string {
	var lines []string
	for _, line := range strings.Split(text, "\n") {
		if line = strings.TrimSpace(line); line != "" {
			lines = append(lines, line)
		}
	}
	return lines
}

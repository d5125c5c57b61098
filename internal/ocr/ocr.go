// Package ocr turns a single page image into text.
package ocr

import (
	"context"
	"fmt"

	"github.com/diarisk/diarisk/internal/imaging"
)

// Recognizer extracts the text printed on one image.
type Recognizer interface {
	Recognize(ctx context.Context, image []byte) (string, error)
}

// ImageGenerator is the slice of the generation client a VisionRecognizer needs.
type ImageGenerator interface {
	GenerateWithImage(ctx context.Context, prompt string, image []byte, maxTokens int) (string, error)
}

const transcribePrompt = `Transcribe every line of text in this laboratory report image exactly as printed.
Keep each table row on its own line, with the test name followed by its value and unit.
Output only the transcribed text.`

// maxTranscriptTokens bounds one page of transcript.
const maxTranscriptTokens = 1536

// VisionRecognizer transcribes page images with a vision-language model.
type VisionRecognizer struct {
	gen ImageGenerator
}

func NewVisionRecognizer(gen ImageGenerator) *VisionRecognizer {
	return &VisionRecognizer{gen: gen}
}

// Recognize normalizes the image and asks the model for a transcript.
func (r *VisionRecognizer) Recognize(ctx context.Context, image []byte) (string, error) {
	png, err := imaging.Normalize(image)
	if err != nil {
		return "", err
	}
	text, err := r.gen.GenerateWithImage(ctx, transcribePrompt, png, maxTranscriptTokens)
	if err != nil {
		return "", fmt.Errorf("transcribing image: %w", err)
	}
	return text, nil
}

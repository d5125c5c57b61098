package pipeline

import (
	"log/slog"

	"github.com/diarisk/diarisk/internal/cognitive"
	"github.com/diarisk/diarisk/internal/insight"
	"github.com/diarisk/diarisk/internal/labs"
	"github.com/diarisk/diarisk/internal/llm"
	"github.com/diarisk/diarisk/internal/ocr"
	"github.com/diarisk/diarisk/internal/recommend"
	"github.com/diarisk/diarisk/internal/retinal"
	"github.com/diarisk/diarisk/internal/risk"
)

// Capabilities are the administrative switches. Each one gates whole agents
// to their deterministic stubs.
type Capabilities struct {
	RetinalEnabled        bool
	TextGenerationEnabled bool
}

// Models names the backend model used for each role.
type Models struct {
	Text   string
	Vision string
	Embed  string
	OCR    string
}

// Build wires the production stages over provider.
func Build(caps Capabilities, provider llm.ModelProvider, models Models, logger *slog.Logger) *Orchestrator {
	text := llm.New(provider, models.Text)

	stages := Stages{
		Intake: labs.NewExtractor(ocr.NewVisionRecognizer(llm.New(provider, models.OCR))),
		Risk:   risk.New(),
	}

	if caps.TextGenerationEnabled {
		stages.LabInsight = insight.New(text)
		stages.Cognitive = cognitive.New(text)
		stages.Recommendation = recommend.New(text)
	} else {
		stages.LabInsight = insight.New(nil)
		stages.Cognitive = cognitive.New(nil)
		stages.Recommendation = recommend.New(nil)
	}

	if caps.RetinalEnabled {
		vision := llm.New(provider, models.Vision)
		cfg := retinal.Config{
			Grader:      vision,
			VisionModel: vision.Model(),
		}
		if models.Embed != "" {
			embedder := llm.NewEmbedder(provider, models.Embed)
			cfg.Embedder = retinal.NewCaptionEmbedder(vision, embedder)
			cfg.EmbedModel = embedder.Model()
		}
		stages.Retinal = retinal.New(cfg)
	} else {
		stages.Retinal = retinal.New(retinal.Config{})
	}

	return New(stages, logger)
}

// Package retinal grades diabetic retinopathy from a fundus photograph.
package retinal

import (
	"context"
	"fmt"
	"log/slog"
	"regexp"
	"strconv"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/diarisk/diarisk/internal/assessment"
)

const (
	maxGradeTokens = 256
	maxFindings    = 5
)

// VisionGenerator generates text conditioned on one image.
type VisionGenerator interface {
	GenerateLinesWithImage(ctx context.Context, prompt string, image []byte, maxTokens int) ([]string, error)
}

// ImageEmbedder maps an image to a feature vector.
type ImageEmbedder interface {
	EmbedImage(ctx context.Context, image []byte) ([]float32, error)
}

// Config wires an Analyzer. A nil Grader disables retinal analysis; a nil
// Embedder skips the embedding step.
type Config struct {
	Grader      VisionGenerator
	Embedder    ImageEmbedder
	VisionModel string
	EmbedModel  string
}

// Analyzer never fails: each backend step absorbs its own error and
// degrades to a placeholder. Grading failures are also reported as warnings.
type Analyzer struct {
	cfg Config
}

func New(cfg Config) *Analyzer {
	return &Analyzer{cfg: cfg}
}

func (a *Analyzer) Disabled() bool { return a.cfg.Grader == nil }

// Analyze grades image, which must already be a decoded-and-normalized PNG.
func (a *Analyzer) Analyze(ctx context.Context, image []byte) (assessment.RetinalResult, []string) {
	if a.Disabled() {
		return assessment.RetinalResult{
			Grade:    assessment.GradeNotAnalyzed,
			Findings: []string{},
			Summary:  "Retinal analysis disabled.",
			Metadata: map[string]any{"enabled": false},
		}, nil
	}

	var (
		emb   embedding
		grade grading
		g     errgroup.Group
	)
	g.SetLimit(2)
	g.Go(func() error {
		emb = a.embed(ctx, image)
		return nil
	})
	g.Go(func() error {
		grade = a.grade(ctx, image)
		return nil
	})
	// Each step absorbs its own failure, so Wait never reports one.
	g.Wait()

	res := assessment.RetinalResult{
		Grade:      grade.grade,
		Confidence: grade.confidence,
		Findings:   grade.findings,
		Summary:    grade.summary,
		Metadata: map[string]any{
			"vision_model":    a.cfg.VisionModel,
			"embedding_model": a.cfg.EmbedModel,
		},
	}
	if res.Summary == "" {
		res.Summary = emb.summary
	}
	if emb.dim > 0 {
		res.Metadata["embedding_dim"] = emb.dim
	}

	var warnings []string
	if grade.err != nil {
		warnings = append(warnings, fmt.Sprintf("Retinal grading failed: %v", grade.err))
	}
	return res, warnings
}

type embedding struct {
	dim     int
	summary string
}

func (a *Analyzer) embed(ctx context.Context, image []byte) embedding {
	if a.cfg.Embedder == nil {
		return embedding{summary: "Retinal embedding not configured."}
	}
	vec, err := a.cfg.Embedder.EmbedImage(ctx, image)
	if err != nil {
		slog.Warn("retinal embedding failed", "error", err)
		return embedding{summary: fmt.Sprintf("Retinal embedding failed: %v", err)}
	}
	if len(vec) == 0 {
		return embedding{summary: "Unable to derive embedding from image features."}
	}
	return embedding{dim: len(vec), summary: "Retinal embedding generated locally."}
}

type grading struct {
	grade      string
	confidence *float64
	findings   []string
	summary    string
	err        error
}

const gradePrompt = `You are an ophthalmology assistant grading a color fundus photograph for diabetic retinopathy.
Look for: microaneurysms, hemorrhages, hard exudates, cotton wool spots, venous beading, neovascularization, and macular involvement.
Choose one grade: None, Mild NPDR, Moderate NPDR, Severe NPDR, or PDR.
Return format: Grade: <grade> | Confidence: <0-100> | Summary: <one or two sentences naming the findings>.`

func (a *Analyzer) grade(ctx context.Context, image []byte) grading {
	lines, err := a.cfg.Grader.GenerateLinesWithImage(ctx, gradePrompt, image, maxGradeTokens)
	if err != nil {
		slog.Warn("retinal grading failed", "error", err)
		return grading{
			grade:    assessment.GradeUnknown,
			findings: []string{},
			summary:  fmt.Sprintf("Retinal grading failed: %v", err),
			err:      err,
		}
	}
	return parseGrading(lines)
}

var (
	gradeRe      = regexp.MustCompile(`(?i)\b(none|mild npdr|moderate npdr|severe npdr|pdr)\b`)
	confidenceRe = regexp.MustCompile(`(?i)confidence\s*[:\-]?\s*(\d{1,3})`)
)

// keywords are checked independently in this order.
var keywords = []string{
	"microaneurysm",
	"hemorrhage",
	"hard exudate",
	"cotton wool",
	"venous beading",
	"neovascularization",
	"macular",
}

func parseGrading(lines []string) grading {
	out := grading{grade: assessment.GradeUnknown, findings: []string{}}
	text := strings.Join(lines, "\n")

	if m := gradeRe.FindStringSubmatch(text); m != nil {
		out.grade = canonicalGrade(m[1])
	}
	if m := confidenceRe.FindStringSubmatch(text); m != nil {
		if v, err := strconv.ParseFloat(m[1], 64); err == nil && v <= 100 {
			out.confidence = &v
		}
	}

	lower := strings.ToLower(text)
	for _, kw := range keywords {
		if strings.Contains(lower, kw) {
			out.findings = append(out.findings, kw)
			if len(out.findings) == maxFindings {
				break
			}
		}
	}

	if len(lines) > 0 {
		out.summary = lines[len(lines)-1]
	}
	return out
}

func canonicalGrade(s string) string {
	for _, g := range assessment.Grades {
		if strings.EqualFold(g, s) {
			return g
		}
	}
	return assessment.GradeUnknown
}

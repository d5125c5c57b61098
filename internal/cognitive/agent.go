// Package cognitive scores free-text cognitive screening notes on the
// Mini-Cog 0-5 scale.
package cognitive

import (
	"context"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/diarisk/diarisk/internal/assessment"
)

const (
	FlagNoInput  = "no_cognitive_input"
	FlagDisabled = "cognitive_disabled"
)

const maxTokens = 128

type Generator interface {
	GenerateLines(ctx context.Context, prompt string, maxTokens int) ([]string, error)
}

// Agent scores notes. A nil Generator means generation is disabled.
type Agent struct {
	gen Generator
}

func New(gen Generator) *Agent {
	return &Agent{gen: gen}
}

func (a *Agent) Disabled() bool { return a.gen == nil }

// Score returns a result flagged no_cognitive_input for blank notes without
// calling the model. An unparseable score leaves Score nil.
func (a *Agent) Score(ctx context.Context, notes string) (assessment.CognitiveResult, error) {
	if strings.TrimSpace(notes) == "" {
		return assessment.CognitiveResult{Flags: []string{FlagNoInput}}, nil
	}
	if a.Disabled() {
		return assessment.CognitiveResult{
			Summary: "Cognitive agent disabled.",
			Flags:   []string{FlagDisabled},
		}, nil
	}

	lines, err := a.gen.GenerateLines(ctx, buildPrompt(notes), maxTokens)
	if err != nil {
		return assessment.CognitiveResult{}, fmt.Errorf("scoring cognitive notes: %w", err)
	}
	return parse(lines), nil
}

func buildPrompt(notes string) string {
	return "You are a clinician scoring a Mini-Cog cognitive screen (0-5).\n" +
		"Use the notes to estimate a score and give a one-sentence summary.\n" +
		"Return format: Score: X/5 | Summary: <one sentence>.\n\n" +
		"Notes: " + strings.TrimSpace(notes) + "\n"
}

var (
	scoreRe   = regexp.MustCompile(`(?i)score\s*[:\-]?\s*(\d(?:\.\d+)?)\s*/\s*5`)
	summaryRe = regexp.MustCompile(`(?i)summary\s*[:\-]?\s*(.+)$`)
)

func parse(lines []string) assessment.CognitiveResult {
	out := assessment.CognitiveResult{Flags: []string{}}
	text := strings.Join(lines, " ")

	if m := scoreRe.FindStringSubmatch(text); m != nil {
		if v, err := strconv.ParseFloat(m[1], 64); err == nil {
			out.Score = &v
		}
	}
	if m := summaryRe.FindStringSubmatch(text); m != nil {
		out.Summary = strings.TrimSpace(m[1])
	}
	return out
}

// Package recommend turns risk scores into at most three actionable
// recommendations.
package recommend

import (
	"context"
	"fmt"
	"strings"

	"github.com/diarisk/diarisk/internal/assessment"
)

const (
	maxTokens = 256
	maxItems  = 3
)

type Generator interface {
	GenerateLines(ctx context.Context, prompt string, maxTokens int) ([]string, error)
}

// fallback is returned when generation is disabled or yields nothing usable.
var fallback = []assessment.Recommendation{
	{
		Title:          "Lower A1C toward 7%",
		ExpectedImpact: "Reduce multi-complication risk",
		Rationale:      "Better glycemic control lowers vascular and cognitive risk.",
	},
	{
		Title:          "Optimize blood pressure",
		ExpectedImpact: "Lower heart and kidney risk",
		Rationale:      "BP control reduces microvascular damage.",
	},
	{
		Title:          "Keep annual eye and kidney screening",
		ExpectedImpact: "Early detection of complications",
		Rationale:      "Screening catches silent progression before symptoms.",
	},
}

// Fallback returns a copy of the fixed recommendation list.
func Fallback() []assessment.Recommendation {
	return append([]assessment.Recommendation(nil), fallback...)
}

// Engine generates recommendations. A nil Generator means generation is disabled.
type Engine struct {
	gen Generator
}

func New(gen Generator) *Engine {
	return &Engine{gen: gen}
}

func (e *Engine) Disabled() bool { return e.gen == nil }

// Generate always returns between one and three items unless the backend
// call itself fails.
func (e *Engine) Generate(ctx context.Context, scores assessment.RiskScores) ([]assessment.Recommendation, error) {
	if e.Disabled() {
		return Fallback(), nil
	}

	lines, err := e.gen.GenerateLines(ctx, buildPrompt(scores), maxTokens)
	if err != nil {
		return nil, fmt.Errorf("generating recommendations: %w", err)
	}
	if recs := parse(lines); len(recs) > 0 {
		return recs, nil
	}
	return Fallback(), nil
}

func buildPrompt(s assessment.RiskScores) string {
	var b strings.Builder
	b.WriteString("You are a diabetes care assistant. Suggest up to three actions that would most reduce this patient's complication risk.\n")
	b.WriteString("Return one per line in the format: Title | Expected impact | Rationale\n\n")
	b.WriteString("Risk scores:\n")
	for _, row := range []struct {
		name string
		risk assessment.ComplicationRisk
	}{
		{"Dementia", s.Dementia},
		{"Cardiovascular", s.Cardiovascular},
		{"Retinopathy", s.Retinopathy},
		{"Nephropathy", s.Nephropathy},
		{"Neuropathy", s.Neuropathy},
	} {
		fmt.Fprintf(&b, "- %s: %.1f (%s)\n", row.name, row.risk.Score, row.risk.Level)
	}
	return b.String()
}

// parse keeps lines with at least three "|"-separated parts, trimming spaces
// and list dashes from each part.
func parse(lines []string) []assessment.Recommendation {
	var out []assessment.Recommendation
	for _, line := range lines {
		if strings.Count(line, "|") < 2 {
			continue
		}
		parts := strings.Split(line, "|")
		for i := range parts {
			parts[i] = strings.Trim(parts[i], " -")
		}
		if parts[0] == "" || parts[1] == "" || parts[2] == "" {
			continue
		}
		out = append(out, assessment.Recommendation{
			Title:          parts[0],
			ExpectedImpact: parts[1],
			Rationale:      parts[2],
		})
		if len(out) == maxItems {
			break
		}
	}
	return out
}

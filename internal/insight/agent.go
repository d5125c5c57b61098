// Package insight writes a short narrative over a patient's lab values.
package insight

import (
	"context"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/diarisk/diarisk/internal/assessment"
)

// FlagDisabled marks the stub returned when text generation is switched off.
const FlagDisabled = "lab_agent_disabled"

const (
	maxTokens     = 192
	maxHighlights = 3
)

// Generator is the text generation the agent depends on.
type Generator interface {
	GenerateLines(ctx context.Context, prompt string, maxTokens int) ([]string, error)
}

// Agent interprets lab values. A nil Generator means generation is disabled.
type Agent struct {
	gen Generator
}

func New(gen Generator) *Agent {
	return &Agent{gen: gen}
}

// Disabled reports whether Interpret returns the stub without calling a model.
func (a *Agent) Disabled() bool { return a.gen == nil }

// Interpret summarizes labs. Backend errors are returned to the caller.
func (a *Agent) Interpret(ctx context.Context, labs assessment.LabValues) (assessment.LabInsights, error) {
	if a.Disabled() {
		return assessment.LabInsights{
			Summary:    "Lab Value Agent disabled.",
			Highlights: []string{},
			Flags:      []string{FlagDisabled},
		}, nil
	}

	lines, err := a.gen.GenerateLines(ctx, buildPrompt(labs), maxTokens)
	if err != nil {
		return assessment.LabInsights{}, fmt.Errorf("interpreting labs: %w", err)
	}
	return parse(lines), nil
}

func buildPrompt(labs assessment.LabValues) string {
	var b strings.Builder
	b.WriteString("You are a clinical assistant reviewing diabetes-related lab results.\n")
	b.WriteString("Summarize the most important findings in one sentence and list up to three highlights.\n")
	b.WriteString("Return format: Summary: <sentence> | Highlights: <item1>; <item2>; <item3>.\n\n")
	b.WriteString("Labs:\n")
	for _, row := range []struct {
		label string
		v     *float64
	}{
		{"A1C", labs.A1C},
		{"Fasting glucose", labs.FastingGlucose},
		{"eGFR", labs.EGFR},
		{"Creatinine", labs.Creatinine},
		{"LDL", labs.LDL},
		{"HDL", labs.HDL},
		{"Triglycerides", labs.Triglycerides},
		{"Urine albumin", labs.UrineAlbumin},
		{"Systolic BP", labs.SystolicBP},
		{"Diastolic BP", labs.DiastolicBP},
	} {
		fmt.Fprintf(&b, "- %s: %s\n", row.label, formatValue(row.v))
	}
	return b.String()
}

// formatValue renders an absent value as the literal None.
func formatValue(v *float64) string {
	if v == nil {
		return "None"
	}
	return strconv.FormatFloat(*v, 'f', -1, 64)
}

var (
	summaryRe    = regexp.MustCompile(`(?i)summary\s*[:\-]?\s*([^|]+)`)
	highlightsRe = regexp.MustCompile(`(?i)highlights?\s*[:\-]?\s*(.+)$`)
)

func parse(lines []string) assessment.LabInsights {
	out := assessment.LabInsights{Highlights: []string{}, Flags: []string{}}
	text := strings.Join(lines, " ")

	if m := summaryRe.FindStringSubmatch(text); m != nil {
		out.Summary = strings.TrimSpace(m[1])
	}
	if out.Summary == "" && len(lines) > 0 {
		out.Summary = lines[0]
	}

	if m := highlightsRe.FindStringSubmatch(text); m != nil {
		for _, item := range strings.Split(m[1], ";") {
			item = strings.TrimRight(strings.TrimSpace(item), ".")
			if item == "" {
				continue
			}
			out.Highlights = append(out.Highlights, item)
			if len(out.Highlights) == maxHighlights {
				break
			}
		}
	}
	return out
}

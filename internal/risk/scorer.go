// Package risk computes the five complication-risk scores from lab values,
// the retinal grade and the cognitive screening score.
//
// Scoring is additive: each domain starts from a fixed baseline and every
// triggered condition adds a fixed number of points and contributes a factor.
// A missing input never triggers a condition.
package risk

import "github.com/diarisk/diarisk/internal/assessment"

const (
	// Level breakpoints: score < moderateAt is Low, score < highAt is Moderate.
	moderateAt = 35.0
	highAt     = 60.0

	maxKeyFactors = 3
)

// Scorer is stateless; the zero value is ready to use.
type Scorer struct{}

// New returns a Scorer.
func New() *Scorer { return &Scorer{} }

// Score computes all five domain scores. retinal and cognitive may be nil.
func (s *Scorer) Score(labs assessment.LabValues, retinal *assessment.RetinalResult, cognitive *assessment.CognitiveResult) assessment.RiskScores {
	return assessment.RiskScores{
		Dementia:       dementia(labs, cognitive),
		Cardiovascular: cardiovascular(labs),
		Retinopathy:    retinopathy(labs, retinal),
		Nephropathy:    nephropathy(labs),
		Neuropathy:     neuropathy(labs),
	}
}

// tally accumulates points and factors for one domain.
type tally struct {
	score   float64
	factors []string
}

func (t *tally) add(points float64, factor string) {
	t.score += points
	t.factors = append(t.factors, factor)
}

// note records a factor without changing the score.
func (t *tally) note(factor string) {
	t.factors = append(t.factors, factor)
}

func (t *tally) risk() assessment.ComplicationRisk {
	score := clamp(t.score)
	factors := t.factors
	if len(factors) > maxKeyFactors {
		factors = factors[:maxKeyFactors]
	}
	if factors == nil {
		factors = []string{}
	}
	return assessment.ComplicationRisk{
		Score:             score,
		Level:             Level(score),
		KeyFactors:        factors,
		ProtectiveFactors: []string{},
	}
}

func clamp(v float64) float64 {
	return min(max(v, 0), 100)
}

// Level maps a clamped score to its risk level.
func Level(score float64) string {
	switch {
	case score < moderateAt:
		return assessment.LevelLow
	case score < highAt:
		return assessment.LevelModerate
	default:
		return assessment.LevelHigh
	}
}

// atLeast reports whether v is present and >= threshold.
func atLeast(v *float64, threshold float64) bool {
	return v != nil && *v >= threshold
}

func below(v *float64, threshold float64) bool {
	return v != nil && *v < threshold
}

func dementia(labs assessment.LabValues, cognitive *assessment.CognitiveResult) assessment.ComplicationRisk {
	t := tally{score: 20}
	switch {
	case atLeast(labs.A1C, 8):
		t.add(15, "A1C above 8%")
	case atLeast(labs.A1C, 7):
		t.add(10, "A1C above 7%")
	}
	if atLeast(labs.SystolicBP, 140) {
		t.add(8, "Elevated systolic blood pressure")
	}
	if cognitive != nil && cognitive.Score != nil {
		switch score := *cognitive.Score; {
		case score <= 2:
			t.add(12, "Low cognitive screening score")
		case score <= 3:
			t.add(8, "Borderline cognitive screening score")
		}
	}
	return t.risk()
}

func cardiovascular(labs assessment.LabValues) assessment.ComplicationRisk {
	t := tally{score: 18}
	if atLeast(labs.LDL, 130) {
		t.add(10, "LDL above 130")
	}
	if atLeast(labs.SystolicBP, 140) {
		t.add(10, "Systolic BP above 140")
	}
	if atLeast(labs.A1C, 7) {
		t.add(6, "A1C above 7%")
	}
	return t.risk()
}

func nephropathy(labs assessment.LabValues) assessment.ComplicationRisk {
	t := tally{score: 15}
	if below(labs.EGFR, 60) {
		t.add(12, "Reduced eGFR")
	}
	if atLeast(labs.UrineAlbumin, 30) {
		t.add(10, "Elevated urine albumin")
	}
	if atLeast(labs.A1C, 7.5) {
		t.add(6, "A1C above 7.5%")
	}
	return t.risk()
}

func retinopathy(labs assessment.LabValues, retinal *assessment.RetinalResult) assessment.ComplicationRisk {
	t := tally{score: 10}
	if atLeast(labs.A1C, 7.5) {
		t.add(8, "A1C above 7.5%")
	}
	if retinal == nil || retinal.Grade == assessment.GradeUnknown || retinal.Grade == assessment.GradeNotAnalyzed {
		t.note("Retinal image not graded")
	}
	return t.risk()
}

func neuropathy(labs assessment.LabValues) assessment.ComplicationRisk {
	t := tally{score: 12}
	if atLeast(labs.A1C, 7.5) {
		t.add(7, "A1C above 7.5%")
	}
	return t.risk()
}

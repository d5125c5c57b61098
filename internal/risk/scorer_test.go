package risk

import (
	"reflect"
	"testing"

	"github.com/diarisk/diarisk/internal/assessment"
)

func f(v float64) *float64 { return assessment.Float64(v) }

func TestScore_EmptyLabsGiveBaselines(t *testing.T) {
	got := New().Score(assessment.LabValues{}, nil, nil)

	tests := []struct {
		name string
		risk assessment.ComplicationRisk
		want float64
	}{
		{"dementia", got.Dementia, 20},
		{"cardiovascular", got.Cardiovascular, 18},
		{"nephropathy", got.Nephropathy, 15},
		{"retinopathy", got.Retinopathy, 10},
		{"neuropathy", got.Neuropathy, 12},
	}
	for _, tt := range tests {
		if tt.risk.Score != tt.want {
			t.Errorf("%s score = %v, want %v", tt.name, tt.risk.Score, tt.want)
		}
		if tt.risk.Level != assessment.LevelLow {
			t.Errorf("%s level = %q, want Low", tt.name, tt.risk.Level)
		}
	}
}

func TestScore_Dementia(t *testing.T) {
	labs := assessment.LabValues{A1C: f(9.0), SystolicBP: f(150)}
	cog := &assessment.CognitiveResult{Score: f(1.5)}

	got := New().Score(labs, nil, cog).Dementia
	if got.Score != 55 {
		t.Errorf("score = %v, want 55", got.Score)
	}
	if got.Level != assessment.LevelModerate {
		t.Errorf("level = %q, want Moderate", got.Level)
	}
	want := []string{"A1C above 8%", "Elevated systolic blood pressure", "Low cognitive screening score"}
	if !reflect.DeepEqual(got.KeyFactors, want) {
		t.Errorf("factors = %v, want %v", got.KeyFactors, want)
	}
}

func TestScore_DementiaBorderlineCognition(t *testing.T) {
	labs := assessment.LabValues{A1C: f(7.2)}
	cog := &assessment.CognitiveResult{Score: f(3)}

	got := New().Score(labs, nil, cog).Dementia
	if got.Score != 38 {
		t.Errorf("score = %v, want 38", got.Score)
	}
	want := []string{"A1C above 7%", "Borderline cognitive screening score"}
	if !reflect.DeepEqual(got.KeyFactors, want) {
		t.Errorf("factors = %v, want %v", got.KeyFactors, want)
	}
}

func TestScore_CognitionWithoutScoreIsNeutral(t *testing.T) {
	cog := &assessment.CognitiveResult{Summary: "unclear", Flags: []string{}}
	got := New().Score(assessment.LabValues{}, nil, cog).Dementia
	if got.Score != 20 || len(got.KeyFactors) != 0 {
		t.Errorf("got %+v, want baseline with no factors", got)
	}
}

func TestScore_Cardiovascular(t *testing.T) {
	labs := assessment.LabValues{LDL: f(140), SystolicBP: f(145), A1C: f(7.5)}
	got := New().Score(labs, nil, nil).Cardiovascular
	if got.Score != 44 || got.Level != assessment.LevelModerate {
		t.Errorf("got %v/%s, want 44/Moderate", got.Score, got.Level)
	}
}

func TestScore_Nephropathy(t *testing.T) {
	labs := assessment.LabValues{EGFR: f(55), UrineAlbumin: f(40), A1C: f(8.0)}
	got := New().Score(labs, nil, nil).Nephropathy
	if got.Score != 43 || got.Level != assessment.LevelModerate {
		t.Errorf("got %v/%s, want 43/Moderate", got.Score, got.Level)
	}
	want := []string{"Reduced eGFR", "Elevated urine albumin", "A1C above 7.5%"}
	if !reflect.DeepEqual(got.KeyFactors, want) {
		t.Errorf("factors = %v, want %v", got.KeyFactors, want)
	}
}

func TestScore_RetinopathyNotGraded(t *testing.T) {
	labs := assessment.LabValues{A1C: f(8)}

	tests := []struct {
		name    string
		retinal *assessment.RetinalResult
		noted   bool
	}{
		{"absent", nil, true},
		{"unknown", &assessment.RetinalResult{Grade: assessment.GradeUnknown}, true},
		{"not analyzed", &assessment.RetinalResult{Grade: assessment.GradeNotAnalyzed}, true},
		{"graded", &assessment.RetinalResult{Grade: assessment.GradeModerate}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := New().Score(labs, tt.retinal, nil).Retinopathy
			if got.Score != 18 {
				t.Errorf("score = %v, want 18", got.Score)
			}
			want := []string{"A1C above 7.5%"}
			if tt.noted {
				want = append(want, "Retinal image not graded")
			}
			if !reflect.DeepEqual(got.KeyFactors, want) {
				t.Errorf("factors = %v, want %v", got.KeyFactors, want)
			}
		})
	}
}

func TestScore_Neuropathy(t *testing.T) {
	got := New().Score(assessment.LabValues{A1C: f(7.5)}, nil, nil).Neuropathy
	if got.Score != 19 {
		t.Errorf("score = %v, want 19", got.Score)
	}
	got = New().Score(assessment.LabValues{A1C: f(7.4)}, nil, nil).Neuropathy
	if got.Score != 12 {
		t.Errorf("score = %v, want 12", got.Score)
	}
}

func TestScore_InvariantsAcrossInputs(t *testing.T) {
	inputs := []assessment.LabValues{
		{},
		{A1C: f(14), SystolicBP: f(240), LDL: f(390), EGFR: f(6), UrineAlbumin: f(900)},
		{A1C: f(6.1), SystolicBP: f(118), LDL: f(90), EGFR: f(95), UrineAlbumin: f(5)},
		{A1C: f(-3), EGFR: f(-10)},
	}
	for _, labs := range inputs {
		got := New().Score(labs, nil, &assessment.CognitiveResult{Score: f(0)})
		for _, r := range []assessment.ComplicationRisk{got.Dementia, got.Cardiovascular, got.Retinopathy, got.Nephropathy, got.Neuropathy} {
			if r.Score < 0 || r.Score > 100 {
				t.Errorf("score %v out of [0,100]", r.Score)
			}
			if r.Level != Level(r.Score) {
				t.Errorf("level %q inconsistent with score %v", r.Level, r.Score)
			}
			if len(r.KeyFactors) > 3 {
				t.Errorf("%d key factors, want <= 3", len(r.KeyFactors))
			}
			if r.ProtectiveFactors == nil || len(r.ProtectiveFactors) != 0 {
				t.Errorf("protective factors = %v, want empty", r.ProtectiveFactors)
			}
		}
	}
}

func TestScore_Deterministic(t *testing.T) {
	labs := assessment.LabValues{A1C: f(8.4), LDL: f(150), SystolicBP: f(142), EGFR: f(48)}
	retinal := &assessment.RetinalResult{Grade: assessment.GradeMildNPDR}
	cog := &assessment.CognitiveResult{Score: f(2.5)}

	s := New()
	a := s.Score(labs, retinal, cog)
	b := s.Score(labs, retinal, cog)
	if !reflect.DeepEqual(a, b) {
		t.Errorf("Score not deterministic:\n%+v\n%+v", a, b)
	}
}

func TestLevel(t *testing.T) {
	tests := []struct {
		score float64
		want  string
	}{
		{0, "Low"},
		{34.9, "Low"},
		{35, "Moderate"},
		{59.99, "Moderate"},
		{60, "High"},
		{100, "High"},
	}
	for _, tt := range tests {
		if got := Level(tt.score); got != tt.want {
			t.Errorf("Level(%v) = %q, want %q", tt.score, got, tt.want)
		}
	}
}

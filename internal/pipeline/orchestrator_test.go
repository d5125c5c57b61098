package pipeline

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/png"
	"reflect"
	"strings"
	"testing"

	"github.com/diarisk/diarisk/internal/assessment"
	"github.com/diarisk/diarisk/internal/cognitive"
	"github.com/diarisk/diarisk/internal/risk"
)

type fakeIntake struct {
	res assessment.LabParseResult
	err error
}

func (f *fakeIntake) Parse(context.Context, string, []byte) (assessment.LabParseResult, error) {
	return f.res, f.err
}

type fakeInsight struct {
	disabled bool
	err      error
}

func (f *fakeInsight) Interpret(context.Context, assessment.LabValues) (assessment.LabInsights, error) {
	if f.err != nil {
		return assessment.LabInsights{}, f.err
	}
	return assessment.LabInsights{Summary: "ok", Highlights: []string{}, Flags: []string{}}, nil
}

func (f *fakeInsight) Disabled() bool { return f.disabled }

type fakeRetinal struct {
	disabled bool
	grade    string
	warnings []string
	calls    int
	panics   bool
}

func (f *fakeRetinal) Analyze(context.Context, []byte) (assessment.RetinalResult, []string) {
	f.calls++
	if f.panics {
		panic("nil model handle")
	}
	return assessment.RetinalResult{Grade: f.grade, Findings: []string{}}, f.warnings
}

func (f *fakeRetinal) Disabled() bool { return f.disabled }

type fakeCognitive struct {
	score *float64
	flags []string
	err   error
}

func (f *fakeCognitive) Score(context.Context, string) (assessment.CognitiveResult, error) {
	return assessment.CognitiveResult{Score: f.score, Flags: f.flags}, f.err
}

func (f *fakeCognitive) Disabled() bool { return false }

type fakeRecommender struct {
	err   error
	calls int
}

func (f *fakeRecommender) Generate(context.Context, assessment.RiskScores) ([]assessment.Recommendation, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return []assessment.Recommendation{{Title: "t", ExpectedImpact: "i", Rationale: "r"}}, nil
}

func (f *fakeRecommender) Disabled() bool { return false }

func pngImage(t *testing.T) []byte {
	t.Helper()
	var buf bytes.Buffer
	if err := png.Encode(&buf, image.NewRGBA(image.Rect(0, 0, 3, 3))); err != nil {
		t.Fatal(err)
	}
	return buf.Bytes()
}

func defaultStages() Stages {
	return Stages{
		Intake: &fakeIntake{res: assessment.LabParseResult{
			Values:        assessment.LabValues{A1C: assessment.Float64(9), SystolicBP: assessment.Float64(150)},
			MissingFields: []string{},
			QualityFlags:  []string{},
		}},
		LabInsight:     &fakeInsight{},
		Retinal:        &fakeRetinal{grade: assessment.GradeMildNPDR},
		Cognitive:      &fakeCognitive{score: assessment.Float64(1.5), flags: []string{}},
		Risk:           risk.New(),
		Recommendation: &fakeRecommender{},
	}
}

func agents(trace []assessment.AgentTraceItem) []string {
	var out []string
	for _, it := range trace {
		out = append(out, it.Agent+":"+it.Status)
	}
	return out
}

func TestRun_AllStages(t *testing.T) {
	o := New(defaultStages(), nil)
	got, err := o.Run(context.Background(), Input{
		LabFilename:    "labs.pdf",
		LabData:        []byte("x"),
		RetinalImage:   pngImage(t),
		CognitiveNotes: "recalled 1 word",
	})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	want := []string{
		"Intake Agent:ok",
		"Lab Value Agent:ok",
		"Retinal Agent:ok",
		"Cognitive Agent:ok",
		"Risk Scoring Agent:ok",
		"Recommendation Agent:ok",
	}
	if !reflect.DeepEqual(agents(got.AgentTrace), want) {
		t.Errorf("trace = %v, want %v", agents(got.AgentTrace), want)
	}
	if got.RiskScores.Dementia.Score != 55 {
		t.Errorf("dementia = %v, want 55", got.RiskScores.Dementia.Score)
	}
	if got.Retinal == nil || got.Retinal.Grade != assessment.GradeMildNPDR {
		t.Errorf("retinal = %+v", got.Retinal)
	}
	if got.RequestID == "" {
		t.Error("request id not set")
	}
	if got.Warnings == nil || len(got.Warnings) != 0 {
		t.Errorf("warnings = %v, want empty non-nil", got.Warnings)
	}
}

func TestRun_NoRetinalImageSkipsStage(t *testing.T) {
	stages := defaultStages()
	ret := stages.Retinal.(*fakeRetinal)
	got, err := New(stages, nil).Run(context.Background(), Input{LabFilename: "labs.png", LabData: []byte("x")})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	if len(got.AgentTrace) != 6 {
		t.Fatalf("trace has %d entries, want 6", len(got.AgentTrace))
	}
	skipped := got.AgentTrace[2]
	want := assessment.AgentTraceItem{Agent: AgentRetinal, Status: assessment.StatusSkipped, DurationMs: 0, Notes: "No retinal image provided."}
	if skipped != want {
		t.Errorf("retinal entry = %+v, want %+v", skipped, want)
	}
	if ret.calls != 0 {
		t.Error("analyzer invoked without an image")
	}
	if got.Retinal != nil {
		t.Errorf("retinal = %+v, want nil", got.Retinal)
	}
	if !slicesContains(got.RiskScores.Retinopathy.KeyFactors, "Retinal image not graded") {
		t.Errorf("retinopathy factors = %v", got.RiskScores.Retinopathy.KeyFactors)
	}
}

func TestRun_FatalStageStopsRun(t *testing.T) {
	stages := defaultStages()
	rec := stages.Recommendation.(*fakeRecommender)
	stages.Cognitive = &fakeCognitive{err: errors.New("backend unreachable")}

	got, err := New(stages, nil).Run(context.Background(), Input{LabFilename: "labs.pdf", LabData: []byte("x")})
	if got != nil {
		t.Errorf("analysis = %+v, want nil", got)
	}

	var se *StageError
	if !errors.As(err, &se) {
		t.Fatalf("err = %v, want *StageError", err)
	}
	if se.Stage != AgentCognitive {
		t.Errorf("stage = %q", se.Stage)
	}
	want := []string{"Intake Agent:ok", "Lab Value Agent:ok", "Retinal Agent:skipped", "Cognitive Agent:error"}
	if !reflect.DeepEqual(agents(se.Trace), want) {
		t.Errorf("trace = %v, want %v", agents(se.Trace), want)
	}
	if last := se.Trace[len(se.Trace)-1]; last.Notes != "backend unreachable" {
		t.Errorf("notes = %q", last.Notes)
	}
	if rec.calls != 0 {
		t.Error("stages after the failure ran")
	}
	if len(TraceOf(err)) != 4 {
		t.Errorf("TraceOf = %v", TraceOf(err))
	}
}

func TestRun_IntakeFailure(t *testing.T) {
	stages := defaultStages()
	stages.Intake = &fakeIntake{err: errors.New("malformed pdf")}

	_, err := New(stages, nil).Run(context.Background(), Input{LabFilename: "labs.pdf"})
	if len(TraceOf(err)) != 1 || !strings.Contains(err.Error(), "Intake Agent failed") {
		t.Errorf("err = %v, trace = %v", err, TraceOf(err))
	}
}

func TestRun_UndecodableRetinalImageDegrades(t *testing.T) {
	stages := defaultStages()
	ret := stages.Retinal.(*fakeRetinal)

	got, err := New(stages, nil).Run(context.Background(), Input{
		LabFilename:  "labs.pdf",
		LabData:      []byte("x"),
		RetinalImage: []byte("definitely not an image"),
	})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if ret.calls != 0 {
		t.Error("analyzer invoked with undecodable image")
	}
	if got.Retinal.Grade != assessment.GradeUnknown || got.Retinal.Summary != "Retinal analysis failed." {
		t.Errorf("retinal = %+v", got.Retinal)
	}
	if _, ok := got.Retinal.Metadata["error"]; !ok {
		t.Error("metadata missing error")
	}
	if len(got.Warnings) != 1 || !strings.HasPrefix(got.Warnings[0], "Retinal analysis failed: ") {
		t.Errorf("warnings = %v", got.Warnings)
	}
	if entry := got.AgentTrace[2]; entry.Status != assessment.StatusOK || entry.Notes == "" {
		t.Errorf("retinal trace entry = %+v, want ok with notes", entry)
	}
}

func TestRun_RetinalWarningsSurface(t *testing.T) {
	stages := defaultStages()
	stages.Retinal = &fakeRetinal{grade: assessment.GradeUnknown, warnings: []string{"Retinal grading failed: timeout"}}

	got, err := New(stages, nil).Run(context.Background(), Input{LabData: []byte("x"), RetinalImage: pngImage(t)})
	if err != nil {
		t.Fatal(err)
	}
	if !reflect.DeepEqual(got.Warnings, []string{"Retinal grading failed: timeout"}) {
		t.Errorf("warnings = %v", got.Warnings)
	}
}

func TestRun_PanicBecomesStageError(t *testing.T) {
	stages := defaultStages()
	stages.Retinal = &fakeRetinal{panics: true}

	_, err := New(stages, nil).Run(context.Background(), Input{LabData: []byte("x"), RetinalImage: pngImage(t)})
	var se *StageError
	if !errors.As(err, &se) || se.Stage != AgentRetinal {
		t.Fatalf("err = %v, want retinal StageError", err)
	}
	if !strings.Contains(se.Err.Error(), "nil model handle") {
		t.Errorf("err = %v", se.Err)
	}
}

func TestRun_NoCognitiveInputIsDegradedNotFatal(t *testing.T) {
	stages := defaultStages()
	stages.Cognitive = &fakeCognitive{flags: []string{cognitive.FlagNoInput}}

	got, err := New(stages, nil).Run(context.Background(), Input{LabData: []byte("x")})
	if err != nil {
		t.Fatal(err)
	}
	entry := got.AgentTrace[3]
	if entry.Status != assessment.StatusOK || entry.Notes != "no cognitive notes provided" {
		t.Errorf("cognitive entry = %+v", entry)
	}
}

func TestRun_DisabledRetinalSkipsDecoding(t *testing.T) {
	stages := defaultStages()
	stages.Retinal = &fakeRetinal{disabled: true, grade: assessment.GradeNotAnalyzed}

	got, err := New(stages, nil).Run(context.Background(), Input{LabData: []byte("x"), RetinalImage: []byte("garbage")})
	if err != nil {
		t.Fatal(err)
	}
	if got.Retinal.Grade != assessment.GradeNotAnalyzed || len(got.Warnings) != 0 {
		t.Errorf("retinal = %+v warnings = %v", got.Retinal, got.Warnings)
	}
	if got.AgentTrace[2].Notes != "retinal analysis disabled" {
		t.Errorf("notes = %q", got.AgentTrace[2].Notes)
	}
}

func TestOutcomeString(t *testing.T) {
	if Degraded.String() != "degraded" || Outcome(9).String() != "Outcome(9)" {
		t.Error("unexpected Outcome strings")
	}
}

func slicesContains(s []string, v string) bool {
	for _, x := range s {
		if x == v {
			return true
		}
	}
	return false
}

// Package pipeline runs one complication-risk analysis: lab intake, lab
// interpretation, retinal grading, cognitive scoring, risk scoring and
// recommendations, in that order, recording a trace entry per stage.
package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/diarisk/diarisk/internal/assessment"
	"github.com/diarisk/diarisk/internal/cognitive"
	"github.com/diarisk/diarisk/internal/imaging"
	"github.com/diarisk/diarisk/internal/telemetry"
)

// Stage names as they appear in the agent trace.
const (
	AgentIntake         = "Intake Agent"
	AgentLabValues      = "Lab Value Agent"
	AgentRetinal        = "Retinal Agent"
	AgentCognitive      = "Cognitive Agent"
	AgentRiskScoring    = "Risk Scoring Agent"
	AgentRecommendation = "Recommendation Agent"
)

type LabParser interface {
	Parse(ctx context.Context, filename string, data []byte) (assessment.LabParseResult, error)
}

type LabInterpreter interface {
	Interpret(ctx context.Context, labs assessment.LabValues) (assessment.LabInsights, error)
	Disabled() bool
}

type RetinalGrader interface {
	Analyze(ctx context.Context, image []byte) (assessment.RetinalResult, []string)
	Disabled() bool
}

type CognitiveScorer interface {
	Score(ctx context.Context, notes string) (assessment.CognitiveResult, error)
	Disabled() bool
}

type RiskScorer interface {
	Score(labs assessment.LabValues, retinal *assessment.RetinalResult, cognitive *assessment.CognitiveResult) assessment.RiskScores
}

type Recommender interface {
	Generate(ctx context.Context, scores assessment.RiskScores) ([]assessment.Recommendation, error)
	Disabled() bool
}

// Stages are the components an Orchestrator sequences.
type Stages struct {
	Intake         LabParser
	LabInsight     LabInterpreter
	Retinal        RetinalGrader
	Cognitive      CognitiveScorer
	Risk           RiskScorer
	Recommendation Recommender
}

// Orchestrator holds no per-request state and is safe for concurrent use.
type Orchestrator struct {
	stages Stages
	logger *slog.Logger
	tracer trace.Tracer
}

func New(stages Stages, logger *slog.Logger) *Orchestrator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Orchestrator{
		stages: stages,
		logger: logger.With("component", "pipeline"),
		tracer: telemetry.Tracer("github.com/diarisk/diarisk/internal/pipeline"),
	}
}

// Input is one analysis request. RetinalImage and CognitiveNotes are optional.
type Input struct {
	LabFilename    string
	LabData        []byte
	RetinalImage   []byte
	CognitiveNotes string
}

// ParseLabs runs lab intake alone, outside any analysis.
func (o *Orchestrator) ParseLabs(ctx context.Context, filename string, data []byte) (assessment.LabParseResult, error) {
	return o.stages.Intake.Parse(ctx, filename, data)
}

// Run executes every stage in order. A fatal stage stops the run and is
// returned as a *StageError carrying the trace so far.
func (o *Orchestrator) Run(ctx context.Context, in Input) (_ *assessment.Analysis, err error) {
	requestID := uuid.NewString()
	start := time.Now()

	ctx, span := o.tracer.Start(ctx, "analysis", trace.WithAttributes(
		attribute.String("request_id", requestID),
		attribute.Bool("retinal_image", len(in.RetinalImage) > 0),
	))
	defer func() { telemetry.End(span, err) }()

	rs := &runState{
		logger: o.logger.With("request_id", requestID),
		tracer: o.tracer,
	}

	labs, err := runStage(ctx, rs, AgentIntake, func(ctx context.Context) Result[assessment.LabParseResult] {
		return o.intake(ctx, in)
	})
	if err != nil {
		return nil, err
	}

	insights, err := runStage(ctx, rs, AgentLabValues, func(ctx context.Context) Result[assessment.LabInsights] {
		return o.labInsight(ctx, labs.Values)
	})
	if err != nil {
		return nil, err
	}

	var retinal *assessment.RetinalResult
	if len(in.RetinalImage) > 0 {
		res, err := runStage(ctx, rs, AgentRetinal, func(ctx context.Context) Result[assessment.RetinalResult] {
			return o.retinal(ctx, in.RetinalImage)
		})
		if err != nil {
			return nil, err
		}
		retinal = &res
	} else {
		rs.skip(AgentRetinal, "No retinal image provided.")
	}

	cog, err := runStage(ctx, rs, AgentCognitive, func(ctx context.Context) Result[assessment.CognitiveResult] {
		return o.cognitive(ctx, in.CognitiveNotes)
	})
	if err != nil {
		return nil, err
	}

	scores, err := runStage(ctx, rs, AgentRiskScoring, func(ctx context.Context) Result[assessment.RiskScores] {
		return succeeded(o.stages.Risk.Score(labs.Values, retinal, &cog))
	})
	if err != nil {
		return nil, err
	}

	recs, err := runStage(ctx, rs, AgentRecommendation, func(ctx context.Context) Result[[]assessment.Recommendation] {
		return o.recommend(ctx, scores)
	})
	if err != nil {
		return nil, err
	}

	warnings := rs.warnings
	if warnings == nil {
		warnings = []string{}
	}
	rs.logger.Info("analysis complete",
		"duration_ms", time.Since(start).Milliseconds(),
		"warnings", len(warnings),
	)

	return &assessment.Analysis{
		RequestID:       requestID,
		Labs:            labs,
		LabInsights:     &insights,
		Retinal:         retinal,
		Cognitive:       &cog,
		RiskScores:      scores,
		Recommendations: recs,
		AgentTrace:      rs.trace,
		Warnings:        warnings,
	}, nil
}

func (o *Orchestrator) intake(ctx context.Context, in Input) Result[assessment.LabParseResult] {
	labs, err := o.stages.Intake.Parse(ctx, in.LabFilename, in.LabData)
	if err != nil {
		return fatal[assessment.LabParseResult](err)
	}
	if len(labs.QualityFlags) > 0 {
		return degraded(labs, "quality flags: "+strings.Join(labs.QualityFlags, ", "))
	}
	return succeeded(labs)
}

func (o *Orchestrator) labInsight(ctx context.Context, labs assessment.LabValues) Result[assessment.LabInsights] {
	res, err := o.stages.LabInsight.Interpret(ctx, labs)
	if err != nil {
		return fatal[assessment.LabInsights](err)
	}
	if o.stages.LabInsight.Disabled() {
		return degraded(res, "text generation disabled")
	}
	return succeeded(res)
}

func (o *Orchestrator) retinal(ctx context.Context, image []byte) Result[assessment.RetinalResult] {
	if o.stages.Retinal.Disabled() {
		res, _ := o.stages.Retinal.Analyze(ctx, image)
		return degraded(res, "retinal analysis disabled")
	}

	png, err := imaging.Normalize(image)
	if err != nil {
		msg := err.Error()
		return degraded(assessment.RetinalResult{
			Grade:    assessment.GradeUnknown,
			Findings: []string{},
			Summary:  "Retinal analysis failed.",
			Metadata: map[string]any{"error": msg},
		}, "image could not be decoded", fmt.Sprintf("Retinal analysis failed: %s", msg))
	}

	res, warnings := o.stages.Retinal.Analyze(ctx, png)
	if len(warnings) > 0 {
		return degraded(res, strings.Join(warnings, "; "), warnings...)
	}
	return succeeded(res)
}

func (o *Orchestrator) cognitive(ctx context.Context, notes string) Result[assessment.CognitiveResult] {
	res, err := o.stages.Cognitive.Score(ctx, notes)
	if err != nil {
		return fatal[assessment.CognitiveResult](err)
	}
	for _, f := range res.Flags {
		switch f {
		case cognitive.FlagNoInput:
			return degraded(res, "no cognitive notes provided")
		case cognitive.FlagDisabled:
			return degraded(res, "text generation disabled")
		}
	}
	return succeeded(res)
}

func (o *Orchestrator) recommend(ctx context.Context, scores assessment.RiskScores) Result[[]assessment.Recommendation] {
	recs, err := o.stages.Recommendation.Generate(ctx, scores)
	if err != nil {
		return fatal[[]assessment.Recommendation](err)
	}
	if o.stages.Recommendation.Disabled() {
		return degraded(recs, "text generation disabled; fallback recommendations")
	}
	return succeeded(recs)
}

// runState accumulates the trace and warnings of one run.
type runState struct {
	logger   *slog.Logger
	tracer   trace.Tracer
	trace    []assessment.AgentTraceItem
	warnings []string
}

func (rs *runState) skip(agent, notes string) {
	rs.trace = append(rs.trace, assessment.AgentTraceItem{
		Agent:  agent,
		Status: assessment.StatusSkipped,
		Notes:  notes,
	})
	rs.logger.Debug("stage skipped", "agent", agent, "notes", notes)
}

// runStage times fn, records its trace entry and span, and converts a
// fatal result (or a panic) into a *StageError.
func runStage[T any](ctx context.Context, rs *runState, agent string, fn func(context.Context) Result[T]) (T, error) {
	ctx, span := rs.tracer.Start(ctx, agent)
	start := time.Now()

	res := func() (res Result[T]) {
		defer func() {
			if r := recover(); r != nil {
				res = fatal[T](fmt.Errorf("panic: %v", r))
			}
		}()
		return fn(ctx)
	}()

	item := assessment.AgentTraceItem{
		Agent:      agent,
		Status:     assessment.StatusOK,
		DurationMs: time.Since(start).Milliseconds(),
	}
	span.SetAttributes(attribute.String("outcome", res.Outcome.String()))

	switch res.Outcome {
	case Degraded:
		item.Notes = res.Reason
		rs.logger.Warn("stage degraded", "agent", agent, "reason", res.Reason, "duration_ms", item.DurationMs)
	case Fatal:
		item.Status = assessment.StatusError
		item.Notes = res.Err.Error()
		rs.logger.Error("stage failed", "agent", agent, "error", res.Err, "duration_ms", item.DurationMs)
	default:
		rs.logger.Debug("stage complete", "agent", agent, "duration_ms", item.DurationMs)
	}

	rs.trace = append(rs.trace, item)
	rs.warnings = append(rs.warnings, res.Warnings...)
	telemetry.End(span, res.Err)

	if res.Outcome == Fatal {
		var zero T
		return zero, &StageError{
			Stage: agent,
			Trace: append([]assessment.AgentTraceItem(nil), rs.trace...),
			Err:   res.Err,
		}
	}
	return res.Value, nil
}

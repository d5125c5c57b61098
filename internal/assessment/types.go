// Package assessment holds the data model shared by every stage of a
// complication-risk analysis.
package assessment

// LabValues holds the ten recognised lab fields. A nil field means the value
// was not found in the report.
type LabValues struct {
	A1C            *float64 `json:"a1c"`
	FastingGlucose *float64 `json:"fasting_glucose"`
	EGFR           *float64 `json:"egfr"`
	Creatinine     *float64 `json:"creatinine"`
	LDL            *float64 `json:"ldl"`
	HDL            *float64 `json:"hdl"`
	Triglycerides  *float64 `json:"triglycerides"`
	UrineAlbumin   *float64 `json:"urine_albumin"`
	SystolicBP     *float64 `json:"systolic_bp"`
	DiastolicBP    *float64 `json:"diastolic_bp"`
}

// LabParseResult is the output of lab extraction.
type LabParseResult struct {
	Values        LabValues `json:"values"`
	RawText       string    `json:"raw_text"`
	MissingFields []string  `json:"missing_fields"`
	QualityFlags  []string  `json:"quality_flags"`
}

type LabInsights struct {
	Summary    string   `json:"summary"`
	Highlights []string `json:"highlights"`
	Flags      []string `json:"flags"`
}

// Diabetic retinopathy grades. GradeUnknown and GradeNotAnalyzed are
// produced by the pipeline itself, never parsed from model output.
const (
	GradeNone        = "None"
	GradeMildNPDR    = "Mild NPDR"
	GradeModerate    = "Moderate NPDR"
	GradeSevereNPDR  = "Severe NPDR"
	GradePDR         = "PDR"
	GradeUnknown     = "Unknown"
	GradeNotAnalyzed = "Not Analyzed"
)

// Grades lists the vocabulary a retinal grader may report, mildest first.
var Grades = []string{GradeNone, GradeMildNPDR, GradeModerate, GradeSevereNPDR, GradePDR}

type RetinalResult struct {
	Grade      string         `json:"grade"`
	Confidence *float64       `json:"confidence"`
	Findings   []string       `json:"findings"`
	Summary    string         `json:"summary"`
	Metadata   map[string]any `json:"model_metadata"`
}

type CognitiveResult struct {
	Score   *float64 `json:"score"`
	Summary string   `json:"summary"`
	Flags   []string `json:"flags"`
}

// Risk levels.
const (
	LevelLow      = "Low"
	LevelModerate = "Moderate"
	LevelHigh     = "High"
)

type ComplicationRisk struct {
	Score             float64  `json:"score"`
	Level             string   `json:"level"`
	KeyFactors        []string `json:"key_factors"`
	ProtectiveFactors []string `json:"protective_factors"`
}

type RiskScores struct {
	Dementia       ComplicationRisk `json:"dementia"`
	Cardiovascular ComplicationRisk `json:"cardiovascular"`
	Retinopathy    ComplicationRisk `json:"retinopathy"`
	Nephropathy    ComplicationRisk `json:"nephropathy"`
	Neuropathy     ComplicationRisk `json:"neuropathy"`
}

type Recommendation struct {
	Title          string `json:"title"`
	ExpectedImpact string `json:"expected_impact"`
	Rationale      string `json:"rationale"`
}

// Stage statuses recorded in the agent trace.
const (
	StatusOK      = "ok"
	StatusError   = "error"
	StatusSkipped = "skipped"
)

// AgentTraceItem records one pipeline stage.
type AgentTraceItem struct {
	Agent      string `json:"agent"`
	Status     string `json:"status"`
	DurationMs int64  `json:"duration_ms"`
	Notes      string `json:"notes,omitempty"`
}

// Analysis is the complete result of one pipeline run.
type Analysis struct {
	RequestID       string           `json:"request_id"`
	Labs            LabParseResult   `json:"labs"`
	LabInsights     *LabInsights     `json:"lab_insights"`
	Retinal         *RetinalResult   `json:"retinal"`
	Cognitive       *CognitiveResult `json:"cognitive"`
	RiskScores      RiskScores       `json:"risk_scores"`
	Recommendations []Recommendation `json:"recommendations"`
	AgentTrace      []AgentTraceItem `json:"agent_trace"`
	Warnings        []string         `json:"warnings"`
}

// Float64 returns a pointer to v.
func Float64(v float64) *float64 { return &v }

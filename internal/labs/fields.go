package labs

import (
	"regexp"
	"strings"

	"github.com/diarisk/diarisk/internal/assessment"
)

// field describes how one lab value is found and checked. Fields are matched
// in table order, and missing_fields and range flags follow the same order.
type field struct {
	name string
	// labels are case-insensitive; the first line matching any of them is used.
	labels []*regexp.Regexp
	// value captures the first number on the matched line.
	value    *regexp.Regexp
	min, max float64
	ref      func(v *assessment.LabValues) **float64
}

// valuePattern builds a numeric capture with an optional unit suffix. The
// number must start on a word boundary so digits inside a label such as
// "HbA1c" are never taken as the value.
func valuePattern(units ...string) *regexp.Regexp {
	p := `(?i)\b(\d+(?:\.\d+)?)`
	if len(units) > 0 {
		p += `(?:\s*(?:` + strings.Join(units, "|") + `))?`
	}
	return regexp.MustCompile(p)
}

func labels(patterns ...string) []*regexp.Regexp {
	out := make([]*regexp.Regexp, len(patterns))
	for i, p := range patterns {
		out[i] = regexp.MustCompile(`(?i)` + p)
	}
	return out
}

var fields = []field{
	{
		name:   "a1c",
		labels: labels(`\ba1c\b`, `hemoglobin a1c`, `hba1c`),
		value:  valuePattern(`%`),
		min:    3,
		max:    15,
		ref:    func(v *assessment.LabValues) **float64 { return &v.A1C },
	},
	{
		name:   "fasting_glucose",
		labels: labels(`fasting glucose`, `glucose, fasting`, `\bfpg\b`),
		value:  valuePattern(`mg/dl`, `mmol/l`),
		min:    40,
		max:    500,
		ref:    func(v *assessment.LabValues) **float64 { return &v.FastingGlucose },
	},
	{
		name:   "egfr",
		labels: labels(`\begfr\b`, `estimated gfr`),
		value:  valuePattern(`ml/min/1\.73m2`, `ml/min/1\.73`, `ml/min`),
		min:    5,
		max:    200,
		ref:    func(v *assessment.LabValues) **float64 { return &v.EGFR },
	},
	{
		name:   "creatinine",
		labels: labels(`creatinine`, `serum creatinine`),
		value:  valuePattern(`mg/dl`, `umol/l`),
		min:    0.2,
		max:    15,
		ref:    func(v *assessment.LabValues) **float64 { return &v.Creatinine },
	},
	{
		name:   "ldl",
		labels: labels(`\bldl\b`, `ldl cholesterol`),
		value:  valuePattern(`mg/dl`, `mmol/l`),
		min:    20,
		max:    400,
		ref:    func(v *assessment.LabValues) **float64 { return &v.LDL },
	},
	{
		name:   "hdl",
		labels: labels(`\bhdl\b`, `hdl cholesterol`),
		value:  valuePattern(`mg/dl`, `mmol/l`),
		min:    10,
		max:    120,
		ref:    func(v *assessment.LabValues) **float64 { return &v.HDL },
	},
	{
		name:   "triglycerides",
		labels: labels(`triglycerides`, `\btg\b`),
		value:  valuePattern(`mg/dl`, `mmol/l`),
		min:    20,
		max:    1000,
		ref:    func(v *assessment.LabValues) **float64 { return &v.Triglycerides },
	},
	{
		name:   "urine_albumin",
		labels: labels(`albumin/creatinine ratio`, `urine albumin`, `\bacr\b`),
		value:  valuePattern(`mg/g`, `mg/mmol`),
		min:    0,
		max:    1000,
		ref:    func(v *assessment.LabValues) **float64 { return &v.UrineAlbumin },
	},
	// Blood pressure is read as a pair by findBP; these entries only carry
	// the ranges and ordering.
	{
		name: "systolic_bp",
		min:  70,
		max:  250,
		ref:  func(v *assessment.LabValues) **float64 { return &v.SystolicBP },
	},
	{
		name: "diastolic_bp",
		min:  40,
		max:  150,
		ref:  func(v *assessment.LabValues) **float64 { return &v.DiastolicBP },
	},
}

var (
	bpLabel = regexp.MustCompile(`(?i)\b(bp|blood pressure)\b`)
	bpValue = regexp.MustCompile(`(\d{2,3})\s*/\s*(\d{2,3})`)
)

// FieldNames returns the recognized lab fields in canonical order.
func FieldNames() []string {
	names := make([]string, len(fields))
	for i, f := range fields {
		names[i] = f.name
	}
	return names
}

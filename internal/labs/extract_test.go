package labs

import (
	"reflect"
	"slices"
	"strings"
	"testing"

	"github.com/diarisk/diarisk/internal/assessment"
)

const fullReport = `CITY CLINICAL LABORATORY
Patient: J. Doe        Collected: 2024-03-02

Hemoglobin A1c          8.4 %        (4.0 - 5.6)
Glucose, Fasting        162 mg/dL
eGFR                    54 mL/min/1.73m2
Serum Creatinine        1.3 mg/dL
LDL Cholesterol         141 mg/dL
HDL Cholesterol         38 mg/dL
Triglycerides           210 mg/dL
Urine Albumin           45 mg/g
Blood Pressure          148/92 mmHg
`

func val(v *float64) any {
	if v == nil {
		return nil
	}
	return *v
}

func TestExtractValues_FullReport(t *testing.T) {
	got := ExtractValues(fullReport)

	want := map[string]any{
		"a1c":             8.4,
		"fasting_glucose": 162.0,
		"egfr":            54.0,
		"creatinine":      1.3,
		"ldl":             141.0,
		"hdl":             38.0,
		"triglycerides":   210.0,
		"urine_albumin":   45.0,
		"systolic_bp":     148.0,
		"diastolic_bp":    92.0,
	}
	v := got.Values
	gotMap := map[string]any{
		"a1c":             val(v.A1C),
		"fasting_glucose": val(v.FastingGlucose),
		"egfr":            val(v.EGFR),
		"creatinine":      val(v.Creatinine),
		"ldl":             val(v.LDL),
		"hdl":             val(v.HDL),
		"triglycerides":   val(v.Triglycerides),
		"urine_albumin":   val(v.UrineAlbumin),
		"systolic_bp":     val(v.SystolicBP),
		"diastolic_bp":    val(v.DiastolicBP),
	}
	if !reflect.DeepEqual(gotMap, want) {
		t.Errorf("values = %v\nwant     %v", gotMap, want)
	}
	if len(got.MissingFields) != 0 {
		t.Errorf("missing = %v, want none", got.MissingFields)
	}
	if len(got.QualityFlags) != 0 {
		t.Errorf("flags = %v, want none", got.QualityFlags)
	}
	if got.RawText != fullReport {
		t.Error("raw text not preserved")
	}
}

func TestExtractValues_LabelDigitsNotCaptured(t *testing.T) {
	got := ExtractValues("HbA1c result: 7.1%")
	if got.Values.A1C == nil || *got.Values.A1C != 7.1 {
		t.Errorf("a1c = %v, want 7.1", val(got.Values.A1C))
	}
}

func TestExtractValues_FirstMatchingLineWins(t *testing.T) {
	text := "LDL 150 mg/dL\nLDL repeat 120 mg/dL"
	got := ExtractValues(text)
	if *got.Values.LDL != 150 {
		t.Errorf("ldl = %v, want 150", *got.Values.LDL)
	}
}

func TestExtractValues_LabelWithoutNumberKeepsSearching(t *testing.T) {
	text := "eGFR (see note)\neGFR 72"
	got := ExtractValues(text)
	if got.Values.EGFR == nil || *got.Values.EGFR != 72 {
		t.Errorf("egfr = %v, want 72", val(got.Values.EGFR))
	}
}

func TestExtractValues_OutOfRangeKeptAndFlagged(t *testing.T) {
	text := "A1C 17.2 %\nBP 260/95\nfiller text to get past the confidence threshold ok"
	got := ExtractValues(text)

	if *got.Values.A1C != 17.2 {
		t.Errorf("a1c = %v, want 17.2 unclamped", *got.Values.A1C)
	}
	want := []string{"out_of_range_a1c", "out_of_range_systolic_bp"}
	if !reflect.DeepEqual(got.QualityFlags, want) {
		t.Errorf("flags = %v, want %v", got.QualityFlags, want)
	}
}

func TestExtractValues_BloodPressurePair(t *testing.T) {
	tests := []struct {
		name     string
		text     string
		sys, dia any
	}{
		{"labelled", "Blood pressure: 132 / 84", 132.0, 84.0},
		{"abbrev", "BP 118/76 sitting", 118.0, 76.0},
		{"no label", "Reading 140/90", nil, nil},
		{"label no pair", "BP normal", nil, nil},
		{"label inside word", "BPM 72/80", nil, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ExtractValues(tt.text)
			if val(got.Values.SystolicBP) != tt.sys || val(got.Values.DiastolicBP) != tt.dia {
				t.Errorf("bp = %v/%v, want %v/%v", val(got.Values.SystolicBP), val(got.Values.DiastolicBP), tt.sys, tt.dia)
			}
		})
	}
}

func TestExtractValues_ShortTextLowConfidence(t *testing.T) {
	got := ExtractValues("A1C 7.2")

	if !slices.Contains(got.QualityFlags, "low_text_confidence") {
		t.Errorf("flags = %v, want low_text_confidence", got.QualityFlags)
	}
	want := []string{"fasting_glucose", "egfr", "creatinine", "ldl", "hdl", "triglycerides", "urine_albumin", "systolic_bp", "diastolic_bp"}
	if !reflect.DeepEqual(got.MissingFields, want) {
		t.Errorf("missing = %v, want %v", got.MissingFields, want)
	}
}

func TestExtractValues_EmptyText(t *testing.T) {
	got := ExtractValues("")
	if !reflect.DeepEqual(got.MissingFields, FieldNames()) {
		t.Errorf("missing = %v, want all fields", got.MissingFields)
	}
	if !reflect.DeepEqual(got.QualityFlags, []string{"low_text_confidence"}) {
		t.Errorf("flags = %v", got.QualityFlags)
	}
	if got.Values != (assessment.LabValues{}) {
		t.Errorf("values = %+v, want empty", got.Values)
	}
}

func TestNormalize(t *testing.T) {
	got := normalize("  LDL \t  140   mg/dL \r\n\n   \nHDL 40")
	want := []string{"LDL 140 mg/dL", "HDL 40"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("normalize = %q, want %q", got, want)
	}
}

func TestFieldNames_Order(t *testing.T) {
	got := strings.Join(FieldNames(), ",")
	want := "a1c,fasting_glucose,egfr,creatinine,ldl,hdl,triglycerides,urine_albumin,systolic_bp,diastolic_bp"
	if got != want {
		t.Errorf("FieldNames = %s, want %s", got, want)
	}
}

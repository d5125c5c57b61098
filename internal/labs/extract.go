package labs

import (
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/diarisk/diarisk/internal/assessment"
)

// minConfidentText is the normalized text length below which the OCR output
// is assumed to have failed.
const minConfidentText = 50

const flagLowTextConfidence = "low_text_confidence"

// ExtractValues parses report text into lab values. It never fails: values
// that cannot be found are listed in MissingFields, and implausible values
// are kept but flagged.
func ExtractValues(text string) assessment.LabParseResult {
	lines := normalize(text)

	var values assessment.LabValues
	for _, f := range fields {
		if f.labels == nil {
			continue
		}
		if v, ok := findValue(lines, f); ok {
			*f.ref(&values) = &v
		}
	}
	if sys, dia, ok := findBP(lines); ok {
		values.SystolicBP = &sys
		values.DiastolicBP = &dia
	}

	missing := []string{}
	flags := []string{}
	for _, f := range fields {
		v := *f.ref(&values)
		if v == nil {
			missing = append(missing, f.name)
			continue
		}
		if *v < f.min || *v > f.max {
			flags = append(flags, "out_of_range_"+f.name)
		}
	}
	if utf8.RuneCountInString(strings.Join(lines, "\n")) < minConfidentText {
		flags = append(flags, flagLowTextConfidence)
	}

	return assessment.LabParseResult{
		Values:        values,
		RawText:       text,
		MissingFields: missing,
		QualityFlags:  flags,
	}
}

// normalize splits text into non-empty lines with whitespace runs collapsed.
func normalize(text string) []string {
	var lines []string
	for _, raw := range strings.Split(text, "\n") {
		if line := strings.Join(strings.Fields(raw), " "); line != "" {
			lines = append(lines, line)
		}
	}
	return lines
}

// findValue returns the first number on the first line that carries one of
// the field's labels. A labelled line without a number does not stop the search.
func findValue(lines []string, f field) (float64, bool) {
	for _, line := range lines {
		if !matchesAny(line, f) {
			continue
		}
		m := f.value.FindStringSubmatch(line)
		if m == nil {
			continue
		}
		v, err := strconv.ParseFloat(m[1], 64)
		if err != nil {
			continue
		}
		return v, true
	}
	return 0, false
}

func matchesAny(line string, f field) bool {
	for _, re := range f.labels {
		if re.MatchString(line) {
			return true
		}
	}
	return false
}

// findBP returns systolic and diastolic from the first blood pressure line
// with a NNN/NNN reading. Both are set or neither.
func findBP(lines []string) (sys, dia float64, ok bool) {
	for _, line := range lines {
		if !bpLabel.MatchString(line) {
			continue
		}
		m := bpValue.FindStringSubmatch(line)
		if m == nil {
			continue
		}
		s, err1 := strconv.ParseFloat(m[1], 64)
		d, err2 := strconv.ParseFloat(m[2], 64)
		if err1 != nil || err2 != nil {
			continue
		}
		return s, d, true
	}
	return 0, 0, false
}

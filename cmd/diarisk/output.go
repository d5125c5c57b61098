package main

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/diarisk/diarisk/internal/assessment"
)

const (
	colorReset  = "\033[0m"
	colorRed    = "\033[31m"
	colorGreen  = "\033[32m"
	colorYellow = "\033[33m"
	colorCyan   = "\033[36m"
	colorBold   = "\033[1m"
)

func colorize(color, text string) string {
	if noColor {
		return text
	}
	return color + text + colorReset
}

func printSuccess(format string, args ...any) {
	msg := fmt.Sprintf(format, args...)
	fmt.Fprintln(os.Stderr, colorize(colorGreen, "✓ "+msg))
}

func printError(format string, args ...any) {
	msg := fmt.Sprintf(format, args...)
	fmt.Fprintln(os.Stderr, colorize(colorRed, "✗ "+msg))
}

func printWarning(format string, args ...any) {
	msg := fmt.Sprintf(format, args...)
	fmt.Fprintln(os.Stderr, colorize(colorYellow, "⚠ "+msg))
}

func printStatus(label string, format string, args ...any) {
	val := fmt.Sprintf(format, args...)
	l := colorize(colorBold, label+":")
	fmt.Fprintf(os.Stderr, "  %s %s\n", l, val)
}

func levelColor(level string) string {
	switch level {
	case assessment.LevelHigh:
		return colorRed
	case assessment.LevelModerate:
		return colorYellow
	default:
		return colorGreen
	}
}

func formatValue(v *float64) string {
	if v == nil {
		return "-"
	}
	return fmt.Sprintf("%g", *v)
}

func writeLabValues(w io.Writer, labs assessment.LabParseResult) {
	v := labs.Values
	rows := []struct {
		name string
		val  *float64
	}{
		{"A1C (%)", v.A1C},
		{"Fasting glucose", v.FastingGlucose},
		{"eGFR", v.EGFR},
		{"Creatinine", v.Creatinine},
		{"LDL", v.LDL},
		{"HDL", v.HDL},
		{"Triglycerides", v.Triglycerides},
		{"Urine albumin", v.UrineAlbumin},
		{"Systolic BP", v.SystolicBP},
		{"Diastolic BP", v.DiastolicBP},
	}
	fmt.Fprintln(w, colorize(colorBold, "Lab values"))
	for _, r := range rows {
		fmt.Fprintf(w, "  %-16s %s\n", r.name, formatValue(r.val))
	}
	if len(labs.QualityFlags) > 0 {
		fmt.Fprintf(w, "  %s %s\n", colorize(colorYellow, "quality:"), strings.Join(labs.QualityFlags, ", "))
	}
}

func writeAnalysis(w io.Writer, a assessment.Analysis) {
	fmt.Fprintf(w, "%s %s\n\n", colorize(colorBold, "Analysis"), a.RequestID)
	writeLabValues(w, a.Labs)

	if a.Retinal != nil {
		fmt.Fprintf(w, "\n%s %s\n", colorize(colorBold, "Retinal grade:"), a.Retinal.Grade)
	}
	if a.Cognitive != nil && a.Cognitive.Score != nil {
		fmt.Fprintf(w, "%s %g\n", colorize(colorBold, "Cognitive score:"), *a.Cognitive.Score)
	}

	fmt.Fprintf(w, "\n%s\n", colorize(colorBold, "Risk scores"))
	rs := a.RiskScores
	for _, r := range []struct {
		name string
		risk assessment.ComplicationRisk
	}{
		{"Dementia", rs.Dementia},
		{"Cardiovascular", rs.Cardiovascular},
		{"Retinopathy", rs.Retinopathy},
		{"Nephropathy", rs.Nephropathy},
		{"Neuropathy", rs.Neuropathy},
	} {
		level := colorize(levelColor(r.risk.Level), fmt.Sprintf("%-8s", r.risk.Level))
		fmt.Fprintf(w, "  %-15s %5.1f  %s %s\n", r.name, r.risk.Score, level, strings.Join(r.risk.KeyFactors, "; "))
	}

	if len(a.Recommendations) > 0 {
		fmt.Fprintf(w, "\n%s\n", colorize(colorBold, "Recommendations"))
		for i, rec := range a.Recommendations {
			fmt.Fprintf(w, "  %d. %s\n     %s\n     %s\n", i+1, rec.Title, rec.ExpectedImpact, rec.Rationale)
		}
	}

	if len(a.Warnings) > 0 {
		fmt.Fprintf(w, "\n%s\n", colorize(colorYellow, "Warnings"))
		for _, warn := range a.Warnings {
			fmt.Fprintf(w, "  - %s\n", warn)
		}
	}

	fmt.Fprintf(w, "\n%s\n", colorize(colorCyan, "Agent trace"))
	for _, item := range a.AgentTrace {
		status := item.Status
		if status == assessment.StatusError {
			status = colorize(colorRed, status)
		}
		line := fmt.Sprintf("  %-20s %-8s %5dms", item.Agent, status, item.DurationMs)
		if item.Notes != "" {
			line += "  " + item.Notes
		}
		fmt.Fprintln(w, line)
	}
}

package synth

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/hyperjump/blueprint/internal/models"
)

var (
	ntsPattern = regexp.MustCompile(`(?i)\bN\.T\.S\b\.?|\bNTS\b|\bnot\s+to\s+scale\b|\bno\s+scale\b`)

	scalePattern = regexp.MustCompile(`(?i)` +
		`\d+/\d+"\s*=\s*\d+'?-?\d+"?` + // 1/4" = 1'-0"
		`|\d+"\s*=\s*\d+'?-?\d+"?` + // 3" = 1'-0"
		`|\bscale\s*[:=]\s*[^,\n]+` + // Scale: 1:100
		`|\b1\s*:\s*(?:1|2|5|10|20|25|50|75|100|125|200|250|500|1000|1250|2000|2500|5000)\b`) // 1:50

	// clockSuffix follows a ratio that is really a time of day, as in "1:20 pm".
	clockSuffix = regexp.MustCompile(`(?i)^\s*(?:a\.?m\b|p\.?m\b|hrs?\b|o'clock)`)

	dimensionPattern = regexp.MustCompile(`(?i)` +
		`\d+'\s*-?\s*\d+"` + // 12'-6"
		`|\d+(?:\.\d+)?'` + // 12' or 12.5'
		`|\d+"` + // 6"
		`|\b\d+(?:\.\d+)?\s*(?:mm|cm)\b` + // 300mm, 30 cm
		`|\b\d+\.\d+\s*m\b`) // 3.5m

	measurementPattern = regexp.MustCompile(`(?i)\b(?:` +
		`dimensions?|sizes?|lengths?|widths?|heights?|measure|measurements?|thickness|depth|distance` +
		`|how\s+(?:big|long|wide|tall|high|deep|thick|far)` +
		`)\b`)
)

// MeasurementCheck is the outcome of checking a measurement question against the passages.
type MeasurementCheck struct {
	Measurement bool
	NotToScale  []string // drawings carrying an N.T.S. marking
	Scales      []string
	Dimensions  []string
	Warnings    []string
	// ForceLow is set when the passages cannot support a measurement answer.
	ForceLow bool
}

// IsMeasurementQuery reports whether query asks for a size or distance.
func IsMeasurementQuery(query string) bool {
	return measurementPattern.MatchString(query)
}

// findScales returns the scale notations in text, skipping ratios used as clock times.
func findScales(text string) []string {
	var out []string
	for _, loc := range scalePattern.FindAllStringIndex(text, -1) {
		if clockSuffix.MatchString(text[loc[1]:]) {
			continue
		}
		out = append(out, text[loc[0]:loc[1]])
	}
	return out
}

// CheckMeasurement inspects hits for N.T.S. markings, scales, and explicit dimensions
// when query is a measurement question. Any N.T.S. marking forces low confidence,
// and so does the absence of both a scale and an explicit dimension.
func CheckMeasurement(query string, hits []models.RetrievalHit) MeasurementCheck {
	var c MeasurementCheck
	if !IsMeasurementQuery(query) {
		return c
	}
	c.Measurement = true
	seen := map[string]bool{}
	for _, h := range hits {
		if marks := ntsPattern.FindAllString(h.Text, -1); len(marks) > 0 && !seen[h.DrawingName] {
			seen[h.DrawingName] = true
			c.NotToScale = append(c.NotToScale, h.DrawingName)
			c.Warnings = append(c.Warnings, fmt.Sprintf("Drawing %s is marked not to scale (%s); do not take measurements from it.", h.DrawingName, strings.Join(unique(marks), ", ")))
		}
		c.Scales = append(c.Scales, findScales(h.Text)...)
		c.Dimensions = append(c.Dimensions, dimensionPattern.FindAllString(h.Text, -1)...)
	}
	c.Scales = unique(c.Scales)
	c.Dimensions = unique(c.Dimensions)

	if len(c.NotToScale) > 0 {
		c.ForceLow = true
		return c
	}
	if len(c.Scales) == 0 && len(c.Dimensions) == 0 {
		c.ForceLow = true
		c.Warnings = append(c.Warnings, "No scale or explicit dimension found in the cited passages; measurements may be unreliable.")
	}
	return c
}

func unique(items []string) []string {
	if len(items) == 0 {
		return nil
	}
	seen := make(map[string]struct{}, len(items))
	out := make([]string, 0, len(items))
	for _, it := range items {
		it = strings.TrimSpace(it)
		if _, ok := seen[it]; ok || it == "" {
			continue
		}
		seen[it] = struct{}{}
		out = append(out, it)
	}
	return out
}

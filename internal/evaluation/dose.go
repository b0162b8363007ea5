package evaluation

import (
	"regexp"
	"strconv"
	"strings"
)

// numericToken accepts thousands separators ("1,000") and a bare leading
// decimal point (".5")
var numericToken = regexp.MustCompile(`(?:\d{1,3}(?:,\d{3})+|\d+)(?:\.\d+)?|\.\d+`)

// ParseLeadingNumber returns the first numeric token in s, so "500mg twice
// daily" yields 500. ok is false when s holds no number.
func ParseLeadingNumber(s string) (value float64, ok bool) {
	token := numericToken.FindString(s)
	if token == "" {
		return 0, false
	}
	v, err := strconv.ParseFloat(strings.ReplaceAll(token, ",", ""), 64)
	if err != nil {
		return 0, false
	}
	return v, true
}

func formatNumber(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

// formatRange renders inclusive bounds, nil meaning unbounded
func formatRange(lo, hi *float64, unit string) string {
	suffix := ""
	if unit != "" {
		suffix = " " + unit
	}
	switch {
	case lo != nil && hi != nil:
		return formatNumber(*lo) + "-" + formatNumber(*hi) + suffix
	case lo != nil:
		return ">= " + formatNumber(*lo) + suffix
	case hi != nil:
		return "<= " + formatNumber(*hi) + suffix
	}
	return "any"
}

func inRange(v float64, lo, hi *float64) bool {
	if lo != nil && v < *lo {
		return false
	}
	if hi != nil && v > *hi {
		return false
	}
	return true
}

package generic

import (
	"strconv"
	"strings"

	"github.com/sw33tLie/stockfinder/pkg/sources"
)

// parsePrice reads prices such as "1.299,90 €", "599,9€" or "$1,299.90".
// When both separators appear the last one is the decimal mark; a lone
// separator followed by exactly three digits is a thousands separator.
func parsePrice(raw string) float64 {
	var b strings.Builder
	for _, r := range raw {
		if (r >= '0' && r <= '9') || r == '.' || r == ',' {
			b.WriteRune(r)
		}
	}
	s := strings.Trim(b.String(), ".,")
	if s == "" {
		return sources.UnknownPrice
	}

	lastDot, lastComma := strings.LastIndex(s, "."), strings.LastIndex(s, ",")
	switch {
	case lastDot >= 0 && lastComma >= 0:
		if lastComma > lastDot {
			s = strings.ReplaceAll(s, ".", "")
			s = strings.Replace(s, ",", ".", 1)
		} else {
			s = strings.ReplaceAll(s, ",", "")
		}
	case lastComma >= 0:
		s = normalizeSingle(s, ",")
	case lastDot >= 0:
		s = normalizeSingle(s, ".")
	}

	p, err := strconv.ParseFloat(s, 64)
	if err != nil || p <= 0 {
		return sources.UnknownPrice
	}
	return p
}

func normalizeSingle(s, sep string) string {
	parts := strings.Split(s, sep)
	last := parts[len(parts)-1]
	if len(parts) > 2 || len(last) == 3 {
		return strings.Join(parts, "")
	}
	return strings.Join(parts, ".")
}

package lookup

import (
	"math"
	"regexp"
	"strconv"
	"strings"
)

var multiSpaceRE = regexp.MustCompile(`\s+`)

// Normalise lowercases raw and folds separators and punctuation into single
// spaces, so "Baked-Corn", "baked_corn" and "  BAKED CORN " compare equal.
func Normalise(raw string) string {
	raw = strings.TrimSpace(strings.ToLower(raw))
	if raw == "" {
		return ""
	}
	var b strings.Builder
	lastSpace := false
	for _, r := range raw {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') || r > 0x7f {
			b.WriteRune(r)
			lastSpace = false
			continue
		}
		if r == ' ' || r == '\t' || r == '\n' || r == '\r' || r == '-' || r == '_' || r == '/' || r == '\'' || r == '.' || r == ',' {
			if !lastSpace {
				b.WriteByte(' ')
			}
			lastSpace = true
		}
	}
	return strings.TrimSpace(multiSpaceRE.ReplaceAllString(b.String(), " "))
}

func tokenise(normalised string) []string {
	if strings.TrimSpace(normalised) == "" {
		return nil
	}
	return strings.Fields(normalised)
}

// SplitQuantity pulls a leading or trailing count out of a free-form query:
// "4 bread", "bread x4" and "4x bread" all yield ("bread", 4, true). Without a
// count the query is returned unchanged with ok=false.
func SplitQuantity(query string) (string, float64, bool) {
	fields := strings.Fields(strings.TrimSpace(query))
	if len(fields) < 2 {
		return strings.TrimSpace(query), 0, false
	}
	if n, ok := parseQuantityToken(fields[0]); ok {
		return strings.Join(fields[1:], " "), n, true
	}
	last := len(fields) - 1
	if n, ok := parseQuantityToken(fields[last]); ok {
		return strings.Join(fields[:last], " "), n, true
	}
	return strings.TrimSpace(query), 0, false
}

func parseQuantityToken(token string) (float64, bool) {
	token = strings.TrimSpace(strings.ToLower(token))
	if token == "" {
		return 0, false
	}
	token = strings.TrimSuffix(strings.TrimPrefix(token, "x"), "x")
	v, err := strconv.ParseFloat(token, 64)
	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) || v <= 0 {
		return 0, false
	}
	return v, true
}

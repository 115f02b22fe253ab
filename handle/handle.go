// Package handle finds and normalizes the profile identifier in an uploaded row.
package handle

import (
	"math"
	"strconv"
	"strings"
)

// Synonyms lists the accepted identifier column names in priority order.
// Matching is case-insensitive and ignores surrounding whitespace.
var Synonyms = []string{
	"perfil",
	"profile",
	"handle",
	"screen_name",
	"screenname",
	"username",
	"usuario",
	"twitter",
}

// Column returns the row key holding the identifier, preferring earlier synonyms.
// ok is false when the row has no accepted column at all.
func Column(row map[string]any) (key string, ok bool) {
	if len(row) == 0 {
		return "", false
	}
	folded := make(map[string]string, len(row))
	for k := range row {
		f := strings.ToLower(strings.TrimSpace(k))
		// Map iteration order is random; the smallest spelling wins ties
		if prev, exists := folded[f]; !exists || k < prev {
			folded[f] = k
		}
	}
	for _, s := range Synonyms {
		if k, exists := folded[s]; exists {
			return k, true
		}
	}
	return "", false
}

// Normalize turns a raw cell into an identifier: numbers become text, surrounding
// whitespace and one leading @ are removed. ok is false for empty results and
// for values that are not text.
func Normalize(v any) (string, bool) {
	var s string
	switch x := v.(type) {
	case string:
		s = x
	case int:
		s = strconv.Itoa(x)
	case int64:
		s = strconv.FormatInt(x, 10)
	case float64:
		if math.IsNaN(x) || math.IsInf(x, 0) {
			return "", false
		}
		s = strconv.FormatFloat(x, 'f', -1, 64)
	default:
		return "", false
	}

	s = strings.TrimSpace(s)
	s = strings.TrimPrefix(s, "@")
	s = strings.TrimSpace(s)
	if s == "" {
		return "", false
	}
	return s, true
}

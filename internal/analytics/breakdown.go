package analytics

import (
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/Prajanya-g/lvl.ai/internal/domain"
)

// StatusBreakdown lists status counts in the map's key order with display labels
// ("in_progress" → "In progress"). Only the first underscore becomes a space.
func StatusBreakdown(c domain.Counts) []Point {
	return breakdown(c, func(name string) string {
		return strings.Replace(capitalize(name), "_", " ", 1)
	})
}

// PriorityBreakdown lists priority counts in the map's key order.
func PriorityBreakdown(c domain.Counts) []Point {
	return breakdown(c, capitalize)
}

func breakdown(c domain.Counts, label func(string) string) []Point {
	out := make([]Point, 0, c.Len())
	c.Each(func(name string, v int) {
		out = append(out, Point{Label: label(name), Value: float64(v)})
	})
	return out
}

func capitalize(s string) string {
	r, size := utf8.DecodeRuneInString(s)
	if size == 0 {
		return s
	}
	return string(unicode.ToUpper(r)) + s[size:]
}

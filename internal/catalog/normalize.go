package catalog

import (
	"regexp"
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

var (
	spaceRe      = regexp.MustCompile(`\s+`)
	nonAlnumRe   = regexp.MustCompile(`[^a-z0-9]+`)
	aliasSplitRe = regexp.MustCompile(`[\n,;|/]+`)
)

// Normalize приводит строку к виду для сравнения: нижний регистр,
// без диакритики, схлопнутые пробелы.
func Normalize(s string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	folded, _, err := transform.String(t, s)
	if err != nil {
		folded = s
	}
	folded = strings.ToLower(strings.TrimSpace(folded))
	return spaceRe.ReplaceAllString(folded, " ")
}

// NormalizeCode оставляет только буквы и цифры: "SPO-3b" и "spo 3B" совпадают.
func NormalizeCode(s string) string {
	return nonAlnumRe.ReplaceAllString(Normalize(s), "")
}

// SplitAliases разбивает ячейку алиасов по переводу строки, запятой, ; | и /.
func SplitAliases(s string) []string {
	parts := aliasSplitRe.Split(s, -1)
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

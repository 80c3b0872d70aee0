package extract

import (
	"regexp"
	"strings"
	"unicode"

	"golang.org/x/text/unicode/norm"
)

var (
	horizontalSpace = regexp.MustCompile(`[ \t]+`)
	splitCurrency   = regexp.MustCompile(`R\s+\$`)
	dashes          = strings.NewReplacer("‐", "-", "‑", "-", "‒", "-", "–", "-", "—", "-", "−", "-")
)

// Normalize cleans raw extracted text into a canonical form for regex
// scanning. It folds compatibility characters (NFKC), drops control and
// zero-width characters, unifies dashes, rejoins "R $" into "R$", collapses
// runs of spaces and removes blank lines. Empty input yields empty output.
func Normalize(raw string) string {
	if raw == "" {
		return ""
	}

	s := norm.NFKC.String(raw)
	s = strings.Map(func(r rune) rune {
		switch {
		case r == '\n':
			return r
		case unicode.IsSpace(r):
			return ' '
		case unicode.IsControl(r), unicode.Is(unicode.Cf, r):
			return -1
		}
		return r
	}, s)
	s = dashes.Replace(s)
	s = splitCurrency.ReplaceAllString(s, "R$")

	lines := strings.Split(s, "\n")
	kept := lines[:0]
	for _, line := range lines {
		line = strings.TrimSpace(horizontalSpace.ReplaceAllString(line, " "))
		if line != "" {
			kept = append(kept, line)
		}
	}
	return strings.Join(kept, "\n")
}

package tlvutil

import (
	"regexp"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

var nonWordAtWordBoundary = regexp.MustCompile(`(\W)([a-zA-Z][a-z])`)
var startingDigits = regexp.MustCompile(`^([\d]+)(.*)`)

var titleCaser = cases.Title(language.Und, cases.NoLower)

// NormalizeName converts a human readable ASN.1 type name, like "OCTET STRING"
// or "UTF8String", into the CamelCase form used as the canonical tag
// name, e.g. "OctetString".
func NormalizeName(s string) string {
	// round brackets become word breaks
	s = strings.Map(func(r rune) rune {
		switch r {
		case '(', ')', '-':
			return ' '
		}
		return r
	}, s)

	s = nonWordAtWordBoundary.ReplaceAllString(s, " $2")

	s = strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z':
		case r >= 'A' && r <= 'Z':
		case r >= '0' && r <= '9':
		case r == '_':
		case r == ' ':
		default:
			return '_'
		}
		return r
	}, s)

	words := strings.Fields(s)

	for i, w := range words {
		if i == 0 {
			// identifiers can't start with a digit
			w = startingDigits.ReplaceAllString(w, `$2$1`)
		}
		// all caps words like "OCTET" are lowered first, so they title case to "Octet"
		if strings.ToUpper(w) == w {
			w = strings.ToLower(w)
		}
		words[i] = titleCaser.String(w)
	}

	return strings.Join(words, "")
}

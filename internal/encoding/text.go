package encoding

import (
	"strings"
	"unicode"
	"unicode/utf8"

	"golang.org/x/text/unicode/norm"
)

// NormalizeText prepares user-entered free text (donor messages, verifier
// comments) for storage: invalid UTF-8 is replaced, control characters other
// than newline and tab are dropped, the result is NFC-composed and trimmed.
func NormalizeText(s string) string {
	if !utf8.ValidString(s) {
		s = strings.ToValidUTF8(s, "�")
	}

	s = strings.Map(func(r rune) rune {
		if r == '\n' || r == '\t' {
			return r
		}

		if unicode.IsControl(r) {
			return -1
		}

		return r
	}, s)

	return strings.TrimSpace(norm.NFC.String(s))
}

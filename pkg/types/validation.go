package types

import (
	"regexp"
	"strings"
)

// CodeAlphabet is the class-code character set. Visually confusable
// characters (0/O, 1/I) are excluded so codes survive being read aloud or
// copied off a projector.
const CodeAlphabet = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789"

// CodeLength is the fixed length of a class join code.
const CodeLength = 6

var codeRegex = regexp.MustCompile(`^[A-HJ-NP-Z2-9]{6}$`)

// NormalizeCode canonicalizes a user-entered class code. Codes are
// case-insensitive and may arrive with stray whitespace from copy/paste.
func NormalizeCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

// IsValidClassCode reports whether a normalized code could have been
// issued by the code generator.
func IsValidClassCode(code string) bool {
	return codeRegex.MatchString(code)
}

package page

import (
	"strings"
	"unicode/utf8"
)

// MaxInputLen caps the form input. The contract is the authority on acceptance.
const MaxInputLen = 280

func clampInput(s string) string {
	if utf8.RuneCountInString(s) <= MaxInputLen {
		return s
	}
	return string([]rune(s)[:MaxInputLen])
}

func validInput(s string) bool {
	return strings.TrimSpace(s) != ""
}

func remaining(s string) int {
	return MaxInputLen - utf8.RuneCountInString(s)
}

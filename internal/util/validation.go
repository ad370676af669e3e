package util

import (
	"regexp"
	"strings"
)

// e164Regex matches a normalized international number: leading +, a non-zero
// country digit, 7 to 14 further digits.
var e164Regex = regexp.MustCompile(`^\+[1-9]\d{7,14}$`)

var separatorReplacer = strings.NewReplacer(" ", "", "-", "", "(", "", ")", "", ".", "")

// NormalizePhoneNumber strips common separators, accepts an optional leading +,
// and returns the number in E.164 form. The boolean is false when the input
// cannot be a valid international number.
func NormalizePhoneNumber(raw string) (string, bool) {
	trimmed := separatorReplacer.Replace(strings.TrimSpace(raw))
	if trimmed == "" {
		return "", false
	}
	if !strings.HasPrefix(trimmed, "+") {
		trimmed = "+" + trimmed
	}
	if !e164Regex.MatchString(trimmed) {
		return "", false
	}
	return trimmed, true
}

package util

import (
	"regexp"
	"strings"
)

var phoneJunk = regexp.MustCompile(`[^\d+]+`)

// NormalizePhone tries to normalize user input into E.164-like format.
// countryCode (digits only, e.g. "64") is prefixed to national numbers that
// start with a single 0; empty leaves them alone.
func NormalizePhone(raw, countryCode string) string {
	s := phoneJunk.ReplaceAllString(strings.TrimSpace(raw), "")
	countryCode = strings.TrimPrefix(strings.TrimSpace(countryCode), "+")

	switch {
	case strings.HasPrefix(s, "+"):
	case strings.HasPrefix(s, "00"):
		s = "+" + s[2:]
	case countryCode != "" && strings.HasPrefix(s, "0") && len(s) > 1:
		s = "+" + countryCode + s[1:]
	case countryCode != "" && strings.HasPrefix(s, countryCode) && len(s) > len(countryCode)+6:
		s = "+" + s
	}
	return s
}

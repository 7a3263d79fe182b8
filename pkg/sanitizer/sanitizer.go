package sanitizer

import (
	"fmt"
	"regexp"
	"strings"
)

type Strategy func(string) string

type Pipeline []Strategy

func (p Pipeline) Apply(s string) string {
	for _, fn := range p {
		s = fn(s)
	}
	return s
}

var (
	reMultiSlash      = regexp.MustCompile(`/+`)
	reMultiUnderscore = regexp.MustCompile(`_+`)
	reClock           = regexp.MustCompile(`^(\d{1,2}):(\d{2})$`)
)

func trim(s string) string {
	return strings.TrimSpace(s)
}

// SanitizeTimezone tidies an IANA zone name. "UTC" and "" are kept as given.
func SanitizeTimezone(tz string) string {
	p := Pipeline{
		trim,
		func(s string) string { return strings.ReplaceAll(s, " ", "_") },
		func(s string) string { return reMultiSlash.ReplaceAllString(s, "/") },
		func(s string) string { return reMultiUnderscore.ReplaceAllString(s, "_") },
		func(s string) string { return strings.Trim(s, "/") },
	}
	return p.Apply(tz)
}

// SanitizeClock zero-pads the hour of an "H:MM" time. Anything else is returned trimmed.
func SanitizeClock(s string) string {
	s = trim(s)
	m := reClock.FindStringSubmatch(s)
	if m == nil {
		return s
	}
	var hour int
	if _, err := fmt.Sscanf(m[1], "%d", &hour); err != nil {
		return s
	}
	return fmt.Sprintf("%02d:%s", hour, m[2])
}

package sanitizer

import (
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
	reNotSlug     = regexp.MustCompile(`[^a-z0-9]+`)
	reMultiHyphen = regexp.MustCompile(`-+`)
)

func trimAndLower(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

func collapseHyphens(s string) string {
	s = reMultiHyphen.ReplaceAllString(s, "-")
	return strings.Trim(s, "-")
}

// SanitizeResourceID turns any name into a lowercase slug of ASCII letters,
// digits and single hyphens.
func SanitizeResourceID(input string) string {
	p := Pipeline{
		trimAndLower,
		func(s string) string { return reNotSlug.ReplaceAllString(s, "-") },
		collapseHyphens,
	}
	return p.Apply(input)
}

// SanitizeFreeText cleans requester names and notes.
func SanitizeFreeText(input string) string {
	p := Pipeline{
		dropControl,
		TrimAndNormalize,
	}
	return p.Apply(input)
}

func SanitizeIdempotencyKey(input string) string {
	return strings.TrimSpace(input)
}

// DisplayNameFromID derives a human readable name from a resource slug.
func DisplayNameFromID(id string) string {
	return TitleWords(SanitizeResourceID(id))
}

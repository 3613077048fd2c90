package dispatch

import (
	"regexp"
	"strings"
)

var (
	mdLink     = regexp.MustCompile(`\[([^\]]*)\]\([^)]*\)`)
	mdEmphasis = regexp.MustCompile(`(\*\*|__|\*|~~|` + "`" + `)(\S(?:.*?\S)?)(\*\*|__|\*|~~|` + "`" + `)`)
	mdHeading  = regexp.MustCompile(`(?m)^\s{0,3}#{1,6}\s+`)
	mdBullet   = regexp.MustCompile(`(?m)^\s*(?:[-*+•]|\d+\.)\s+`)
	mdSpaces   = regexp.MustCompile(`[ \t]+`)
)

// StripMarkdown renders text the way it should be read aloud.
func StripMarkdown(text string) string {
	text = mdLink.ReplaceAllString(text, "$1")
	// Nested emphasis like ***x*** needs two passes.
	for i := 0; i < 2; i++ {
		text = mdEmphasis.ReplaceAllString(text, "$2")
	}
	text = mdHeading.ReplaceAllString(text, "")
	text = mdBullet.ReplaceAllString(text, "")

	lines := strings.Split(text, "\n")
	out := lines[:0]
	for _, l := range lines {
		l = strings.TrimSpace(mdSpaces.ReplaceAllString(l, " "))
		if l != "" {
			out = append(out, l)
		}
	}
	return strings.Join(out, "\n")
}

package intent

import (
	"regexp"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

var (
	quoteChars = regexp.MustCompile("[\"'`]")

	leadingNoise = []*regexp.Regexp{
		regexp.MustCompile(`^(?:add|create|start|begin|make|track|build)\s+`),
		regexp.MustCompile(`^(?:a|an|the)\s+`),
		regexp.MustCompile(`^(?:habit|routine)\s+`),
		regexp.MustCompile(`^(?:called|named|for|to)\s+`),
		regexp.MustCompile(`^(?:my|this|that)\s+`),
	}
	trailingNoise = regexp.MustCompile(`\s+(?:habit|routine|daily|every day)$`)

	noiseWords = map[string]bool{
		"the": true, "a": true, "an": true, "my": true, "this": true, "that": true,
		"for": true, "to": true, "of": true, "with": true, "called": true, "named": true,
	}
)

// CleanHabitName strips filler words and quotes from a spoken habit name
// and title-cases it: "my drink water habit" becomes "Drink Water".
func CleanHabitName(raw string) string {
	return cleanHabitName(strings.ToLower(raw))
}

func cleanHabitName(s string) string {
	s = quoteChars.ReplaceAllString(s, "")
	s = spaces.ReplaceAllString(strings.TrimSpace(s), " ")
	s = trimPunct.ReplaceAllString(s, "")

	for _, re := range leadingNoise {
		s = re.ReplaceAllString(s, "")
	}
	s = trailingNoise.ReplaceAllString(s, "")

	words := strings.Fields(s)
	kept := words[:0]
	for _, w := range words {
		if !noiseWords[w] {
			kept = append(kept, w)
		}
	}
	s = strings.Join(kept, " ")
	if s == "" {
		return ""
	}
	// Casers carry state and are not shared across goroutines.
	return cases.Title(language.English).String(s)
}

package intent

import (
	"regexp"
	"strings"
)

type family struct {
	kind     Kind
	patterns []*regexp.Regexp
	build    func(m []string) (Command, bool)
}

func res(patterns ...string) []*regexp.Regexp {
	out := make([]*regexp.Regexp, len(patterns))
	for i, p := range patterns {
		out[i] = regexp.MustCompile(p)
	}
	return out
}

const (
	doneWords = `(?:complete|completed|done|finished)`
	monthRe   = `(?:january|february|march|april|may|june|july|august|september|october|november|december|jan|feb|mar|apr|jun|jul|aug|sep|sept|oct|nov|dec)`
	ordinalRe = `\d{1,2}(?:st|nd|rd|th)?`
)

var (
	politePrefix = regexp.MustCompile(`^(?:(?:please|hey|ok|okay|can you|could you|would you|i want to|i'd like to|i would like to|let's|lets)\s+)+`)
	politeSuffix = regexp.MustCompile(`\s+(?:please|thanks|thank you)$`)
	trimPunct    = regexp.MustCompile(`^[\s.,!?]+|[\s.,!?]+$`)
	spaces       = regexp.MustCompile(`\s+`)
	negated      = regexp.MustCompile(`^never\b|\bnot\b`)

	// trailingDate splits a date phrase off the end of a completion argument.
	// After "on" anything counts, so that unparseable dates are reported
	// instead of being swallowed into the habit name.
	trailingDate = regexp.MustCompile(`^(.+?)\s+((?:(?:for|on)\s+)?(?:today|yesterday|tomorrow|last week|next week|\d+\s+days?\s+ago|(?:the\s+)?` + ordinalRe + `(?:\s+of)?\s+` + monthRe + `|` + monthRe + `\s+(?:the\s+)?` + ordinalRe + `(?:,?\s+\d{4})?|\d{4}-\d{1,2}-\d{1,2}|\d{1,2}/\d{1,2}/\d{4})|on\s+\S.*)$`)
)

var reservedNames = map[string]bool{
	"all data":    true,
	"data":        true,
	"everything":  true,
	"all my data": true,
	"my data":     true,
	"account":     true,
	"my account":  true,
}

var families = []family{
	{
		kind: Rename,
		patterns: res(
			`^(?:rename|change)\s+(?:the\s+)?(?:habit\s+)?(.+?)\s+(?:habit\s+)?(?:to|into)\s+(.+)$`,
		),
		build: func(m []string) (Command, bool) {
			old, nu := cleanHabitName(m[1]), cleanHabitName(m[2])
			if !usable(old) || !usable(nu) {
				return Command{}, false
			}
			return Command{Kind: Rename, HabitName: old, NewName: nu}, true
		},
	},
	{
		kind: Delete,
		patterns: res(
			`^(?:delete|remove)\s+(.+)$`,
			`^stop tracking\s+(.+)$`,
			`^get rid of\s+(.+)$`,
			`^i (?:don't|do not|no longer) want to track\s+(.+?)(?:\s+any\s?more)?$`,
		),
		build: func(m []string) (Command, bool) {
			if reservedNames[m[1]] {
				return Command{}, false
			}
			name := cleanHabitName(m[1])
			if !usable(name) {
				return Command{}, false
			}
			return Command{Kind: Delete, HabitName: name}, true
		},
	},
	{
		kind: Add,
		patterns: res(
			`^(?:add|create|make|start|begin)\s+(?:a\s+|an\s+)?(?:new\s+)?(?:habit|routine)\s+(?:to|for|of|called|named)\s+(.+)$`,
			`^(?:add|create)\s+(?:a\s+|an\s+)?(?:new\s+)?(?:habit|routine)\s+(.+)$`,
			`^start tracking\s+(.+)$`,
			`^(?:track|build)\s+(?:a\s+)?(?:new\s+)?habit\s+(?:of\s+|for\s+|to\s+|called\s+|named\s+)?(.+)$`,
			`^new habit\s+(?:called\s+|named\s+|to\s+|for\s+)?(.+)$`,
			`^add\s+(.+?)\s+(?:as a habit|as a new habit|to my habits)$`,
		),
		build: func(m []string) (Command, bool) {
			name := cleanHabitName(m[1])
			if !usable(name) {
				return Command{}, false
			}
			return Command{Kind: Add, HabitName: name}, true
		},
	},
	{
		kind: Complete,
		patterns: res(
			`^mark\s+(.+?)\s+as\s+`+doneWords+`(?:\s+(.+))?$`,
			`^mark\s+(.+?)\s+`+doneWords+`(?:\s+(.+))?$`,
			`^(?:check off|tick off|complete)\s+(.+)()$`,
			`^i\s+(?:just\s+|already\s+)?(?:did|finished|completed)\s+(.+)()$`,
			`^(?:just\s+)?(?:completed|finished|done with)\s+(.+)()$`,
			`^(.+?)\s+(?:is|was)\s+(?:done|completed|finished)(?:\s+(.+))?$`,
		),
		build: func(m []string) (Command, bool) {
			arg, date := m[1], strings.TrimSpace(m[2])
			// "i did not exercise" is a denial, not a completion
			if negated.MatchString(arg) {
				return Command{}, false
			}
			if date == "" {
				arg, date = splitDate(arg)
			}
			name := cleanHabitName(arg)
			if !usable(name) {
				return Command{}, false
			}
			return Command{Kind: Complete, HabitName: name, DatePhrase: date}, true
		},
	},
	{
		kind: Status,
		patterns: res(
			`^how am i doing (?:with|on)\s+(.+)$`,
			`^(?:what(?:'s| is)\s+)?(?:the\s+)?(?:status|progress) (?:of|on|for)\s+(.+)$`,
			`^check\s+(?:my\s+)?(.+?)\s+(?:progress|status|streak)$`,
			`^(?:what(?:'s| is)\s+)?my\s+(?:progress|streak) (?:for|on|with)\s+(.+)$`,
			`^(?:show|tell)\s+(?:me\s+)?(?:my\s+)?(?:progress|status|streak) (?:for|on|with)\s+(.+)$`,
			`^streak for\s+(.+)$`,
		),
		build: func(m []string) (Command, bool) {
			name := cleanHabitName(m[1])
			if !usable(name) {
				return Command{}, false
			}
			return Command{Kind: Status, HabitName: name}, true
		},
	},
	{
		kind: List,
		patterns: res(
			`^(?:show|list|display|view|see)\s+(?:me\s+)?(?:all\s+)?(?:of\s+)?(?:my\s+)?(?:current\s+)?(?:habits|routines)$`,
			`^what(?:'s| are| is)\s+(?:all\s+)?my\s+(?:habits|routines)$`,
			`^(?:what|which) habits do i have$`,
			`^how many habits do i have$`,
		),
		build: func([]string) (Command, bool) { return Command{Kind: List}, true },
	},
	{
		kind: Logout,
		patterns: res(
			`^(?:log ?out|sign ?out)(?:\s+of\s+.+)?$`,
			`^(?:exit|quit)\s+(?:the\s+|my\s+)?(?:account|app|application)$`,
			`^end (?:my\s+|the\s+)?session$`,
		),
		build: func([]string) (Command, bool) { return Command{Kind: Logout}, true },
	},
	{
		kind: ClearData,
		patterns: res(
			`^(?:clear|reset|delete|wipe|erase)\s+(?:all\s+)?(?:of\s+)?(?:my\s+)?(?:data|everything)$`,
			`^(?:start over|reset everything)$`,
		),
		build: func([]string) (Command, bool) { return Command{Kind: ClearData}, true },
	},
	{
		kind: ShowToday,
		patterns: res(
			`^(?:show|what(?:'s| is| are))\s+(?:me\s+)?(?:my\s+)?today'?s\s+(?:habits|schedule|tasks|agenda|plan)$`,
			`^what do i (?:need|have) to do today$`,
		),
		build: func([]string) (Command, bool) { return Command{Kind: ShowToday}, true },
	},
	{
		kind: ShowCalendar,
		patterns: res(
			`^(?:show|open|view|go to|navigate to)\s+(?:me\s+)?(?:the\s+|my\s+)?calendar(?:\s+view)?$`,
			`^(?:calendar|monthly) view$`,
		),
		build: func([]string) (Command, bool) { return Command{Kind: ShowCalendar}, true },
	},
	{
		kind: Navigate,
		patterns: res(
			`^(?:go|take me|bring me|navigate|switch)\s+(?:back\s+)?(?:to\s+)?(?:the\s+|my\s+)?([a-z ]+?)(?:\s+(?:page|screen|tab))?$`,
			`^(?:open|show)\s+(?:me\s+)?(?:the\s+|my\s+)?([a-z ]+?)(?:\s+(?:page|screen|tab))?$`,
		),
		build: func(m []string) (Command, bool) {
			page, ok := pageAliases[m[1]]
			if !ok {
				return Command{}, false
			}
			return Command{Kind: Navigate, Page: page}, true
		},
	},
	{
		kind: Refresh,
		patterns: res(
			`^(?:refresh|reload)(?:\s+(?:the\s+|my\s+)?(?:page|data|screen|everything|all|app))?$`,
			`^(?:sync|update)\s+(?:my\s+)?(?:data|info|information)$`,
		),
		build: func([]string) (Command, bool) { return Command{Kind: Refresh}, true },
	},
	{
		kind: Help,
		patterns: res(
			`^help(?:\s+me)?$`,
			`^what can (?:i|you) (?:do|say)$`,
			`^(?:show|tell)\s+me\s+(?:the\s+|your\s+)?(?:voice\s+)?(?:commands|options|features)$`,
			`^(?:what|which) (?:voice\s+)?commands\b.*$`,
			`^how do i use (?:this|the app|this app|you)$`,
		),
		build: func([]string) (Command, bool) { return Command{Kind: Help}, true },
	},
	{
		kind: AppInfo,
		patterns: res(
			`^(?:about|tell me about|what is)\s+(?:this\s+|the\s+)?(?:app|application)$`,
			`^app (?:info|information|version)$`,
			`^what version\b.*$`,
		),
		build: func([]string) (Command, bool) { return Command{Kind: AppInfo}, true },
	},
}

var pageAliases = map[string]string{
	"home":          PageHome,
	"dashboard":     PageHome,
	"main":          PageHome,
	"habits":        PageHabits,
	"habit":         PageHabits,
	"habit tracker": PageHabits,
	"tracking":      PageHabits,
	"analytics":     PageAnalytics,
	"stats":         PageAnalytics,
	"statistics":    PageAnalytics,
	"report":        PageAnalytics,
	"reports":       PageAnalytics,
	"progress":      PageAnalytics,
	"chat":          PageChat,
	"conversation":  PageChat,
	"settings":      PageSettings,
	"preferences":   PageSettings,
	"account":       PageAccount,
	"profile":       PageAccount,
}

// Classify maps text to a Command. Anything not recognized as an action is
// a Conversation carrying the original text.
func Classify(text string) Command {
	norm := normalize(text)
	if norm != "" {
		for _, f := range families {
			for _, re := range f.patterns {
				m := re.FindStringSubmatch(norm)
				if m == nil {
					continue
				}
				cmd, ok := f.build(m)
				if !ok {
					// next family, not next pattern: a family rejects its
					// argument, not its trigger phrase
					break
				}
				cmd.Text = text
				return cmd
			}
		}
	}
	return Command{Kind: Conversation, Text: text}
}

func normalize(text string) string {
	s := strings.ToLower(text)
	s = strings.NewReplacer("’", "'", "“", `"`, "”", `"`).Replace(s)
	s = spaces.ReplaceAllString(s, " ")
	s = trimPunct.ReplaceAllString(s, "")
	s = politePrefix.ReplaceAllString(s, "")
	s = politeSuffix.ReplaceAllString(s, "")
	return strings.TrimSpace(s)
}

func splitDate(arg string) (name, date string) {
	if m := trailingDate.FindStringSubmatch(arg); m != nil {
		return m[1], m[2]
	}
	return arg, ""
}

func usable(name string) bool {
	return len([]rune(name)) > 1
}

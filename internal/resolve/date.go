package resolve

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"
)

// maxDaysAgo bounds "N days ago" to about ten years back.
const maxDaysAgo = 3660

var months = map[string]time.Month{
	"january": time.January, "jan": time.January,
	"february": time.February, "feb": time.February,
	"march": time.March, "mar": time.March,
	"april": time.April, "apr": time.April,
	"may":  time.May,
	"june": time.June, "jun": time.June,
	"july": time.July, "jul": time.July,
	"august": time.August, "aug": time.August,
	"september": time.September, "sep": time.September, "sept": time.September,
	"october": time.October, "oct": time.October,
	"november": time.November, "nov": time.November,
	"december": time.December, "dec": time.December,
}

var weekdays = map[string]time.Weekday{
	"sunday": time.Sunday, "monday": time.Monday, "tuesday": time.Tuesday,
	"wednesday": time.Wednesday, "thursday": time.Thursday, "friday": time.Friday,
	"saturday": time.Saturday,
}

var (
	datePrefix   = regexp.MustCompile(`^(?:on|for)\s+`)
	daysAgo      = regexp.MustCompile(`^(\d+|a|one|two|three|four|five|six|seven)\s+days?\s+ago$`)
	monthDay     = regexp.MustCompile(`^([a-z]+)\.?\s+(?:the\s+)?(\d{1,2})(?:st|nd|rd|th)?(?:,?\s+(\d{4}))?$`)
	dayMonth     = regexp.MustCompile(`^(?:the\s+)?(\d{1,2})(?:st|nd|rd|th)?\s+(?:of\s+)?([a-z]+)\.?(?:,?\s+(\d{4}))?$`)
	isoDate      = regexp.MustCompile(`^(\d{4})-(\d{1,2})-(\d{1,2})$`)
	usDate       = regexp.MustCompile(`^(\d{1,2})[/-](\d{1,2})[/-](\d{4})$`)
	lastWeekday  = regexp.MustCompile(`^(?:last\s+)?([a-z]+)$`)
	smallNumbers = map[string]int{"a": 1, "one": 1, "two": 2, "three": 3, "four": 4, "five": 5, "six": 6, "seven": 7}
)

// Day truncates t to midnight in its own location.
func Day(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}

// ResolveDate turns a spoken date phrase into a calendar day relative to
// today. An empty phrase means today. Anything unrecognized is an error:
// a completion must never land on a guessed date.
func ResolveDate(phrase string, today time.Time) (time.Time, error) {
	today = Day(today)
	p := strings.ToLower(strings.TrimSpace(phrase))
	p = strings.Trim(p, ".,!?")
	p = datePrefix.ReplaceAllString(p, "")

	switch p {
	case "", "today", "now", "tonight", "this morning":
		return today, nil
	case "yesterday":
		return today.AddDate(0, 0, -1), nil
	case "tomorrow":
		return today.AddDate(0, 0, 1), nil
	case "last week":
		return today.AddDate(0, 0, -7), nil
	case "next week":
		return today.AddDate(0, 0, 7), nil
	}

	if m := daysAgo.FindStringSubmatch(p); m != nil {
		n, ok := smallNumbers[m[1]]
		if !ok {
			var err error
			if n, err = strconv.Atoi(m[1]); err != nil || n > maxDaysAgo {
				return time.Time{}, fmt.Errorf("%w: %q", ErrDateParse, phrase)
			}
		}
		return today.AddDate(0, 0, -n), nil
	}
	if m := monthDay.FindStringSubmatch(p); m != nil {
		if month, ok := months[m[1]]; ok {
			return civil(today, m[3], month, m[2], phrase)
		}
	}
	if m := dayMonth.FindStringSubmatch(p); m != nil {
		if month, ok := months[m[2]]; ok {
			return civil(today, m[3], month, m[1], phrase)
		}
	}
	if m := isoDate.FindStringSubmatch(p); m != nil {
		mo, _ := strconv.Atoi(m[2])
		return civil(today, m[1], time.Month(mo), m[3], phrase)
	}
	if m := usDate.FindStringSubmatch(p); m != nil {
		mo, _ := strconv.Atoi(m[1])
		return civil(today, m[3], time.Month(mo), m[2], phrase)
	}
	if m := lastWeekday.FindStringSubmatch(p); m != nil {
		if wd, ok := weekdays[m[1]]; ok {
			back := (int(today.Weekday()) - int(wd) + 7) % 7
			if back == 0 && strings.HasPrefix(p, "last ") {
				back = 7
			}
			return today.AddDate(0, 0, -back), nil
		}
	}

	return time.Time{}, fmt.Errorf("%w: %q", ErrDateParse, phrase)
}

// civil builds a date, defaulting to the current year and rejecting days
// that do not exist in the month.
func civil(today time.Time, year string, month time.Month, day, phrase string) (time.Time, error) {
	y := today.Year()
	if year != "" {
		y, _ = strconv.Atoi(year)
	}
	d, _ := strconv.Atoi(day)
	if month < time.January || month > time.December || d < 1 {
		return time.Time{}, fmt.Errorf("%w: %q", ErrDateParse, phrase)
	}
	t := time.Date(y, month, d, 0, 0, 0, 0, today.Location())
	if t.Month() != month || t.Day() != d {
		return time.Time{}, fmt.Errorf("%w: %q", ErrDateParse, phrase)
	}
	return t, nil
}

// Package resolve turns the raw habit name and date phrase of a classified
// command into a concrete habit and calendar date.
package resolve

import (
	"errors"
	"sort"
	"strings"
	"unicode"

	"github.com/sahilm/fuzzy"
)

var (
	ErrAmbiguous = errors.New("resolve: ambiguous habit name")
	ErrNotFound  = errors.New("resolve: habit not found")
	ErrDateParse = errors.New("resolve: unrecognized date")
)

const (
	DefaultAcceptThreshold = 0.5
	DefaultAmbiguityMargin = 0.05
)

type Outcome int

const (
	Matched Outcome = iota
	Ambiguous
	NotFound
	New
)

func (o Outcome) String() string {
	switch o {
	case Matched:
		return "matched"
	case Ambiguous:
		return "ambiguous"
	case NotFound:
		return "not_found"
	case New:
		return "new"
	}
	return "unknown"
}

// HabitRef is the result of resolving a spoken habit name.
type HabitRef struct {
	Requested string
	// Matched is the stored name; empty unless Outcome is Matched.
	Matched string
	Outcome Outcome
	Score   float64
	// Candidates lists the tied names when Outcome is Ambiguous.
	Candidates []string
}

// Err maps a non-matching outcome to its sentinel error.
func (r HabitRef) Err() error {
	switch r.Outcome {
	case Ambiguous:
		return ErrAmbiguous
	case NotFound:
		return ErrNotFound
	}
	return nil
}

// Matcher scores spoken names against stored habit names.
type Matcher struct {
	AcceptThreshold float64
	AmbiguityMargin float64
}

func NewMatcher(threshold float64) *Matcher {
	if threshold <= 0 || threshold > 1 {
		threshold = DefaultAcceptThreshold
	}
	return &Matcher{AcceptThreshold: threshold, AmbiguityMargin: DefaultAmbiguityMargin}
}

type scored struct {
	name  string
	score float64
}

// ResolveHabit picks the stored habit the user meant. For Add the only
// question is whether the name already exists: anything short of a
// case-insensitive match is a new habit.
func (m *Matcher) ResolveHabit(requested string, existing []string, forAdd bool) HabitRef {
	ref := HabitRef{Requested: requested, Outcome: NotFound}
	req := normalizeName(requested)

	if forAdd {
		for _, name := range existing {
			if normalizeName(name) == req {
				return HabitRef{Requested: requested, Matched: name, Outcome: Matched, Score: 1}
			}
		}
		ref.Outcome = New
		return ref
	}
	if req == "" || len(existing) == 0 {
		return ref
	}

	sub := subsequenceScores(req, existing)
	ranked := make([]scored, 0, len(existing))
	for i, name := range existing {
		s := max(similarity(req, normalizeName(name)), sub[i])
		ranked = append(ranked, scored{name: name, score: s})
	}
	sort.SliceStable(ranked, func(i, j int) bool { return ranked[i].score > ranked[j].score })

	best := ranked[0]
	ref.Score = best.score
	if best.score < m.AcceptThreshold {
		return ref
	}

	var tied []string
	for _, c := range ranked {
		if c.score >= m.AcceptThreshold && best.score-c.score < m.AmbiguityMargin {
			tied = append(tied, c.name)
		}
	}
	if len(tied) > 1 {
		ref.Outcome = Ambiguous
		ref.Candidates = tied
		return ref
	}

	ref.Outcome = Matched
	ref.Matched = best.name
	return ref
}

// similarity scores two normalized names on a token-set basis:
//
//	every requested word in the name         1.0
//	every requested word, allowing typos     0.9 * coverage
//	every word of the name in the request    0.6 .. 0.9
//	otherwise                                0.8 * jaccard
func similarity(req, cand string) float64 {
	if req == cand {
		return 1
	}
	rt, ct := strings.Fields(req), strings.Fields(cand)
	if len(rt) == 0 || len(ct) == 0 {
		return 0
	}

	var exact int
	var soft float64
	for _, r := range rt {
		best := 0.0
		for _, c := range ct {
			if s := tokenSimilarity(r, c); s > best {
				best = s
			}
		}
		if best == 1 {
			exact++
		}
		soft += best
	}
	if exact == len(rt) {
		return 1
	}

	score := 0.0
	if allAbove(rt, ct, 0.8) {
		score = 0.9 * soft / float64(len(rt))
	}
	if containsAll(rt, ct) {
		score = max(score, 0.6+0.3*float64(len(ct))/float64(len(rt)))
	}
	return max(score, 0.8*jaccard(rt, ct))
}

func tokenSimilarity(a, b string) float64 {
	a, b = stem(a), stem(b)
	if a == b {
		return 1
	}
	longest := max(len([]rune(a)), len([]rune(b)))
	if longest < 4 {
		return 0
	}
	r := 1 - float64(levenshtein(a, b))/float64(longest)
	if r < 0.8 {
		return 0
	}
	return r
}

// allAbove reports whether every requested token has a near match.
func allAbove(rt, ct []string, floor float64) bool {
	for _, r := range rt {
		ok := false
		for _, c := range ct {
			if tokenSimilarity(r, c) >= floor {
				ok = true
				break
			}
		}
		if !ok {
			return false
		}
	}
	return true
}

// containsAll reports whether every candidate token occurs in the request.
func containsAll(rt, ct []string) bool {
	set := make(map[string]bool, len(rt))
	for _, r := range rt {
		set[stem(r)] = true
	}
	for _, c := range ct {
		if !set[stem(c)] {
			return false
		}
	}
	return true
}

func jaccard(a, b []string) float64 {
	sa := map[string]bool{}
	for _, t := range a {
		sa[stem(t)] = true
	}
	sb := map[string]bool{}
	for _, t := range b {
		sb[stem(t)] = true
	}
	inter := 0
	for t := range sa {
		if sb[t] {
			inter++
		}
	}
	union := len(sa) + len(sb) - inter
	if union == 0 {
		return 0
	}
	return float64(inter) / float64(union)
}

type nameSource []string

func (s nameSource) String(i int) string { return s[i] }
func (s nameSource) Len() int            { return len(s) }

// subsequenceScores gives abbreviations like "medit" a low score against
// names that contain the letters in order. It stays below 0.6 so it never
// beats a word-level match.
func subsequenceScores(req string, existing []string) []float64 {
	out := make([]float64, len(existing))
	names := make(nameSource, len(existing))
	for i, n := range existing {
		names[i] = normalizeName(n)
	}
	compact := strings.ReplaceAll(req, " ", "")
	for _, m := range fuzzy.FindFrom(compact, names) {
		n := len([]rune(strings.ReplaceAll(names[m.Index], " ", "")))
		if n == 0 {
			continue
		}
		out[m.Index] = 0.55 * float64(len([]rune(compact))) / float64(n)
	}
	return out
}

func normalizeName(s string) string {
	s = strings.ToLower(s)
	s = strings.Map(func(r rune) rune {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			return r
		}
		return ' '
	}, s)
	return strings.Join(strings.Fields(s), " ")
}

// stem folds simple plurals so "pushup" matches "pushups".
func stem(t string) string {
	if len(t) > 3 && strings.HasSuffix(t, "s") && !strings.HasSuffix(t, "ss") {
		return t[:len(t)-1]
	}
	return t
}

func levenshtein(a, b string) int {
	ra, rb := []rune(a), []rune(b)
	prev := make([]int, len(rb)+1)
	cur := make([]int, len(rb)+1)
	for j := range prev {
		prev[j] = j
	}
	for i := 1; i <= len(ra); i++ {
		cur[0] = i
		for j := 1; j <= len(rb); j++ {
			cost := 1
			if ra[i-1] == rb[j-1] {
				cost = 0
			}
			cur[j] = min(prev[j]+1, cur[j-1]+1, prev[j-1]+cost)
		}
		prev, cur = cur, prev
	}
	return prev[len(rb)]
}

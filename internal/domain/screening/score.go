package screening

import (
	"fmt"
	"sort"
	"strings"
)

// Strategy names a scoring implementation.
type Strategy string

const (
	StrategyFuzzy Strategy = "fuzzy"
	StrategyBasic Strategy = "basic"
)

// Scorer rates how closely a candidate name resembles a watchlist entry.
// Scores are integers in [0,100]; either side normalizing to empty scores 0.
type Scorer interface {
	Score(candidate, entry string) int
	Strategy() Strategy
}

// NewScorer returns the scorer for the given strategy. An empty strategy
// selects the fuzzy scorer.
func NewScorer(strategy Strategy) (Scorer, error) {
	switch Strategy(strings.ToLower(string(strategy))) {
	case StrategyFuzzy, "":
		return FuzzyScorer{}, nil
	case StrategyBasic:
		return BasicScorer{}, nil
	default:
		return nil, fmt.Errorf("unknown match strategy %q", strategy)
	}
}

// FuzzyScorer blends a token-sort ratio (70%) with a partial ratio (30%),
// both normalized Indel similarities (insertions and deletions only).
type FuzzyScorer struct{}

func (FuzzyScorer) Strategy() Strategy { return StrategyFuzzy }

func (FuzzyScorer) Score(candidate, entry string) int {
	a, b := Normalize(candidate), Normalize(entry)
	if a == "" || b == "" {
		return 0
	}
	ts := tokenSortRatio(a, b)
	pr := partialRatio(a, b)
	// Epsilon absorbs float error such as 0.3*100 = 30.000000000000004 going the other way.
	return clamp(int(0.7*ts + 0.3*pr + 1e-9))
}

// BasicScorer is the dependency-free fallback: 95 for equal normalized names,
// 70 when one contains the other, 20 otherwise.
type BasicScorer struct{}

func (BasicScorer) Strategy() Strategy { return StrategyBasic }

func (BasicScorer) Score(candidate, entry string) int {
	a, b := Normalize(candidate), Normalize(entry)
	switch {
	case a == "" || b == "":
		return 0
	case a == b:
		return 95
	case strings.Contains(a, b) || strings.Contains(b, a):
		return 70
	default:
		return 20
	}
}

// Match is the best watchlist entry for a candidate.
type Match struct {
	Name  string
	Score int
}

// BestMatch scores candidate against every watchlist entry and returns the
// highest scoring one. Ties keep the entry that appears first. An empty
// watchlist yields a zero Match.
func BestMatch(scorer Scorer, candidate string, watchlist []string) Match {
	var best Match
	for i, entry := range watchlist {
		s := scorer.Score(candidate, entry)
		if i == 0 || s > best.Score {
			best = Match{Name: entry, Score: s}
		}
	}
	return best
}

// ratio is the normalized Indel similarity of a and b on a 0..100 scale:
// 200 * LCS(a, b) / (len(a) + len(b)).
func ratio(a, b []rune) float64 {
	total := len(a) + len(b)
	if total == 0 {
		return 100
	}
	return float64(200*lcsLength(a, b)) / float64(total)
}

// lcsLength is the length of the longest common subsequence of a and b.
func lcsLength(a, b []rune) int {
	if len(a) < len(b) {
		a, b = b, a
	}
	prev := make([]int, len(b)+1)
	cur := make([]int, len(b)+1)
	for _, ra := range a {
		for j, rb := range b {
			switch {
			case ra == rb:
				cur[j+1] = prev[j] + 1
			case prev[j+1] >= cur[j]:
				cur[j+1] = prev[j+1]
			default:
				cur[j+1] = cur[j]
			}
		}
		prev, cur = cur, prev
	}
	return prev[len(b)]
}

func tokenSortRatio(a, b string) float64 {
	return ratio([]rune(sortTokens(a)), []rune(sortTokens(b)))
}

func sortTokens(s string) string {
	tokens := strings.Fields(s)
	sort.Strings(tokens)
	return strings.Join(tokens, " ")
}

// partialRatio aligns the shorter string against the longer one and keeps the
// best ratio. Equal-length inputs are aligned both ways.
func partialRatio(a, b string) float64 {
	ra, rb := []rune(a), []rune(b)
	if len(ra) == 0 || len(rb) == 0 {
		return 0
	}
	short, long := ra, rb
	if len(short) > len(long) {
		short, long = long, short
	}
	best := alignShort(short, long)
	if best < 100 && len(ra) == len(rb) {
		best = max(best, alignShort(long, short))
	}
	return best
}

// alignShort scores needle against the prefixes of hay shorter than needle,
// every needle-length window, and the suffixes of hay. Windows that begin or
// end on a rune absent from needle are skipped.
func alignShort(needle, hay []rune) float64 {
	n, h := len(needle), len(hay)
	inNeedle := make(map[rune]struct{}, n)
	for _, r := range needle {
		inNeedle[r] = struct{}{}
	}
	has := func(r rune) bool {
		_, ok := inNeedle[r]
		return ok
	}

	var best float64
	try := func(window []rune) bool {
		if r := ratio(needle, window); r > best {
			best = r
		}
		return best == 100
	}
	for i := 1; i < n && i <= h; i++ {
		if has(hay[i-1]) && try(hay[:i]) {
			return best
		}
	}
	for i := 0; i < h-n; i++ {
		if has(hay[i+n-1]) && try(hay[i:i+n]) {
			return best
		}
	}
	for i := max(h-n, 0); i < h; i++ {
		if has(hay[i]) && try(hay[i:]) {
			return best
		}
	}
	return best
}

func clamp(score int) int {
	if score < 0 {
		return 0
	}
	if score > 100 {
		return 100
	}
	return score
}

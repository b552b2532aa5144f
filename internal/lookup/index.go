package lookup

import (
	"sort"
	"strings"

	"github.com/agnivade/levenshtein"
)

type entry struct {
	id     string
	norm   string
	tokens []string
}

// Index is an immutable fuzzy index over a fixed set of ids.
type Index struct {
	entries []entry
	exact   map[string]bool
}

func New(ids []string) *Index {
	x := &Index{
		entries: make([]entry, 0, len(ids)),
		exact:   make(map[string]bool, len(ids)),
	}
	for _, id := range ids {
		if x.exact[id] {
			continue
		}
		x.exact[id] = true
		n := Normalise(id)
		x.entries = append(x.entries, entry{id: id, norm: n, tokens: tokenise(n)})
	}
	return x
}

// Match is the outcome of Find. Best is empty when nothing scored. When
// Ambiguous is set, Best and Alternatives[0] scored within a hair of each
// other and the caller should ask rather than guess.
type Match struct {
	Query        string
	Best         string
	Alternatives []string
	Score        float64
	Ambiguous    bool
}

// Found reports whether the match can be used without asking the user.
func (m Match) Found() bool {
	return m.Best != "" && !m.Ambiguous
}

type scored struct {
	id    string
	score float64
}

// Find scores every id against query: exact id 1.0, equal after normalising
// 0.98, prefix 0.9, all query words present 0.85, otherwise a Levenshtein
// distance within a length-dependent limit.
func (x *Index) Find(query string) Match {
	m := Match{Query: query}
	if x.exact[query] {
		m.Best = query
		m.Score = 1
		return m
	}
	results := x.score(query)
	if len(results) == 0 {
		return m
	}

	best := results[0]
	m.Best = best.id
	m.Score = best.score
	for _, r := range results[1:] {
		m.Alternatives = append(m.Alternatives, r.id)
		if len(m.Alternatives) >= 4 {
			break
		}
	}
	if len(results) > 1 && (best.score-results[1].score) < 0.05 && results[1].score > 0.6 {
		m.Ambiguous = true
	}
	return m
}

// Suggest returns up to n ids that resemble query, best first.
func (x *Index) Suggest(query string, n int) []string {
	if n <= 0 {
		return nil
	}
	results := x.score(query)
	out := make([]string, 0, min(n, len(results)))
	for _, r := range results {
		if r.score < 0.5 {
			break
		}
		out = append(out, r.id)
		if len(out) == n {
			break
		}
	}
	return out
}

func (x *Index) score(query string) []scored {
	q := Normalise(query)
	if q == "" {
		return nil
	}
	qTokens := tokenise(q)

	results := make([]scored, 0, 8)
	for _, e := range x.entries {
		score := 0.0
		switch {
		case q == e.norm:
			score = 0.98
		case strings.HasPrefix(e.norm, q) && len(q) >= 2:
			score = 0.9
		case containsAll(e.tokens, qTokens):
			score = 0.85
		default:
			if len(q) < 3 {
				continue
			}
			dist := levenshtein.ComputeDistance(q, e.norm)
			if dist > levenshteinLimit(len(e.norm)) {
				continue
			}
			score = 0.72 - (0.08 * float64(dist))
		}
		results = append(results, scored{id: e.id, score: clampScore(score)})
	}
	sort.SliceStable(results, func(i, j int) bool {
		if results[i].score == results[j].score {
			return results[i].id < results[j].id
		}
		return results[i].score > results[j].score
	})
	return results
}

func containsAll(have, want []string) bool {
	if len(want) == 0 {
		return false
	}
	set := make(map[string]bool, len(have))
	for _, t := range have {
		set[t] = true
	}
	for _, t := range want {
		if !set[t] {
			return false
		}
	}
	return true
}

func levenshteinLimit(length int) int {
	switch {
	case length <= 4:
		return 1
	case length <= 8:
		return 2
	default:
		return 3
	}
}

func clampScore(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

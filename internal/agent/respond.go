package agent

import (
	"sort"
	"strings"

	"github.com/nidhogg/engram/internal/provider"
)

// candidate is one possible answer value pulled from activated memory.
type candidate struct {
	Value      string
	Confidence float64
}

var stopwords = map[string]bool{
	"the": true, "and": true, "for": true, "with": true, "what": true,
	"who": true, "where": true, "when": true, "how": true, "why": true,
	"you": true, "your": true, "are": true, "was": true, "were": true,
	"does": true, "did": true, "like": true, "have": true, "has": true,
}

// topCandidates ranks content values of the activated fragments against the
// query. A value scores for every query word it shares a token with and for
// not being index noise (bare "key" entries, unknowns).
func topCandidates(data *provider.MemoryData) []candidate {
	if len(data.Fragments) == 0 {
		return nil
	}
	queryWords := make(map[string]bool)
	for _, w := range strings.Fields(strings.ToLower(data.Query)) {
		w = strings.Trim(w, "?.!,")
		if len(w) >= 2 && !stopwords[w] {
			queryWords[w] = true
		}
	}

	seen := make(map[string]bool)
	var out []candidate
	for _, f := range data.Fragments {
		for k, v := range f.Content {
			if v == "" || v == "unknown" || v == "key" || len(v) <= 2 {
				continue
			}
			if k == "key" && queryWords[strings.ToLower(v)] {
				// The value merely echoes the question.
				continue
			}
			if seen[strings.ToLower(v)] {
				continue
			}
			seen[strings.ToLower(v)] = true

			score := 0.3
			lowered := strings.ToLower(v)
			for w := range queryWords {
				if strings.Contains(lowered, w) || strings.Contains(w, lowered) {
					score += 0.3
				}
			}
			if k != "key" && queryWords[strings.ToLower(k)] {
				score += 0.4
			}
			out = append(out, candidate{Value: v, Confidence: score})
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Confidence > out[j].Confidence })
	if len(out) > 5 {
		out = out[:5]
	}
	return out
}

// formatAnswer renders the best candidate without an LLM. Preference
// queries ("do i like...") get the possessive phrasing.
func formatAnswer(best string, query string) string {
	lower := strings.ToLower(query)
	if strings.Contains(lower, "like") || strings.Contains(lower, "prefer") {
		return "You like " + best + "."
	}
	return best
}

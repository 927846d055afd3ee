package memory

import (
	"math"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// maxEdgeTraversal caps the BFS expansion over edges during activation. The
// cap is a hard non-starvation guarantee; do not remove it.
const maxEdgeTraversal = 10

// ExtractGoalPatterns derives lookup tokens from a goal sentence: known
// domain markers, every word of three or more characters, and the full
// lowercased goal.
func ExtractGoalPatterns(goal string) []string {
	lower := strings.ToLower(goal)
	var patterns []string

	if strings.Contains(lower, "debug") {
		patterns = append(patterns, "debug")
	}
	if strings.Contains(lower, "http") {
		patterns = append(patterns, "http", "http_call")
	}
	if strings.Contains(lower, "api") {
		patterns = append(patterns, "api", "api_call")
	}
	if strings.Contains(lower, "error") {
		patterns = append(patterns, "error")
	}
	if strings.Contains(lower, "404") {
		patterns = append(patterns, "404", "404_error")
	}
	if strings.Contains(lower, "name") {
		patterns = append(patterns, "name", "personal")
	}
	if strings.Contains(lower, "my") || strings.Contains(lower, "your") {
		patterns = append(patterns, "personal")
	}

	for _, word := range strings.Fields(lower) {
		if len(word) >= 3 {
			patterns = append(patterns, word)
			if word == "http" || word == "api" {
				patterns = append(patterns, word+"_call")
			}
		}
	}

	patterns = append(patterns, lower)
	return patterns
}

// ActivateFragments selects the fragments relevant to a context: index
// lookups gather candidates, the confidence threshold filters them, a
// weighted relevance score ranks them, and a bounded BFS over strong edges
// pulls in neighbors. Activated fragments get their last-activated state
// updated as a side effect.
func (g *Graph) ActivateFragments(ctx *ContextVector) map[uuid.UUID]struct{} {
	candidates := make(idSet)

	goalPatterns := ExtractGoalPatterns(ctx.Goal.Description)
	for _, pattern := range goalPatterns {
		for id := range g.Index.ByGoal[pattern] {
			candidates.add(id)
		}
		for id := range g.Index.ByGoal[strings.ToLower(pattern)] {
			candidates.add(id)
		}
	}

	for id := range g.Index.ByDomain[ctx.DomainHint.Domain] {
		candidates.add(id)
	}

	for tag := range ctx.DomainHint.Tags {
		g.lookupKeywordForms(tag, candidates)
	}
	for _, pattern := range goalPatterns {
		for id := range g.Index.ByKeyword[strings.ToLower(pattern)] {
			candidates.add(id)
		}
	}

	type scored struct {
		id    uuid.UUID
		score float64
	}
	ranked := make([]scored, 0, len(candidates))
	for id := range candidates {
		f, ok := g.Fragments[id]
		if !ok {
			// Dangling index entry left behind by eviction.
			continue
		}
		if f.Confidence < ctx.ConfidenceThreshold {
			continue
		}
		ranked = append(ranked, scored{id: id, score: relevanceScore(f, ctx)})
	}
	sort.SliceStable(ranked, func(i, j int) bool { return ranked[i].score > ranked[j].score })

	activated := make(map[uuid.UUID]struct{})
	limit := ctx.MaxFragments
	if limit <= 0 || limit > len(ranked) {
		limit = len(ranked)
	}
	for _, s := range ranked[:limit] {
		activated[s.id] = struct{}{}
	}

	g.expandAlongEdges(activated, ctx.ConfidenceThreshold)

	now := time.Now()
	for id := range activated {
		if f, ok := g.Fragments[id]; ok {
			f.LastActivated = now
			f.ActivationHistory = append(f.ActivationHistory, now)
		}
	}

	g.logger.Debug("activation complete",
		zap.Int("candidates", len(candidates)),
		zap.Int("activated", len(activated)),
		zap.String("goal", ctx.Goal.Description))

	return activated
}

// lookupKeywordForms tries the tag as given plus its lowercase, underscore,
// hyphen and squeezed normalizations.
func (g *Graph) lookupKeywordForms(tag string, out idSet) {
	for id := range g.Index.ByKeyword[tag] {
		out.add(id)
	}
	lower := strings.ToLower(tag)
	for id := range g.Index.ByKeyword[lower] {
		out.add(id)
	}
	underscored := strings.ReplaceAll(lower, " ", "_")
	if underscored != lower {
		for id := range g.Index.ByKeyword[underscored] {
			out.add(id)
		}
	}
	hyphenated := strings.ReplaceAll(lower, " ", "-")
	if hyphenated != lower && hyphenated != underscored {
		for id := range g.Index.ByKeyword[hyphenated] {
			out.add(id)
		}
	}
	squeezed := strings.ReplaceAll(lower, " ", "")
	if squeezed != lower && len(squeezed) >= 4 {
		for id := range g.Index.ByKeyword[squeezed] {
			out.add(id)
		}
	}
}

// expandAlongEdges walks edges from the activated set, admitting neighbors
// that clear the confidence threshold. Bounded at maxEdgeTraversal pops.
func (g *Graph) expandAlongEdges(activated map[uuid.UUID]struct{}, threshold float64) {
	toExplore := make([]uuid.UUID, 0, len(activated))
	for id := range activated {
		toExplore = append(toExplore, id)
	}
	explored := make(idSet)

	for step := 0; step < maxEdgeTraversal; step++ {
		if len(toExplore) == 0 {
			break
		}
		current := toExplore[len(toExplore)-1]
		toExplore = toExplore[:len(toExplore)-1]
		if explored.has(current) {
			continue
		}
		explored.add(current)

		for key := range g.Edges {
			var neighbor uuid.UUID
			switch current {
			case key.From:
				neighbor = key.To
			case key.To:
				neighbor = key.From
			default:
				continue
			}
			if _, seen := activated[neighbor]; seen {
				continue
			}
			f, ok := g.Fragments[neighbor]
			if !ok || f.Confidence < threshold {
				continue
			}
			activated[neighbor] = struct{}{}
			toExplore = append(toExplore, neighbor)
		}
	}
}

// relevanceScore weights confidence, recency, salience, emotional match and
// reinforcement into a single rank value.
func relevanceScore(f *Fragment, ctx *ContextVector) float64 {
	score := f.Confidence * 0.3

	if !f.LastActivated.IsZero() {
		recencyHours := time.Since(f.LastActivated).Hours()
		score += math.Exp(-recencyHours/24) * 0.2
	}

	score += f.Salience * 0.2

	emotionMatch := 1 - math.Abs(f.EmotionalTag-ctx.EmotionalBias.Frustration)
	score += emotionMatch * 0.1

	score += math.Min(float64(f.ReinforcementCount)/100, 1) * 0.2

	return score
}

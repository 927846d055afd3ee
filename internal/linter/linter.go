package linter

import (
	"math"
	"sort"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/nidhogg/engram/internal/compiler"
	"github.com/nidhogg/engram/internal/execution"
	"github.com/nidhogg/engram/internal/memory"
)

// Input is the trace corpus for one lint run. TimeWindow, when positive,
// restricts mining to traces newer than now minus the window.
type Input struct {
	Traces     []*execution.Trace
	Results    []*execution.Result
	EEGs       []*compiler.EEG
	TimeWindow time.Duration
}

// Linter mines a trace corpus.
type Linter struct {
	cfg    Config
	logger *zap.Logger
}

// New creates a linter with the given gates.
func New(cfg Config, logger *zap.Logger) *Linter {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Linter{cfg: cfg, logger: logger}
}

// Run executes all four detectors and derives fossilization candidates.
func (l *Linter) Run(input Input) *Report {
	traces := input.Traces
	if input.TimeWindow > 0 {
		cutoff := time.Now().Add(-input.TimeWindow)
		filtered := make([]*execution.Trace, 0, len(traces))
		for _, t := range traces {
			if !t.Timestamp.Before(cutoff) {
				filtered = append(filtered, t)
			}
		}
		traces = filtered
	}

	report := &Report{
		RepeatedPaths:      l.detectRepeatedPaths(traces, input.Results),
		StableBranches:     l.detectStableBranches(traces, input.EEGs),
		InvariantSubgraphs: l.detectInvariantSubgraphs(traces, input.EEGs),
		OutcomeClusters:    l.detectOutcomeClusters(input.Results),
	}
	report.Candidates = l.identifyCandidates(report)

	l.logger.Debug("lint run complete",
		zap.Int("traces", len(traces)),
		zap.Int("repeated_paths", len(report.RepeatedPaths)),
		zap.Int("stable_branches", len(report.StableBranches)),
		zap.Int("candidates", len(report.Candidates)))
	return report
}

// pathKey folds a node sequence into a comparable map key.
func pathKey(path []uuid.UUID) string {
	key := make([]byte, 0, len(path)*16)
	for _, id := range path {
		key = append(key, id[:]...)
	}
	return string(key)
}

func sameSequence(a, b []uuid.UUID) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// detectRepeatedPaths counts every contiguous subsequence of at least
// MinPathLength nodes across all traces.
func (l *Linter) detectRepeatedPaths(traces []*execution.Trace, results []*execution.Result) []PathPattern {
	type pathStats struct {
		path     []uuid.UUID
		count    int
		contexts []*memory.ContextVector
		results  []*execution.Result
	}
	stats := make(map[string]*pathStats)

	for _, trace := range traces {
		var matched *execution.Result
		for _, r := range results {
			if sameSequence(r.Trace, trace.NodeSequence) {
				matched = r
				break
			}
		}
		for _, path := range subpaths(trace.NodeSequence, l.cfg.MinPathLength) {
			key := pathKey(path)
			s, ok := stats[key]
			if !ok {
				s = &pathStats{path: path}
				stats[key] = s
			}
			s.count++
			s.contexts = append(s.contexts, trace.Context)
			if matched != nil {
				s.results = append(s.results, matched)
			}
		}
	}

	var patterns []PathPattern
	for _, s := range stats {
		if s.count < l.cfg.MinOccurrences {
			continue
		}
		patterns = append(patterns, PathPattern{
			Path:              s.path,
			OccurrenceCount:   s.count,
			Contexts:          s.contexts,
			AverageConfidence: averageResultConfidence(s.results),
			SuccessRate:       successRate(s.results),
		})
	}
	sort.SliceStable(patterns, func(i, j int) bool {
		return patterns[i].OccurrenceCount > patterns[j].OccurrenceCount
	})
	return patterns
}

// subpaths yields every contiguous window of at least minLength nodes.
func subpaths(sequence []uuid.UUID, minLength int) [][]uuid.UUID {
	var paths [][]uuid.UUID
	for start := 0; start < len(sequence); start++ {
		for end := start + minLength; end <= len(sequence); end++ {
			paths = append(paths, sequence[start:end])
		}
	}
	return paths
}

func averageResultConfidence(results []*execution.Result) float64 {
	if len(results) == 0 {
		return 0
	}
	var sum float64
	for _, r := range results {
		sum += r.Confidence
	}
	return sum / float64(len(results))
}

func successRate(results []*execution.Result) float64 {
	if len(results) == 0 {
		return 0
	}
	successes := 0
	for _, r := range results {
		if r.Outcome.OutcomeType == memory.OutcomeSuccess {
			successes++
		}
	}
	return float64(successes) / float64(len(results))
}

// detectStableBranches finds decision nodes whose dominant branch clears the
// ratio gate. Confidence comes from the graphs whose compile timestamps
// match the contributing traces, defaulting to 0.8 when no graph joins.
func (l *Linter) detectStableBranches(traces []*execution.Trace, eegs []*compiler.EEG) []BranchPattern {
	branchCounts := make(map[uuid.UUID]map[uuid.UUID]int)
	contexts := make(map[uuid.UUID][]*memory.ContextVector)

	for _, trace := range traces {
		for decision, chosen := range trace.BranchDecisions {
			if branchCounts[decision] == nil {
				branchCounts[decision] = make(map[uuid.UUID]int)
			}
			branchCounts[decision][chosen]++
			contexts[decision] = append(contexts[decision], trace.Context)
		}
	}

	var patterns []BranchPattern
	for decision, counts := range branchCounts {
		total := 0
		var dominant uuid.UUID
		dominantCount := -1
		for branch, count := range counts {
			total += count
			if count > dominantCount {
				dominant, dominantCount = branch, count
			}
		}
		if total < l.cfg.MinOccurrences {
			continue
		}
		ratio := float64(dominantCount) / float64(total)
		if ratio < l.cfg.MinBranchRatio {
			continue
		}

		var confidences []float64
		for _, trace := range traces {
			if chosen, ok := trace.BranchDecisions[decision]; ok && chosen == dominant {
				for _, eeg := range eegs {
					if eeg.Metadata.CompiledAt.Equal(trace.Timestamp) {
						confidences = append(confidences, eeg.Metadata.Confidence)
						break
					}
				}
			}
		}
		avg := 0.8
		if len(confidences) > 0 {
			var sum float64
			for _, c := range confidences {
				sum += c
			}
			avg = sum / float64(len(confidences))
		}

		patterns = append(patterns, BranchPattern{
			DecisionNode:      decision,
			DominantBranch:    dominant,
			BranchRatio:       ratio,
			Contexts:          contexts[decision],
			AverageConfidence: avg,
		})
	}
	return patterns
}

// detectInvariantSubgraphs finds full node sequences that recur while the
// driving contexts stay within the variance gate.
func (l *Linter) detectInvariantSubgraphs(traces []*execution.Trace, eegs []*compiler.EEG) []SubgraphPattern {
	type subgraphStats struct {
		nodes    []uuid.UUID
		count    int
		contexts []*memory.ContextVector
	}
	stats := make(map[string]*subgraphStats)

	for _, trace := range traces {
		key := pathKey(trace.NodeSequence)
		s, ok := stats[key]
		if !ok {
			s = &subgraphStats{nodes: trace.NodeSequence}
			stats[key] = s
		}
		s.count++
		s.contexts = append(s.contexts, trace.Context)
	}

	var patterns []SubgraphPattern
	for _, s := range stats {
		if s.count < l.cfg.MinOccurrences {
			continue
		}
		variance := contextVariance(s.contexts)
		if variance > l.cfg.MaxContextVariance {
			continue
		}

		var confidences []float64
		for _, trace := range traces {
			if !sameSequence(trace.NodeSequence, s.nodes) {
				continue
			}
			for _, eeg := range eegs {
				if eeg.Metadata.CompiledAt.Equal(trace.Timestamp) {
					confidences = append(confidences, eeg.Metadata.Confidence)
					break
				}
			}
		}
		avg := 0.7
		if len(confidences) > 0 {
			var sum float64
			for _, c := range confidences {
				sum += c
			}
			avg = sum / float64(len(confidences))
		}

		patterns = append(patterns, SubgraphPattern{
			Nodes:             s.nodes,
			OccurrenceCount:   s.count,
			Contexts:          s.contexts,
			AverageConfidence: avg,
			ContextVariance:   variance,
		})
	}
	return patterns
}

// contextVariance measures goal diversity: 1 minus the share of distinct
// goal descriptions. Fewer than two contexts count as zero variance.
func contextVariance(contexts []*memory.ContextVector) float64 {
	if len(contexts) < 2 {
		return 0
	}
	distinct := make(map[string]struct{}, len(contexts))
	for _, c := range contexts {
		distinct[c.Goal.Description] = struct{}{}
	}
	return 1 - float64(len(distinct))/float64(len(contexts))
}

// detectOutcomeClusters groups results by outcome type; uncertain results
// are not clustered.
func (l *Linter) detectOutcomeClusters(results []*execution.Result) []OutcomePattern {
	buckets := map[memory.OutcomeType][]*execution.Result{}
	for _, r := range results {
		switch r.Outcome.OutcomeType {
		case memory.OutcomeSuccess, memory.OutcomeFailure, memory.OutcomePartial:
			buckets[r.Outcome.OutcomeType] = append(buckets[r.Outcome.OutcomeType], r)
		}
	}

	rates := map[memory.OutcomeType]float64{
		memory.OutcomeSuccess: 1.0,
		memory.OutcomeFailure: 0.0,
		memory.OutcomePartial: 0.5,
	}

	var patterns []OutcomePattern
	for _, outcomeType := range []memory.OutcomeType{memory.OutcomeSuccess, memory.OutcomeFailure, memory.OutcomePartial} {
		clustered := buckets[outcomeType]
		if len(clustered) < l.cfg.MinOccurrences {
			continue
		}
		avg := averageResultConfidence(clustered)
		if avg < l.cfg.MinConfidence {
			continue
		}
		patterns = append(patterns, OutcomePattern{
			OutcomeType:       outcomeType,
			OccurrenceCount:   len(clustered),
			AverageConfidence: avg,
			SuccessRate:       rates[outcomeType],
		})
	}
	return patterns
}

// identifyCandidates gates path and branch patterns for fossilization and
// ranks survivors by priority.
func (l *Linter) identifyCandidates(report *Report) []Candidate {
	var candidates []Candidate

	for i := range report.RepeatedPaths {
		p := &report.RepeatedPaths[i]
		if p.OccurrenceCount < l.cfg.MinOccurrences || p.AverageConfidence < l.cfg.MinConfidence {
			continue
		}
		variance := contextVariance(p.Contexts)
		reward := p.SuccessRate
		speedup := estimateSpeedup(p.OccurrenceCount)
		if variance > l.cfg.MaxContextVariance || reward < l.cfg.MinRewardCorr || speedup < l.cfg.MinSpeedup {
			continue
		}
		candidates = append(candidates, Candidate{
			PatternType:       PatternPath,
			PatternID:         uuid.New(),
			RepetitionCount:   p.OccurrenceCount,
			AverageConfidence: p.AverageConfidence,
			ContextVariance:   variance,
			RewardCorrelation: reward,
			EstimatedSpeedup:  speedup,
			Priority:          priority(p.OccurrenceCount, p.AverageConfidence, variance, reward, speedup),
			SourcePath:        p,
		})
	}

	for i := range report.StableBranches {
		b := &report.StableBranches[i]
		if b.BranchRatio < l.cfg.MinBranchRatio || b.AverageConfidence < l.cfg.MinConfidence {
			continue
		}
		variance := contextVariance(b.Contexts)
		// A short-circuited branch saves roughly one decision evaluation.
		const speedup = 1.5
		if variance > l.cfg.MaxContextVariance || speedup < l.cfg.MinSpeedup {
			continue
		}
		reps := int(b.BranchRatio * 10)
		candidates = append(candidates, Candidate{
			PatternType:       PatternBranch,
			PatternID:         uuid.New(),
			RepetitionCount:   reps,
			AverageConfidence: b.AverageConfidence,
			ContextVariance:   variance,
			RewardCorrelation: b.BranchRatio,
			EstimatedSpeedup:  speedup,
			Priority:          priority(reps, b.AverageConfidence, variance, b.BranchRatio, speedup),
			SourceBranch:      b,
		})
	}

	sort.SliceStable(candidates, func(i, j int) bool {
		return candidates[i].Priority > candidates[j].Priority
	})
	return candidates
}

// estimateSpeedup scales with repetition: ten repeats amortize to parity,
// capped at 10x.
func estimateSpeedup(occurrences int) float64 {
	return math.Min(float64(occurrences)/10, 10)
}

// priority blends the five fossilization factors into a [0,1] rank.
func priority(repetitions int, confidence, variance, reward, speedup float64) float64 {
	repFactor := math.Min(float64(repetitions)/100, 1)
	varFactor := 1 - variance
	speedupFactor := math.Min(speedup/10, 1)
	p := repFactor*0.2 + confidence*0.3 + varFactor*0.2 + reward*0.2 + speedupFactor*0.1
	return math.Min(p, 1)
}

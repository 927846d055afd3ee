// Package agent owns one memory graph and drives the full reasoning loop
// over it: extract, distill, store, compile, execute, reinforce. The graph
// is exclusive to the session; all access goes through the session's lock.
package agent

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/nidhogg/engram/internal/compiler"
	"github.com/nidhogg/engram/internal/distill"
	"github.com/nidhogg/engram/internal/execution"
	"github.com/nidhogg/engram/internal/fossil"
	"github.com/nidhogg/engram/internal/ingest"
	"github.com/nidhogg/engram/internal/linter"
	"github.com/nidhogg/engram/internal/memory"
	"github.com/nidhogg/engram/internal/provider"
)

// ConversationTurn records one processed utterance.
type ConversationTurn struct {
	Input     string                `json:"input"`
	Context   *memory.ContextVector `json:"-"`
	Result    *execution.Result     `json:"result,omitempty"`
	Response  string                `json:"response"`
	Timestamp time.Time             `json:"timestamp"`
}

// Session is one agent's reasoning loop over an exclusive memory graph.
type Session struct {
	graph     *memory.Graph
	providers *provider.Router
	compiler  *compiler.Compiler
	executor  *execution.Executor
	history   []ConversationTurn

	// Corpus for pattern mining, one entry per executed walk.
	traces  []*execution.Trace
	results []*execution.Result
	eegs    []*compiler.EEG

	mu     sync.Mutex
	logger *zap.Logger
}

// NewSession creates a session over a fresh graph. providers may be nil;
// extraction then always takes the structural path.
func NewSession(providers *provider.Router, logger *zap.Logger) *Session {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Session{
		graph:     memory.NewGraph(logger),
		providers: providers,
		compiler:  compiler.New(logger),
		executor:  execution.New(logger),
		logger:    logger,
	}
}

// WithGraph replaces the session's graph, typically after a snapshot load.
func (s *Session) WithGraph(g *memory.Graph) *Session {
	s.mu.Lock()
	defer s.mu.Unlock()
	g.SetLogger(s.logger)
	s.graph = g
	return s
}

// Graph exposes the underlying graph for persistence. Callers must not
// mutate it while the session is live.
func (s *Session) Graph() *memory.Graph {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.graph
}

// Process runs one utterance through the loop and returns a reply. The
// function is total: provider failures fall back to structural extraction
// and template answers.
func (s *Session) Process(ctx context.Context, input string) string {
	s.mu.Lock()
	defer s.mu.Unlock()

	event := s.extract(ctx, input)
	intent := classifyIntent(event, input)
	isQuery := strings.HasPrefix(intent.Pattern, "query")
	isGreeting := intent.Pattern == "greeting"

	s.logger.Debug("intent classified",
		zap.String("pattern", intent.Pattern),
		zap.Int("atoms", len(event.Atoms)))

	distilled := distill.DistillEvent(event)

	// Queries only retrieve; greetings carry nothing worth keeping.
	if !isQuery && !isGreeting {
		s.store(distilled)
	}

	if isGreeting {
		return "Hello! How can I help you?"
	}

	goal := "statement"
	if isQuery {
		goal = intent.Pattern
	}
	cv := memory.GenerateContext(goal, "general", 0.3)
	addAtomKeywords(event, cv)
	if isQuery {
		addQueryKeywords(input, cv)
	}

	eeg := s.compiler.CompileThought(cv, s.graph)
	result := s.executor.ExecuteEEG(eeg, s.graph)
	s.record(eeg, cv, result)

	var response string
	if isQuery {
		response = s.answer(ctx, input, result)

		if len(result.Trace) > 1 {
			s.graph.RecordCoActivation(result.Trace)
		}
		for _, signal := range result.Signals {
			s.graph.ReinforceFragment(signal.FragmentID, &result.Outcome)
		}
	} else {
		response = "Got it."
	}

	s.history = append(s.history, ConversationTurn{
		Input:     input,
		Context:   cv,
		Result:    result,
		Response:  response,
		Timestamp: time.Now(),
	})
	return response
}

// Think answers a goal directly without conversational framing: compile,
// execute, reinforce, and return the raw result.
func (s *Session) Think(goal, domain string, timePressure float64) *execution.Result {
	s.mu.Lock()
	defer s.mu.Unlock()

	cv := memory.GenerateContext(goal, domain, timePressure)
	eeg := s.compiler.CompileThought(cv, s.graph)
	result := s.executor.ExecuteEEG(eeg, s.graph)
	s.record(eeg, cv, result)

	if len(result.Trace) > 1 {
		s.graph.RecordCoActivation(result.Trace)
	}
	for _, signal := range result.Signals {
		s.graph.ReinforceFragment(signal.FragmentID, &result.Outcome)
	}
	return result
}

// Ingest stores a pre-extracted semantic event directly, bypassing
// extraction and intent classification.
func (s *Session) Ingest(event *memory.SemanticEvent) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	distilled := distill.DistillEvent(event)
	s.store(distilled)
	return len(distilled.Fragments())
}

// Lint mines the accumulated trace corpus for fossilization candidates.
func (s *Session) Lint() *linter.Report {
	s.mu.Lock()
	defer s.mu.Unlock()

	l := linter.New(linter.DefaultConfig(), s.logger)
	return l.Run(linter.Input{
		Traces:  s.traces,
		Results: s.results,
		EEGs:    s.eegs,
	})
}

// Fossilize compiles the report's surviving candidates into modules and
// registers them on the graph. Returns the new modules.
func (s *Session) Fossilize(report *linter.Report) []*memory.CompiledModule {
	s.mu.Lock()
	defer s.mu.Unlock()

	fz := fossil.New(fossil.DefaultConfig(), s.logger)
	modules := fz.Fossilize(report, s.eegs, s.traces)
	for _, m := range modules {
		s.graph.AddModule(m)
	}
	return modules
}

// Decay runs one decay sweep over the graph.
func (s *Session) Decay(elapsed float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.graph.Decay(elapsed)
}

// Stats reports graph sizes plus the session's turn count.
func (s *Session) Stats() memory.MemoryStats {
	s.mu.Lock()
	defer s.mu.Unlock()
	stats := s.graph.Stats()
	stats.ConversationTurns = len(s.history)
	return stats
}

// History returns a copy of the conversation so far.
func (s *Session) History() []ConversationTurn {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]ConversationTurn, len(s.history))
	copy(out, s.history)
	return out
}

// Traces returns the accumulated trace corpus.
func (s *Session) Traces() []*execution.Trace {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*execution.Trace, len(s.traces))
	copy(out, s.traces)
	return out
}

// extract runs LLM extraction when a provider is configured, falling back
// to the structural path on any failure.
func (s *Session) extract(ctx context.Context, input string) *memory.SemanticEvent {
	if s.providers != nil && !s.providers.Empty() {
		event, err := s.providers.ExtractSemantics(ctx, input)
		if err == nil {
			return event
		}
		s.logger.Warn("LLM extraction failed, using structural fallback", zap.Error(err))
	}
	return ingest.Conversation(input)
}

// store inserts distilled fragments, handing each its outgoing edges.
func (s *Session) store(d *distill.Distilled) {
	edgesByFrom := make(map[uuid.UUID][]*memory.Edge)
	for _, e := range d.Edges {
		edgesByFrom[e.From] = append(edgesByFrom[e.From], e)
	}
	for _, f := range d.Fragments() {
		s.graph.InsertFragment(f, edgesByFrom[f.ID])
	}
}

// record appends one walk to the mining corpus.
func (s *Session) record(eeg *compiler.EEG, cv *memory.ContextVector, result *execution.Result) {
	s.eegs = append(s.eegs, eeg)
	s.traces = append(s.traces, execution.TraceOf(eeg, cv, result))
	s.results = append(s.results, result)
}

// answer builds the reply for a query: LLM formatting over the activated
// memory when available, template answers otherwise.
func (s *Session) answer(ctx context.Context, input string, result *execution.Result) string {
	data := provider.CollectMemoryData(result.Trace, s.graph, input, result.Confidence)

	if result.Confidence <= 0.3 || len(data.Fragments) == 0 {
		if len(result.Trace) == 0 {
			return "I don't have that information yet."
		}
		if resp := s.format(ctx, input, data); resp != "" {
			return resp
		}
		return "I'm not sure about that."
	}

	candidates := topCandidates(data)
	if resp := s.format(ctx, input, data); resp != "" {
		return resp
	}
	if len(candidates) > 0 {
		return formatAnswer(candidates[0].Value, input)
	}
	return "I don't have that information yet."
}

func (s *Session) format(ctx context.Context, input string, data *provider.MemoryData) string {
	if s.providers == nil || s.providers.Empty() {
		return ""
	}
	resp, err := s.providers.FormatResponse(ctx, input, data)
	if err != nil {
		s.logger.Warn("response formatting failed", zap.Error(err))
		return ""
	}
	return resp
}

// addAtomKeywords copies every non-empty content key and value of the event
// into the context's domain tags so the keyword index can see them.
func addAtomKeywords(event *memory.SemanticEvent, cv *memory.ContextVector) {
	if cv.DomainHint.Tags == nil {
		cv.DomainHint.Tags = make(map[string]struct{})
	}
	for _, atom := range event.Atoms {
		for k, v := range atom.Content {
			if k != "" {
				cv.DomainHint.Tags[k] = struct{}{}
				cv.DomainHint.Tags[strings.ToLower(k)] = struct{}{}
			}
			if v != "" && v != "unknown" {
				cv.DomainHint.Tags[v] = struct{}{}
				cv.DomainHint.Tags[strings.ToLower(v)] = struct{}{}
			}
		}
	}
}

// addQueryKeywords tags every word of the query plus a squeezed whole-phrase
// form, widening recall for multi-word names.
func addQueryKeywords(input string, cv *memory.ContextVector) {
	if cv.DomainHint.Tags == nil {
		cv.DomainHint.Tags = make(map[string]struct{})
	}
	lower := strings.ToLower(input)
	var kept []string
	for _, w := range strings.Fields(lower) {
		w = strings.TrimFunc(w, func(r rune) bool {
			return !(r >= 'a' && r <= 'z' || r >= '0' && r <= '9')
		})
		if len(w) >= 2 {
			cv.DomainHint.Tags[w] = struct{}{}
			kept = append(kept, w)
		}
	}
	phrase := strings.Join(kept, "")
	if len(phrase) >= 4 {
		cv.DomainHint.Tags[phrase] = struct{}{}
	}
}

package agent

import (
	"context"
	"fmt"
	"testing"

	"github.com/nidhogg/engram/internal/ingest"
	"github.com/nidhogg/engram/internal/memory"
	"github.com/nidhogg/engram/internal/provider"
)

type stubProvider struct {
	id         string
	event      *memory.SemanticEvent
	reply      string
	extractErr error
	formatErr  error
}

func (p *stubProvider) ID() string   { return p.id }
func (p *stubProvider) Name() string { return p.id }

func (p *stubProvider) ExtractSemantics(_ context.Context, _ string) (*memory.SemanticEvent, error) {
	return p.event, p.extractErr
}

func (p *stubProvider) FormatResponse(_ context.Context, _ string, _ *provider.MemoryData) (string, error) {
	return p.reply, p.formatErr
}

func (p *stubProvider) HealthCheck(_ context.Context) error { return nil }

func routerWith(t *testing.T, p provider.Provider) *provider.Router {
	t.Helper()
	r := provider.NewRouter(nil)
	r.Register(p)
	return r
}

func TestClassifyIntent(t *testing.T) {
	tests := []struct {
		text string
		want string
	}{
		{"Hello", "greeting"},
		{"check the server", "store_general"},
		{"what about the server?", "query_general"},
		{"What is the server status?", "query_person_info"},
		{"debug the 404 error", "store_general"},
	}
	for _, tt := range tests {
		t.Run(tt.text, func(t *testing.T) {
			event := ingest.Conversation(tt.text)
			got := classifyIntent(event, tt.text)
			if got.Pattern != tt.want {
				t.Errorf("classifyIntent(%q) = %q, want %q", tt.text, got.Pattern, tt.want)
			}
		})
	}
}

func TestProcessGreetingStoresNothing(t *testing.T) {
	s := NewSession(nil, nil)

	resp := s.Process(context.Background(), "Hello")
	if resp != "Hello! How can I help you?" {
		t.Errorf("greeting response = %q", resp)
	}
	if stats := s.Stats(); stats.Fragments != 0 {
		t.Errorf("fragments after greeting = %d, want 0", stats.Fragments)
	}
	if len(s.History()) != 0 {
		t.Error("greetings must not enter the conversation history")
	}
}

func TestProcessStatementThenQuery(t *testing.T) {
	s := NewSession(nil, nil)
	ctx := context.Background()

	if resp := s.Process(ctx, "check the server"); resp != "Got it." {
		t.Fatalf("statement response = %q", resp)
	}
	stats := s.Stats()
	if stats.Fragments != 2 || stats.Edges != 1 {
		t.Fatalf("stored %d fragments / %d edges, want 2 / 1", stats.Fragments, stats.Edges)
	}

	resp := s.Process(ctx, "what about the server?")
	if resp != "server" {
		t.Errorf("query response = %q, want the stored entity", resp)
	}

	g := s.Graph()
	for _, f := range g.Fragments {
		if f.ReinforcementCount != 1 {
			t.Errorf("fragment %s reinforcement count = %d, want 1", f.ID, f.ReinforcementCount)
		}
	}
	if len(g.CoActivations) != 1 {
		t.Errorf("co-activation patterns = %d, want 1", len(g.CoActivations))
	}
	if got := s.Stats().ConversationTurns; got != 2 {
		t.Errorf("conversation turns = %d, want 2", got)
	}
	if got := len(s.Traces()); got != 2 {
		t.Errorf("trace corpus = %d, want one entry per turn", got)
	}
}

func TestProcessQueryOnEmptyGraph(t *testing.T) {
	s := NewSession(nil, nil)

	resp := s.Process(context.Background(), "what about the treasure?")
	if resp != "I'm not sure about that." {
		t.Errorf("empty-graph query response = %q", resp)
	}
	if stats := s.Stats(); stats.Fragments != 0 {
		t.Errorf("query stored %d fragments", stats.Fragments)
	}
}

func TestProcessUsesProviderExtraction(t *testing.T) {
	stub := &stubProvider{
		id: "stub",
		event: &memory.SemanticEvent{
			EventType: memory.EventConversation,
			Atoms: []memory.SemanticAtom{
				{AtomType: memory.AtomPerson, Content: map[string]string{"name": "Ada", "profession": "engineer"}},
			},
			Salience: 0.9,
		},
		reply: "Ada is an engineer.",
	}
	s := NewSession(routerWith(t, stub), nil)
	ctx := context.Background()

	if resp := s.Process(ctx, "Ada is an engineer"); resp != "Got it." {
		t.Fatalf("statement response = %q", resp)
	}
	// One atom fragment plus the name and profession personal facts.
	if stats := s.Stats(); stats.Fragments != 3 {
		t.Fatalf("stored %d fragments, want 3", stats.Fragments)
	}

	if resp := s.Process(ctx, "what is ada?"); resp != "Ada is an engineer." {
		t.Errorf("query response = %q, want the provider answer", resp)
	}
}

func TestProcessFallsBackWhenProviderFails(t *testing.T) {
	stub := &stubProvider{id: "broken", extractErr: fmt.Errorf("down")}
	s := NewSession(routerWith(t, stub), nil)

	if resp := s.Process(context.Background(), "check the server"); resp != "Got it." {
		t.Fatalf("statement response = %q", resp)
	}
	if stats := s.Stats(); stats.Fragments != 2 {
		t.Errorf("structural fallback stored %d fragments, want 2", stats.Fragments)
	}
}

func TestThinkReinforcesAndRecords(t *testing.T) {
	s := NewSession(nil, nil)
	causal := memory.NewFragment(memory.CausalRule{
		Condition:  "404_error",
		Outcome:    "check_route",
		Confidence: 0.9,
	}, 0.9, 0.8, 0.4)
	s.Graph().InsertFragment(causal, nil)

	result := s.Think("debug the 404_error", "web_development", 0)
	if result.Outcome.OutcomeType != memory.OutcomeSuccess {
		t.Errorf("outcome = %v", result.Outcome.OutcomeType)
	}
	if len(result.Signals) != 1 {
		t.Fatalf("signals = %d, want 1", len(result.Signals))
	}
	if causal.ReinforcementCount != 1 {
		t.Errorf("reinforcement count = %d, want 1", causal.ReinforcementCount)
	}
	if len(s.Traces()) != 1 {
		t.Errorf("trace corpus = %d, want 1", len(s.Traces()))
	}
}

func TestIngestCountsFragments(t *testing.T) {
	s := NewSession(nil, nil)

	n := s.Ingest(ingest.Conversation("Alice likes coffee"))
	if n != 2 {
		t.Errorf("ingested %d fragments, want atom plus personal fact", n)
	}
	if stats := s.Stats(); stats.Fragments != n {
		t.Errorf("graph fragments = %d, want %d", stats.Fragments, n)
	}
}

func TestLintFossilizeRoundTrip(t *testing.T) {
	s := NewSession(nil, nil)
	causal := memory.NewFragment(memory.CausalRule{
		Condition:  "404_error",
		Outcome:    "check_route",
		Confidence: 0.9,
	}, 0.9, 0.8, 0.4)
	s.Graph().InsertFragment(causal, nil)

	for i := 0; i < 12; i++ {
		s.Think("debug the 404_error", "web_development", 0)
	}

	report := s.Lint()
	if report == nil {
		t.Fatal("lint returned nil report")
	}
	modules := s.Fossilize(report)
	if got := s.Stats().CompiledModules; got != len(modules) {
		t.Errorf("registered modules = %d, fossilized = %d", got, len(modules))
	}
}

func TestDecayLowersConfidence(t *testing.T) {
	s := NewSession(nil, nil)
	f := memory.NewFragment(memory.CausalRule{
		Condition: "timeout", Outcome: "retry", Confidence: 0.9,
	}, 0.9, 0.8, 0)
	s.Graph().InsertFragment(f, nil)

	s.Decay(1000)

	if f.Confidence >= 0.9 {
		t.Errorf("confidence after decay = %v, want below 0.9", f.Confidence)
	}
	if _, ok := s.Graph().Fragments[f.ID]; !ok {
		t.Error("fragment evicted too early")
	}
}

func TestTopCandidatesFiltersNoise(t *testing.T) {
	data := &provider.MemoryData{
		Fragments: []provider.FragmentData{
			{AtomType: "person", Content: map[string]string{"name": "Ada", "key": "xy", "job": "unknown"}},
			{AtomType: "entity", Content: map[string]string{"key": "ada"}},
		},
		Query: "who is ada",
	}
	got := topCandidates(data)
	if len(got) != 1 {
		t.Fatalf("candidates = %+v, want only the real value", got)
	}
	if got[0].Value != "Ada" {
		t.Errorf("best candidate = %q", got[0].Value)
	}
}

func TestFormatAnswer(t *testing.T) {
	if got := formatAnswer("coffee", "what do i like?"); got != "You like coffee." {
		t.Errorf("preference answer = %q", got)
	}
	if got := formatAnswer("paris", "where is it"); got != "paris" {
		t.Errorf("plain answer = %q", got)
	}
}

package provider

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/nidhogg/engram/internal/memory"
)

type fakeProvider struct {
	id    string
	event *memory.SemanticEvent
	err   error
	calls int
}

func (f *fakeProvider) ID() string   { return f.id }
func (f *fakeProvider) Name() string { return f.id }

func (f *fakeProvider) ExtractSemantics(_ context.Context, _ string) (*memory.SemanticEvent, error) {
	f.calls++
	return f.event, f.err
}

func (f *fakeProvider) FormatResponse(_ context.Context, _ string, _ *MemoryData) (string, error) {
	f.calls++
	if f.err != nil {
		return "", f.err
	}
	return "answer from " + f.id, nil
}

func (f *fakeProvider) HealthCheck(_ context.Context) error { return f.err }

func TestParseEventJSON(t *testing.T) {
	raw := `{
		"event_type": "conversation",
		"atoms": [
			{"atom_type": "person", "content": {"name": "Ada"}},
			{"atom_type": "object", "content": {"name": "banjo"}}
		],
		"relationships": [
			{"from_atom": 0, "to_atom": 1, "relation_type": "likes", "strength": 0.9},
			{"from_atom": 0, "to_atom": 7, "relation_type": "likes", "strength": 0.9}
		],
		"salience": 0.8,
		"emotional_weight": 0.1
	}`

	event, err := parseEventJSON(raw)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if len(event.Atoms) != 2 {
		t.Fatalf("atoms = %d, want 2", len(event.Atoms))
	}
	if event.Atoms[0].AtomType != memory.AtomPerson {
		t.Errorf("atom type = %v", event.Atoms[0].AtomType)
	}
	if len(event.Relationships) != 1 {
		t.Fatalf("relationships = %d, want out-of-range dropped", len(event.Relationships))
	}
	if event.Relationships[0].RelationType != memory.RelLikes {
		t.Errorf("relation = %v", event.Relationships[0].RelationType)
	}
	if event.Salience != 0.8 {
		t.Errorf("salience = %v", event.Salience)
	}
}

func TestParseEventJSONMarkdownFences(t *testing.T) {
	raw := "```json\n{\"event_type\":\"conversation\",\"atoms\":[{\"atom_type\":\"weird\",\"content\":{}}],\"relationships\":[]}\n```"

	event, err := parseEventJSON(raw)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if event.Atoms[0].AtomType != memory.AtomEntity {
		t.Errorf("unknown atom type = %v, want entity fallback", event.Atoms[0].AtomType)
	}
	if event.Salience != 1.0 {
		t.Errorf("salience = %v, want default 1.0", event.Salience)
	}
}

func TestParseEventJSONInvalid(t *testing.T) {
	if _, err := parseEventJSON("not json at all"); err == nil {
		t.Error("invalid json must fail")
	}
}

func TestCompactString(t *testing.T) {
	data := &MemoryData{
		Fragments: []FragmentData{
			{AtomType: "person", Content: map[string]string{"name": "Ada", "key": "ab", "job": "unknown"}},
		},
		Query: "who is ada",
	}
	got := data.CompactString()
	if !strings.Contains(got, "type:person") || !strings.Contains(got, "name:Ada") {
		t.Errorf("compact = %q", got)
	}
	if strings.Contains(got, "key:ab") || strings.Contains(got, "unknown") {
		t.Errorf("compact kept filtered pairs: %q", got)
	}

	empty := &MemoryData{}
	if empty.CompactString() != "{}" {
		t.Errorf("empty compact = %q", empty.CompactString())
	}
}

func TestRouterFallsThroughChain(t *testing.T) {
	broken := &fakeProvider{id: "broken", err: fmt.Errorf("down")}
	working := &fakeProvider{id: "working", event: &memory.SemanticEvent{Salience: 1}}

	r := NewRouter(nil)
	r.Register(broken)
	r.Register(working)
	r.SetDefault("broken")
	r.SetFallbacks([]string{"working"})

	event, err := r.ExtractSemantics(context.Background(), "hello")
	if err != nil {
		t.Fatalf("extract: %v", err)
	}
	if event.Salience != 1 {
		t.Errorf("event = %+v", event)
	}
	if broken.calls != 1 || working.calls != 1 {
		t.Errorf("calls = %d/%d, want 1/1", broken.calls, working.calls)
	}

	resp, err := r.FormatResponse(context.Background(), "q", &MemoryData{})
	if err != nil {
		t.Fatalf("format: %v", err)
	}
	if resp != "answer from working" {
		t.Errorf("resp = %q", resp)
	}
}

func TestRouterAllFailed(t *testing.T) {
	r := NewRouter(nil)
	r.Register(&fakeProvider{id: "a", err: fmt.Errorf("down")})

	if _, err := r.ExtractSemantics(context.Background(), "hello"); err == nil {
		t.Error("extraction must fail when every provider fails")
	}
}

func TestRouterEmpty(t *testing.T) {
	r := NewRouter(nil)
	if !r.Empty() {
		t.Error("new router must be empty")
	}
	if _, err := r.ExtractSemantics(context.Background(), "hello"); err == nil {
		t.Error("empty router must fail")
	}
}

func TestOpenAIExtractSemantics(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/chat/completions" {
			http.NotFound(w, r)
			return
		}
		if got := r.Header.Get("Authorization"); got != "Bearer test-key" {
			t.Errorf("auth header = %q", got)
		}
		inner := `{"event_type":"conversation","atoms":[{"atom_type":"person","content":{"name":"Ada"}}],"relationships":[],"salience":1.0,"emotional_weight":0.0}`
		resp := map[string]interface{}{
			"choices": []map[string]interface{}{
				{"message": map[string]string{"role": "assistant", "content": inner}},
			},
		}
		json.NewEncoder(w).Encode(resp)
	}))
	defer server.Close()

	p := NewOpenAI(Config{ID: "test", Endpoint: server.URL, APIKey: "test-key"}, nil)

	event, err := p.ExtractSemantics(context.Background(), "my name is Ada")
	if err != nil {
		t.Fatalf("extract: %v", err)
	}
	if len(event.Atoms) != 1 || event.Atoms[0].Content["name"] != "Ada" {
		t.Errorf("atoms = %+v", event.Atoms)
	}
}

func TestOpenAIServerError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "overloaded", http.StatusServiceUnavailable)
	}))
	defer server.Close()

	p := NewOpenAI(Config{ID: "test", Endpoint: server.URL}, nil)
	if _, err := p.ExtractSemantics(context.Background(), "hello"); err == nil {
		t.Error("server error must propagate")
	}
}

func TestAnthropicFormatResponse(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/messages" {
			http.NotFound(w, r)
			return
		}
		if got := r.Header.Get("x-api-key"); got != "test-key" {
			t.Errorf("api key header = %q", got)
		}
		resp := map[string]interface{}{
			"content": []map[string]string{{"type": "text", "text": "Ada is an engineer."}},
		}
		json.NewEncoder(w).Encode(resp)
	}))
	defer server.Close()

	p := NewAnthropic(Config{ID: "test", Endpoint: server.URL, APIKey: "test-key"}, nil)

	resp, err := p.FormatResponse(context.Background(), "who is ada", &MemoryData{Query: "who is ada"})
	if err != nil {
		t.Fatalf("format: %v", err)
	}
	if resp != "Ada is an engineer." {
		t.Errorf("resp = %q", resp)
	}
}

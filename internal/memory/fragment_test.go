package memory

import (
	"encoding/json"
	"strings"
	"testing"
)

func TestFragmentJSONRoundTrip(t *testing.T) {
	orig := NewFragment(CausalRule{Condition: "http_404", Outcome: "check endpoint", Confidence: 0.8}, 0.8, 0.6, 0.4)
	orig.ReinforcementCount = 3

	data, err := json.Marshal(orig)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}

	var got Fragment
	if err := json.Unmarshal(data, &got); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if got.ID != orig.ID {
		t.Errorf("id = %v, want %v", got.ID, orig.ID)
	}
	rule, ok := got.Content.(CausalRule)
	if !ok {
		t.Fatalf("content = %T, want CausalRule", got.Content)
	}
	if rule.Condition != "http_404" || rule.Outcome != "check endpoint" {
		t.Errorf("rule = %+v", rule)
	}
	if got.ReinforcementCount != 3 {
		t.Errorf("reinforcement count = %d, want 3", got.ReinforcementCount)
	}
}

func TestFragmentJSONAtomContent(t *testing.T) {
	orig := NewFragment(SemanticAtomContent{
		AtomType: AtomEntity,
		Content:  map[string]string{"name": "server", "role": "origin"},
	}, 0.5, 0.5, 0)

	data, err := json.Marshal(orig)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var got Fragment
	if err := json.Unmarshal(data, &got); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	atom, ok := got.Content.(SemanticAtomContent)
	if !ok {
		t.Fatalf("content = %T, want SemanticAtomContent", got.Content)
	}
	if atom.Content["name"] != "server" {
		t.Errorf("atom content = %v", atom.Content)
	}
}

func TestFragmentJSONRejectsUnknownKind(t *testing.T) {
	var f Fragment
	err := json.Unmarshal([]byte(`{"id":"6ba7b810-9dad-11d1-80b4-00c04fd430c8","kind":"telepathy","content":{}}`), &f)
	if err == nil {
		t.Fatal("expected error for unknown kind")
	}
	if !strings.Contains(err.Error(), "telepathy") {
		t.Errorf("error should name the kind: %v", err)
	}
}

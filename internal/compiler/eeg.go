// Package compiler turns an activated memory subgraph into an ephemeral
// execution graph (EEG): a small DAG of interpretation, decision and
// gap-fill nodes wired with causal edges, ready for the executor.
package compiler

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/nidhogg/engram/internal/memory"
)

// NodeKind identifies the concrete content variant of an EEG node.
type NodeKind string

const (
	NodeFragment NodeKind = "fragment"
	NodeConflict NodeKind = "conflict"
	NodeGapFill  NodeKind = "gap_fill"
	NodeDecision NodeKind = "decision"
	NodeAction   NodeKind = "action"
)

// NodeContent is the closed set of node payloads.
type NodeContent interface {
	NodeKind() NodeKind
}

// FragmentRef points a node at a memory fragment to interpret.
type FragmentRef struct {
	FragmentID     uuid.UUID `json:"fragment_id"`
	Interpretation string    `json:"interpretation"`
}

// ConflictContent records mutually contradicting fragments and, when known,
// which one execution should follow.
type ConflictContent struct {
	ConflictingFragments []uuid.UUID `json:"conflicting_fragments"`
	SelectedFragment     *uuid.UUID  `json:"selected_fragment,omitempty"`
}

// GapFill marks a hole in the reasoning chain that memory could not cover.
type GapFill struct {
	Description         string  `json:"description"`
	EstimatedConfidence float64 `json:"estimated_confidence"`
}

// Branch is one arm of a decision.
type Branch struct {
	Condition  string    `json:"condition"`
	TargetNode uuid.UUID `json:"target_node"`
	Weight     float64   `json:"weight"`
}

// Decision is a branching point.
type Decision struct {
	Condition string   `json:"condition"`
	Branches  []Branch `json:"branches,omitempty"`
}

// Action invokes a fossilized module or an external step.
type Action struct {
	ActionType string            `json:"action_type"`
	Parameters map[string]string `json:"parameters,omitempty"`
}

func (FragmentRef) NodeKind() NodeKind     { return NodeFragment }
func (ConflictContent) NodeKind() NodeKind { return NodeConflict }
func (GapFill) NodeKind() NodeKind         { return NodeGapFill }
func (Decision) NodeKind() NodeKind        { return NodeDecision }
func (Action) NodeKind() NodeKind          { return NodeAction }

// Node is one step of an execution graph.
type Node struct {
	ID              uuid.UUID
	Content         NodeContent
	Confidence      float64
	SourceFragments []uuid.UUID
	ExecutionCost   float64
}

// Edge is a directed link between two EEG nodes.
type Edge struct {
	From      uuid.UUID       `json:"from"`
	To        uuid.UUID       `json:"to"`
	EdgeType  memory.EdgeType `json:"edge_type"`
	Condition string          `json:"condition,omitempty"`
	Weight    float64         `json:"weight"`
}

// Metadata carries compile-time facts about an EEG. CompiledAt doubles as
// the join key between a graph and the traces its executions produced.
type Metadata struct {
	CompiledAt     time.Time `json:"compiled_at"`
	FragmentCount  int       `json:"fragment_count"`
	EstimatedSteps float64   `json:"estimated_steps"`
	Confidence     float64   `json:"confidence"`
}

// EEG is an ephemeral execution graph. It is rebuilt per query and never
// stored in the memory graph.
type EEG struct {
	Nodes    map[uuid.UUID]*Node `json:"nodes"`
	Edges    []*Edge             `json:"edges"`
	Entry    uuid.UUID           `json:"entry"`
	Exits    []uuid.UUID         `json:"exits"`
	Metadata Metadata            `json:"metadata"`
}

type nodeJSON struct {
	ID              uuid.UUID       `json:"id"`
	Kind            NodeKind        `json:"kind"`
	Content         json.RawMessage `json:"content"`
	Confidence      float64         `json:"confidence"`
	SourceFragments []uuid.UUID     `json:"source_fragments,omitempty"`
	ExecutionCost   float64         `json:"execution_cost"`
}

// MarshalJSON tags the node with its content kind.
func (n *Node) MarshalJSON() ([]byte, error) {
	content, err := json.Marshal(n.Content)
	if err != nil {
		return nil, err
	}
	return json.Marshal(nodeJSON{
		ID:              n.ID,
		Kind:            n.Content.NodeKind(),
		Content:         content,
		Confidence:      n.Confidence,
		SourceFragments: n.SourceFragments,
		ExecutionCost:   n.ExecutionCost,
	})
}

// UnmarshalJSON decodes a tagged node.
func (n *Node) UnmarshalJSON(data []byte) error {
	var raw nodeJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	var content NodeContent
	switch raw.Kind {
	case NodeFragment:
		var c FragmentRef
		if err := json.Unmarshal(raw.Content, &c); err != nil {
			return err
		}
		content = c
	case NodeConflict:
		var c ConflictContent
		if err := json.Unmarshal(raw.Content, &c); err != nil {
			return err
		}
		content = c
	case NodeGapFill:
		var c GapFill
		if err := json.Unmarshal(raw.Content, &c); err != nil {
			return err
		}
		content = c
	case NodeDecision:
		var c Decision
		if err := json.Unmarshal(raw.Content, &c); err != nil {
			return err
		}
		content = c
	case NodeAction:
		var c Action
		if err := json.Unmarshal(raw.Content, &c); err != nil {
			return err
		}
		content = c
	default:
		return fmt.Errorf("unknown node kind %q", raw.Kind)
	}
	n.ID = raw.ID
	n.Content = content
	n.Confidence = raw.Confidence
	n.SourceFragments = raw.SourceFragments
	n.ExecutionCost = raw.ExecutionCost
	return nil
}

package model

import (
	"errors"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// ============================================================================
// ERROR KINDS
// ============================================================================

var (
	// ErrMalformedSpec marks authoring errors in a scenario definition.
	// Fatal at load time, never defaulted around.
	ErrMalformedSpec = errors.New("malformed scenario spec")
	// ErrMissingField marks a predicate referencing an absent entity field.
	ErrMissingField = errors.New("missing entity field")
	// ErrIncompleteTrace marks a trace without the tool-call log or final message.
	ErrIncompleteTrace = errors.New("incomplete trace")
	// ErrAmbiguousClassification marks a final turn that cannot be classified.
	ErrAmbiguousClassification = errors.New("ambiguous final turn")
)

// ============================================================================
// SUITE CONFIGURATION
// ============================================================================

type SuiteConfig struct {
	Name         string            `yaml:"name"`
	ScenarioDirs []string          `yaml:"scenario_dirs"`
	TraceDir     string            `yaml:"trace_dir"`
	Variables    map[string]string `yaml:"variables,omitempty"`
	Settings     Settings          `yaml:"settings"`
	Criteria     Criteria          `yaml:"criteria"`
}

type Settings struct {
	Verbose        bool   `yaml:"verbose"`
	MaxConcurrency int    `yaml:"max_concurrency"`
	DefaultTimeout string `yaml:"default_timeout"`
}

type Criteria struct {
	SuccessRate string `yaml:"success_rate" json:"successRate"`
}

// ============================================================================
// SCENARIO MODEL
// ============================================================================

// Scenario is one declared test case: an input plus an ordered list of
// acceptable-outcome alternatives. Immutable once loaded.
type Scenario struct {
	ID           string                   `yaml:"id"`
	Agent        string                   `yaml:"agent"`
	Input        ScenarioInput            `yaml:"input"`
	Expectations []ExpectationAlternative `yaml:"expectations"`
	Timeout      string                   `yaml:"timeout,omitempty"`
}

type ScenarioInput struct {
	UserMessage string          `yaml:"user_message"`
	Context     ScenarioContext `yaml:"context"`
}

type ScenarioContext struct {
	ProjectID   string   `yaml:"project_id"`
	ChapterID   string   `yaml:"chapter_id,omitempty"`
	ContextRefs []string `yaml:"context_refs,omitempty"`
}

// ExpectationAlternative is one self-sufficient acceptable outcome.
// Siblings are mutually exclusive strategies combined by OR, never AND.
// Declared sub-specs combine by AND; an absent sub-spec is vacuously satisfied.
type ExpectationAlternative struct {
	ToolCalls     *ToolCallSpec     `yaml:"tool_calls,omitempty"`
	FinalState    FinalStateSpec    `yaml:"final_state,omitempty"`
	AgentBehavior *AgentBehaviorSpec `yaml:"agent_behavior,omitempty"`
	ReferenceTags *ReferenceTagSpec `yaml:"reference_tags,omitempty"`
}

// ToolCallSpec constrains the set of invoked tool names. Sets are unordered;
// repetition is irrelevant.
type ToolCallSpec struct {
	Required  []string `yaml:"required,omitempty"`
	Optional  []string `yaml:"optional,omitempty"`
	Forbidden []string `yaml:"forbidden,omitempty"`
}

// FinalStateSpec declares expected entity diffs per entity kind
// (blocks, timelines, chapters, persons).
type FinalStateSpec map[string]EntityKindSpec

type EntityKindSpec struct {
	Added     []MatchSelector `yaml:"added,omitempty"`
	Modified  []EntityChange  `yaml:"modified,omitempty"`
	Deleted   []string        `yaml:"deleted,omitempty"`
	Unchanged []string        `yaml:"unchanged,omitempty"`
}

type EntityChange struct {
	ID     string                    `yaml:"id"`
	Fields map[string]FieldPredicate `yaml:"fields"`
}

type BehaviorType string

const (
	BehaviorCompletion    BehaviorType = "completion"
	BehaviorClarification BehaviorType = "clarification_question"
	BehaviorToolCall      BehaviorType = "tool_call"
)

type AgentBehaviorSpec struct {
	Type    BehaviorType `yaml:"type"`
	Pattern string       `yaml:"pattern,omitempty"`
}

// ReferenceTagSpec declares minimum counts for citations embedded in the
// agent's final message.
type ReferenceTagSpec struct {
	Required []TagRequirement `yaml:"required"`
}

type TagRequirement struct {
	Tag        string            `yaml:"tag"`
	Attributes map[string]string `yaml:"attributes,omitempty"`
	MinCount   int               `yaml:"min_count,omitempty"` // defaults to 1
}

// ============================================================================
// LOAD-TIME VALIDATION
// ============================================================================

// Validate checks the scenario for authoring errors. All returned errors
// wrap ErrMalformedSpec and are fatal at load time.
func (s *Scenario) Validate() error {
	if s.ID == "" {
		return fmt.Errorf("%w: scenario id is required", ErrMalformedSpec)
	}
	if s.Agent == "" {
		return fmt.Errorf("%w: scenario %q: agent is required", ErrMalformedSpec, s.ID)
	}
	if s.Input.UserMessage == "" {
		return fmt.Errorf("%w: scenario %q: input.user_message is required", ErrMalformedSpec, s.ID)
	}
	if len(s.Expectations) == 0 {
		return fmt.Errorf("%w: scenario %q: at least one expectation alternative is required", ErrMalformedSpec, s.ID)
	}
	if s.Timeout != "" {
		if _, err := time.ParseDuration(s.Timeout); err != nil {
			return fmt.Errorf("%w: scenario %q: invalid timeout %q", ErrMalformedSpec, s.ID, s.Timeout)
		}
	}

	for i, alt := range s.Expectations {
		if err := alt.validate(); err != nil {
			return fmt.Errorf("%w: scenario %q: alternative %d: %v", ErrMalformedSpec, s.ID, i, err)
		}
	}
	return nil
}

func (a *ExpectationAlternative) validate() error {
	if a.ToolCalls == nil && len(a.FinalState) == 0 && a.AgentBehavior == nil && a.ReferenceTags == nil {
		return fmt.Errorf("declares no expectations")
	}

	if a.ToolCalls != nil {
		for _, name := range a.ToolCalls.Required {
			for _, forbidden := range a.ToolCalls.Forbidden {
				if name == forbidden {
					return fmt.Errorf("tool %q is both required and forbidden", name)
				}
			}
		}
	}

	for kind, ks := range a.FinalState {
		if err := ks.validate(); err != nil {
			return fmt.Errorf("kind %q: %v", kind, err)
		}
	}

	if a.AgentBehavior != nil {
		switch a.AgentBehavior.Type {
		case BehaviorCompletion, BehaviorClarification, BehaviorToolCall:
		default:
			return fmt.Errorf("unknown behavior type %q", a.AgentBehavior.Type)
		}
	}

	if a.ReferenceTags != nil {
		for i, req := range a.ReferenceTags.Required {
			if req.Tag == "" {
				return fmt.Errorf("reference tag requirement %d has no tag", i)
			}
			if req.MinCount < 0 {
				return fmt.Errorf("reference tag %q has negative min_count", req.Tag)
			}
		}
	}
	return nil
}

func (ks *EntityKindSpec) validate() error {
	for i, sel := range ks.Added {
		if len(sel) == 0 {
			return fmt.Errorf("added[%d] has an empty match selector", i)
		}
	}

	// One id may appear in at most one of modified/deleted/unchanged.
	claimed := map[string]string{}
	claim := func(id, list string) error {
		if id == "" {
			return fmt.Errorf("%s declares an empty entity id", list)
		}
		if prev, ok := claimed[id]; ok {
			return fmt.Errorf("entity %q declared in both %s and %s", id, prev, list)
		}
		claimed[id] = list
		return nil
	}

	for _, ch := range ks.Modified {
		if err := claim(ch.ID, "modified"); err != nil {
			return err
		}
		if len(ch.Fields) == 0 {
			return fmt.Errorf("modified entity %q declares no field predicates", ch.ID)
		}
	}
	for _, id := range ks.Deleted {
		if err := claim(id, "deleted"); err != nil {
			return err
		}
	}
	for _, id := range ks.Unchanged {
		if err := claim(id, "unchanged"); err != nil {
			return err
		}
	}
	return nil
}

// ============================================================================
// VARIABLE EXPANSION
// ============================================================================

// ExpandVariables applies render to every templated string in the scenario
// input and in the string-valued predicate operands. Rendering is best
// effort: values that fail to render are kept as-is.
func (s *Scenario) ExpandVariables(render func(string) (string, error)) {
	expand := func(v string) string {
		if v == "" {
			return v
		}
		out, err := render(v)
		if err != nil {
			return v
		}
		return out
	}

	s.Input.UserMessage = expand(s.Input.UserMessage)
	for i, ref := range s.Input.Context.ContextRefs {
		s.Input.Context.ContextRefs[i] = expand(ref)
	}

	for ai := range s.Expectations {
		alt := &s.Expectations[ai]
		if alt.AgentBehavior != nil {
			alt.AgentBehavior.Pattern = expand(alt.AgentBehavior.Pattern)
		}
		for kind, ks := range alt.FinalState {
			for _, sel := range ks.Added {
				expandPredicates(sel, expand)
			}
			for _, ch := range ks.Modified {
				expandPredicates(ch.Fields, expand)
			}
			alt.FinalState[kind] = ks
		}
		if alt.ReferenceTags != nil {
			for ri := range alt.ReferenceTags.Required {
				req := &alt.ReferenceTags.Required[ri]
				for k, v := range req.Attributes {
					req.Attributes[k] = expand(v)
				}
			}
		}
	}
}

func expandPredicates(fields map[string]FieldPredicate, expand func(string) string) {
	for name, pred := range fields {
		switch pred.Op {
		case OpPattern:
			pred.Pattern = expand(pred.Pattern)
		case OpEquals:
			if str, ok := pred.Equals.(string); ok {
				pred.Equals = expand(str)
			}
		}
		fields[name] = pred
	}
}

// ============================================================================
// YAML PARSERS
// ============================================================================

// scenarioFile supports both a single scenario document and a
// `scenarios:` list in one file.
type scenarioFile struct {
	Scenarios []Scenario `yaml:"scenarios"`
}

func ParseScenarioFile(filename string) ([]Scenario, error) {
	data, err := os.ReadFile(filename)
	if err != nil {
		return nil, fmt.Errorf("failed to read file: %w", err)
	}
	return ParseScenariosFromString(string(data))
}

func ParseScenariosFromString(definition string) ([]Scenario, error) {
	var file scenarioFile
	if err := yaml.Unmarshal([]byte(definition), &file); err == nil && len(file.Scenarios) > 0 {
		return file.Scenarios, nil
	}

	var single Scenario
	if err := yaml.Unmarshal([]byte(definition), &single); err != nil {
		return nil, fmt.Errorf("failed to parse YAML scenario: %w", err)
	}
	if single.ID == "" {
		return nil, fmt.Errorf("%w: no scenarios found in document", ErrMalformedSpec)
	}
	return []Scenario{single}, nil
}

func ParseSuiteConfig(filename string) (*SuiteConfig, error) {
	data, err := os.ReadFile(filename)
	if err != nil {
		return nil, fmt.Errorf("failed to read file: %w", err)
	}

	var suite SuiteConfig
	if err := yaml.Unmarshal(data, &suite); err != nil {
		return nil, fmt.Errorf("failed to parse YAML config: %w", err)
	}
	return &suite, nil
}

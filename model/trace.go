package model

import (
	"fmt"
	"os"
	"sort"
	"time"

	"github.com/bytedance/sonic"
	"github.com/life4/genesis/slices"
)

// ============================================================================
// EXECUTION TRACE
// ============================================================================

// Trace is the fully captured record of one agent run, produced by the
// external execution harness. Evaluation treats it as immutable input.
type Trace struct {
	ScenarioID   string     `json:"scenarioId"`
	ToolCalls    []ToolCall `json:"toolCalls"`
	FinalMessage string     `json:"finalMessage"`
	Before       Snapshot   `json:"before"`
	After        Snapshot   `json:"after"`
	// Interrupted is set by the harness when the run hit its wall-clock
	// timeout before producing a terminal turn.
	Interrupted bool `json:"interrupted,omitempty"`
}

type ToolCall struct {
	Name      string         `json:"name"`
	Arguments map[string]any `json:"arguments,omitempty"`
	Timestamp time.Time      `json:"timestamp"`
}

// Snapshot holds the affected entity collections keyed by kind
// (blocks, timelines, chapters, persons).
type Snapshot map[string][]Entity

// Entity is a document element tracked by stable id across a before/after pair.
type Entity struct {
	ID     string         `json:"id"`
	Fields map[string]any `json:"fields"`
}

// Find returns the entity with the given id within a kind.
func (s Snapshot) Find(kind, id string) (Entity, bool) {
	entity, err := slices.Find(s[kind], func(e Entity) bool { return e.ID == id })
	if err != nil {
		return Entity{}, false
	}
	return entity, true
}

// ToolCallNames returns the observed tool names in invocation order.
func (t *Trace) ToolCallNames() []string {
	return slices.Map(t.ToolCalls, func(tc ToolCall) string { return tc.Name })
}

// Reference is one citation embedded in the agent's final message.
type Reference struct {
	Tag        string            `json:"tag"`
	Attributes map[string]string `json:"attributes,omitempty"`
}

func ParseTrace(filename string) (*Trace, error) {
	data, err := os.ReadFile(filename)
	if err != nil {
		return nil, fmt.Errorf("failed to read trace file: %w", err)
	}
	return ParseTraceFromBytes(data)
}

func ParseTraceFromBytes(data []byte) (*Trace, error) {
	var trace Trace
	if err := sonic.Unmarshal(data, &trace); err != nil {
		return nil, fmt.Errorf("failed to parse trace JSON: %w", err)
	}
	return &trace, nil
}

// ============================================================================
// EVALUATION RESULTS
// ============================================================================

const (
	SubSpecToolCalls     = "tool_calls"
	SubSpecFinalState    = "final_state"
	SubSpecAgentBehavior = "agent_behavior"
	SubSpecReferenceTags = "reference_tags"
	SubSpecTrace         = "trace"
)

// Failure records one unmet sub-expectation.
type Failure struct {
	SubSpec  string `json:"subSpec"`
	Expected string `json:"expected,omitempty"`
	Observed string `json:"observed,omitempty"`
	Reason   string `json:"reason"`
}

type AlternativeResult struct {
	Index    int       `json:"index"`
	Passed   bool      `json:"passed"`
	Failures []Failure `json:"failures,omitempty"`
}

// ScenarioResult reports the verdict for one (scenario, trace) pair.
// PassedAlternative is -1 when no alternative was satisfied.
type ScenarioResult struct {
	ScenarioID        string              `json:"scenarioId"`
	Agent             string              `json:"agent"`
	Passed            bool                `json:"passed"`
	PassedAlternative int                 `json:"passedAlternative"`
	Alternatives      []AlternativeResult `json:"alternatives"`
	DurationMs        int64               `json:"durationMs,omitempty"`
}

// SuiteResult aggregates one evaluation run over a scenario suite.
type SuiteResult struct {
	RunID       string           `json:"runId"`
	SuiteName   string           `json:"suiteName,omitempty"`
	StartTime   time.Time        `json:"startTime"`
	EndTime     time.Time        `json:"endTime"`
	Results     []ScenarioResult `json:"results"`
	Total       int              `json:"total"`
	Passed      int              `json:"passed"`
	Failed      int              `json:"failed"`
	SuccessRate float64          `json:"successRate"`
	Criteria    Criteria         `json:"criteria"`
	CriteriaMet bool             `json:"criteriaMet"`
}

// ============================================================================
// RELEVANT-FIELD PROJECTIONS
// ============================================================================

// Projection maps an entity kind to its canonical relevant fields, the
// set an `unchanged` declaration protects against drift.
type Projection map[string][]string

// BuildProjections constructs the canonical per-kind projections once at
// startup. Kinds not listed here fall back to comparing every field.
func BuildProjections() Projection {
	return Projection{
		"blocks":    {"blockType", "mediaAssetId", "timelineId", "offset", "duration", "volume", "speed"},
		"timelines": {"name", "chapterId", "order", "duration"},
		"chapters":  {"title", "projectId", "order"},
		"persons":   {"name", "role", "color"},
	}
}

// RelevantFields returns the fields protected for a kind. For unknown
// kinds it returns the sorted union of fields present on either side.
func (p Projection) RelevantFields(kind string, before, after Entity) []string {
	if fields, ok := p[kind]; ok {
		return fields
	}

	seen := map[string]bool{}
	for name := range before.Fields {
		seen[name] = true
	}
	for name := range after.Fields {
		seen[name] = true
	}

	union := make([]string, 0, len(seen))
	for name := range seen {
		union = append(union, name)
	}
	sort.Strings(union)
	return union
}

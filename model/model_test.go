package model

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const validScenarioYAML = `
id: remove-asset-blocks
agent: timeline-editor
timeout: 90s
input:
  user_message: "Remove every block that uses the intro asset"
  context:
    project_id: p-1
    chapter_id: ch-1
    context_refs:
      - "asset:intro"
expectations:
  - tool_calls:
      required: [removeBlocks]
      optional: [listBlocks]
      forbidden: [deleteChapter]
    final_state:
      blocks:
        modified:
          - id: A
            fields:
              offset:
                equals: 0
          - id: B
            fields:
              offset:
                gte: 390
                # lte intentionally absent; one arm only
        deleted: [X]
        unchanged: [C]
    agent_behavior:
      type: completion
      pattern: "removed"
  - agent_behavior:
      type: clarification_question
`

func TestParseScenariosFromString(t *testing.T) {
	t.Run("single scenario document", func(t *testing.T) {
		scenarios, err := ParseScenariosFromString(validScenarioYAML)
		require.NoError(t, err)
		require.Len(t, scenarios, 1)

		s := scenarios[0]
		assert.Equal(t, "remove-asset-blocks", s.ID)
		assert.Equal(t, "timeline-editor", s.Agent)
		assert.Equal(t, "p-1", s.Input.Context.ProjectID)
		require.Len(t, s.Expectations, 2)

		alt := s.Expectations[0]
		require.NotNil(t, alt.ToolCalls)
		assert.Equal(t, []string{"removeBlocks"}, alt.ToolCalls.Required)
		assert.Equal(t, []string{"deleteChapter"}, alt.ToolCalls.Forbidden)

		blocks := alt.FinalState["blocks"]
		require.Len(t, blocks.Modified, 2)
		assert.Equal(t, OpEquals, blocks.Modified[0].Fields["offset"].Op)
		assert.Equal(t, OpGte, blocks.Modified[1].Fields["offset"].Op)
		assert.Equal(t, 390.0, blocks.Modified[1].Fields["offset"].Bound)
		assert.Equal(t, []string{"X"}, blocks.Deleted)

		require.NotNil(t, alt.AgentBehavior)
		assert.Equal(t, BehaviorCompletion, alt.AgentBehavior.Type)

		require.NoError(t, s.Validate())
	})

	t.Run("scenarios list document", func(t *testing.T) {
		doc := "scenarios:\n" +
			"  - id: a\n    agent: x\n    input: {user_message: hi}\n" +
			"    expectations:\n      - agent_behavior: {type: completion}\n" +
			"  - id: b\n    agent: x\n    input: {user_message: hi}\n" +
			"    expectations:\n      - agent_behavior: {type: completion}\n"
		scenarios, err := ParseScenariosFromString(doc)
		require.NoError(t, err)
		assert.Len(t, scenarios, 2)
	})

	t.Run("empty document fails", func(t *testing.T) {
		_, err := ParseScenariosFromString("{}")
		assert.ErrorIs(t, err, ErrMalformedSpec)
	})
}

func TestFieldPredicateUnmarshal(t *testing.T) {
	t.Run("scalar shorthand means equals", func(t *testing.T) {
		doc := `
id: s
agent: a
input: {user_message: m}
expectations:
  - final_state:
      blocks:
        added:
          - blockType: video
            mediaAssetId: m-7
`
		scenarios, err := ParseScenariosFromString(doc)
		require.NoError(t, err)
		sel := scenarios[0].Expectations[0].FinalState["blocks"].Added[0]
		assert.Equal(t, OpEquals, sel["blockType"].Op)
		assert.Equal(t, "video", sel["blockType"].Equals)
	})

	t.Run("explicit equals operand", func(t *testing.T) {
		doc := `
id: s
agent: a
input: {user_message: m}
expectations:
  - final_state:
      blocks:
        modified:
          - id: A
            fields:
              offset:
                equals: 0
              mediaAssetId:
                equals: intro.mp4
`
		scenarios, err := ParseScenariosFromString(doc)
		require.NoError(t, err)
		fields := scenarios[0].Expectations[0].FinalState["blocks"].Modified[0].Fields
		assert.Equal(t, OpEquals, fields["offset"].Op)
		assert.Equal(t, 0, fields["offset"].Equals)
		assert.Equal(t, "intro.mp4", fields["mediaAssetId"].Equals)
	})

	t.Run("unknown operator is malformed", func(t *testing.T) {
		doc := `
id: s
agent: a
input: {user_message: m}
expectations:
  - final_state:
      blocks:
        modified:
          - id: A
            fields:
              offset: {near: 5}
`
		_, err := ParseScenariosFromString(doc)
		assert.Error(t, err)
	})

	t.Run("two arms set is malformed", func(t *testing.T) {
		doc := `
id: s
agent: a
input: {user_message: m}
expectations:
  - final_state:
      blocks:
        modified:
          - id: A
            fields:
              offset: {gte: 1, lte: 2}
`
		_, err := ParseScenariosFromString(doc)
		assert.Error(t, err)
	})
}

func TestScenarioValidate(t *testing.T) {
	base := func() Scenario {
		scenarios, err := ParseScenariosFromString(validScenarioYAML)
		require.NoError(t, err)
		return scenarios[0]
	}

	t.Run("valid scenario", func(t *testing.T) {
		s := base()
		assert.NoError(t, s.Validate())
	})

	t.Run("id required", func(t *testing.T) {
		s := base()
		s.ID = ""
		assert.ErrorIs(t, s.Validate(), ErrMalformedSpec)
	})

	t.Run("at least one alternative", func(t *testing.T) {
		s := base()
		s.Expectations = nil
		assert.ErrorIs(t, s.Validate(), ErrMalformedSpec)
	})

	t.Run("conflicting id across modified and unchanged fails fast", func(t *testing.T) {
		s := base()
		ks := s.Expectations[0].FinalState["blocks"]
		ks.Unchanged = append(ks.Unchanged, "A")
		s.Expectations[0].FinalState["blocks"] = ks
		err := s.Validate()
		require.ErrorIs(t, err, ErrMalformedSpec)
		assert.Contains(t, err.Error(), `"A"`)
	})

	t.Run("conflicting id across deleted and unchanged fails fast", func(t *testing.T) {
		s := base()
		ks := s.Expectations[0].FinalState["blocks"]
		ks.Deleted = append(ks.Deleted, "C")
		s.Expectations[0].FinalState["blocks"] = ks
		assert.ErrorIs(t, s.Validate(), ErrMalformedSpec)
	})

	t.Run("empty match selector is malformed", func(t *testing.T) {
		s := base()
		ks := s.Expectations[0].FinalState["blocks"]
		ks.Added = []MatchSelector{{}}
		s.Expectations[0].FinalState["blocks"] = ks
		assert.ErrorIs(t, s.Validate(), ErrMalformedSpec)
	})

	t.Run("tool both required and forbidden is malformed", func(t *testing.T) {
		s := base()
		s.Expectations[0].ToolCalls.Forbidden = append(s.Expectations[0].ToolCalls.Forbidden, "removeBlocks")
		assert.ErrorIs(t, s.Validate(), ErrMalformedSpec)
	})

	t.Run("unknown behavior type is malformed", func(t *testing.T) {
		s := base()
		s.Expectations[0].AgentBehavior.Type = "shrug"
		assert.ErrorIs(t, s.Validate(), ErrMalformedSpec)
	})

	t.Run("empty alternative is malformed", func(t *testing.T) {
		s := base()
		s.Expectations = append(s.Expectations, ExpectationAlternative{})
		assert.ErrorIs(t, s.Validate(), ErrMalformedSpec)
	})

	t.Run("invalid timeout is malformed", func(t *testing.T) {
		s := base()
		s.Timeout = "ninety seconds"
		assert.ErrorIs(t, s.Validate(), ErrMalformedSpec)
	})
}

func TestExpandVariables(t *testing.T) {
	scenarios, err := ParseScenariosFromString(`
id: s
agent: a
input:
  user_message: "Remove blocks using {{asset}}"
expectations:
  - final_state:
      blocks:
        added:
          - mediaAssetId: "{{asset}}"
    agent_behavior:
      type: completion
      pattern: "{{asset}}"
`)
	require.NoError(t, err)
	s := scenarios[0]

	s.ExpandVariables(func(text string) (string, error) {
		if text == "{{asset}}" {
			return "m-42", nil
		}
		return "Remove blocks using m-42", nil
	})

	assert.Equal(t, "Remove blocks using m-42", s.Input.UserMessage)
	assert.Equal(t, "m-42", s.Expectations[0].FinalState["blocks"].Added[0]["mediaAssetId"].Equals)
	assert.Equal(t, "m-42", s.Expectations[0].AgentBehavior.Pattern)
}

func TestParseTrace(t *testing.T) {
	traceJSON := `{
  "scenarioId": "remove-asset-blocks",
  "toolCalls": [{"name": "removeBlocks", "arguments": {"ids": ["X"]}}],
  "finalMessage": "Done.",
  "before": {"blocks": [{"id": "X", "fields": {"offset": 0}}]},
  "after": {"blocks": []}
}`

	t.Run("from bytes", func(t *testing.T) {
		trace, err := ParseTraceFromBytes([]byte(traceJSON))
		require.NoError(t, err)
		assert.Equal(t, "remove-asset-blocks", trace.ScenarioID)
		assert.Equal(t, []string{"removeBlocks"}, trace.ToolCallNames())

		entity, ok := trace.Before.Find("blocks", "X")
		assert.True(t, ok)
		assert.Equal(t, float64(0), entity.Fields["offset"])

		_, ok = trace.After.Find("blocks", "X")
		assert.False(t, ok)
	})

	t.Run("from file", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "trace.json")
		require.NoError(t, os.WriteFile(path, []byte(traceJSON), 0644))
		trace, err := ParseTrace(path)
		require.NoError(t, err)
		assert.Equal(t, "Done.", trace.FinalMessage)
	})

	t.Run("invalid JSON", func(t *testing.T) {
		_, err := ParseTraceFromBytes([]byte("not json"))
		assert.Error(t, err)
	})
}

func TestProjections(t *testing.T) {
	proj := BuildProjections()

	t.Run("known kind returns canonical fields", func(t *testing.T) {
		fields := proj.RelevantFields("blocks", Entity{}, Entity{})
		assert.Contains(t, fields, "offset")
		assert.Contains(t, fields, "duration")
	})

	t.Run("unknown kind returns sorted field union", func(t *testing.T) {
		before := Entity{Fields: map[string]any{"b": 1, "a": 2}}
		after := Entity{Fields: map[string]any{"c": 3}}
		assert.Equal(t, []string{"a", "b", "c"}, proj.RelevantFields("markers", before, after))
	})
}

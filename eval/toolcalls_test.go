package eval

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mykhaliev/timeline-evals/model"
)

func calls(names ...string) []model.ToolCall {
	out := make([]model.ToolCall, 0, len(names))
	for _, name := range names {
		out = append(out, model.ToolCall{Name: name})
	}
	return out
}

func TestMatchToolCalls(t *testing.T) {
	t.Run("nil spec is vacuously satisfied", func(t *testing.T) {
		assert.Empty(t, MatchToolCalls(calls("listBlocks"), nil))
	})

	t.Run("empty required and forbidden always passes", func(t *testing.T) {
		spec := &model.ToolCallSpec{Optional: []string{"listBlocks"}}
		assert.Empty(t, MatchToolCalls(nil, spec))
		assert.Empty(t, MatchToolCalls(calls("anything", "else"), spec))
	})

	t.Run("missing required tool fails naming the tool", func(t *testing.T) {
		spec := &model.ToolCallSpec{Required: []string{"removeBlocks"}}
		failures := MatchToolCalls(calls("listBlocks", "trimBlock"), spec)
		require.Len(t, failures, 1)
		assert.Equal(t, model.SubSpecToolCalls, failures[0].SubSpec)
		assert.Contains(t, failures[0].Reason, "removeBlocks")
	})

	t.Run("forbidden tool fails", func(t *testing.T) {
		spec := &model.ToolCallSpec{Forbidden: []string{"deleteChapter"}}
		failures := MatchToolCalls(calls("listBlocks", "deleteChapter"), spec)
		require.Len(t, failures, 1)
		assert.Contains(t, failures[0].Reason, "deleteChapter")
	})

	t.Run("optional tools never penalized", func(t *testing.T) {
		spec := &model.ToolCallSpec{
			Required: []string{"trimBlock"},
			Optional: []string{"listBlocks"},
		}
		assert.Empty(t, MatchToolCalls(calls("trimBlock"), spec))
		assert.Empty(t, MatchToolCalls(calls("trimBlock", "listBlocks"), spec))
	})

	t.Run("order and repetition are discarded", func(t *testing.T) {
		spec := &model.ToolCallSpec{Required: []string{"listBlocks", "trimBlock"}}
		first := MatchToolCalls(calls("trimBlock", "listBlocks", "trimBlock"), spec)
		second := MatchToolCalls(calls("listBlocks", "trimBlock"), spec)
		assert.Equal(t, first, second)
		assert.Empty(t, first)
	})
}

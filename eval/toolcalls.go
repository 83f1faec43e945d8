package eval

import (
	"fmt"
	"sort"
	"strings"

	"github.com/life4/genesis/slices"

	"github.com/mykhaliev/timeline-evals/model"
)

// MatchToolCalls validates the observed tool invocations against a
// required/optional/forbidden spec. The observed sequence is collapsed to
// a set first: order and repetition are deliberately discarded, so
// identical call sets always yield identical verdicts. A nil spec is
// vacuously satisfied.
func MatchToolCalls(observed []model.ToolCall, spec *model.ToolCallSpec) []model.Failure {
	if spec == nil {
		return nil
	}

	observedSet := map[string]bool{}
	for _, tc := range observed {
		observedSet[tc.Name] = true
	}

	var failures []model.Failure

	missing := slices.Filter(spec.Required, func(name string) bool { return !observedSet[name] })
	for _, name := range missing {
		failures = append(failures, model.Failure{
			SubSpec:  model.SubSpecToolCalls,
			Expected: fmt.Sprintf("tool %q called at least once", name),
			Observed: describeSet(observedSet),
			Reason:   fmt.Sprintf("required tool %q was not called", name),
		})
	}

	for _, name := range spec.Forbidden {
		if observedSet[name] {
			failures = append(failures, model.Failure{
				SubSpec:  model.SubSpecToolCalls,
				Expected: fmt.Sprintf("tool %q never called", name),
				Observed: describeSet(observedSet),
				Reason:   fmt.Sprintf("forbidden tool %q was called", name),
			})
		}
	}

	// Optional tools are informational only: never penalized.
	return failures
}

func describeSet(set map[string]bool) string {
	if len(set) == 0 {
		return "no tool calls"
	}
	names := make([]string, 0, len(set))
	for name := range set {
		names = append(names, name)
	}
	sort.Strings(names)
	return "[" + strings.Join(names, ", ") + "]"
}

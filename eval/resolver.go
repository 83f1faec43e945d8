package eval

import (
	"fmt"

	"github.com/mykhaliev/timeline-evals/model"
)

// Resolver evaluates scenarios against captured traces. It is stateless
// apart from the canonical field projections built once at construction;
// identical (scenario, trace) inputs always yield identical verdicts, so
// one Resolver may be shared across goroutines.
type Resolver struct {
	proj model.Projection
}

func NewResolver() *Resolver {
	return &Resolver{proj: model.BuildProjections()}
}

// Evaluate applies OR semantics across the scenario's alternatives:
// the first fully satisfied alternative short-circuits to PASS. When
// none pass, every alternative's failure reasons are aggregated so
// authors see all near-misses, not just the first.
func (r *Resolver) Evaluate(scenario *model.Scenario, trace *model.Trace) model.ScenarioResult {
	result := model.ScenarioResult{
		ScenarioID:        scenario.ID,
		Agent:             scenario.Agent,
		PassedAlternative: -1,
	}

	if trace == nil || trace.Interrupted {
		reason := "no trace captured for scenario (treated as timeout)"
		if trace != nil {
			reason = "run interrupted before completion (treated as timeout)"
		}
		result.Alternatives = []model.AlternativeResult{{
			Index: 0,
			Failures: []model.Failure{{
				SubSpec: model.SubSpecTrace,
				Reason:  fmt.Sprintf("%v: %s", model.ErrIncompleteTrace, reason),
			}},
		}}
		return result
	}

	for i, alt := range scenario.Expectations {
		altResult := r.EvaluateAlternative(i, alt, trace)
		result.Alternatives = append(result.Alternatives, altResult)
		if altResult.Passed {
			result.Passed = true
			result.PassedAlternative = i
			// First satisfied alternative wins; order carries no
			// quality ranking, only resolution precedence.
			break
		}
	}
	return result
}

// EvaluateAlternative evaluates one alternative from scratch: declared
// sub-specs combine with AND, absent ones are vacuously satisfied. No
// state carries across alternatives.
func (r *Resolver) EvaluateAlternative(index int, alt model.ExpectationAlternative, trace *model.Trace) model.AlternativeResult {
	var failures []model.Failure
	failures = append(failures, MatchToolCalls(trace.ToolCalls, alt.ToolCalls)...)
	failures = append(failures, MatchFinalState(trace.Before, trace.After, alt.FinalState, r.proj)...)
	failures = append(failures, MatchBehavior(trace, alt.AgentBehavior)...)
	failures = append(failures, MatchReferenceTags(trace, alt.ReferenceTags)...)

	return model.AlternativeResult{
		Index:    index,
		Passed:   len(failures) == 0,
		Failures: failures,
	}
}

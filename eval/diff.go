package eval

import (
	"fmt"
	"sort"

	"github.com/mykhaliev/timeline-evals/model"
)

// MatchFinalState compares the before/after snapshots against the
// declared entity diffs, independently per entity kind. Only declared
// fields are checked for added/modified entries; undeclared fields never
// cause a mismatch. `unchanged` conversely protects the kind's whole
// relevant-field projection.
func MatchFinalState(before, after model.Snapshot, spec model.FinalStateSpec, proj model.Projection) []model.Failure {
	if len(spec) == 0 {
		return nil
	}

	var failures []model.Failure

	kinds := make([]string, 0, len(spec))
	for kind := range spec {
		kinds = append(kinds, kind)
	}
	sort.Strings(kinds)

	for _, kind := range kinds {
		ks := spec[kind]
		failures = append(failures, matchAdded(before, after, kind, ks.Added)...)
		failures = append(failures, matchModified(before, after, kind, ks.Modified)...)
		failures = append(failures, matchDeleted(before, after, kind, ks.Deleted)...)
		failures = append(failures, matchUnchanged(before, after, kind, ks.Unchanged, proj)...)
	}
	return failures
}

// matchAdded assigns each declared selector to a distinct entity that is
// present in after but absent from before. An entity claimed by one
// selector cannot satisfy another, so three identical selectors demand
// three distinct entities. Assignment uses augmenting paths, so the
// match fails only when no distinct assignment exists at all.
func matchAdded(before, after model.Snapshot, kind string, selectors []model.MatchSelector) []model.Failure {
	if len(selectors) == 0 {
		return nil
	}

	var newEntities []model.Entity
	for _, entity := range after[kind] {
		if _, existed := before.Find(kind, entity.ID); !existed {
			newEntities = append(newEntities, entity)
		}
	}

	qualifying := make([][]int, len(selectors))
	for si, selector := range selectors {
		for ei, entity := range newEntities {
			if selectorMatches(entity, selector) {
				qualifying[si] = append(qualifying[si], ei)
			}
		}
	}

	// Maximum bipartite matching between selectors and new entities.
	entityOwner := make([]int, len(newEntities))
	for i := range entityOwner {
		entityOwner[i] = -1
	}
	var assign func(si int, visited []bool) bool
	assign = func(si int, visited []bool) bool {
		for _, ei := range qualifying[si] {
			if visited[ei] {
				continue
			}
			visited[ei] = true
			if entityOwner[ei] == -1 || assign(entityOwner[ei], visited) {
				entityOwner[ei] = si
				return true
			}
		}
		return false
	}

	matched := make([]bool, len(selectors))
	for si := range selectors {
		matched[si] = assign(si, make([]bool, len(newEntities)))
	}

	var failures []model.Failure
	for si, selector := range selectors {
		if matched[si] {
			continue
		}
		failures = append(failures, model.Failure{
			SubSpec:  model.SubSpecFinalState,
			Expected: fmt.Sprintf("%s: a distinct new entity matching added[%d] %s", kind, si, describeSelector(selector)),
			Observed: fmt.Sprintf("%d new %s entities, %d qualifying", len(newEntities), kind, len(qualifying[si])),
			Reason:   fmt.Sprintf("%s: need %d distinct added entities matching added[%d], found %d", kind, countEqualSelectors(selectors, si), si, len(qualifying[si])),
		})
	}
	return failures
}

// countEqualSelectors reports how many declared selectors are identical
// to selectors[i], so "need 3, found 2" style reasons count demand
// rather than position.
func countEqualSelectors(selectors []model.MatchSelector, i int) int {
	target := describeSelector(selectors[i])
	count := 0
	for _, sel := range selectors {
		if describeSelector(sel) == target {
			count++
		}
	}
	return count
}

func selectorMatches(entity model.Entity, selector model.MatchSelector) bool {
	for field, pred := range selector {
		value, ok := LookupField(entity, field)
		if !ok {
			return false
		}
		if passed, _ := EvalPredicate(value, pred); !passed {
			return false
		}
	}
	return true
}

func describeSelector(selector model.MatchSelector) string {
	fields := make([]string, 0, len(selector))
	for name := range selector {
		fields = append(fields, name)
	}
	sort.Strings(fields)

	out := "{"
	for i, name := range fields {
		if i > 0 {
			out += ", "
		}
		out += fmt.Sprintf("%s: %s", name, selector[name])
	}
	return out + "}"
}

// matchModified checks each declared change against the after value of
// the entity. gte/lte define accepted post-change ranges; equals demands
// exactness; undeclared fields are unconstrained.
func matchModified(before, after model.Snapshot, kind string, changes []model.EntityChange) []model.Failure {
	var failures []model.Failure

	for _, change := range changes {
		if _, ok := before.Find(kind, change.ID); !ok {
			failures = append(failures, model.Failure{
				SubSpec:  model.SubSpecFinalState,
				Expected: fmt.Sprintf("%s %q present before and after", kind, change.ID),
				Observed: "absent from before snapshot",
				Reason:   fmt.Sprintf("%s: modified entity %q does not exist in the before snapshot", kind, change.ID),
			})
			continue
		}
		afterEntity, ok := after.Find(kind, change.ID)
		if !ok {
			failures = append(failures, model.Failure{
				SubSpec:  model.SubSpecFinalState,
				Expected: fmt.Sprintf("%s %q present before and after", kind, change.ID),
				Observed: "absent from after snapshot",
				Reason:   fmt.Sprintf("%s: modified entity %q does not exist in the after snapshot", kind, change.ID),
			})
			continue
		}

		fields := make([]string, 0, len(change.Fields))
		for name := range change.Fields {
			fields = append(fields, name)
		}
		sort.Strings(fields)

		for _, name := range fields {
			pred := change.Fields[name]
			value, ok := LookupField(afterEntity, name)
			if !ok {
				failures = append(failures, model.Failure{
					SubSpec:  model.SubSpecFinalState,
					Expected: fmt.Sprintf("%s %q field %q %s", kind, change.ID, name, pred),
					Observed: "field absent",
					Reason:   fmt.Sprintf("%s: %v: entity %q has no field %q", kind, model.ErrMissingField, change.ID, name),
				})
				continue
			}
			if passed, reason := EvalPredicate(value, pred); !passed {
				failures = append(failures, model.Failure{
					SubSpec:  model.SubSpecFinalState,
					Expected: fmt.Sprintf("%s %q field %q %s", kind, change.ID, name, pred),
					Observed: fmt.Sprintf("%v", value),
					Reason:   fmt.Sprintf("%s: entity %q field %q: %s", kind, change.ID, name, reason),
				})
			}
		}
	}
	return failures
}

func matchDeleted(before, after model.Snapshot, kind string, ids []string) []model.Failure {
	var failures []model.Failure

	for _, id := range ids {
		if _, ok := before.Find(kind, id); !ok {
			failures = append(failures, model.Failure{
				SubSpec:  model.SubSpecFinalState,
				Expected: fmt.Sprintf("%s %q present before, absent after", kind, id),
				Observed: "absent from before snapshot",
				Reason:   fmt.Sprintf("%s: deleted entity %q was not present in the before snapshot", kind, id),
			})
			continue
		}
		if _, ok := after.Find(kind, id); ok {
			failures = append(failures, model.Failure{
				SubSpec:  model.SubSpecFinalState,
				Expected: fmt.Sprintf("%s %q present before, absent after", kind, id),
				Observed: "still present in after snapshot",
				Reason:   fmt.Sprintf("%s: entity %q was not deleted", kind, id),
			})
		}
	}
	return failures
}

// matchUnchanged requires every field in the kind's relevant-field
// projection to be identical between snapshots. Any drift fails, even in
// fields no other declaration mentions; there is no implicit tolerance.
func matchUnchanged(before, after model.Snapshot, kind string, ids []string, proj model.Projection) []model.Failure {
	var failures []model.Failure

	for _, id := range ids {
		beforeEntity, okBefore := before.Find(kind, id)
		afterEntity, okAfter := after.Find(kind, id)
		if !okBefore || !okAfter {
			side := "before"
			if okBefore {
				side = "after"
			}
			failures = append(failures, model.Failure{
				SubSpec:  model.SubSpecFinalState,
				Expected: fmt.Sprintf("%s %q present and unchanged", kind, id),
				Observed: fmt.Sprintf("absent from %s snapshot", side),
				Reason:   fmt.Sprintf("%s: unchanged entity %q does not exist in the %s snapshot", kind, id, side),
			})
			continue
		}

		for _, name := range proj.RelevantFields(kind, beforeEntity, afterEntity) {
			beforeValue, beforeOk := LookupField(beforeEntity, name)
			afterValue, afterOk := LookupField(afterEntity, name)
			if !beforeOk && !afterOk {
				continue
			}
			if beforeOk != afterOk || !deepEqual(beforeValue, afterValue) {
				failures = append(failures, model.Failure{
					SubSpec:  model.SubSpecFinalState,
					Expected: fmt.Sprintf("%s %q field %q unchanged (%v)", kind, id, name, beforeValue),
					Observed: fmt.Sprintf("%v", afterValue),
					Reason:   fmt.Sprintf("%s: entity %q drifted in field %q: %v -> %v", kind, id, name, beforeValue, afterValue),
				})
			}
		}
	}
	return failures
}

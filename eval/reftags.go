package eval

import (
	"fmt"
	"regexp"
	"sort"
	"strings"

	"github.com/mykhaliev/timeline-evals/model"
)

// Citations are inline fragments like <ref tag="block" id="b1"/> embedded
// in the agent's prose, not well-formed XML documents.
var (
	refTagRe = regexp.MustCompile(`<ref\s+([^<>]*?)/?>`)
	attrRe   = regexp.MustCompile(`([\w-]+)\s*=\s*"([^"]*)"`)
)

// ExtractReferences parses the citation tags embedded in a response.
func ExtractReferences(text string) []model.Reference {
	var refs []model.Reference
	for _, match := range refTagRe.FindAllStringSubmatch(text, -1) {
		attributes := map[string]string{}
		for _, attr := range attrRe.FindAllStringSubmatch(match[1], -1) {
			attributes[attr[1]] = attr[2]
		}
		ref := model.Reference{Tag: attributes["tag"], Attributes: attributes}
		delete(ref.Attributes, "tag")
		if ref.Tag != "" {
			refs = append(refs, ref)
		}
	}
	return refs
}

// MatchReferenceTags checks per-tag minimum counts against the citations
// found in the final message. A requirement's attributes must all be
// present with equal values on a citation for it to count.
func MatchReferenceTags(trace *model.Trace, spec *model.ReferenceTagSpec) []model.Failure {
	if spec == nil {
		return nil
	}

	refs := ExtractReferences(trace.FinalMessage)

	var failures []model.Failure
	for _, req := range spec.Required {
		minCount := req.MinCount
		if minCount == 0 {
			minCount = 1
		}

		count := 0
		for _, ref := range refs {
			if referenceSatisfies(ref, req) {
				count++
			}
		}

		if count < minCount {
			failures = append(failures, model.Failure{
				SubSpec:  model.SubSpecReferenceTags,
				Expected: fmt.Sprintf("at least %d citation(s) %s", minCount, describeRequirement(req)),
				Observed: fmt.Sprintf("%d matching of %d total citations", count, len(refs)),
				Reason:   fmt.Sprintf("need %d citation(s) %s, found %d", minCount, describeRequirement(req), count),
			})
		}
	}
	return failures
}

func referenceSatisfies(ref model.Reference, req model.TagRequirement) bool {
	if ref.Tag != req.Tag {
		return false
	}
	for key, expected := range req.Attributes {
		if ref.Attributes[key] != expected {
			return false
		}
	}
	return true
}

func describeRequirement(req model.TagRequirement) string {
	if len(req.Attributes) == 0 {
		return fmt.Sprintf("tagged %q", req.Tag)
	}
	keys := make([]string, 0, len(req.Attributes))
	for key := range req.Attributes {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	var parts []string
	for _, key := range keys {
		parts = append(parts, fmt.Sprintf("%s=%q", key, req.Attributes[key]))
	}
	return fmt.Sprintf("tagged %q with %s", req.Tag, strings.Join(parts, " "))
}

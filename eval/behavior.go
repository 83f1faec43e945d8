package eval

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/mykhaliev/timeline-evals/model"
)

// Interrogative cues used for structural question detection. The
// declared pattern alone never decides clarification classification.
var (
	interrogativeLead = regexp.MustCompile(`(?i)\b(should i|shall i|do you want|do you prefer|would you (like|prefer|rather)|which (one|of|version)|could you (clarify|confirm|specify)|can you (clarify|confirm|specify)|let me know (if|which|whether))\b`)
	meaningfulText    = regexp.MustCompile(`[\p{L}\p{N}]`)
)

// Classify categorizes the agent's final turn. The classification is a
// pure function of the trace; an unclassifiable transcript returns
// ErrAmbiguousClassification rather than a silent default.
func Classify(trace *model.Trace) (model.BehaviorType, error) {
	message := strings.TrimSpace(trace.FinalMessage)

	if message == "" {
		if len(trace.ToolCalls) == 0 {
			return "", fmt.Errorf("%w: no final message and no tool calls", model.ErrIncompleteTrace)
		}
		// Tool-centric outcome with no terminal message.
		return model.BehaviorToolCall, nil
	}

	if !meaningfulText.MatchString(message) {
		return "", fmt.Errorf("%w: final message carries no classifiable content: %q", model.ErrAmbiguousClassification, message)
	}

	if isClarificationQuestion(message) {
		return model.BehaviorClarification, nil
	}
	return model.BehaviorCompletion, nil
}

// isClarificationQuestion judges structurally whether the message asks
// the user something: the terminal sentence ends in a question mark, or
// an interrogative lead appears alongside one.
func isClarificationQuestion(message string) bool {
	trimmed := strings.TrimRight(message, " \t\n*_`)\"'")
	if strings.HasSuffix(trimmed, "?") {
		return true
	}
	return interrogativeLead.MatchString(message) && strings.Contains(message, "?")
}

// MatchBehavior checks the final turn against a behavior spec. The
// classification must equal the declared type; when a pattern is given
// the terminal text must also satisfy the pattern match.
func MatchBehavior(trace *model.Trace, spec *model.AgentBehaviorSpec) []model.Failure {
	if spec == nil {
		return nil
	}

	observed, err := Classify(trace)
	if err != nil {
		return []model.Failure{{
			SubSpec:  model.SubSpecAgentBehavior,
			Expected: string(spec.Type),
			Observed: "unclassifiable",
			Reason:   err.Error(),
		}}
	}

	var failures []model.Failure
	if observed != spec.Type {
		failures = append(failures, model.Failure{
			SubSpec:  model.SubSpecAgentBehavior,
			Expected: string(spec.Type),
			Observed: string(observed),
			Reason:   fmt.Sprintf("final turn classified as %s, expected %s", observed, spec.Type),
		})
	}

	if spec.Pattern != "" && !MatchPattern(trace.FinalMessage, spec.Pattern) {
		failures = append(failures, model.Failure{
			SubSpec:  model.SubSpecAgentBehavior,
			Expected: fmt.Sprintf("final message matching %q", spec.Pattern),
			Observed: truncate(trace.FinalMessage, 120),
			Reason:   fmt.Sprintf("final message does not match pattern %q", spec.Pattern),
		})
	}
	return failures
}

func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen-3] + "..."
}

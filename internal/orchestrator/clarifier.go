package orchestrator

import "strings"

// confirmMarker is the contract with the clarifier prompt: a reply starting
// a line with this marker confirms the requirement is sufficient, and the
// remainder of the reply is the consolidated requirement.
const confirmMarker = "REQUIREMENTS CONFIRMED:"

// clarifierVerdict is the parsed outcome of one clarification round.
type clarifierVerdict struct {
	sufficient  bool
	requirement string
	question    string
}

// parseClarifierReply extracts the verdict from a clarifier reply. The marker
// is matched case-insensitively anywhere in the reply to tolerate models that
// prefix it with filler.
func parseClarifierReply(reply string) clarifierVerdict {
	trimmed := strings.TrimSpace(reply)
	idx := strings.Index(strings.ToUpper(trimmed), confirmMarker)
	if idx < 0 {
		return clarifierVerdict{question: trimmed}
	}

	requirement := strings.TrimSpace(trimmed[idx+len(confirmMarker):])
	if requirement == "" {
		// Marker with no consolidated requirement is treated as another
		// clarification round rather than validating an empty requirement.
		return clarifierVerdict{question: trimmed}
	}
	return clarifierVerdict{sufficient: true, requirement: requirement}
}

// reviewIntent classifies a user message during plan review.
type reviewIntent int

const (
	intentUnknown reviewIntent = iota
	intentApprove
	intentModify
	intentDetails
)

var (
	approveKeywords = []string{"approve", "accept", "looks good", "lgtm", "proceed", "yes", "go ahead", "ship it"}
	modifyKeywords  = []string{"modify", "change", "adjust", "different", "refine", "rework", "update", "instead"}
	detailKeywords  = []string{"details", "detail", "explain", "more info", "elaborate", "show me"}
)

// classifyReview matches keywords against the lowercased message. Approval
// wins ties because refinement is recoverable and completion is explicit.
func classifyReview(text string) reviewIntent {
	lowered := strings.ToLower(text)
	for _, kw := range approveKeywords {
		if strings.Contains(lowered, kw) {
			return intentApprove
		}
	}
	for _, kw := range modifyKeywords {
		if strings.Contains(lowered, kw) {
			return intentModify
		}
	}
	for _, kw := range detailKeywords {
		if strings.Contains(lowered, kw) {
			return intentDetails
		}
	}
	return intentUnknown
}

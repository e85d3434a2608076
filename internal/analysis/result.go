// Package analysis implements the specialist execution strategies, the
// unified execution selector, and the result normalizer that turns their
// heterogeneous output into canonical implementation plans.
package analysis

// ResultKind tags the variant held by a Result.
type ResultKind string

const (
	// KindRecord is a structured record (decoded JSON object).
	KindRecord ResultKind = "record"
	// KindText is plain text, possibly serialized JSON.
	KindText ResultKind = "text"
	// KindOpaque is an unrecognized value from an execution backend.
	KindOpaque ResultKind = "opaque"
)

// Result is the raw output of an execution strategy. The upstream reasoning
// process is not contractually guaranteed to emit one shape, so the variant
// is explicit rather than inferred; nothing downstream may assume the value
// is well-formed.
type Result struct {
	Kind   ResultKind
	Record map[string]any
	Text   string
	Opaque any
}

// RecordResult wraps a decoded JSON object.
func RecordResult(record map[string]any) Result {
	return Result{Kind: KindRecord, Record: record}
}

// TextResult wraps plain text output.
func TextResult(text string) Result {
	return Result{Kind: KindText, Text: text}
}

// OpaqueResult wraps a value of unknown shape.
func OpaqueResult(v any) Result {
	return Result{Kind: KindOpaque, Opaque: v}
}

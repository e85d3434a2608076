package analysis

import (
	"testing"
)

const planJSON = `{
	"project_summary": {"total_effort": "6 person-weeks", "team_size": "2-3", "duration": "4 weeks"},
	"tasks": [
		{"id": "T1", "title": "Create objects", "description": "Custom objects and fields", "effort": "1 week", "role": "admin"},
		{"title": "Build flows", "description": "Record-triggered automation", "effort": "2 weeks", "role": "developer"}
	],
	"key_risks": ["scope creep"],
	"success_criteria": ["go-live on time"]
}`

func TestNormalizeRecord(t *testing.T) {
	t.Parallel()

	record, ok := parseRecord(planJSON)
	if !ok {
		t.Fatalf("parseRecord failed on valid JSON")
	}

	plan := Normalize(RecordResult(record))
	if plan.Degraded() {
		t.Fatalf("expected structured plan, got degraded: %q", plan.RawFallback)
	}
	if plan.Summary.Effort != "6 person-weeks" {
		t.Errorf("Effort = %q, want %q", plan.Summary.Effort, "6 person-weeks")
	}
	if len(plan.Tasks) != 2 {
		t.Fatalf("len(Tasks) = %d, want 2", len(plan.Tasks))
	}
	if plan.Tasks[0].ID != "T1" {
		t.Errorf("Tasks[0].ID = %q, want T1", plan.Tasks[0].ID)
	}
	if plan.Tasks[1].ID != "T2" {
		t.Errorf("missing task id should be synthesized, got %q", plan.Tasks[1].ID)
	}
	if len(plan.Risks) != 1 || plan.Risks[0] != "scope creep" {
		t.Errorf("Risks = %v", plan.Risks)
	}
	if len(plan.SuccessCriteria) != 1 {
		t.Errorf("SuccessCriteria = %v", plan.SuccessCriteria)
	}
	if plan.GeneratedAt.IsZero() {
		t.Errorf("GeneratedAt not set")
	}
}

func TestNormalizeTextVariants(t *testing.T) {
	t.Parallel()

	t.Run("plain json", func(t *testing.T) {
		t.Parallel()
		plan := Normalize(TextResult(planJSON))
		if plan.Degraded() {
			t.Fatalf("JSON text should normalize structurally")
		}
		if len(plan.Tasks) != 2 {
			t.Errorf("len(Tasks) = %d, want 2", len(plan.Tasks))
		}
	})

	t.Run("fenced json", func(t *testing.T) {
		t.Parallel()
		plan := Normalize(TextResult("```json\n" + planJSON + "\n```"))
		if plan.Degraded() {
			t.Fatalf("fenced JSON should normalize structurally")
		}
	})

	t.Run("prose", func(t *testing.T) {
		t.Parallel()
		plan := Normalize(TextResult("Here is my analysis of the requirement."))
		if !plan.Degraded() {
			t.Fatalf("prose should produce a degraded plan")
		}
		if plan.RawFallback != "Here is my analysis of the requirement." {
			t.Errorf("RawFallback = %q", plan.RawFallback)
		}
		if plan.Summary.Effort != placeholderEstimate {
			t.Errorf("Effort = %q, want placeholder", plan.Summary.Effort)
		}
		if plan.Tasks == nil || plan.Risks == nil || plan.SuccessCriteria == nil {
			t.Errorf("degraded plan lists must be empty, not nil")
		}
	})
}

func TestNormalizeOpaque(t *testing.T) {
	t.Parallel()

	plan := Normalize(OpaqueResult(map[string]any{
		"tasks": []any{map[string]any{"title": "Do the thing"}},
	}))
	if plan.Degraded() {
		t.Fatalf("opaque map with plan fields should normalize structurally")
	}
	if len(plan.Tasks) != 1 || plan.Tasks[0].Title != "Do the thing" {
		t.Errorf("Tasks = %+v", plan.Tasks)
	}

	plan = Normalize(OpaqueResult(42))
	if !plan.Degraded() {
		t.Fatalf("unrecognized opaque value should produce a degraded plan")
	}
	if plan.RawFallback != "42" {
		t.Errorf("RawFallback = %q, want 42", plan.RawFallback)
	}
}

func TestNormalizeIdempotent(t *testing.T) {
	t.Parallel()

	first := Normalize(TextResult(planJSON))

	// Re-normalizing a plan already in canonical shape must not change it.
	second := Normalize(RecordResult(map[string]any{
		"summary": map[string]any{
			"effort":    first.Summary.Effort,
			"team_size": first.Summary.TeamSize,
			"duration":  first.Summary.Duration,
		},
		"tasks": []any{
			map[string]any{"id": "T1", "title": "Create objects", "description": "Custom objects and fields", "effort": "1 week", "role": "admin"},
		},
		"risks":            []any{"scope creep"},
		"success_criteria": []any{"go-live on time"},
	}))
	if second.Degraded() {
		t.Fatalf("canonical record must round-trip structurally")
	}
	if second.Summary != first.Summary {
		t.Errorf("summary changed across normalization: %+v vs %+v", second.Summary, first.Summary)
	}
	if second.Risks[0] != first.Risks[0] {
		t.Errorf("risks changed across normalization")
	}
}

func TestNormalizePermissiveTypes(t *testing.T) {
	t.Parallel()

	plan := Normalize(TextResult(`{
		"project_summary": {"total_effort": 240, "team_size": 3, "duration": "4 weeks"},
		"tasks": [{"id": 1, "title": "Setup"}]
	}`))
	if plan.Degraded() {
		t.Fatalf("numeric estimates should still normalize structurally")
	}
	if plan.Summary.Effort != "240" {
		t.Errorf("Effort = %q, want coerced number", plan.Summary.Effort)
	}
	if plan.Summary.TeamSize != "3" {
		t.Errorf("TeamSize = %q, want 3", plan.Summary.TeamSize)
	}
	if plan.Tasks[0].ID != "1" {
		t.Errorf("Tasks[0].ID = %q, want 1", plan.Tasks[0].ID)
	}
}

func TestStripCodeFence(t *testing.T) {
	t.Parallel()

	cases := []struct {
		in, want string
	}{
		{"{}", "{}"},
		{"```json\n{}\n```", "{}"},
		{"```\n{}\n```", "{}"},
		{"  ```json\n{\"a\": 1}\n```  ", `{"a": 1}`},
	}
	for _, tc := range cases {
		if got := stripCodeFence(tc.in); got != tc.want {
			t.Errorf("stripCodeFence(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}

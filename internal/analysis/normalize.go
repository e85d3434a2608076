package analysis

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/planfold/planfold/internal/domain"
)

const placeholderEstimate = "TBD"

// Normalize converts a raw analysis result into a canonical implementation
// plan. It is total: every input variant yields a valid plan. When structured
// extraction fails the plan is degraded: placeholder summary, empty lists,
// and the original text retained in RawFallback for diagnostics.
//
// The fallback chain, first match wins:
//  1. a record exposing the plan schema by field presence is adopted directly
//  2. text that parses as such a record is adopted
//  3. text that fails parsing becomes a degraded plan
//  4. anything else is coerced to text and handled by rule 3
func Normalize(res Result) domain.ImplementationPlan {
	switch res.Kind {
	case KindRecord:
		if plan, ok := planFromRecord(res.Record); ok {
			return plan
		}
		// Record without the expected surface: keep it as diagnostics text.
		return degradedPlan(coerceText(res.Record))
	case KindText:
		return normalizeText(res.Text)
	default:
		if record, ok := res.Opaque.(map[string]any); ok {
			return Normalize(RecordResult(record))
		}
		return normalizeText(coerceText(res.Opaque))
	}
}

func normalizeText(text string) domain.ImplementationPlan {
	if record, ok := parseRecord(text); ok {
		if plan, ok := planFromRecord(record); ok {
			return plan
		}
	}
	return degradedPlan(text)
}

// parseRecord attempts to decode text as a JSON object, tolerating markdown
// code fences around the payload.
func parseRecord(text string) (map[string]any, bool) {
	trimmed := stripCodeFence(text)
	var record map[string]any
	if err := json.Unmarshal([]byte(trimmed), &record); err != nil {
		return nil, false
	}
	return record, true
}

// stripCodeFence removes a surrounding markdown code fence, a shape the
// reasoning backend emits despite being told not to.
func stripCodeFence(text string) string {
	trimmed := strings.TrimSpace(text)
	if !strings.HasPrefix(trimmed, "```") {
		return trimmed
	}
	trimmed = strings.TrimPrefix(trimmed, "```json")
	trimmed = strings.TrimPrefix(trimmed, "```")
	trimmed = strings.TrimSuffix(strings.TrimSpace(trimmed), "```")
	return strings.TrimSpace(trimmed)
}

// planFromRecord builds a plan from a structured record. ok is false when the
// record exposes none of the plan schema fields, in which case the caller
// falls through to the degraded path.
func planFromRecord(record map[string]any) (domain.ImplementationPlan, bool) {
	recognized := false
	for _, key := range []string{"project_summary", "summary", "tasks", "key_risks", "risks", "success_criteria"} {
		if _, ok := record[key]; ok {
			recognized = true
			break
		}
	}
	if !recognized {
		return domain.ImplementationPlan{}, false
	}

	plan := domain.ImplementationPlan{
		Summary:         summaryFromRecord(record),
		Tasks:           tasksFromRecord(record),
		Risks:           stringList(record, "key_risks", "risks"),
		SuccessCriteria: stringList(record, "success_criteria"),
		GeneratedAt:     time.Now().UTC(),
	}
	if raw := asString(record["raw_fallback"]); raw != "" {
		plan.RawFallback = raw
	} else if raw := asString(record["raw_output"]); raw != "" {
		plan.RawFallback = raw
	}
	return plan, true
}

func summaryFromRecord(record map[string]any) domain.PlanSummary {
	summary := domain.PlanSummary{
		Effort:   placeholderEstimate,
		TeamSize: placeholderEstimate,
		Duration: placeholderEstimate,
	}

	raw, ok := record["project_summary"].(map[string]any)
	if !ok {
		raw, ok = record["summary"].(map[string]any)
	}
	if !ok {
		return summary
	}

	// Estimate fields are permissively text-typed: upstream content is
	// natural language, so numbers and placeholders are both accepted.
	if v := firstString(raw, "total_effort", "effort"); v != "" {
		summary.Effort = v
	}
	if v := firstString(raw, "team_size"); v != "" {
		summary.TeamSize = v
	}
	if v := firstString(raw, "duration"); v != "" {
		summary.Duration = v
	}
	return summary
}

func tasksFromRecord(record map[string]any) []domain.PlanTask {
	items, ok := record["tasks"].([]any)
	if !ok {
		return []domain.PlanTask{}
	}

	tasks := make([]domain.PlanTask, 0, len(items))
	for i, item := range items {
		raw, ok := item.(map[string]any)
		if !ok {
			continue
		}
		task := domain.PlanTask{
			ID:          firstString(raw, "id", "task_id"),
			Title:       firstString(raw, "title", "name"),
			Description: firstString(raw, "description"),
			Effort:      firstString(raw, "effort", "estimated_effort"),
			Role:        firstString(raw, "role", "assigned_role", "owner"),
		}
		if task.ID == "" {
			task.ID = fmt.Sprintf("T%d", i+1)
		}
		tasks = append(tasks, task)
	}
	return tasks
}

func stringList(record map[string]any, keys ...string) []string {
	for _, key := range keys {
		items, ok := record[key].([]any)
		if !ok {
			continue
		}
		out := make([]string, 0, len(items))
		for _, item := range items {
			if s := asString(item); s != "" {
				out = append(out, s)
			}
		}
		return out
	}
	return []string{}
}

func firstString(record map[string]any, keys ...string) string {
	for _, key := range keys {
		if s := asString(record[key]); s != "" {
			return s
		}
	}
	return ""
}

// asString coerces scalar JSON values to text. Estimates frequently arrive as
// numbers even though the schema asks for strings.
func asString(v any) string {
	switch val := v.(type) {
	case string:
		return strings.TrimSpace(val)
	case float64:
		return strconv.FormatFloat(val, 'f', -1, 64)
	case json.Number:
		return val.String()
	case bool:
		return strconv.FormatBool(val)
	default:
		return ""
	}
}

func degradedPlan(text string) domain.ImplementationPlan {
	return domain.ImplementationPlan{
		Summary: domain.PlanSummary{
			Effort:   placeholderEstimate,
			TeamSize: placeholderEstimate,
			Duration: placeholderEstimate,
		},
		Tasks:           []domain.PlanTask{},
		Risks:           []string{},
		SuccessCriteria: []string{},
		RawFallback:     text,
		GeneratedAt:     time.Now().UTC(),
	}
}

// coerceText produces a best-effort textual representation of an arbitrary
// value for the degraded path.
func coerceText(v any) string {
	if v == nil {
		return ""
	}
	if s, ok := v.(string); ok {
		return s
	}
	if s, ok := v.(fmt.Stringer); ok {
		return s.String()
	}
	if data, err := json.Marshal(v); err == nil {
		return string(data)
	}
	return fmt.Sprintf("%v", v)
}

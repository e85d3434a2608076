package domain

import (
	"time"
)

// PlanSummary carries the headline estimates for an implementation plan.
// Fields are deliberately text-typed: upstream estimates are natural-language
// ("2-3 weeks", "TBD") and forcing numerics would reject valid output.
type PlanSummary struct {
	Effort   string `json:"effort"`
	TeamSize string `json:"team_size"`
	Duration string `json:"duration"`
}

// PlanTask is one ordered implementation task.
type PlanTask struct {
	ID          string `json:"id"`
	Title       string `json:"title"`
	Description string `json:"description"`
	Effort      string `json:"effort"`
	Role        string `json:"role"`
}

// ImplementationPlan is the canonical, normalized analysis output. It is
// always constructible: when structured extraction fails, RawFallback holds
// the original text and the remaining fields take safe defaults. A plan is
// never partially invalid, only degraded.
type ImplementationPlan struct {
	Summary         PlanSummary `json:"summary"`
	Tasks           []PlanTask  `json:"tasks"`
	Risks           []string    `json:"risks"`
	SuccessCriteria []string    `json:"success_criteria"`
	RawFallback     string      `json:"raw_fallback,omitempty"`
	GeneratedAt     time.Time   `json:"generated_at"`
}

// Degraded reports whether the plan was built from fallback text rather than
// structured extraction.
func (p *ImplementationPlan) Degraded() bool {
	return p.RawFallback != ""
}

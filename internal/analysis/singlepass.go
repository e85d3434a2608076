package analysis

import (
	"context"

	"github.com/planfold/planfold/internal/reasoning"
)

const singlePassStrategyName = "single_pass"

// SinglePassStrategy produces a plan with one reasoning call. It is the
// degraded-capacity fallback for the pipeline strategy: cheaper, faster, and
// less structured. Its output is always plain text; the normalizer decides
// whether it parses.
type SinglePassStrategy struct {
	invoker reasoning.Invoker
	prompts *Prompts
}

func NewSinglePassStrategy(invoker reasoning.Invoker, prompts *Prompts) *SinglePassStrategy {
	return &SinglePassStrategy{invoker: invoker, prompts: prompts}
}

func (s *SinglePassStrategy) Name() string {
	return singlePassStrategyName
}

func (s *SinglePassStrategy) Execute(ctx context.Context, req Request) (Result, error) {
	if err := ctx.Err(); err != nil {
		return Result{}, &ExecutionError{Strategy: singlePassStrategyName, Err: err}
	}
	prompt := render(s.prompts.SinglePass, map[string]string{
		"requirement":  req.Requirement,
		"conversation": req.Context,
	})
	out, err := s.invoker.Invoke(ctx, prompt)
	if err != nil {
		return Result{}, &ExecutionError{Strategy: singlePassStrategyName, Err: err}
	}
	return TextResult(out), nil
}

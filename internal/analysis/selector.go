package analysis

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/planfold/planfold/internal/domain"
)

// Hint selects which strategies the selector may try.
type Hint string

const (
	// HintAuto tries strategies in registration order, failing over to the
	// next when one fails.
	HintAuto Hint = "auto"
	// HintTeam pins execution to the specialist pipeline.
	HintTeam Hint = "team"
	// HintSinglePass pins execution to the one-shot strategy.
	HintSinglePass Hint = "single_pass"
)

// ErrNoStrategy is returned when a hint names a strategy that is not
// registered.
var ErrNoStrategy = errors.New("no matching execution strategy")

// Selector owns the registered strategies and the failover policy between
// them. Every successful execution passes through Normalize, so callers only
// ever see canonical plans.
type Selector struct {
	strategies []Strategy
	logger     *slog.Logger
}

// NewSelector registers strategies in failover order for HintAuto.
func NewSelector(logger *slog.Logger, strategies ...Strategy) *Selector {
	if logger == nil {
		logger = slog.Default()
	}
	return &Selector{strategies: strategies, logger: logger}
}

// Execute runs the candidates permitted by hint until one succeeds and
// returns its normalized plan. Context cancellation aborts immediately rather
// than failing over: a canceled request must not keep consuming reasoning
// capacity. When every candidate fails, the returned error joins all
// candidate failures.
func (s *Selector) Execute(ctx context.Context, hint Hint, req Request) (domain.ImplementationPlan, error) {
	candidates, err := s.candidates(hint)
	if err != nil {
		return domain.ImplementationPlan{}, err
	}

	var failures []error
	for _, strategy := range candidates {
		if err := ctx.Err(); err != nil {
			return domain.ImplementationPlan{}, err
		}

		req.notify(StatusEvent{Strategy: strategy.Name(), Phase: PhaseStarted})
		res, err := strategy.Execute(ctx, req)
		if err != nil {
			req.notify(StatusEvent{Strategy: strategy.Name(), Phase: PhaseFailed, Err: err})
			if ctx.Err() != nil {
				return domain.ImplementationPlan{}, err
			}
			s.logger.Warn("execution strategy failed",
				"session_id", req.SessionID,
				"strategy", strategy.Name(),
				"error", err)
			failures = append(failures, err)
			continue
		}
		req.notify(StatusEvent{Strategy: strategy.Name(), Phase: PhaseCompleted})

		plan := Normalize(res)
		if plan.Degraded() {
			s.logger.Warn("plan normalization degraded",
				"session_id", req.SessionID,
				"strategy", strategy.Name())
		}
		return plan, nil
	}

	return domain.ImplementationPlan{}, fmt.Errorf("all execution strategies failed: %w", errors.Join(failures...))
}

func (s *Selector) candidates(hint Hint) ([]Strategy, error) {
	if hint == "" || hint == HintAuto {
		if len(s.strategies) == 0 {
			return nil, ErrNoStrategy
		}
		return s.strategies, nil
	}
	for _, strategy := range s.strategies {
		if strategy.Name() == string(hint) {
			return []Strategy{strategy}, nil
		}
	}
	return nil, fmt.Errorf("%w: %q", ErrNoStrategy, hint)
}

package analysis

import (
	"context"
	"log/slog"
	"strings"

	"github.com/planfold/planfold/internal/reasoning"
	"github.com/planfold/planfold/internal/schema"
)

const teamStrategyName = "team"

// maxSchemaObjects bounds how much org metadata is rendered into the schema
// analysis prompt; maxDescribedObjects and maxDescribedFields bound the
// field-level describe detail on top of the listing.
const (
	maxSchemaObjects    = 25
	maxDescribedObjects = 5
	maxDescribedFields  = 20
)

// TeamStrategy runs the full specialist pipeline: schema analysis, technical
// design, then task planning. Each stage receives the prior stage's output in
// its prompt, so stages always run sequentially and a stage failure aborts
// the remainder.
type TeamStrategy struct {
	invoker   reasoning.Invoker
	prompts   *Prompts
	connector schema.Connector
	logger    *slog.Logger
}

// NewTeamStrategy builds the pipeline strategy. connector may be nil, in
// which case schema analysis runs without org metadata.
func NewTeamStrategy(invoker reasoning.Invoker, prompts *Prompts, connector schema.Connector, logger *slog.Logger) *TeamStrategy {
	if logger == nil {
		logger = slog.Default()
	}
	return &TeamStrategy{
		invoker:   invoker,
		prompts:   prompts,
		connector: connector,
		logger:    logger,
	}
}

func (s *TeamStrategy) Name() string {
	return teamStrategyName
}

func (s *TeamStrategy) Execute(ctx context.Context, req Request) (Result, error) {
	stages := []struct {
		name string
		run  func(ctx context.Context, req Request, prior map[string]string) (string, error)
	}{
		{StageSchemaAnalysis, s.runSchemaAnalysis},
		{StageTechnicalDesign, s.runTechnicalDesign},
		{StageTaskPlanning, s.runTaskPlanning},
	}

	// Handoff holds each completed stage's output, keyed by stage name, for
	// substitution into later prompts.
	handoff := make(map[string]string, len(stages))
	var final string

	for _, stage := range stages {
		if err := ctx.Err(); err != nil {
			return Result{}, &ExecutionError{Strategy: teamStrategyName, Stage: stage.name, Err: err}
		}

		req.notify(StatusEvent{Strategy: teamStrategyName, Stage: stage.name, Phase: PhaseStarted})
		out, err := stage.run(ctx, req, handoff)
		if err != nil {
			execErr := &ExecutionError{Strategy: teamStrategyName, Stage: stage.name, Err: err}
			req.notify(StatusEvent{Strategy: teamStrategyName, Stage: stage.name, Phase: PhaseFailed, Err: execErr})
			return Result{}, execErr
		}
		req.notify(StatusEvent{Strategy: teamStrategyName, Stage: stage.name, Phase: PhaseCompleted})

		handoff[stage.name] = out
		final = out
	}

	if record, ok := parseRecord(final); ok {
		return RecordResult(record), nil
	}
	return TextResult(final), nil
}

func (s *TeamStrategy) runSchemaAnalysis(ctx context.Context, req Request, _ map[string]string) (string, error) {
	orgContext, err := s.orgContext(ctx)
	if err != nil {
		return "", err
	}
	prompt := render(s.prompts.SchemaAnalysis, map[string]string{
		"org_schema":   orgContext,
		"requirement":  req.Requirement,
		"conversation": req.Context,
	})
	return s.invoker.Invoke(ctx, prompt)
}

func (s *TeamStrategy) runTechnicalDesign(ctx context.Context, req Request, prior map[string]string) (string, error) {
	prompt := render(s.prompts.TechnicalDesign, map[string]string{
		"requirement":     req.Requirement,
		"schema_analysis": prior[StageSchemaAnalysis],
	})
	return s.invoker.Invoke(ctx, prompt)
}

func (s *TeamStrategy) runTaskPlanning(ctx context.Context, req Request, prior map[string]string) (string, error) {
	prompt := render(s.prompts.TaskPlanning, map[string]string{
		"requirement":      req.Requirement,
		"technical_design": prior[StageTechnicalDesign],
	})
	return s.invoker.Invoke(ctx, prompt)
}

// orgContext fetches and summarizes live org metadata: the full object
// listing plus field-level describes of the most relevant objects. A nil
// connector yields a neutral placeholder so the prompt stays well-formed; a
// connector failure is a stage failure because the schema recommendations
// would otherwise be fabricated against an unknown org.
func (s *TeamStrategy) orgContext(ctx context.Context) (string, error) {
	if s.connector == nil {
		return "No org metadata is available. Base recommendations on standard CRM objects.", nil
	}
	objects, err := s.connector.ListObjects(ctx)
	if err != nil {
		return "", err
	}
	if len(objects) == 0 {
		return "The org exposes no queryable objects.", nil
	}

	var b strings.Builder
	b.WriteString(schema.Summarize(objects, maxSchemaObjects))
	for _, o := range describeCandidates(objects, maxDescribedObjects) {
		obj, err := s.connector.DescribeObject(ctx, o.Name)
		if err != nil {
			return "", err
		}
		if detail := schema.DescribeSummary(obj, maxDescribedFields); detail != "" {
			b.WriteString("\n")
			b.WriteString(detail)
		}
	}
	s.logger.Debug("rendered org schema context", "objects", len(objects))
	return b.String(), nil
}

// describeCandidates picks the objects worth a field-level describe. Custom
// objects come first since they carry the org's existing configuration.
func describeCandidates(objects []schema.ObjectSummary, max int) []schema.ObjectSummary {
	picked := make([]schema.ObjectSummary, 0, max)
	for _, o := range objects {
		if o.Custom {
			picked = append(picked, o)
			if len(picked) == max {
				return picked
			}
		}
	}
	for _, o := range objects {
		if !o.Custom {
			picked = append(picked, o)
			if len(picked) == max {
				return picked
			}
		}
	}
	return picked
}

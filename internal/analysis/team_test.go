package analysis

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/planfold/planfold/internal/schema"
)

// scriptedInvoker returns canned responses in order and records each prompt.
type scriptedInvoker struct {
	responses []string
	err       error
	failAt    int // 1-based call index that fails, 0 for never
	prompts   []string
}

func (s *scriptedInvoker) Invoke(_ context.Context, prompt string) (string, error) {
	s.prompts = append(s.prompts, prompt)
	call := len(s.prompts)
	if s.failAt != 0 && call == s.failAt {
		return "", s.err
	}
	if call > len(s.responses) {
		return "", errors.New("unexpected invocation")
	}
	return s.responses[call-1], nil
}

type staticConnector struct {
	objects     []schema.ObjectSummary
	schemas     map[string]*schema.ObjectSchema
	err         error
	describeErr error
	described   []string
}

func (c *staticConnector) ListObjects(context.Context) ([]schema.ObjectSummary, error) {
	return c.objects, c.err
}

func (c *staticConnector) DescribeObject(_ context.Context, name string) (*schema.ObjectSchema, error) {
	c.described = append(c.described, name)
	if c.describeErr != nil {
		return nil, c.describeErr
	}
	if obj, ok := c.schemas[name]; ok {
		return obj, nil
	}
	return &schema.ObjectSchema{Name: name}, nil
}

func mustPrompts(t *testing.T) *Prompts {
	t.Helper()
	p, err := DefaultPrompts()
	if err != nil {
		t.Fatalf("DefaultPrompts: %v", err)
	}
	return p
}

func TestTeamStrategyHandoff(t *testing.T) {
	t.Parallel()

	invoker := &scriptedInvoker{responses: []string{
		`{"recommended_objects": []}`,
		`{"automation_needed": []}`,
		planJSON,
	}}
	strategy := NewTeamStrategy(invoker, mustPrompts(t), nil, nil)

	var events []StatusEvent
	req := Request{
		SessionID:   "s1",
		Requirement: "track candidate interviews",
		Context:     "user: we hire a lot",
		Status:      func(e StatusEvent) { events = append(events, e) },
	}

	res, err := strategy.Execute(context.Background(), req)
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if res.Kind != KindRecord {
		t.Fatalf("Kind = %q, want record", res.Kind)
	}

	if len(invoker.prompts) != 3 {
		t.Fatalf("len(prompts) = %d, want 3", len(invoker.prompts))
	}
	if !strings.Contains(invoker.prompts[0], "track candidate interviews") {
		t.Errorf("stage 1 prompt missing requirement")
	}
	if !strings.Contains(invoker.prompts[1], `{"recommended_objects": []}`) {
		t.Errorf("stage 2 prompt missing stage 1 output")
	}
	if !strings.Contains(invoker.prompts[2], `{"automation_needed": []}`) {
		t.Errorf("stage 3 prompt missing stage 2 output")
	}

	wantPhases := []Phase{
		PhaseStarted, PhaseCompleted,
		PhaseStarted, PhaseCompleted,
		PhaseStarted, PhaseCompleted,
	}
	if len(events) != len(wantPhases) {
		t.Fatalf("len(events) = %d, want %d", len(events), len(wantPhases))
	}
	for i, want := range wantPhases {
		if events[i].Phase != want {
			t.Errorf("events[%d].Phase = %q, want %q", i, events[i].Phase, want)
		}
	}
	if events[0].Stage != StageSchemaAnalysis || events[4].Stage != StageTaskPlanning {
		t.Errorf("stage ordering wrong: first=%q last=%q", events[0].Stage, events[4].Stage)
	}
}

func TestTeamStrategyStageFailureAborts(t *testing.T) {
	t.Parallel()

	boom := errors.New("backend unavailable")
	invoker := &scriptedInvoker{
		responses: []string{`{"recommended_objects": []}`},
		failAt:    2,
		err:       boom,
	}
	strategy := NewTeamStrategy(invoker, mustPrompts(t), nil, nil)

	_, err := strategy.Execute(context.Background(), Request{Requirement: "r"})
	var execErr *ExecutionError
	if !errors.As(err, &execErr) {
		t.Fatalf("error type = %T, want *ExecutionError", err)
	}
	if execErr.Stage != StageTechnicalDesign {
		t.Errorf("Stage = %q, want %q", execErr.Stage, StageTechnicalDesign)
	}
	if !errors.Is(err, boom) {
		t.Errorf("cause not preserved: %v", err)
	}
	if len(invoker.prompts) != 2 {
		t.Errorf("pipeline continued after failure, %d calls", len(invoker.prompts))
	}
}

func TestTeamStrategyConnectorFailure(t *testing.T) {
	t.Parallel()

	boom := errors.New("listing timed out")
	strategy := NewTeamStrategy(&scriptedInvoker{}, mustPrompts(t), &staticConnector{err: boom}, nil)

	_, err := strategy.Execute(context.Background(), Request{Requirement: "r"})
	var execErr *ExecutionError
	if !errors.As(err, &execErr) {
		t.Fatalf("error type = %T, want *ExecutionError", err)
	}
	if execErr.Stage != StageSchemaAnalysis {
		t.Errorf("Stage = %q, want %q", execErr.Stage, StageSchemaAnalysis)
	}
}

func TestTeamStrategyConnectorContext(t *testing.T) {
	t.Parallel()

	connector := &staticConnector{
		objects: []schema.ObjectSummary{
			{Name: "Candidate__c", Label: "Candidate", Custom: true},
		},
		schemas: map[string]*schema.ObjectSchema{
			"Candidate__c": {Name: "Candidate__c", Fields: []schema.Field{
				{Name: "Recruiter__c", Type: "reference", ReferenceTo: "User"},
			}},
		},
	}
	invoker := &scriptedInvoker{responses: []string{"a", "b", planJSON}}
	strategy := NewTeamStrategy(invoker, mustPrompts(t), connector, nil)

	if _, err := strategy.Execute(context.Background(), Request{Requirement: "r"}); err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if !strings.Contains(invoker.prompts[0], "Candidate__c") {
		t.Errorf("org metadata not rendered into schema analysis prompt")
	}
	if !strings.Contains(invoker.prompts[0], "Recruiter__c") {
		t.Errorf("field-level describe data not rendered into schema analysis prompt")
	}
}

func TestTeamStrategyDescribesCustomObjectsFirst(t *testing.T) {
	t.Parallel()

	objects := []schema.ObjectSummary{
		{Name: "Account"},
		{Name: "Contact"},
		{Name: "Candidate__c", Custom: true},
		{Name: "Interview__c", Custom: true},
		{Name: "Lead"},
		{Name: "Case"},
		{Name: "Opportunity"},
	}
	connector := &staticConnector{objects: objects}
	invoker := &scriptedInvoker{responses: []string{"a", "b", planJSON}}
	strategy := NewTeamStrategy(invoker, mustPrompts(t), connector, nil)

	if _, err := strategy.Execute(context.Background(), Request{Requirement: "r"}); err != nil {
		t.Fatalf("Execute: %v", err)
	}
	want := []string{"Candidate__c", "Interview__c", "Account", "Contact", "Lead"}
	if len(connector.described) != len(want) {
		t.Fatalf("described %d objects, want %d: %v", len(connector.described), len(want), connector.described)
	}
	for i, name := range want {
		if connector.described[i] != name {
			t.Errorf("described[%d] = %q, want %q", i, connector.described[i], name)
		}
	}
}

func TestTeamStrategyDescribeFailure(t *testing.T) {
	t.Parallel()

	boom := errors.New("describe timed out")
	connector := &staticConnector{
		objects:     []schema.ObjectSummary{{Name: "Candidate__c", Custom: true}},
		describeErr: boom,
	}
	strategy := NewTeamStrategy(&scriptedInvoker{}, mustPrompts(t), connector, nil)

	_, err := strategy.Execute(context.Background(), Request{Requirement: "r"})
	var execErr *ExecutionError
	if !errors.As(err, &execErr) {
		t.Fatalf("error type = %T, want *ExecutionError", err)
	}
	if execErr.Stage != StageSchemaAnalysis {
		t.Errorf("Stage = %q, want %q", execErr.Stage, StageSchemaAnalysis)
	}
	if !errors.Is(err, boom) {
		t.Errorf("cause not preserved: %v", err)
	}
}

func TestTeamStrategyCancellation(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	strategy := NewTeamStrategy(&scriptedInvoker{}, mustPrompts(t), nil, nil)
	_, err := strategy.Execute(ctx, Request{Requirement: "r"})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v, want context.Canceled", err)
	}
}

func TestTeamStrategyTextFallthrough(t *testing.T) {
	t.Parallel()

	invoker := &scriptedInvoker{responses: []string{"a", "b", "final prose, not JSON"}}
	strategy := NewTeamStrategy(invoker, mustPrompts(t), nil, nil)

	res, err := strategy.Execute(context.Background(), Request{Requirement: "r"})
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if res.Kind != KindText {
		t.Errorf("Kind = %q, want text", res.Kind)
	}
	if res.Text != "final prose, not JSON" {
		t.Errorf("Text = %q", res.Text)
	}
}

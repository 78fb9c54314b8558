package testutil

import (
	"context"
	"fmt"
	"sync"

	"github.com/docuflow/docuflow/pkg/models"
	"github.com/docuflow/docuflow/pkg/protocol"
)

// AdvanceCall records one AdvanceStep invocation.
type AdvanceCall struct {
	StepInstanceID string
	TargetStepID   string
}

// AssignCall records one AssignStep invocation.
type AssignCall struct {
	StepInstanceID string
	UserID         string
}

// SkipCall records one SkipStep invocation.
type SkipCall struct {
	StepInstanceID string
	Reason         string
}

// FieldCall records one SetField invocation.
type FieldCall struct {
	StepInstanceID string
	Field          string
	Value          any
}

// TerminateCall records one Terminate invocation.
type TerminateCall struct {
	WorkflowInstanceID string
	Reason             string
}

// FakeWorkflowEngine is an in-memory protocol.WorkflowEngine that records
// every mutation it receives.
type FakeWorkflowEngine struct {
	mu sync.Mutex

	Contexts  map[string]map[string]any
	Instances map[string][]*models.StepInstance

	ContextErr error
	AdvanceErr error

	AdvanceCalls   []AdvanceCall
	AssignCalls    []AssignCall
	SkipCalls      []SkipCall
	FieldCalls     []FieldCall
	TerminateCalls []TerminateCall
}

func NewFakeWorkflowEngine() *FakeWorkflowEngine {
	return &FakeWorkflowEngine{
		Contexts:  make(map[string]map[string]any),
		Instances: make(map[string][]*models.StepInstance),
	}
}

func (f *FakeWorkflowEngine) GetContext(_ context.Context, stepInstanceID string) (map[string]any, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.ContextErr != nil {
		return nil, f.ContextErr
	}

	data, ok := f.Contexts[stepInstanceID]
	if !ok {
		return map[string]any{}, nil
	}

	return data, nil
}

func (f *FakeWorkflowEngine) OpenStepInstances(_ context.Context, workflowID string) ([]*models.StepInstance, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	return f.Instances[workflowID], nil
}

func (f *FakeWorkflowEngine) AdvanceStep(_ context.Context, stepInstanceID, targetStepID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.AdvanceErr != nil {
		return f.AdvanceErr
	}

	f.AdvanceCalls = append(f.AdvanceCalls, AdvanceCall{StepInstanceID: stepInstanceID, TargetStepID: targetStepID})

	return nil
}

func (f *FakeWorkflowEngine) AssignStep(_ context.Context, stepInstanceID, userID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.AssignCalls = append(f.AssignCalls, AssignCall{StepInstanceID: stepInstanceID, UserID: userID})

	return nil
}

func (f *FakeWorkflowEngine) SkipStep(_ context.Context, stepInstanceID, reason string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.SkipCalls = append(f.SkipCalls, SkipCall{StepInstanceID: stepInstanceID, Reason: reason})

	return nil
}

func (f *FakeWorkflowEngine) SetField(_ context.Context, stepInstanceID, field string, value any) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.FieldCalls = append(f.FieldCalls, FieldCall{StepInstanceID: stepInstanceID, Field: field, Value: value})

	return nil
}

func (f *FakeWorkflowEngine) Terminate(_ context.Context, workflowInstanceID, reason string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.TerminateCalls = append(f.TerminateCalls, TerminateCall{WorkflowInstanceID: workflowInstanceID, Reason: reason})

	return nil
}

// SentNotification records one Send invocation.
type SentNotification struct {
	Target       protocol.NotificationTarget
	TemplateKind string
	Payload      map[string]any
}

// FakeNotifier is an in-memory protocol.Notifier. Each successful Send
// returns an incrementing notification id.
type FakeNotifier struct {
	mu sync.Mutex

	Sent []SentNotification
	Err  error
}

func (f *FakeNotifier) Send(_ context.Context, target protocol.NotificationTarget, templateKind string, payload map[string]any) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.Err != nil {
		return "", f.Err
	}

	f.Sent = append(f.Sent, SentNotification{Target: target, TemplateKind: templateKind, Payload: payload})

	return fmt.Sprintf("notification-%d", len(f.Sent)), nil
}

// FakeDirectory resolves users and roles from in-memory maps.
type FakeDirectory struct {
	Users map[string]*protocol.User
	Roles map[string][]*protocol.User
}

func NewFakeDirectory() *FakeDirectory {
	return &FakeDirectory{
		Users: make(map[string]*protocol.User),
		Roles: make(map[string][]*protocol.User),
	}
}

func (f *FakeDirectory) ResolveUser(_ context.Context, userID string) (*protocol.User, error) {
	user, ok := f.Users[userID]
	if !ok {
		return nil, fmt.Errorf("unknown user: %s", userID)
	}

	return user, nil
}

func (f *FakeDirectory) ResolveRole(_ context.Context, role string) ([]*protocol.User, error) {
	users, ok := f.Roles[role]
	if !ok {
		return nil, fmt.Errorf("unknown role: %s", role)
	}

	return users, nil
}

// RaiseCall records one Raise invocation.
type RaiseCall struct {
	RuleID         string
	StepInstanceID string
	EventID        string
}

// FakeRaiser is an in-memory protocol.EscalationRaiser.
type FakeRaiser struct {
	mu sync.Mutex

	Raised   []RaiseCall
	Instance *models.EscalationInstance
	Err      error
}

func (f *FakeRaiser) Raise(_ context.Context, ruleID, stepInstanceID, eventID string) (*models.EscalationInstance, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.Err != nil {
		return nil, f.Err
	}

	f.Raised = append(f.Raised, RaiseCall{RuleID: ruleID, StepInstanceID: stepInstanceID, EventID: eventID})

	if f.Instance != nil {
		return f.Instance, nil
	}

	return &models.EscalationInstance{
		ID:             "instance-" + ruleID,
		RuleID:         ruleID,
		StepInstanceID: stepInstanceID,
		Level:          1,
		Status:         models.EscalationTriggered,
	}, nil
}

package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func notifyParams() ActionParams {
	return ActionParams{
		SendNotification: &SendNotificationParams{
			Role:         "managers",
			TemplateKind: "step-overdue",
		},
	}
}

func TestEscalationRuleValidate(t *testing.T) {
	groupID := "group-1"
	terminalType := ActionTerminateWorkflow
	terminalParams := ActionParams{TerminateWorkflow: &TerminateWorkflowParams{Reason: "stalled"}}
	negative := -time.Hour

	tests := []struct {
		name      string
		rule      EscalationRule
		wantError string
	}{
		{
			name: "valid elapsed rule",
			rule: EscalationRule{
				WorkflowID:   "wf-1",
				Trigger:      TriggerElapsedSinceStart,
				Threshold:    4 * time.Hour,
				ActionType:   ActionSendNotification,
				ActionParams: notifyParams(),
				MaxLevel:     3,
			},
		},
		{
			name: "elapsed rule requires positive threshold",
			rule: EscalationRule{
				WorkflowID:   "wf-1",
				Trigger:      TriggerElapsedSinceActivity,
				ActionType:   ActionSendNotification,
				ActionParams: notifyParams(),
				MaxLevel:     1,
			},
			wantError: "positive threshold",
		},
		{
			name: "due-date rule accepts zero grace period",
			rule: EscalationRule{
				WorkflowID:   "wf-1",
				Trigger:      TriggerDueDatePassed,
				ActionType:   ActionSendNotification,
				ActionParams: notifyParams(),
				MaxLevel:     1,
			},
		},
		{
			name: "custom trigger requires a condition group",
			rule: EscalationRule{
				WorkflowID:   "wf-1",
				Trigger:      TriggerCustomCondition,
				ActionType:   ActionSendNotification,
				ActionParams: notifyParams(),
				MaxLevel:     1,
			},
			wantError: "condition group reference",
		},
		{
			name: "custom trigger with group",
			rule: EscalationRule{
				WorkflowID:       "wf-1",
				Trigger:          TriggerCustomCondition,
				ConditionGroupID: &groupID,
				ActionType:       ActionSendNotification,
				ActionParams:     notifyParams(),
				MaxLevel:         1,
			},
		},
		{
			name: "max level below one",
			rule: EscalationRule{
				WorkflowID:   "wf-1",
				Trigger:      TriggerElapsedSinceStart,
				Threshold:    time.Hour,
				ActionType:   ActionSendNotification,
				ActionParams: notifyParams(),
			},
			wantError: "at least 1",
		},
		{
			name: "negative repeat interval",
			rule: EscalationRule{
				WorkflowID:     "wf-1",
				Trigger:        TriggerElapsedSinceStart,
				Threshold:      time.Hour,
				ActionType:     ActionSendNotification,
				ActionParams:   notifyParams(),
				MaxLevel:       1,
				RepeatInterval: &negative,
			},
			wantError: "repeat interval",
		},
		{
			name: "terminal behavior requires terminal action",
			rule: EscalationRule{
				WorkflowID:   "wf-1",
				Trigger:      TriggerElapsedSinceStart,
				Threshold:    time.Hour,
				ActionType:   ActionSendNotification,
				ActionParams: notifyParams(),
				MaxLevel:     2,
				OnMax:        OnMaxTerminal,
			},
			wantError: "requires a terminal action",
		},
		{
			name: "terminal behavior with terminal action",
			rule: EscalationRule{
				WorkflowID:     "wf-1",
				Trigger:        TriggerElapsedSinceStart,
				Threshold:      time.Hour,
				ActionType:     ActionSendNotification,
				ActionParams:   notifyParams(),
				MaxLevel:       2,
				OnMax:          OnMaxTerminal,
				TerminalType:   &terminalType,
				TerminalParams: &terminalParams,
			},
		},
		{
			name: "unknown trigger kind",
			rule: EscalationRule{
				WorkflowID:   "wf-1",
				Trigger:      TriggerKind("phase-of-moon"),
				ActionType:   ActionSendNotification,
				ActionParams: notifyParams(),
				MaxLevel:     1,
			},
			wantError: "unsupported trigger kind",
		},
		{
			name: "invalid escalation action params",
			rule: EscalationRule{
				WorkflowID: "wf-1",
				Trigger:    TriggerElapsedSinceStart,
				Threshold:  time.Hour,
				ActionType: ActionRouteToStep,
				MaxLevel:   1,
			},
			wantError: "escalation action",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.rule.Validate()

			if tt.wantError == "" {
				require.NoError(t, err)
			} else {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.wantError)
			}
		})
	}
}

func TestEscalationRuleAppliesTo(t *testing.T) {
	stepID := "step-review"

	workflowWide := EscalationRule{WorkflowID: "wf-1"}
	stepScoped := EscalationRule{WorkflowID: "wf-1", StepID: &stepID}

	assert.True(t, workflowWide.AppliesTo("wf-1", "step-review"))
	assert.True(t, workflowWide.AppliesTo("wf-1", "step-sign"))
	assert.False(t, workflowWide.AppliesTo("wf-2", "step-review"))

	assert.True(t, stepScoped.AppliesTo("wf-1", "step-review"))
	assert.False(t, stepScoped.AppliesTo("wf-1", "step-sign"))
}

func TestEscalationInstanceOpen(t *testing.T) {
	tests := []struct {
		status EscalationStatus
		open   bool
	}{
		{EscalationPending, true},
		{EscalationTriggered, true},
		{EscalationResolved, false},
		{EscalationSuppressed, false},
	}

	for _, tt := range tests {
		t.Run(string(tt.status), func(t *testing.T) {
			instance := EscalationInstance{Status: tt.status}
			assert.Equal(t, tt.open, instance.Open())
		})
	}
}

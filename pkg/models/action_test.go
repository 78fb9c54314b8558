package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestActionParamsValidateFor(t *testing.T) {
	tests := []struct {
		name       string
		actionType ActionType
		params     ActionParams
		wantError  string
	}{
		{
			name:       "valid route-to-step",
			actionType: ActionRouteToStep,
			params:     ActionParams{RouteToStep: &RouteToStepParams{TargetStepID: "step-approve"}},
		},
		{
			name:       "route-to-step without target",
			actionType: ActionRouteToStep,
			params:     ActionParams{RouteToStep: &RouteToStepParams{}},
			wantError:  "target step id",
		},
		{
			name:       "assign to user",
			actionType: ActionAssignUser,
			params:     ActionParams{AssignUser: &AssignUserParams{UserID: "u-1"}},
		},
		{
			name:       "assign to role",
			actionType: ActionAssignUser,
			params:     ActionParams{AssignUser: &AssignUserParams{Role: "reviewers"}},
		},
		{
			name:       "assign with both user and role",
			actionType: ActionAssignUser,
			params:     ActionParams{AssignUser: &AssignUserParams{UserID: "u-1", Role: "reviewers"}},
			wantError:  "exactly one",
		},
		{
			name:       "assign with neither target",
			actionType: ActionAssignUser,
			params:     ActionParams{AssignUser: &AssignUserParams{}},
			wantError:  "exactly one",
		},
		{
			name:       "notification without template",
			actionType: ActionSendNotification,
			params:     ActionParams{SendNotification: &SendNotificationParams{UserID: "u-1"}},
			wantError:  "template kind",
		},
		{
			name:       "notification without target",
			actionType: ActionSendNotification,
			params:     ActionParams{SendNotification: &SendNotificationParams{TemplateKind: "overdue"}},
			wantError:  "user_id or role",
		},
		{
			name:       "set-field-value without field",
			actionType: ActionSetFieldValue,
			params:     ActionParams{SetFieldValue: &SetFieldValueParams{Value: 1}},
			wantError:  "field path",
		},
		{
			name:       "trigger-escalation without rule",
			actionType: ActionTriggerEscalation,
			params:     ActionParams{TriggerEscalation: &TriggerEscalationParams{}},
			wantError:  "rule id",
		},
		{
			name:       "valid terminate-workflow",
			actionType: ActionTerminateWorkflow,
			params:     ActionParams{TerminateWorkflow: &TerminateWorkflowParams{Reason: "duplicate"}},
		},
		{
			name:       "params variant mismatching the type",
			actionType: ActionRouteToStep,
			params:     ActionParams{SkipStep: &SkipStepParams{}},
			wantError:  "target step id",
		},
		{
			name:       "multiple variants set",
			actionType: ActionRouteToStep,
			params: ActionParams{
				RouteToStep: &RouteToStepParams{TargetStepID: "step-approve"},
				SkipStep:    &SkipStepParams{},
			},
			wantError: "exactly one variant",
		},
		{
			name:       "unknown action type",
			actionType: ActionType("delete-document"),
			params:     ActionParams{},
			wantError:  "unsupported action type",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.params.ValidateFor(tt.actionType)

			if tt.wantError == "" {
				require.NoError(t, err)
			} else {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.wantError)
			}
		})
	}
}

func TestConditionalActionValidate(t *testing.T) {
	action := ConditionalAction{
		ID:     "a-1",
		Type:   ActionSkipStep,
		Params: ActionParams{SkipStep: &SkipStepParams{Reason: "auto"}},
	}

	err := action.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "owning group")

	action.GroupID = "g-1"
	require.NoError(t, action.Validate())
}

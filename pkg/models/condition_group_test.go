package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validCondition() *Condition {
	return &Condition{
		ID:       "cond-1",
		Field:    "status",
		Operator: OperatorEquals,
		Value:    ConditionValue{Kind: ValueKindString, StringVal: "pending"},
	}
}

func TestConditionGroupValidate(t *testing.T) {
	tests := []struct {
		name      string
		group     ConditionGroup
		wantError string
	}{
		{
			name: "valid and group",
			group: ConditionGroup{
				ID:       "g1",
				Operator: LogicalAnd,
				Children: []GroupChild{{Condition: validCondition()}},
			},
		},
		{
			name: "and group requires children",
			group: ConditionGroup{
				ID:       "g1",
				Operator: LogicalAnd,
			},
			wantError: "at least one child",
		},
		{
			name: "not group requires exactly one child",
			group: ConditionGroup{
				ID:       "g1",
				Operator: LogicalNot,
				Children: []GroupChild{
					{Condition: validCondition()},
					{Condition: validCondition()},
				},
			},
			wantError: "exactly one child",
		},
		{
			name: "unknown operator",
			group: ConditionGroup{
				ID:       "g1",
				Operator: LogicalOperator("xor"),
				Children: []GroupChild{{Condition: validCondition()}},
			},
			wantError: "unsupported logical operator",
		},
		{
			name: "child with both condition and group",
			group: ConditionGroup{
				ID:       "g1",
				Operator: LogicalAnd,
				Children: []GroupChild{{
					Condition: validCondition(),
					Group: &ConditionGroup{
						ID:       "g2",
						Operator: LogicalAnd,
						Children: []GroupChild{{Condition: validCondition()}},
					},
				}},
			},
			wantError: "not both",
		},
		{
			name: "empty child",
			group: ConditionGroup{
				ID:       "g1",
				Operator: LogicalAnd,
				Children: []GroupChild{{}},
			},
			wantError: "must reference",
		},
		{
			name: "invalid nested leaf surfaces",
			group: ConditionGroup{
				ID:       "g1",
				Operator: LogicalAnd,
				Children: []GroupChild{{
					Group: &ConditionGroup{
						ID:       "g2",
						Operator: LogicalAnd,
						Children: []GroupChild{{
							Condition: &Condition{ID: "bad", Operator: OperatorEquals},
						}},
					},
				}},
			},
			wantError: "field path is required",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.group.Validate()

			if tt.wantError == "" {
				require.NoError(t, err)
			} else {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.wantError)
			}
		})
	}
}

func TestConditionGroupValidate_RejectsSharedSubtree(t *testing.T) {
	shared := &ConditionGroup{
		ID:       "shared",
		Operator: LogicalAnd,
		Children: []GroupChild{{Condition: validCondition()}},
	}

	group := ConditionGroup{
		ID:       "root",
		Operator: LogicalOr,
		Children: []GroupChild{
			{Group: shared},
			{Group: shared},
		},
	}

	err := group.Validate()

	require.Error(t, err)
	assert.Contains(t, err.Error(), "more than once")
}

func TestGroupChildIsLeaf(t *testing.T) {
	assert.True(t, GroupChild{Condition: validCondition()}.IsLeaf())
	assert.False(t, GroupChild{Group: &ConditionGroup{}}.IsLeaf())
}

package models

import (
	"errors"
	"fmt"
	"time"
)

// LogicalOperator combines the results of a group's children.
type LogicalOperator string

const (
	LogicalAnd LogicalOperator = "and"
	LogicalOr  LogicalOperator = "or"
	LogicalNot LogicalOperator = "not"
)

// GroupChild is a tagged union: exactly one of Condition or Group is set.
// Children are stored flat in persistence (parent id + position) and
// assembled into this in-memory form by the repositories.
type GroupChild struct {
	Position  int             `json:"position"`
	Condition *Condition      `json:"condition,omitempty"`
	Group     *ConditionGroup `json:"group,omitempty"`
}

// IsLeaf reports whether the child is a leaf condition.
func (gc GroupChild) IsLeaf() bool {
	return gc.Condition != nil
}

// ConditionGroup is a tree of conditions combined with a logical operator.
// A group with operator NOT has exactly one child; AND/OR require at least one.
type ConditionGroup struct {
	ID             string          `json:"id"`
	WorkflowStepID string          `json:"workflow_step_id" validate:"required"`
	ParentGroupID  *string         `json:"parent_group_id,omitempty"`
	Operator       LogicalOperator `json:"operator"          validate:"required"`
	Children       []GroupChild    `json:"children"`
	Active         bool            `json:"active"`
	CreatedAt      time.Time       `json:"created_at"`
	UpdatedAt      time.Time       `json:"updated_at"`
	DeactivatedAt  *time.Time      `json:"deactivated_at,omitempty"`
}

// maxGroupDepth bounds tree traversal so a corrupt parent/child table cannot
// send validation or evaluation into an unbounded walk.
const maxGroupDepth = 32

// Validate checks the structural invariants of the whole tree rooted at g.
func (g *ConditionGroup) Validate() error {
	seen := make(map[string]bool)

	type frame struct {
		group *ConditionGroup
		depth int
	}

	stack := []frame{{group: g, depth: 0}}

	for len(stack) > 0 {
		fr := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		cur := fr.group

		if fr.depth > maxGroupDepth {
			return fmt.Errorf("condition group tree exceeds maximum depth of %d", maxGroupDepth)
		}

		if cur.ID != "" {
			if seen[cur.ID] {
				return fmt.Errorf("condition group %s appears more than once: groups form a tree, not a graph", cur.ID)
			}

			seen[cur.ID] = true
		}

		if err := cur.validateArity(); err != nil {
			return err
		}

		for _, child := range cur.Children {
			switch {
			case child.Condition != nil && child.Group != nil:
				return errors.New("group child must be either a condition or a nested group, not both")
			case child.Condition != nil:
				if err := child.Condition.Validate(); err != nil {
					return fmt.Errorf("condition %s: %w", child.Condition.ID, err)
				}
			case child.Group != nil:
				stack = append(stack, frame{group: child.Group, depth: fr.depth + 1})
			default:
				return errors.New("group child must reference a condition or a nested group")
			}
		}
	}

	return nil
}

func (g *ConditionGroup) validateArity() error {
	switch g.Operator {
	case LogicalNot:
		if len(g.Children) != 1 {
			return fmt.Errorf("NOT group %s must have exactly one child, has %d", g.ID, len(g.Children))
		}
	case LogicalAnd, LogicalOr:
		if len(g.Children) == 0 {
			return fmt.Errorf("%s group %s must have at least one child", g.Operator, g.ID)
		}
	default:
		return fmt.Errorf("unsupported logical operator: %s", g.Operator)
	}

	return nil
}

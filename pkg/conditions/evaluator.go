// Package conditions evaluates condition group trees against step instance
// data contexts. Evaluation is pure: no side effects, safe to run in
// parallel across independent step instances.
package conditions

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/docuflow/docuflow/pkg/models"
	"github.com/expr-lang/expr"
)

type Evaluator struct {
	logger *slog.Logger
}

func NewEvaluator(logger *slog.Logger) *Evaluator {
	return &Evaluator{
		logger: logger.With("module", "condition_evaluator"),
	}
}

// frame tracks one group on the explicit traversal stack. Traversal is
// iterative so tree depth is bounded by memory, not goroutine stack.
type frame struct {
	group   *models.ConditionGroup
	next    int
	result  bool
	decided bool
}

// Evaluate walks the group tree depth-first. AND short-circuits on the first
// false child, OR on the first true child, NOT inverts its single child. A
// leaf that cannot be evaluated fails closed to false and is reported in the
// trace rather than aborting the group.
func (e *Evaluator) Evaluate(ctx context.Context, group *models.ConditionGroup, ectx models.ExecutionContext) (*Result, error) {
	if group == nil {
		return nil, errors.New("condition group is nil")
	}

	if err := group.Validate(); err != nil {
		return nil, fmt.Errorf("invalid condition group %s: %w", group.ID, err)
	}

	trace := &Trace{}
	stack := []*frame{newFrame(group)}

	var rootResult bool

	for len(stack) > 0 {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		top := stack[len(stack)-1]

		if top.decided || top.next >= len(top.group.Children) {
			stack = stack[:len(stack)-1]

			result := finishGroup(top, trace)

			if len(stack) == 0 {
				rootResult = result

				break
			}

			combine(stack[len(stack)-1], result)

			continue
		}

		child := top.group.Children[top.next]
		top.next++

		if child.IsLeaf() {
			combine(top, e.evaluateLeaf(child.Condition, ectx, trace))

			continue
		}

		stack = append(stack, newFrame(child.Group))
	}

	e.logger.DebugContext(ctx, "Evaluated condition group",
		"group_id", group.ID,
		"step_instance_id", ectx.StepInstanceID,
		"result", rootResult)

	return &Result{GroupID: group.ID, Value: rootResult, Trace: trace}, nil
}

func newFrame(group *models.ConditionGroup) *frame {
	fr := &frame{group: group}

	// AND starts optimistic, OR and NOT pessimistic.
	if group.Operator == models.LogicalAnd {
		fr.result = true
	}

	return fr
}

// combine folds one child result into its parent frame, marking the frame
// decided when the operator short-circuits.
func combine(fr *frame, childResult bool) {
	switch fr.group.Operator {
	case models.LogicalAnd:
		if !childResult {
			fr.result = false
			fr.decided = true
		}
	case models.LogicalOr:
		if childResult {
			fr.result = true
			fr.decided = true
		}
	case models.LogicalNot:
		fr.result = childResult
	}
}

func finishGroup(fr *frame, trace *Trace) bool {
	result := fr.result
	if fr.group.Operator == models.LogicalNot {
		result = !result
	}

	trace.Groups = append(trace.Groups, GroupTrace{
		GroupID:        fr.group.ID,
		Operator:       fr.group.Operator,
		Result:         result,
		ShortCircuited: fr.decided,
	})

	return result
}

func (e *Evaluator) evaluateLeaf(cond *models.Condition, ectx models.ExecutionContext, trace *Trace) bool {
	if cond.Language == models.LanguageExpression {
		return e.evaluateExpression(cond, ectx, trace)
	}

	result, evalErr := evaluateLeaf(cond, ectx.Data)

	leaf := LeafTrace{
		ConditionID: cond.ID,
		Field:       cond.Field,
		Operator:    cond.Operator,
		Result:      result,
	}

	if actual, present := ResolveField(ectx.Data, cond.Field); present {
		leaf.Actual = actual
	}

	if evalErr != nil {
		// Fail closed: the leaf is false, the group keeps evaluating.
		leaf.Result = false
		leaf.Error = evalErr.Error()
		result = false
	}

	trace.Leaves = append(trace.Leaves, leaf)

	return result
}

// evaluateExpression runs an expr program with the data context as its
// environment. Compile and runtime errors fail closed like type mismatches.
func (e *Evaluator) evaluateExpression(cond *models.Condition, ectx models.ExecutionContext, trace *Trace) bool {
	leaf := LeafTrace{
		ConditionID: cond.ID,
		Expression:  cond.Expression,
	}

	program, err := expr.Compile(cond.Expression, expr.Env(ectx.Data), expr.AsBool(), expr.AllowUndefinedVariables())
	if err == nil {
		var output any

		output, err = expr.Run(program, ectx.Data)
		if err == nil {
			if value, ok := output.(bool); ok {
				leaf.Result = value
			} else {
				err = fmt.Errorf("expression returned %T, want bool", output)
			}
		}
	}

	if err != nil {
		leaf.Result = false
		leaf.Error = (&EvaluationError{ConditionID: cond.ID, Field: cond.Field, Reason: err.Error()}).Error()
	}

	trace.Leaves = append(trace.Leaves, leaf)

	return leaf.Result
}

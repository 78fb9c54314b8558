// Package models defines the core domain models for conditional workflow routing and escalation.
package models

import (
	"errors"
	"fmt"
	"regexp"
	"time"

	"github.com/expr-lang/expr"
)

// Operator represents a comparison operator applied by a leaf condition.
type Operator string

const (
	OperatorEquals         Operator = "equals"
	OperatorNotEquals      Operator = "not-equals"
	OperatorGreaterThan    Operator = "greater-than"
	OperatorGreaterOrEqual Operator = "greater-or-equal"
	OperatorLessThan       Operator = "less-than"
	OperatorLessOrEqual    Operator = "less-or-equal"
	OperatorContains       Operator = "contains"
	OperatorInSet          Operator = "in-set"
	OperatorIsEmpty        Operator = "is-empty"
	OperatorRegexMatch     Operator = "regex-match"
	OperatorDateBefore     Operator = "date-before"
	OperatorDateAfter      Operator = "date-after"
)

// ValueKind identifies the type of a comparison value.
type ValueKind string

const (
	ValueKindNone   ValueKind = "none" // Operators without a right-hand side (is-empty)
	ValueKindString ValueKind = "string"
	ValueKindNumber ValueKind = "number"
	ValueKindBool   ValueKind = "bool"
	ValueKindDate   ValueKind = "date"
	ValueKindSet    ValueKind = "set"
)

// ConditionLanguage selects how a leaf condition is evaluated.
type ConditionLanguage string

const (
	// LanguageStructured compares a context field against a typed value.
	LanguageStructured ConditionLanguage = "structured"
	// LanguageExpression evaluates a free-form expr program against the context.
	LanguageExpression ConditionLanguage = "expression"
)

// ConditionValue is a typed comparison value. Exactly the field matching Kind
// is meaningful; the zero value with Kind "none" is used for is-empty.
type ConditionValue struct {
	Kind      ValueKind `json:"kind"`
	StringVal string    `json:"string_val,omitempty"`
	NumberVal float64   `json:"number_val,omitempty"`
	BoolVal   bool      `json:"bool_val,omitempty"`
	DateVal   time.Time `json:"date_val,omitempty"`
	SetVal    []string  `json:"set_val,omitempty"`
}

// Condition is a leaf of a condition group tree. Structured conditions resolve
// Field (a dot-addressable path) against the step instance's data context and
// compare it with Value. Expression conditions evaluate Expression instead.
type Condition struct {
	ID            string            `json:"id"`
	GroupID       string            `json:"group_id"`
	Language      ConditionLanguage `json:"language"`
	Field         string            `json:"field,omitempty"`
	Operator      Operator          `json:"operator,omitempty"`
	Value         ConditionValue    `json:"value,omitempty"`
	CaseSensitive bool              `json:"case_sensitive"`
	Expression    string            `json:"expression,omitempty"`
	CreatedAt     time.Time         `json:"created_at"`
	UpdatedAt     time.Time         `json:"updated_at"`
	DeactivatedAt *time.Time        `json:"deactivated_at,omitempty"`
}

// operatorValueKinds maps each operator to the value kinds it accepts.
var operatorValueKinds = map[Operator][]ValueKind{
	OperatorEquals:         {ValueKindString, ValueKindNumber, ValueKindBool, ValueKindDate},
	OperatorNotEquals:      {ValueKindString, ValueKindNumber, ValueKindBool, ValueKindDate},
	OperatorGreaterThan:    {ValueKindNumber, ValueKindDate},
	OperatorGreaterOrEqual: {ValueKindNumber, ValueKindDate},
	OperatorLessThan:       {ValueKindNumber, ValueKindDate},
	OperatorLessOrEqual:    {ValueKindNumber, ValueKindDate},
	OperatorContains:       {ValueKindString, ValueKindSet},
	OperatorInSet:          {ValueKindSet},
	OperatorIsEmpty:        {ValueKindNone},
	OperatorRegexMatch:     {ValueKindString},
	OperatorDateBefore:     {ValueKindDate},
	OperatorDateAfter:      {ValueKindDate},
}

// Validate enforces operator/value-type compatibility at configuration write
// time so the evaluator never has to guess at malformed conditions.
func (c *Condition) Validate() error {
	switch c.Language {
	case LanguageExpression:
		if c.Expression == "" {
			return errors.New("expression condition requires a non-empty expression")
		}

		if _, err := expr.Compile(c.Expression, expr.AsBool(), expr.AllowUndefinedVariables()); err != nil {
			return fmt.Errorf("invalid condition expression: %w", err)
		}

		return nil
	case LanguageStructured, "":
	default:
		return fmt.Errorf("unsupported condition language: %s", c.Language)
	}

	if c.Field == "" {
		return errors.New("condition field path is required")
	}

	kinds, ok := operatorValueKinds[c.Operator]
	if !ok {
		return fmt.Errorf("unsupported operator: %s", c.Operator)
	}

	compatible := false

	for _, kind := range kinds {
		if c.Value.Kind == kind {
			compatible = true

			break
		}
	}

	if !compatible {
		return fmt.Errorf("operator %s is not compatible with value kind %s", c.Operator, c.Value.Kind)
	}

	if c.Operator == OperatorRegexMatch {
		if _, err := regexp.Compile(c.Value.StringVal); err != nil {
			return fmt.Errorf("invalid regex pattern: %w", err)
		}
	}

	if c.Operator == OperatorInSet && len(c.Value.SetVal) == 0 {
		return errors.New("in-set operator requires a non-empty set")
	}

	return nil
}

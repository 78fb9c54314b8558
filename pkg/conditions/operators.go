package conditions

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/docuflow/docuflow/pkg/models"
)

// EvaluationError marks a leaf that could not be evaluated against the
// context, typically a type mismatch. The leaf fails closed to false; the
// error is carried in the trace, never propagated as a failure of the group.
type EvaluationError struct {
	ConditionID string
	Field       string
	Reason      string
}

func (e *EvaluationError) Error() string {
	return fmt.Sprintf("condition %s on field %q: %s", e.ConditionID, e.Field, e.Reason)
}

// ResolveField walks a dot-addressable path through nested maps. A flat key
// containing dots wins over a nested path with the same spelling.
func ResolveField(data map[string]any, path string) (any, bool) {
	if data == nil {
		return nil, false
	}

	if value, ok := data[path]; ok {
		return value, true
	}

	parts := strings.Split(path, ".")
	var current any = data

	for _, part := range parts {
		node, ok := current.(map[string]any)
		if !ok {
			return nil, false
		}

		current, ok = node[part]
		if !ok {
			return nil, false
		}
	}

	return current, true
}

func evaluateLeaf(cond *models.Condition, data map[string]any) (bool, *EvaluationError) {
	actual, present := ResolveField(data, cond.Field)

	if cond.Operator == models.OperatorIsEmpty {
		return !present || isEmpty(actual), nil
	}

	// Missing field fails the condition without raising.
	if !present {
		return false, nil
	}

	switch cond.Operator {
	case models.OperatorEquals:
		result, err := compareEqual(cond, actual)
		return result, err
	case models.OperatorNotEquals:
		result, err := compareEqual(cond, actual)
		if err != nil {
			return false, err
		}

		return !result, nil
	case models.OperatorGreaterThan, models.OperatorGreaterOrEqual,
		models.OperatorLessThan, models.OperatorLessOrEqual:
		return compareOrdered(cond, actual)
	case models.OperatorContains:
		return compareContains(cond, actual)
	case models.OperatorInSet:
		return compareInSet(cond, actual)
	case models.OperatorRegexMatch:
		return compareRegex(cond, actual)
	case models.OperatorDateBefore, models.OperatorDateAfter:
		return compareDates(cond, actual)
	default:
		return false, &EvaluationError{ConditionID: cond.ID, Field: cond.Field, Reason: "unsupported operator " + string(cond.Operator)}
	}
}

func isEmpty(value any) bool {
	switch v := value.(type) {
	case nil:
		return true
	case string:
		return v == ""
	case []any:
		return len(v) == 0
	case []string:
		return len(v) == 0
	case map[string]any:
		return len(v) == 0
	default:
		return false
	}
}

func compareEqual(cond *models.Condition, actual any) (bool, *EvaluationError) {
	switch cond.Value.Kind {
	case models.ValueKindString:
		s, ok := asString(actual)
		if !ok {
			return false, typeMismatch(cond, actual, "string")
		}

		if cond.CaseSensitive {
			return s == cond.Value.StringVal, nil
		}

		return strings.EqualFold(s, cond.Value.StringVal), nil
	case models.ValueKindNumber:
		n, ok := asNumber(actual)
		if !ok {
			return false, typeMismatch(cond, actual, "number")
		}

		return n == cond.Value.NumberVal, nil
	case models.ValueKindBool:
		b, ok := asBool(actual)
		if !ok {
			return false, typeMismatch(cond, actual, "bool")
		}

		return b == cond.Value.BoolVal, nil
	case models.ValueKindDate:
		t, ok := asTime(actual)
		if !ok {
			return false, typeMismatch(cond, actual, "date")
		}

		return t.Equal(cond.Value.DateVal), nil
	default:
		return false, &EvaluationError{ConditionID: cond.ID, Field: cond.Field, Reason: "equals does not accept value kind " + string(cond.Value.Kind)}
	}
}

func compareOrdered(cond *models.Condition, actual any) (bool, *EvaluationError) {
	var diff float64

	switch cond.Value.Kind {
	case models.ValueKindNumber:
		n, ok := asNumber(actual)
		if !ok {
			return false, typeMismatch(cond, actual, "number")
		}

		diff = n - cond.Value.NumberVal
	case models.ValueKindDate:
		t, ok := asTime(actual)
		if !ok {
			return false, typeMismatch(cond, actual, "date")
		}

		diff = float64(t.Sub(cond.Value.DateVal))
	default:
		return false, &EvaluationError{ConditionID: cond.ID, Field: cond.Field, Reason: "ordering operator requires a number or date value"}
	}

	switch cond.Operator {
	case models.OperatorGreaterThan:
		return diff > 0, nil
	case models.OperatorGreaterOrEqual:
		return diff >= 0, nil
	case models.OperatorLessThan:
		return diff < 0, nil
	default:
		return diff <= 0, nil
	}
}

// compareContains matches a substring for string fields and element
// membership for collection fields. For set values the actual collection must
// contain every element of the set.
func compareContains(cond *models.Condition, actual any) (bool, *EvaluationError) {
	switch cond.Value.Kind {
	case models.ValueKindString:
		if items, ok := asStringSlice(actual); ok {
			return sliceHas(items, cond.Value.StringVal, cond.CaseSensitive), nil
		}

		s, ok := asString(actual)
		if !ok {
			return false, typeMismatch(cond, actual, "string")
		}

		if cond.CaseSensitive {
			return strings.Contains(s, cond.Value.StringVal), nil
		}

		return strings.Contains(strings.ToLower(s), strings.ToLower(cond.Value.StringVal)), nil
	case models.ValueKindSet:
		items, ok := asStringSlice(actual)
		if !ok {
			return false, typeMismatch(cond, actual, "collection")
		}

		for _, want := range cond.Value.SetVal {
			if !sliceHas(items, want, cond.CaseSensitive) {
				return false, nil
			}
		}

		return true, nil
	default:
		return false, &EvaluationError{ConditionID: cond.ID, Field: cond.Field, Reason: "contains requires a string or set value"}
	}
}

func compareInSet(cond *models.Condition, actual any) (bool, *EvaluationError) {
	s, ok := asString(actual)
	if !ok {
		if n, numeric := asNumber(actual); numeric {
			s = strconv.FormatFloat(n, 'f', -1, 64)
		} else {
			return false, typeMismatch(cond, actual, "scalar")
		}
	}

	return sliceHas(cond.Value.SetVal, s, cond.CaseSensitive), nil
}

func compareRegex(cond *models.Condition, actual any) (bool, *EvaluationError) {
	s, ok := asString(actual)
	if !ok {
		return false, typeMismatch(cond, actual, "string")
	}

	pattern := cond.Value.StringVal
	if !cond.CaseSensitive {
		pattern = "(?i)" + pattern
	}

	re, err := regexp.Compile(pattern)
	if err != nil {
		return false, &EvaluationError{ConditionID: cond.ID, Field: cond.Field, Reason: "invalid regex: " + err.Error()}
	}

	return re.MatchString(s), nil
}

func compareDates(cond *models.Condition, actual any) (bool, *EvaluationError) {
	t, ok := asTime(actual)
	if !ok {
		return false, typeMismatch(cond, actual, "date")
	}

	if cond.Operator == models.OperatorDateBefore {
		return t.Before(cond.Value.DateVal), nil
	}

	return t.After(cond.Value.DateVal), nil
}

func typeMismatch(cond *models.Condition, actual any, want string) *EvaluationError {
	return &EvaluationError{
		ConditionID: cond.ID,
		Field:       cond.Field,
		Reason:      fmt.Sprintf("cannot interpret %T as %s", actual, want),
	}
}

func asString(value any) (string, bool) {
	s, ok := value.(string)

	return s, ok
}

func asNumber(value any) (float64, bool) {
	switch v := value.(type) {
	case float64:
		return v, true
	case float32:
		return float64(v), true
	case int:
		return float64(v), true
	case int32:
		return float64(v), true
	case int64:
		return float64(v), true
	case string:
		n, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return 0, false
		}

		return n, true
	default:
		return 0, false
	}
}

func asBool(value any) (bool, bool) {
	switch v := value.(type) {
	case bool:
		return v, true
	case string:
		b, err := strconv.ParseBool(v)
		if err != nil {
			return false, false
		}

		return b, true
	default:
		return false, false
	}
}

func asTime(value any) (time.Time, bool) {
	switch v := value.(type) {
	case time.Time:
		return v, true
	case string:
		for _, layout := range []string{time.RFC3339, "2006-01-02"} {
			if t, err := time.Parse(layout, v); err == nil {
				return t, true
			}
		}

		return time.Time{}, false
	default:
		return time.Time{}, false
	}
}

func asStringSlice(value any) ([]string, bool) {
	switch v := value.(type) {
	case []string:
		return v, true
	case []any:
		items := make([]string, 0, len(v))

		for _, item := range v {
			s, ok := item.(string)
			if !ok {
				return nil, false
			}

			items = append(items, s)
		}

		return items, true
	default:
		return nil, false
	}
}

func sliceHas(items []string, want string, caseSensitive bool) bool {
	for _, item := range items {
		if caseSensitive {
			if item == want {
				return true
			}
		} else if strings.EqualFold(item, want) {
			return true
		}
	}

	return false
}

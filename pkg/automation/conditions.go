package automation

import (
	"reflect"
	"strings"

	"github.com/statusflowhq/statusflow/pkg/models"
)

// evalCondition evaluates a condition node against the triggering entity.
// The boolean only picks the branch; condition nodes themselves never fail.
func evalCondition(cond *models.ConditionSpec, entity *models.Entity) bool {
	value, present := entity.Field(cond.Field)

	switch cond.Operator {
	case models.OperatorEquals:
		return present && looseEqual(value, cond.Value)
	case models.OperatorNotEquals:
		return !present || !looseEqual(value, cond.Value)
	case models.OperatorContains:
		return present && contains(value, cond.Value)
	case models.OperatorExists:
		// Empty strings, zero and false all exist; only an absent or null
		// field does not.
		return present && value != nil
	default:
		return false
	}
}

// contains is a substring test for string fields and a membership test for
// array fields. Any other field type never contains anything.
func contains(value, needle any) bool {
	switch v := value.(type) {
	case string:
		s, ok := needle.(string)

		return ok && strings.Contains(v, s)
	case []any:
		for _, item := range v {
			if looseEqual(item, needle) {
				return true
			}
		}

		return false
	default:
		return false
	}
}

// looseEqual compares two JSON-shaped values. Numeric values compare by
// magnitude regardless of Go type, since decoded documents carry float64
// where in-process values may carry int.
func looseEqual(a, b any) bool {
	if af, ok := toFloat(a); ok {
		bf, ok := toFloat(b)

		return ok && af == bf
	}

	if as, ok := toString(a); ok {
		bs, ok := toString(b)

		return ok && as == bs
	}

	return reflect.DeepEqual(a, b)
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	default:
		return 0, false
	}
}

func toString(v any) (string, bool) {
	switch s := v.(type) {
	case string:
		return s, true
	case models.Status:
		return string(s), true
	case models.EntityType:
		return string(s), true
	default:
		return "", false
	}
}

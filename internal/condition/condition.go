// Package condition evaluates a single field/operator/value comparison
// against an applicant's attributes.
package condition

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/opensource-finance/kestrel/internal/domain"
)

// Attributes resolves schema fields to values. known is false for a field
// outside the schema; a known field with no value returns nil.
type Attributes interface {
	Lookup(field string) (value any, known bool)
}

// Evaluate reports whether `field op value` holds for attrs.
//
// exists and not_exists test presence and ignore value. Ordering operators
// require both sides to be numeric. == and != compare numerically when both
// sides parse as numbers and as strings otherwise; an absent value is never
// equal to anything.
func Evaluate(attrs Attributes, field string, op domain.Operator, value any) (bool, error) {
	if !op.Valid() {
		return false, domain.InvalidOperatorError(string(op))
	}

	stored, known := attrs.Lookup(field)
	if !known {
		return false, domain.UnknownFieldError(field)
	}

	switch op {
	case domain.OpExists:
		return stored != nil, nil
	case domain.OpNotExists:
		return stored == nil, nil
	case domain.OpEqual, domain.OpNotEqual:
		eq := equal(stored, value)
		if op == domain.OpEqual {
			return eq, nil
		}
		return !eq, nil
	}

	lhs, ok := toNumber(stored)
	if !ok {
		return false, domain.TypeMismatchError(field, stored)
	}
	rhs, ok := toNumber(value)
	if !ok {
		return false, domain.TypeMismatchError(field, value)
	}

	switch op {
	case domain.OpGreater:
		return lhs > rhs, nil
	case domain.OpLess:
		return lhs < rhs, nil
	case domain.OpGreaterEqual:
		return lhs >= rhs, nil
	default: // OpLessEqual
		return lhs <= rhs, nil
	}
}

func equal(stored, value any) bool {
	if stored == nil || value == nil {
		return false
	}
	l, lok := toNumber(stored)
	r, rok := toNumber(value)
	if lok && rok {
		return l == r
	}
	return toString(stored) == toString(value)
}

// toNumber converts JSON-decoded and Go numeric values, and numeric strings.
func toNumber(v any) (float64, bool) {
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
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(n), 64)
		if err != nil {
			return 0, false
		}
		return f, true
	}
	return 0, false
}

func toString(v any) string {
	if s, ok := v.(string); ok {
		return strings.TrimSpace(s)
	}
	return fmt.Sprint(v)
}

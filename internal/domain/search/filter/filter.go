// Package filter implements backend-agnostic metadata filters: a map of
// field name to either a literal (exact match) or an operator map such as
// {"year": {"$gt": 2020}}. Each retriever variant translates conditions to
// its backend syntax or rejects the request.
package filter

import (
	"encoding/json"
	"fmt"
	"sort"

	"github.com/kailas-cloud/retrievex/internal/domain"
)

// MaxConditions is the maximum number of conditions per expression.
const MaxConditions = 32

// Op is a comparison operator.
type Op string

// Supported operators, mirroring the mongo-style request syntax.
const (
	OpEq  Op = "$eq"
	OpNe  Op = "$ne"
	OpGt  Op = "$gt"
	OpGte Op = "$gte"
	OpLt  Op = "$lt"
	OpLte Op = "$lte"
	OpIn  Op = "$in"
	OpNin Op = "$nin"
)

func (o Op) isValid() bool {
	switch o {
	case OpEq, OpNe, OpGt, OpGte, OpLt, OpLte, OpIn, OpNin:
		return true
	}
	return false
}

// Numeric reports whether the operator requires a numeric operand.
func (o Op) Numeric() bool {
	return o == OpGt || o == OpGte || o == OpLt || o == OpLte
}

// Condition is a single filter clause on one metadata field.
type Condition struct {
	key   string
	op    Op
	value any
}

// NewCondition validates and creates a condition.
func NewCondition(key string, op Op, value any) (Condition, error) {
	if key == "" {
		return Condition{}, fmt.Errorf("%w: filter key is required", domain.ErrValidation)
	}
	if !op.isValid() {
		return Condition{}, fmt.Errorf("%w: unknown filter operator %q for key %q", domain.ErrValidation, op, key)
	}
	if op.Numeric() {
		if _, ok := toFloat(value); !ok {
			return Condition{}, fmt.Errorf("%w: operator %s on key %q requires a numeric operand", domain.ErrValidation, op, key)
		}
	}
	if op == OpIn || op == OpNin {
		if _, ok := value.([]any); !ok {
			return Condition{}, fmt.Errorf("%w: operator %s on key %q requires a list operand", domain.ErrValidation, op, key)
		}
	}
	return Condition{key: key, op: op, value: value}, nil
}

// Key returns the metadata field name.
func (c Condition) Key() string { return c.key }

// Op returns the comparison operator.
func (c Condition) Op() Op { return c.op }

// Value returns the operand.
func (c Condition) Value() any { return c.value }

// Matches evaluates the condition against a metadata value.
// A missing field only satisfies $ne and $nin.
func (c Condition) Matches(value any) bool {
	switch c.op {
	case OpEq:
		return equal(value, c.value)
	case OpNe:
		return !equal(value, c.value)
	case OpGt, OpGte, OpLt, OpLte:
		lhs, ok := toFloat(value)
		if !ok {
			return false
		}
		rhs, _ := toFloat(c.value)
		switch c.op {
		case OpGt:
			return lhs > rhs
		case OpGte:
			return lhs >= rhs
		case OpLt:
			return lhs < rhs
		default:
			return lhs <= rhs
		}
	case OpIn:
		for _, candidate := range c.value.([]any) {
			if equal(value, candidate) {
				return true
			}
		}
		return false
	case OpNin:
		for _, candidate := range c.value.([]any) {
			if equal(value, candidate) {
				return false
			}
		}
		return true
	}
	return false
}

// Expression is a conjunction of conditions.
type Expression struct {
	conditions []Condition
}

// NewExpression validates and creates an Expression.
func NewExpression(conditions []Condition) (Expression, error) {
	if len(conditions) > MaxConditions {
		return Expression{}, fmt.Errorf("%w: too many filter conditions (max %d)", domain.ErrValidation, MaxConditions)
	}
	return Expression{conditions: conditions}, nil
}

// ParseMap builds an Expression from the wire-level filter map.
// A literal value is shorthand for {"$eq": value}. Field order in the input
// map does not affect the expression: conditions are sorted by key.
func ParseMap(raw map[string]any) (Expression, error) {
	conditions := make([]Condition, 0, len(raw))
	for key, spec := range raw {
		opMap, ok := spec.(map[string]any)
		if !ok {
			c, err := NewCondition(key, OpEq, spec)
			if err != nil {
				return Expression{}, err
			}
			conditions = append(conditions, c)
			continue
		}
		for op, operand := range opMap {
			c, err := NewCondition(key, Op(op), operand)
			if err != nil {
				return Expression{}, err
			}
			conditions = append(conditions, c)
		}
	}
	sort.Slice(conditions, func(i, j int) bool {
		if conditions[i].key != conditions[j].key {
			return conditions[i].key < conditions[j].key
		}
		return conditions[i].op < conditions[j].op
	})
	return NewExpression(conditions)
}

// Conditions returns the conjunction clauses.
func (e Expression) Conditions() []Condition { return e.conditions }

// IsEmpty reports whether the expression has no conditions.
func (e Expression) IsEmpty() bool { return len(e.conditions) == 0 }

// Matches evaluates the full conjunction against hit metadata.
func (e Expression) Matches(metadata map[string]any) bool {
	for _, c := range e.conditions {
		if !c.Matches(metadata[c.key]) {
			return false
		}
	}
	return true
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	}
	return 0, false
}

func equal(a, b any) bool {
	af, aok := toFloat(a)
	bf, bok := toFloat(b)
	if aok && bok {
		return af == bf
	}
	return a == b
}

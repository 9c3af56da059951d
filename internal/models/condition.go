package models

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// FieldMap is the predicate-evaluation surface of a request: attribute name to
// scalar value. Values are whatever the intake form supplied (string, number,
// bool) decoded from JSON.
type FieldMap map[string]any

// ConditionKind tags a node in a rule's predicate tree.
type ConditionKind string

const (
	// ConditionLeaf compares one field against a value.
	ConditionLeaf ConditionKind = "field"
	// ConditionAll is a conjunction; it short-circuits at the first false child.
	ConditionAll ConditionKind = "all"
	// ConditionAny is a disjunction; it short-circuits at the first true child.
	ConditionAny ConditionKind = "any"
)

// ConditionOperator is the comparison a leaf node performs.
type ConditionOperator string

const (
	OpEquals    ConditionOperator = "eq"
	OpNotEquals ConditionOperator = "neq"
	OpContains  ConditionOperator = "contains"
	OpIn        ConditionOperator = "in"
	OpGT        ConditionOperator = "gt"
	OpGTE       ConditionOperator = "gte"
	OpLT        ConditionOperator = "lt"
	OpLTE       ConditionOperator = "lte"
)

// Condition is a closed tagged-variant predicate tree. A node is either a leaf
// ({field, operator, value}) or a composite (all/any over children). Keeping
// the shape closed means Evaluate is exhaustive and cannot meet an
// unrepresentable node at runtime.
type Condition struct {
	Kind     ConditionKind     `json:"kind"`
	Field    string            `json:"field,omitempty"`
	Operator ConditionOperator `json:"operator,omitempty"`
	Value    any               `json:"value,omitempty"`
	Children []Condition       `json:"children,omitempty"`
}

// Validate checks the tree is well-formed: leaves carry a field and a known
// operator, composites carry at least one child. Used at rule-admin time so
// malformed trees are rejected before they are ever routed against.
func (c *Condition) Validate() error {
	switch c.Kind {
	case ConditionLeaf:
		if c.Field == "" {
			return NewMalformedConditionError("leaf node is missing a field name")
		}
		switch c.Operator {
		case OpEquals, OpNotEquals, OpContains, OpIn, OpGT, OpGTE, OpLT, OpLTE:
		default:
			return NewMalformedConditionError(fmt.Sprintf("unknown operator %q", c.Operator))
		}
		if c.Operator == OpIn {
			if _, ok := asSlice(c.Value); !ok {
				return NewMalformedConditionError("operator \"in\" requires a list value")
			}
		}
		return nil
	case ConditionAll, ConditionAny:
		if len(c.Children) == 0 {
			return NewMalformedConditionError(fmt.Sprintf("%s node has no children", c.Kind))
		}
		for i := range c.Children {
			if err := c.Children[i].Validate(); err != nil {
				return err
			}
		}
		return nil
	default:
		return NewMalformedConditionError(fmt.Sprintf("unknown node kind %q", c.Kind))
	}
}

// Evaluate matches the tree against a request's fields. A missing field makes
// the leaf false, never an error; only structurally malformed trees return an
// error. Pure: no side effects, safe to re-run during rule edits.
func (c *Condition) Evaluate(fields FieldMap) (bool, error) {
	switch c.Kind {
	case ConditionLeaf:
		return c.evaluateLeaf(fields)
	case ConditionAll:
		if len(c.Children) == 0 {
			return false, NewMalformedConditionError("all node has no children")
		}
		for i := range c.Children {
			ok, err := c.Children[i].Evaluate(fields)
			if err != nil {
				return false, err
			}
			if !ok {
				return false, nil
			}
		}
		return true, nil
	case ConditionAny:
		if len(c.Children) == 0 {
			return false, NewMalformedConditionError("any node has no children")
		}
		for i := range c.Children {
			ok, err := c.Children[i].Evaluate(fields)
			if err != nil {
				return false, err
			}
			if ok {
				return true, nil
			}
		}
		return false, nil
	default:
		return false, NewMalformedConditionError(fmt.Sprintf("unknown node kind %q", c.Kind))
	}
}

func (c *Condition) evaluateLeaf(fields FieldMap) (bool, error) {
	if c.Field == "" {
		return false, NewMalformedConditionError("leaf node is missing a field name")
	}

	actual, present := fields[c.Field]
	if !present {
		return false, nil
	}

	switch c.Operator {
	case OpEquals:
		return scalarEquals(actual, c.Value), nil
	case OpNotEquals:
		return !scalarEquals(actual, c.Value), nil
	case OpContains:
		return strings.Contains(asString(actual), asString(c.Value)), nil
	case OpIn:
		set, ok := asSlice(c.Value)
		if !ok {
			return false, NewMalformedConditionError("operator \"in\" requires a list value")
		}
		for _, candidate := range set {
			if scalarEquals(actual, candidate) {
				return true, nil
			}
		}
		return false, nil
	case OpGT, OpGTE, OpLT, OpLTE:
		left, leftOK := asNumber(actual)
		right, rightOK := asNumber(c.Value)
		if !leftOK || !rightOK {
			// Non-numeric operand on a numeric comparison: the field simply
			// does not match, mirroring the missing-field behavior.
			return false, nil
		}
		switch c.Operator {
		case OpGT:
			return left > right, nil
		case OpGTE:
			return left >= right, nil
		case OpLT:
			return left < right, nil
		default:
			return left <= right, nil
		}
	default:
		return false, NewMalformedConditionError(fmt.Sprintf("unknown operator %q", c.Operator))
	}
}

// scalarEquals compares two scalars, treating numerically equal values as
// equal regardless of JSON decoding (json decodes numbers as float64, intake
// forms may send "5" as a string).
func scalarEquals(a, b any) bool {
	if na, okA := asNumber(a); okA {
		if nb, okB := asNumber(b); okB {
			return na == nb
		}
	}
	return asString(a) == asString(b)
}

func asString(v any) string {
	switch t := v.(type) {
	case string:
		return t
	case fmt.Stringer:
		return t.String()
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case json.Number:
		return t.String()
	case bool:
		return strconv.FormatBool(t)
	case int:
		return strconv.Itoa(t)
	case int64:
		return strconv.FormatInt(t, 10)
	case nil:
		return ""
	default:
		return fmt.Sprintf("%v", t)
	}
}

func asNumber(v any) (float64, bool) {
	switch t := v.(type) {
	case float64:
		return t, true
	case float32:
		return float64(t), true
	case int:
		return float64(t), true
	case int64:
		return float64(t), true
	case json.Number:
		f, err := t.Float64()
		return f, err == nil
	case string:
		f, err := strconv.ParseFloat(t, 64)
		return f, err == nil
	default:
		return 0, false
	}
}

func asSlice(v any) ([]any, bool) {
	switch t := v.(type) {
	case []any:
		return t, true
	case []string:
		out := make([]any, len(t))
		for i, s := range t {
			out[i] = s
		}
		return out, true
	default:
		return nil, false
	}
}

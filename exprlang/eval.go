package exprlang

import (
	"errors"
	"fmt"
	"math"
)

// ErrNilAttribute is returned when an expression reads an attribute that
// has never been observed. Callers (EntityStateCondition, per spec.md §9)
// treat this as "not satisfied this tick" rather than a real error.
var ErrNilAttribute = errors.New("exprlang: attribute not yet initialized")

// EntityView is the minimal read surface an expression needs from an
// entity.Entity, kept narrow to avoid exprlang depending on the entity
// package.
type EntityView interface {
	GetAttr(name string) any
	GetBuffer(name string, m int) []float64
}

// Eval evaluates expr against the given named entities and coerces the
// result to bool (non-zero numbers are true).
func Eval(expr Node, entities map[string]EntityView) (bool, error) {
	v, err := evalNode(expr, entities)
	if err != nil {
		return false, err
	}
	switch n := v.(type) {
	case bool:
		return n, nil
	case float64:
		return n != 0, nil
	default:
		return false, fmt.Errorf("exprlang: expression did not evaluate to a boolean or number")
	}
}

func evalNode(n Node, entities map[string]EntityView) (any, error) {
	switch node := n.(type) {
	case numberNode:
		return node.value, nil

	case attrNode:
		ent, ok := entities[node.entity]
		if !ok {
			return nil, fmt.Errorf("exprlang: unknown entity %q", node.entity)
		}
		v := ent.GetAttr(node.attr)
		if v == nil {
			return nil, ErrNilAttribute
		}
		return toNumberOrBool(v)

	case bufferNode:
		ent, ok := entities[node.entity]
		if !ok {
			return nil, fmt.Errorf("exprlang: unknown entity %q", node.entity)
		}
		return ent.GetBuffer(node.attr, node.n), nil

	case callNode:
		return evalCall(node, entities)

	case unaryNode:
		v, err := evalNode(node.operand, entities)
		if err != nil {
			return nil, err
		}
		switch node.op {
		case "-":
			f, ok := v.(float64)
			if !ok {
				return nil, fmt.Errorf("exprlang: unary - requires a number")
			}
			return -f, nil
		case "!":
			b, ok := v.(bool)
			if !ok {
				f, isNum := v.(float64)
				if !isNum {
					return nil, fmt.Errorf("exprlang: unary ! requires a boolean or number")
				}
				b = f != 0
			}
			return !b, nil
		}
		return nil, fmt.Errorf("exprlang: unknown unary operator %q", node.op)

	case binaryNode:
		return evalBinary(node, entities)

	default:
		return nil, fmt.Errorf("exprlang: unknown node type %T", n)
	}
}

func evalBinary(node binaryNode, entities map[string]EntityView) (any, error) {
	// Short-circuit boolean operators.
	if node.op == "&&" || node.op == "||" {
		lv, err := evalNode(node.left, entities)
		if err != nil {
			return nil, err
		}
		lb, err := asBool(lv)
		if err != nil {
			return nil, err
		}
		if node.op == "&&" && !lb {
			return false, nil
		}
		if node.op == "||" && lb {
			return true, nil
		}
		rv, err := evalNode(node.right, entities)
		if err != nil {
			return nil, err
		}
		return asBool(rv)
	}

	lv, err := evalNode(node.left, entities)
	if err != nil {
		return nil, err
	}
	rv, err := evalNode(node.right, entities)
	if err != nil {
		return nil, err
	}

	switch node.op {
	case "+", "-", "*", "/", "%":
		l, err := asNumber(lv)
		if err != nil {
			return nil, err
		}
		r, err := asNumber(rv)
		if err != nil {
			return nil, err
		}
		switch node.op {
		case "+":
			return l + r, nil
		case "-":
			return l - r, nil
		case "*":
			return l * r, nil
		case "/":
			if r == 0 {
				return nil, fmt.Errorf("exprlang: division by zero")
			}
			return l / r, nil
		case "%":
			return math.Mod(l, r), nil
		}
	case "<", "<=", ">", ">=", "==", "!=":
		l, err := asNumber(lv)
		if err != nil {
			return nil, err
		}
		r, err := asNumber(rv)
		if err != nil {
			return nil, err
		}
		switch node.op {
		case "<":
			return l < r, nil
		case "<=":
			return l <= r, nil
		case ">":
			return l > r, nil
		case ">=":
			return l >= r, nil
		case "==":
			return l == r, nil
		case "!=":
			return l != r, nil
		}
	}
	return nil, fmt.Errorf("exprlang: unknown binary operator %q", node.op)
}

func evalCall(node callNode, entities map[string]EntityView) (any, error) {
	if len(node.args) != 1 {
		return nil, fmt.Errorf("exprlang: %s() takes exactly 1 argument", node.fn)
	}
	argVal, err := evalNode(node.args[0], entities)
	if err != nil {
		return nil, err
	}

	// abs (fabs) works over both a scalar, the common case for something
	// like abs(front.range - 5), and a buffer, where it reduces to the
	// abs of the most recent sample.
	if node.fn == "abs" {
		if f, ok := argVal.(float64); ok {
			return math.Abs(f), nil
		}
		series, ok := argVal.([]float64)
		if !ok {
			return nil, fmt.Errorf("exprlang: abs() requires a number or buffer argument")
		}
		if len(series) == 0 {
			return 0.0, nil
		}
		return math.Abs(series[len(series)-1]), nil
	}

	series, ok := argVal.([]float64)
	if !ok {
		return nil, fmt.Errorf("exprlang: %s() requires a buffer argument", node.fn)
	}
	switch node.fn {
	case "mean":
		return mean(series), nil
	case "std":
		return math.Sqrt(variance(series)), nil
	case "var":
		return variance(series), nil
	case "min":
		return reduceMin(series), nil
	case "max":
		return reduceMax(series), nil
	}
	return nil, fmt.Errorf("exprlang: unknown function %q", node.fn)
}

func mean(xs []float64) float64 {
	if len(xs) == 0 {
		return 0
	}
	sum := 0.0
	for _, x := range xs {
		sum += x
	}
	return sum / float64(len(xs))
}

func variance(xs []float64) float64 {
	if len(xs) == 0 {
		return 0
	}
	m := mean(xs)
	sum := 0.0
	for _, x := range xs {
		d := x - m
		sum += d * d
	}
	return sum / float64(len(xs))
}

func reduceMin(xs []float64) float64 {
	if len(xs) == 0 {
		return 0
	}
	m := xs[0]
	for _, x := range xs[1:] {
		if x < m {
			m = x
		}
	}
	return m
}

func reduceMax(xs []float64) float64 {
	if len(xs) == 0 {
		return 0
	}
	m := xs[0]
	for _, x := range xs[1:] {
		if x > m {
			m = x
		}
	}
	return m
}

func asNumber(v any) (float64, error) {
	if f, ok := v.(float64); ok {
		return f, nil
	}
	return 0, fmt.Errorf("exprlang: expected a number, got %T", v)
}

func asBool(v any) (bool, error) {
	switch n := v.(type) {
	case bool:
		return n, nil
	case float64:
		return n != 0, nil
	}
	return false, fmt.Errorf("exprlang: expected a boolean or number, got %T", v)
}

func toNumberOrBool(v any) (any, error) {
	switch n := v.(type) {
	case float64:
		return n, nil
	case float32:
		return float64(n), nil
	case int:
		return float64(n), nil
	case int64:
		return float64(n), nil
	case bool:
		return n, nil
	}
	return nil, fmt.Errorf("exprlang: unsupported attribute value type %T", v)
}

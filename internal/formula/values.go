// internal/formula/values.go
package formula

import (
	"encoding/json"
	"errors"
	"math"
	"reflect"
	"strconv"
	"strings"
)

var (
	errDivByZero = errors.New("dzielenie przez zero")
	errOperator  = errors.New("nieznany operator")
)

func (n *literal) eval(Scope) (any, error) { return n.v, nil }

func (n *ident) eval(s Scope) (any, error) {
	if s == nil {
		return nil, nil
	}
	v, _ := s.Lookup(n.name)
	return v, nil
}

func (n *unary) eval(s Scope) (any, error) {
	x, err := n.x.eval(s)
	if err != nil {
		return nil, err
	}
	switch n.op {
	case "-":
		return -toNumber(x), nil
	case "+":
		return toNumber(x), nil
	case "!":
		return !truthy(x), nil
	}
	return nil, errOperator
}

func (n *logical) eval(s Scope) (any, error) {
	l, err := n.l.eval(s)
	if err != nil {
		return nil, err
	}
	// jak w JS: zwracamy operand, nie bool
	if n.op == "&&" {
		if !truthy(l) {
			return l, nil
		}
	} else if truthy(l) {
		return l, nil
	}
	return n.r.eval(s)
}

func (n *conditional) eval(s Scope) (any, error) {
	c, err := n.cond.eval(s)
	if err != nil {
		return nil, err
	}
	if truthy(c) {
		return n.then.eval(s)
	}
	return n.els.eval(s)
}

func (n *call) eval(s Scope) (any, error) {
	args := make([]any, len(n.args))
	for i, a := range n.args {
		v, err := a.eval(s)
		if err != nil {
			return nil, err
		}
		args[i] = v
	}
	return n.fn(args)
}

func (n *binary) eval(s Scope) (any, error) {
	l, err := n.l.eval(s)
	if err != nil {
		return nil, err
	}
	r, err := n.r.eval(s)
	if err != nil {
		return nil, err
	}

	switch n.op {
	case "+":
		if isString(l) || isString(r) {
			return toString(l) + toString(r), nil
		}
		return toNumber(l) + toNumber(r), nil
	case "-":
		return toNumber(l) - toNumber(r), nil
	case "*":
		return toNumber(l) * toNumber(r), nil
	case "/":
		d := toNumber(r)
		if d == 0 {
			return nil, errDivByZero
		}
		return toNumber(l) / d, nil
	case "%":
		d := toNumber(r)
		if d == 0 {
			return nil, errDivByZero
		}
		return math.Mod(toNumber(l), d), nil
	case "==":
		return looseEqual(l, r), nil
	case "!=":
		return !looseEqual(l, r), nil
	case "===":
		return strictEqual(l, r), nil
	case "!==":
		return !strictEqual(l, r), nil
	case "<", "<=", ">", ">=":
		return compare(n.op, l, r), nil
	}
	return nil, errOperator
}

// numeric normalizuje typy liczbowe (JSON daje float64, sterowniki SQL int64 itp.)
func numeric(v any) (float64, bool) {
	switch x := v.(type) {
	case float64:
		return x, true
	case float32:
		return float64(x), true
	case int:
		return float64(x), true
	case int8:
		return float64(x), true
	case int16:
		return float64(x), true
	case int32:
		return float64(x), true
	case int64:
		return float64(x), true
	case uint:
		return float64(x), true
	case uint8:
		return float64(x), true
	case uint16:
		return float64(x), true
	case uint32:
		return float64(x), true
	case uint64:
		return float64(x), true
	case json.Number:
		f, err := x.Float64()
		return f, err == nil
	}
	return 0, false
}

func toNumber(v any) float64 {
	if f, ok := numeric(v); ok {
		return f
	}
	switch x := v.(type) {
	case nil:
		return math.NaN()
	case bool:
		if x {
			return 1
		}
		return 0
	case string:
		s := strings.TrimSpace(x)
		if s == "" {
			return 0
		}
		f, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return math.NaN()
		}
		return f
	}
	return math.NaN()
}

func toString(v any) string {
	if f, ok := numeric(v); ok {
		return formatNumber(f)
	}
	switch x := v.(type) {
	case nil:
		return ""
	case string:
		return x
	case bool:
		return strconv.FormatBool(x)
	}
	b, err := json.Marshal(v)
	if err != nil {
		return ""
	}
	return string(b)
}

func formatNumber(f float64) string {
	switch {
	case math.IsNaN(f):
		return "NaN"
	case math.IsInf(f, 1):
		return "Infinity"
	case math.IsInf(f, -1):
		return "-Infinity"
	}
	return strconv.FormatFloat(f, 'f', -1, 64)
}

func isString(v any) bool {
	_, ok := v.(string)
	return ok
}

func truthy(v any) bool {
	if f, ok := numeric(v); ok {
		return f != 0 && !math.IsNaN(f)
	}
	switch x := v.(type) {
	case nil:
		return false
	case bool:
		return x
	case string:
		return x != ""
	}
	return true
}

func looseEqual(a, b any) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	if sa, ok := a.(string); ok {
		if sb, ok := b.(string); ok {
			return sa == sb
		}
	}
	if ba, ok := a.(bool); ok {
		if bb, ok := b.(bool); ok {
			return ba == bb
		}
	}
	if isScalar(a) && isScalar(b) {
		return toNumber(a) == toNumber(b)
	}
	return reflect.DeepEqual(a, b)
}

func strictEqual(a, b any) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	fa, na := numeric(a)
	fb, nb := numeric(b)
	if na || nb {
		return na && nb && fa == fb
	}
	if reflect.TypeOf(a) != reflect.TypeOf(b) {
		return false
	}
	return reflect.DeepEqual(a, b)
}

func compare(op string, a, b any) bool {
	if sa, ok := a.(string); ok {
		if sb, ok := b.(string); ok {
			c := strings.Compare(sa, sb)
			switch op {
			case "<":
				return c < 0
			case "<=":
				return c <= 0
			case ">":
				return c > 0
			default:
				return c >= 0
			}
		}
	}
	x, y := toNumber(a), toNumber(b)
	switch op {
	case "<":
		return x < y
	case "<=":
		return x <= y
	case ">":
		return x > y
	default:
		return x >= y
	}
}

func isScalar(v any) bool {
	if _, ok := numeric(v); ok {
		return true
	}
	switch v.(type) {
	case string, bool:
		return true
	}
	return false
}

// Equal – ścisłe porównanie wartości wiersza (typ + wartość, kompozyty głęboko).
// Liczby porównywane po wartości niezależnie od typu Go.
func Equal(a, b any) bool { return strictEqual(a, b) }

// HasValue – false dla nil, NaN i ±Inf (takich wartości nie zapisujemy)
func HasValue(v any) bool {
	if v == nil {
		return false
	}
	if f, ok := numeric(v); ok {
		return !math.IsNaN(f) && !math.IsInf(f, 0)
	}
	return true
}

// internal/formula/builtins.go
package formula

import (
	"errors"
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"
)

type builtin func(args []any) (any, error)

var (
	errArgs        = errors.New("zła liczba argumentów")
	errUnknownFunc = errors.New("nieznana funkcja")
)

var (
	reFloatPrefix = regexp.MustCompile(`^[+-]?(\d+\.?\d*|\.\d+)([eE][+-]?\d+)?`)
	reIntPrefix   = regexp.MustCompile(`^[+-]?\d+`)
)

// Zestaw funkcji dostępnych w formułach. Nazwy z "Math." dla zgodności
// z formułami pisanymi wcześniej w arkuszu.
var builtins = map[string]builtin{
	"Math.max":   fold(math.Max),
	"Math.min":   fold(math.Min),
	"Math.round": unaryMath(jsRound),
	"Math.floor": unaryMath(math.Floor),
	"Math.ceil":  unaryMath(math.Ceil),
	"Math.abs":   unaryMath(math.Abs),
	"max":        fold(math.Max),
	"min":        fold(math.Min),
	"round":      unaryMath(jsRound),
	"floor":      unaryMath(math.Floor),
	"ceil":       unaryMath(math.Ceil),
	"abs":        unaryMath(math.Abs),
	"Number": func(args []any) (any, error) {
		if len(args) == 0 {
			return 0.0, nil
		}
		return toNumber(args[0]), nil
	},
	"String": func(args []any) (any, error) {
		if len(args) == 0 {
			return "", nil
		}
		return toString(args[0]), nil
	},
	"parseFloat": func(args []any) (any, error) {
		if len(args) != 1 {
			return nil, errArgs
		}
		return parsePrefix(args[0], reFloatPrefix), nil
	},
	"parseInt": func(args []any) (any, error) {
		if len(args) != 1 {
			return nil, errArgs
		}
		return parsePrefix(args[0], reIntPrefix), nil
	},
}

func unknownFunc(name string) builtin {
	return func([]any) (any, error) {
		return nil, fmt.Errorf("%w: %s", errUnknownFunc, name)
	}
}

func fold(f func(a, b float64) float64) builtin {
	return func(args []any) (any, error) {
		if len(args) == 0 {
			return nil, errArgs
		}
		acc := toNumber(args[0])
		for _, a := range args[1:] {
			acc = f(acc, toNumber(a))
		}
		return acc, nil
	}
}

func unaryMath(f func(float64) float64) builtin {
	return func(args []any) (any, error) {
		if len(args) != 1 {
			return nil, errArgs
		}
		return f(toNumber(args[0])), nil
	}
}

// Math.round z JS zaokrągla .5 w górę (także dla ujemnych)
func jsRound(x float64) float64 {
	return math.Floor(x + 0.5)
}

func parsePrefix(v any, re *regexp.Regexp) float64 {
	if f, ok := numeric(v); ok {
		if re == reIntPrefix {
			return math.Trunc(f)
		}
		return f
	}
	s := strings.TrimSpace(toString(v))
	m := re.FindString(s)
	if m == "" {
		return math.NaN()
	}
	f, err := strconv.ParseFloat(m, 64)
	if err != nil {
		return math.NaN()
	}
	return f
}

// internal/formula/lexer.go
package formula

import (
	"fmt"
	"strconv"
	"strings"
	"unicode"
)

type tokenKind int

const (
	tokEOF tokenKind = iota
	tokNumber
	tokString
	tokIdent
	tokOp
	tokLParen
	tokRParen
	tokComma
	tokQuestion
	tokColon
)

type token struct {
	kind tokenKind
	text string
	num  float64
	pos  int
}

// operatory od najdłuższego, żeby "===" nie zostało pocięte na "==" + "="
var operators = []string{
	"===", "!==",
	"==", "!=", "<=", ">=", "&&", "||",
	"+", "-", "*", "/", "%", "<", ">", "!",
}

func tokenize(src string) ([]token, error) {
	rs := []rune(src)
	out := make([]token, 0, len(rs)/2+1)

	for i := 0; i < len(rs); {
		c := rs[i]
		switch {
		case unicode.IsSpace(c):
			i++

		case isDigit(c) || (c == '.' && i+1 < len(rs) && isDigit(rs[i+1])):
			start := i
			for i < len(rs) && (isDigit(rs[i]) || rs[i] == '.') {
				i++
			}
			// wykładnik: 1e3, 2.5E-2
			if i < len(rs) && (rs[i] == 'e' || rs[i] == 'E') {
				j := i + 1
				if j < len(rs) && (rs[j] == '+' || rs[j] == '-') {
					j++
				}
				if j < len(rs) && isDigit(rs[j]) {
					i = j
					for i < len(rs) && isDigit(rs[i]) {
						i++
					}
				}
			}
			text := string(rs[start:i])
			v, err := strconv.ParseFloat(text, 64)
			if err != nil {
				return nil, fmt.Errorf("pozycja %d: niepoprawna liczba %q", start, text)
			}
			out = append(out, token{kind: tokNumber, text: text, num: v, pos: start})

		case c == '\'' || c == '"':
			start := i
			quote := c
			i++
			var sb strings.Builder
			closed := false
			for i < len(rs) {
				ch := rs[i]
				if ch == '\\' && i+1 < len(rs) {
					i++
					switch rs[i] {
					case 'n':
						sb.WriteRune('\n')
					case 't':
						sb.WriteRune('\t')
					default:
						sb.WriteRune(rs[i])
					}
					i++
					continue
				}
				if ch == quote {
					closed = true
					i++
					break
				}
				sb.WriteRune(ch)
				i++
			}
			if !closed {
				return nil, fmt.Errorf("pozycja %d: niezamknięty napis", start)
			}
			out = append(out, token{kind: tokString, text: sb.String(), pos: start})

		case isIdentStart(c):
			start := i
			for i < len(rs) {
				if isIdentPart(rs[i]) {
					i++
					continue
				}
				// Math.max itp. – kropka tylko między częściami nazwy
				if rs[i] == '.' && i+1 < len(rs) && isIdentStart(rs[i+1]) {
					i++
					continue
				}
				break
			}
			out = append(out, token{kind: tokIdent, text: string(rs[start:i]), pos: start})

		case c == '(':
			out = append(out, token{kind: tokLParen, text: "(", pos: i})
			i++
		case c == ')':
			out = append(out, token{kind: tokRParen, text: ")", pos: i})
			i++
		case c == ',':
			out = append(out, token{kind: tokComma, text: ",", pos: i})
			i++
		case c == '?':
			out = append(out, token{kind: tokQuestion, text: "?", pos: i})
			i++
		case c == ':':
			out = append(out, token{kind: tokColon, text: ":", pos: i})
			i++

		default:
			op := matchOperator(rs[i:])
			if op == "" {
				return nil, fmt.Errorf("pozycja %d: nieoczekiwany znak %q", i, string(c))
			}
			out = append(out, token{kind: tokOp, text: op, pos: i})
			i += len([]rune(op))
		}
	}

	out = append(out, token{kind: tokEOF, pos: len(rs)})
	return out, nil
}

func matchOperator(rs []rune) string {
	for _, op := range operators {
		n := len(op)
		if len(rs) >= n && string(rs[:n]) == op {
			return op
		}
	}
	return ""
}

func isDigit(c rune) bool { return c >= '0' && c <= '9' }

func isIdentStart(c rune) bool {
	return c == '_' || c == '$' || unicode.IsLetter(c)
}

func isIdentPart(c rune) bool {
	return isIdentStart(c) || unicode.IsDigit(c)
}

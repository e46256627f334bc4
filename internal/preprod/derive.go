package preprod

import (
	"encoding/json"
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"
)

var (
	reProfile     = regexp.MustCompile(`(\d+(?:[.,]\d+)?)\s*[xX]\s*(\d+(?:[.,]\d+)?)`)
	reEspada      = regexp.MustCompile(`(?i)espada\s*[:=]\s*(\d+(?:[.,]\d+)?)`)
	reLargoEspada = regexp.MustCompile(`(?i)largo\s*espada\s*[:=]?\s*(\d+(?:[.,]\d+)?)`)
)

// kolejność ma znaczenie: pierwszy trafiony klucz wygrywa
var espadaKeys = []string{"espada", "largo_espada", "calc_espada"}

// InjectDerived dopisuje lado_mas_alto i calc_espada do surowego wiersza.
// Nigdy nie przerywa ingestii: przy panice oba pola zostają nil.
func InjectDerived(row Row) (err error) {
	row[FieldLadoMasAlto] = nil
	row[FieldCalcEspada] = nil
	defer func() {
		if r := recover(); r != nil {
			row[FieldLadoMasAlto] = nil
			row[FieldCalcEspada] = nil
			err = fmt.Errorf("derived fields: %v", r)
		}
	}()

	if v, ok := LadoMasAlto(row[FieldPerfil]); ok {
		row[FieldLadoMasAlto] = v
	}
	if v, ok := CalcEspada(row[FieldBrazos]); ok {
		row[FieldCalcEspada] = v
	}
	return nil
}

// LadoMasAlto – większy bok z opisu profilu typu "80x40", "80 X 40", "40,5x60"
func LadoMasAlto(perfil any) (float64, bool) {
	if perfil == nil {
		return 0, false
	}
	s := strings.TrimSpace(fmt.Sprint(perfil))
	m := reProfile.FindStringSubmatch(s)
	if m == nil {
		return 0, false
	}
	a, okA := parseDecimal(m[1])
	b, okB := parseDecimal(m[2])
	if !okA || !okB {
		return 0, false
	}
	return math.Max(a, b), true
}

// CalcEspada – best-effort: liczba, JSON (obiekt/tablica) albo tekst "espada=123" / "largo espada 123"
func CalcEspada(brazos any) (float64, bool) {
	switch x := brazos.(type) {
	case nil:
		return 0, false
	case string:
		s := strings.TrimSpace(x)
		if (strings.HasPrefix(s, "{") && strings.HasSuffix(s, "}")) ||
			(strings.HasPrefix(s, "[") && strings.HasSuffix(s, "]")) {
			var parsed any
			if err := json.Unmarshal([]byte(s), &parsed); err == nil {
				if v, ok := espadaFrom(parsed); ok {
					return v, true
				}
			}
		}
		m := reEspada.FindStringSubmatch(s)
		if m == nil {
			m = reLargoEspada.FindStringSubmatch(s)
		}
		if m != nil {
			return parseDecimal(m[1])
		}
		return 0, false
	case map[string]any, []any:
		return espadaFrom(x)
	}
	if f, ok := number(brazos); ok && !math.IsNaN(f) && !math.IsInf(f, 0) {
		return f, true
	}
	return 0, false
}

func espadaFrom(v any) (float64, bool) {
	switch x := v.(type) {
	case map[string]any:
		for _, want := range espadaKeys {
			for k, val := range x {
				if !strings.EqualFold(k, want) || val == nil {
					continue
				}
				if f, ok := toDecimal(val); ok {
					return f, true
				}
			}
		}
	case []any:
		for _, el := range x {
			if f, ok := espadaFrom(el); ok {
				return f, true
			}
		}
	}
	return 0, false
}

func toDecimal(v any) (float64, bool) {
	if s, ok := v.(string); ok {
		return parseDecimal(s)
	}
	f, ok := number(v)
	if !ok || math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, false
	}
	return f, true
}

// parseDecimal akceptuje przecinek dziesiętny ("12,5")
func parseDecimal(s string) (float64, bool) {
	s = strings.TrimSpace(strings.Replace(s, ",", ".", 1))
	f, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, false
	}
	return f, true
}

// Package preprod łączy surowe wiersze Pre_Produccion z ERP (preproduccion_sql)
// z nakładką ręcznych poprawek i wyników formuł (preproduccion_valores).
package preprod

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/bartek5186/dflexsync/internal/formula"
)

type Row = formula.Row

const (
	FieldNV          = "NV"
	FieldID          = "ID"
	FieldPerfil      = "PARANTES_Descripcion"
	FieldBrazos      = "DATOS_Brazos"
	FieldLadoMasAlto = "lado_mas_alto"
	FieldCalcEspada  = "calc_espada"
)

// pola liczone przy ingestii – zawsze "pochodne", nigdy ręczne
var derivedFields = []string{FieldLadoMasAlto, FieldCalcEspada}

var partidaFields = []string{"PARTIDA", "Partida", "partida"}

var (
	ErrInvalidNV = errors.New("preprod: brak poprawnego NV")
	ErrNoColumn  = errors.New("preprod: pusta nazwa kolumny")
)

// ParseNV – NV musi być dodatnią liczbą całkowitą
func ParseNV(v any) (int64, bool) {
	var n int64
	switch x := v.(type) {
	case nil:
		return 0, false
	case string:
		s := strings.TrimSpace(x)
		i, err := strconv.ParseInt(s, 10, 64)
		if err != nil {
			f, ferr := strconv.ParseFloat(s, 64)
			if ferr != nil || f != math.Trunc(f) {
				return 0, false
			}
			i = int64(f)
		}
		n = i
	case json.Number:
		return ParseNV(x.String())
	default:
		f, ok := number(v)
		if !ok || math.IsNaN(f) || f != math.Trunc(f) {
			return 0, false
		}
		n = int64(f)
	}
	if n <= 0 {
		return 0, false
	}
	return n, true
}

func number(v any) (float64, bool) {
	switch x := v.(type) {
	case float64:
		return x, true
	case float32:
		return float64(x), true
	case int:
		return float64(x), true
	case int32:
		return float64(x), true
	case int64:
		return float64(x), true
	case uint32:
		return float64(x), true
	case uint64:
		return float64(x), true
	}
	return 0, false
}

// NormalizeRow przepuszcza wiersz przez JSON – dokładnie tak, jak wróci z kolumny data.
// Dzięki temu porównania base/nakładka widzą te same typy (float64, string, ...).
func NormalizeRow(in map[string]any) (Row, error) {
	b, err := json.Marshal(in)
	if err != nil {
		return nil, fmt.Errorf("normalize row: %w", err)
	}
	out := Row{}
	if err := json.Unmarshal(b, &out); err != nil {
		return nil, fmt.Errorf("normalize row: %w", err)
	}
	return out, nil
}

func cloneRow(r Row) Row {
	out := make(Row, len(r))
	for k, v := range r {
		out[k] = v
	}
	return out
}

// merge – płytkie {...a, ...b}
func merge(a, b Row) Row {
	out := make(Row, len(a)+len(b))
	for k, v := range a {
		out[k] = v
	}
	for k, v := range b {
		out[k] = v
	}
	return out
}

// asString – klucz/filtr jako tekst (liczby całkowite bez ".0")
func asString(v any) string {
	switch x := v.(type) {
	case nil:
		return ""
	case string:
		return strings.TrimSpace(x)
	}
	if f, ok := number(v); ok {
		if f == math.Trunc(f) && math.Abs(f) < 1e15 {
			return strconv.FormatInt(int64(f), 10)
		}
		return strconv.FormatFloat(f, 'f', -1, 64)
	}
	return strings.TrimSpace(fmt.Sprint(v))
}

func partidaOf(r Row) string {
	for _, k := range partidaFields {
		if v, ok := r[k]; ok && v != nil {
			return asString(v)
		}
	}
	return ""
}

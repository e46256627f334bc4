package preprod

import (
	"context"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"
)

// domyślne pola daty produkcji (zwykle wpisywane ręcznie, więc żyją w nakładce)
var DefaultDateFields = []string{
	"inicio_prod_imput",
	"Inicio_prod_imput",
	"INICIO_PROD_IMPUT",
	"inicioProdImput",
	"Inicio_Prod_Imput",
	"inicio_prod",
	"INICIO_PROD",
	"fecha_envio_produccion",
}

// Filter – wszystkie pola opcjonalne; From/To w formacie YYYY-MM-DD, włącznie
type Filter struct {
	NV      *int64
	Partida string
	From    string
	To      string
}

func (f Filter) hasDateRange() bool { return f.From != "" || f.To != "" }

type Query struct {
	src        RowSource
	dateFields []string
}

func NewQuery(src RowSource, dateFields []string) *Query {
	if len(dateFields) == 0 {
		dateFields = DefaultDateFields
	}
	return &Query{src: src, dateFields: dateFields}
}

// Rows zwraca wiersze "definitywne" ({...base, ...nakładka, NV}) posortowane po NV.
// Błąd któregokolwiek odczytu = brak wyniku.
func (q *Query) Rows(ctx context.Context, f Filter) ([]Row, error) {
	f.Partida = strings.TrimSpace(f.Partida)
	f.From = NormalizeDate(f.From)
	f.To = NormalizeDate(f.To)

	var raws, overs []StoredRow
	var err error

	if f.hasDateRange() {
		// data siedzi w nakładce: najpierw klucze z nakładki, potem baza po kluczach (bez daty)
		all, err := q.src.FindOverlay(ctx, RowQuery{NV: f.NV, AnyOf: q.dateFields})
		if err != nil {
			return nil, err
		}
		keys := make([]int64, 0, len(all))
		for _, o := range all {
			if q.inRange(o.Data, f) {
				overs = append(overs, o)
				keys = append(keys, o.NV)
			}
		}
		if len(keys) == 0 {
			return []Row{}, nil
		}
		if raws, err = q.src.FindRaw(ctx, RowQuery{Keys: keys}); err != nil {
			return nil, err
		}
	} else {
		if raws, err = q.src.FindRaw(ctx, RowQuery{NV: f.NV, Partida: f.Partida}); err != nil {
			return nil, err
		}
		if overs, err = q.src.FindOverlay(ctx, RowQuery{NV: f.NV, Partida: f.Partida}); err != nil {
			return nil, err
		}
		if f.Partida != "" {
			if raws, overs, err = q.completePairs(ctx, raws, overs); err != nil {
				return nil, err
			}
		}
	}

	merged := Merge(raws, overs)
	if f.Partida != "" {
		kept := merged[:0]
		for _, r := range merged {
			if partidaOf(r) == f.Partida {
				kept = append(kept, r)
			}
		}
		merged = kept
	}
	SortByNV(merged)
	return merged, nil
}

// completePairs: nakładka zwykle nie ma PARTIDA, a ręcznie poprawiona PARTIDA nie ma
// odpowiednika w bazie – dociągamy brakujące połówki po kluczach.
func (q *Query) completePairs(ctx context.Context, raws, overs []StoredRow) ([]StoredRow, []StoredRow, error) {
	haveOver := keySet(overs)
	var missOver []int64
	for _, r := range raws {
		if !haveOver[r.NV] {
			missOver = append(missOver, r.NV)
		}
	}
	if len(missOver) > 0 {
		extra, err := q.src.FindOverlay(ctx, RowQuery{Keys: missOver})
		if err != nil {
			return nil, nil, err
		}
		overs = append(overs, extra...)
	}

	haveRaw := keySet(raws)
	var missRaw []int64
	for _, o := range overs {
		if !haveRaw[o.NV] {
			missRaw = append(missRaw, o.NV)
		}
	}
	if len(missRaw) > 0 {
		extra, err := q.src.FindRaw(ctx, RowQuery{Keys: missRaw})
		if err != nil {
			return nil, nil, err
		}
		raws = append(raws, extra...)
	}
	return raws, overs, nil
}

func (q *Query) inRange(data Row, f Filter) bool {
	d := ""
	for _, k := range q.dateFields {
		if v, ok := data[k]; ok && v != nil {
			if d = NormalizeDate(asString(v)); d != "" {
				break
			}
		}
	}
	if d == "" {
		return false
	}
	if f.From != "" && d < f.From {
		return false
	}
	if f.To != "" && d > f.To {
		return false
	}
	return true
}

// Merge: nakładka wygrywa pole po polu, nakładki bez bazy są dołączane.
// Każdy wiersz wynikowy ma NV.
func Merge(raws, overs []StoredRow) []Row {
	overByNV := make(map[string]Row, len(overs))
	for _, o := range overs {
		overByNV[strconv.FormatInt(o.NV, 10)] = o.Data
	}

	out := make([]Row, 0, len(raws)+len(overs))
	seen := make(map[string]bool, len(raws))
	for _, r := range raws {
		key := strconv.FormatInt(r.NV, 10)
		if seen[key] {
			continue
		}
		seen[key] = true
		row := cloneRow(r.Data)
		if over, ok := overByNV[key]; ok {
			row = merge(row, over)
		}
		row[FieldNV] = r.NV
		out = append(out, row)
	}

	for _, o := range overs {
		key := strconv.FormatInt(o.NV, 10)
		if seen[key] {
			continue
		}
		seen[key] = true
		row := cloneRow(o.Data)
		row[FieldNV] = o.NV
		out = append(out, row)
	}
	return out
}

// SortByNV – rosnąco po NV; liczbowo gdy oba NV są liczbami, inaczej tekstowo
func SortByNV(rows []Row) {
	sort.SliceStable(rows, func(i, j int) bool {
		a, b := rows[i][FieldNV], rows[j][FieldNV]
		na, okA := ParseNV(a)
		nb, okB := ParseNV(b)
		if okA && okB {
			return na < nb
		}
		return asString(a) < asString(b)
	})
}

func keySet(rows []StoredRow) map[int64]bool {
	out := make(map[int64]bool, len(rows))
	for _, r := range rows {
		out[r.NV] = true
	}
	return out
}

var reISODate = regexp.MustCompile(`^(\d{4}-\d{2}-\d{2})`)

var dateLayouts = []string{
	"02-01-2006",
	"02/01/2006",
	"2/1/2006",
	"02.01.2006",
	"2006/01/02",
}

// NormalizeDate -> "YYYY-MM-DD" albo "" gdy nie da się odczytać
func NormalizeDate(s string) string {
	s = strings.TrimSpace(s)
	if s == "" {
		return ""
	}
	if m := reISODate.FindStringSubmatch(s); m != nil {
		if _, err := time.Parse("2006-01-02", m[1]); err == nil {
			return m[1]
		}
		return ""
	}
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.Format("2006-01-02")
		}
	}
	return ""
}

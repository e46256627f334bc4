// internal/formula/evaluate.go
package formula

// evaluation – jedno przeliczenie wiersza: cache wyników + kolumny "w trakcie"
type evaluation struct {
	row      Row
	set      Set
	cache    map[string]any
	visiting map[string]bool
}

// Evaluate liczy wszystkie kolumny z formułą. Odwołanie do innej kolumny
// z formułą liczy ją rekurencyjnie; cykl zwraca surową wartość z wiersza.
// W wyniku są tylko kolumny z prawdziwą wartością (bez nil/NaN/Inf).
func Evaluate(row Row, set Set) Row {
	out := Row{}
	if len(set) == 0 {
		return out
	}
	ev := &evaluation{
		row:      row,
		set:      set,
		cache:    make(map[string]any, len(set)),
		visiting: map[string]bool{},
	}
	for _, col := range set.Columns() {
		if v := ev.column(col); HasValue(v) {
			out[col] = v
		}
	}
	return out
}

func (ev *evaluation) column(col string) any {
	if v, ok := ev.cache[col]; ok {
		return v
	}
	if ev.visiting[col] {
		// cykl: best-effort, bez dalszej rekurencji
		return ev.row[col]
	}

	prog := ev.set[col]
	if prog == nil {
		v := ev.row[col]
		ev.cache[col] = v
		return v
	}

	ev.visiting[col] = true
	v := prog.Eval(ev)
	delete(ev.visiting, col)

	ev.cache[col] = v
	return v
}

// Lookup – widok wiersza dla formuł: kolumny z formułą liczone, reszta surowa
func (ev *evaluation) Lookup(name string) (any, bool) {
	if _, ok := ev.set[name]; ok {
		return ev.column(name), true
	}
	v, ok := ev.row[name]
	return v, ok
}

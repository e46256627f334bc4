// Package formula kompiluje i liczy formuły kolumn w stylu arkusza
// ("Precio * Cantidad", "lado_mas_alto > 60 ? 'ANCHA' : 'COMUN'").
//
// Wyrażenie widzi pola wiersza jako gołe identyfikatory. Błąd składni
// zwraca Compile; błąd w trakcie liczenia (dzielenie przez zero, zły typ)
// daje po prostu brak wartości (nil).
package formula

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

var ErrEmptyExpression = errors.New("formula: puste wyrażenie")

// Row – wiersz w postaci nazwa kolumny -> wartość (JSON-owe typy)
type Row map[string]any

// Scope – źródło wartości identyfikatorów
type Scope interface {
	Lookup(name string) (any, bool)
}

func (r Row) Lookup(name string) (any, bool) {
	v, ok := r[name]
	return v, ok
}

// Definition – formuła przypisana do kolumny docelowej
type Definition struct {
	Column     string
	Expression string
}

type Program struct {
	src  string
	root node
	refs []string
}

func Compile(expr string) (*Program, error) {
	src := strings.TrimSpace(expr)
	if src == "" {
		return nil, ErrEmptyExpression
	}
	root, refs, err := parse(src)
	if err != nil {
		return nil, fmt.Errorf("formula %q: %w", src, err)
	}
	sort.Strings(refs)
	return &Program{src: src, root: root, refs: refs}, nil
}

func (p *Program) Source() string { return p.src }

// Refs – nazwy kolumn użyte w wyrażeniu (posortowane)
func (p *Program) Refs() []string { return p.refs }

// Eval nigdy nie zwraca błędu: każda porażka = nil.
func (p *Program) Eval(s Scope) (v any) {
	defer func() {
		if r := recover(); r != nil {
			v = nil
		}
	}()
	out, err := p.root.eval(s)
	if err != nil {
		return nil
	}
	return out
}

// Set – skompilowane formuły wg kolumny docelowej
type Set map[string]*Program

// Columns zwraca kolumny w stałej kolejności
func (s Set) Columns() []string {
	out := make([]string, 0, len(s))
	for c := range s {
		out = append(out, c)
	}
	sort.Strings(out)
	return out
}

// CompileAll kompiluje wszystkie definicje. Pusta formuła = brak formuły
// (kolumna przechodzi bez zmian). Błąd jednej kolumny nie blokuje reszty.
func CompileAll(defs []Definition) (Set, map[string]error) {
	set := make(Set, len(defs))
	errs := map[string]error{}
	for _, d := range defs {
		if strings.TrimSpace(d.Expression) == "" {
			continue
		}
		p, err := Compile(d.Expression)
		if err != nil {
			errs[d.Column] = err
			continue
		}
		set[d.Column] = p
	}
	return set, errs
}

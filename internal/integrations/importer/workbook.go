package importer

import (
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/bartek5186/dflexsync/internal/preprod"
	"github.com/xuri/excelize/v2"
)

var ErrNoSheet = errors.New("importer: brak arkusza")

// Sheet – gdzie w arkuszu są NV i wartość do przeniesienia
type Sheet struct {
	Name      string `json:"sheet"`      // PRINCIPAL
	FirstRow  int    `json:"first_row"`  // numer wiersza Excela (1-based), 3 = pod dwoma wierszami nagłówka
	NVColumn  string `json:"nv_column"`  // A
	ValColumn string `json:"val_column"` // L
	Field     string `json:"field"`      // Descripcion
}

func DefaultSheet() Sheet {
	return Sheet{Name: "PRINCIPAL", FirstRow: 3, NVColumn: "A", ValColumn: "L", Field: "Descripcion"}
}

func (s Sheet) withDefaults() Sheet {
	d := DefaultSheet()
	if s.Name == "" {
		s.Name = d.Name
	}
	if s.FirstRow <= 0 {
		s.FirstRow = d.FirstRow
	}
	if s.NVColumn == "" {
		s.NVColumn = d.NVColumn
	}
	if s.ValColumn == "" {
		s.ValColumn = d.ValColumn
	}
	if s.Field == "" {
		s.Field = d.Field
	}
	return s
}

// Update – jedna zmiana z arkusza
type Update struct {
	Row   int    // numer wiersza Excela
	NV    int64
	Value string
}

// Parsed – wynik odczytu arkusza (przed sprawdzeniem, czy NV istnieją)
type Parsed struct {
	Updates    []Update // po jednym na NV, ostatni wiersz wygrywa
	Duplicates int
	EmptyValue int // pusta wartość nie nadpisuje pola
	InvalidNV  int
}

// ParseWorkbook czyta arkusz i zwraca zmiany w kolejności pierwszego wystąpienia NV
func ParseWorkbook(r io.Reader, sheet Sheet) (*Parsed, error) {
	sheet = sheet.withDefaults()

	f, err := excelize.OpenReader(r)
	if err != nil {
		return nil, fmt.Errorf("excel: %w", err)
	}
	defer f.Close()

	if idx, err := f.GetSheetIndex(sheet.Name); err != nil || idx < 0 {
		return nil, fmt.Errorf("%w %q", ErrNoSheet, sheet.Name)
	}

	nvCol, err := excelize.ColumnNameToNumber(strings.ToUpper(sheet.NVColumn))
	if err != nil {
		return nil, fmt.Errorf("kolumna NV: %w", err)
	}
	valCol, err := excelize.ColumnNameToNumber(strings.ToUpper(sheet.ValColumn))
	if err != nil {
		return nil, fmt.Errorf("kolumna wartości: %w", err)
	}

	rows, err := f.GetRows(sheet.Name)
	if err != nil {
		return nil, fmt.Errorf("excel %s: %w", sheet.Name, err)
	}

	out := &Parsed{}
	pos := map[int64]int{}
	for i := sheet.FirstRow - 1; i < len(rows); i++ {
		cells := rows[i]
		rawNV := cell(cells, nvCol)
		if rawNV == "" {
			continue
		}
		nv, ok := preprod.ParseNV(rawNV)
		if !ok {
			out.InvalidNV++
			continue
		}
		val := cell(cells, valCol)
		if val == "" {
			out.EmptyValue++
			continue
		}

		u := Update{Row: i + 1, NV: nv, Value: val}
		if p, dup := pos[nv]; dup {
			out.Duplicates++
			out.Updates[p] = u
			continue
		}
		pos[nv] = len(out.Updates)
		out.Updates = append(out.Updates, u)
	}
	return out, nil
}

// Edits – zmiany w formacie BulkEdit
func (p *Parsed) Edits(field string) []preprod.Edit {
	out := make([]preprod.Edit, 0, len(p.Updates))
	for _, u := range p.Updates {
		out = append(out, preprod.Edit{NV: u.NV, Changes: map[string]any{field: u.Value}})
	}
	return out
}

// GetRows ucina puste komórki na końcu wiersza
func cell(cells []string, col int) string {
	if col-1 >= len(cells) {
		return ""
	}
	return strings.TrimSpace(cells[col-1])
}

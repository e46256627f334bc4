package preprod

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/bartek5186/dflexsync/internal/db"
	"github.com/bartek5186/dflexsync/internal/formula"
	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Store – to, czego potrzebuje reconciler (wiersz bazowy, nakładka, formuły)
type Store interface {
	RawRow(ctx context.Context, nv int64) (Row, error)     // nil, nil gdy brak
	OverlayRow(ctx context.Context, nv int64) (Row, error) // nil, nil gdy brak
	UpsertRaw(ctx context.Context, nv int64, erpID *int64, data Row) error
	ReplaceOverlay(ctx context.Context, nv int64, data Row) error
	Formulas(ctx context.Context) ([]formula.Definition, error)
}

// RowSource – odczyty filtrowane dla warstwy zapytań
type RowSource interface {
	FindRaw(ctx context.Context, q RowQuery) ([]StoredRow, error)
	FindOverlay(ctx context.Context, q RowQuery) ([]StoredRow, error)
}

// RowQuery – filtr po kluczu. Keys != nil ogranicza do listy (pusta lista = nic).
type RowQuery struct {
	NV      *int64
	Keys    []int64
	Partida string
	AnyOf   []string // wiersz musi mieć niepuste choć jedno z tych pól
}

type StoredRow struct {
	NV        int64
	Data      Row
	UpdatedAt time.Time
}

// limit parametrów IN (SQL Server pozwala na ~2100)
const keysChunk = 500

type GormStore struct {
	db *gorm.DB
}

func NewGormStore(gdb *gorm.DB) *GormStore {
	return &GormStore{db: gdb}
}

func (s *GormStore) DB() *gorm.DB { return s.db }

func (s *GormStore) RawRow(ctx context.Context, nv int64) (Row, error) {
	var rec db.RawSnapshot
	err := s.db.WithContext(ctx).Where("nv = ?", nv).Take(&rec).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("preproduccion_sql nv=%d: %w", nv, err)
	}
	return rowFromDB(rec.Data), nil
}

func (s *GormStore) OverlayRow(ctx context.Context, nv int64) (Row, error) {
	var rec db.OverlayRow
	err := s.db.WithContext(ctx).Where("nv = ?", nv).Take(&rec).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("preproduccion_valores nv=%d: %w", nv, err)
	}
	return rowFromDB(rec.Data), nil
}

// UpsertRaw – każdy odczyt z ERP w całości zastępuje poprzedni snapshot
func (s *GormStore) UpsertRaw(ctx context.Context, nv int64, erpID *int64, data Row) error {
	rec := db.RawSnapshot{
		NV:        nv,
		ERPID:     erpID,
		Data:      datatypes.JSONMap(data),
		UpdatedAt: time.Now().UTC(),
	}
	err := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "nv"}},
		DoUpdates: clause.AssignmentColumns([]string{"erp_id", "data", "updated_at"}),
	}).Create(&rec).Error
	if err != nil {
		return fmt.Errorf("upsert preproduccion_sql nv=%d: %w", nv, err)
	}
	return nil
}

// ReplaceOverlay – pełna podmiana data (nie merge)
func (s *GormStore) ReplaceOverlay(ctx context.Context, nv int64, data Row) error {
	return upsertOverlay(s.db.WithContext(ctx), nv, data)
}

func upsertOverlay(tx *gorm.DB, nv int64, data Row) error {
	if data == nil {
		data = Row{}
	}
	rec := db.OverlayRow{
		NV:        nv,
		Data:      datatypes.JSONMap(data),
		UpdatedAt: time.Now().UTC(),
	}
	err := tx.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "nv"}},
		DoUpdates: clause.AssignmentColumns([]string{"data", "updated_at"}),
	}).Create(&rec).Error
	if err != nil {
		return fmt.Errorf("upsert preproduccion_valores nv=%d: %w", nv, err)
	}
	return nil
}

func (s *GormStore) Formulas(ctx context.Context) ([]formula.Definition, error) {
	recs, err := s.ListFormulas(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]formula.Definition, 0, len(recs))
	for _, r := range recs {
		out = append(out, formula.Definition{Column: r.ColumnName, Expression: r.Expression})
	}
	return out, nil
}

func (s *GormStore) ListFormulas(ctx context.Context) ([]db.Formula, error) {
	var recs []db.Formula
	if err := s.db.WithContext(ctx).Order("column_name").Find(&recs).Error; err != nil {
		return nil, fmt.Errorf("preproduccion_formulas: %w", err)
	}
	return recs, nil
}

// UpsertFormula – nazwa kolumny rozróżnia wielkość liter, nie może być pusta.
// Pusta formuła = kolumna bez formuły.
func (s *GormStore) UpsertFormula(ctx context.Context, column, expression string) (db.Formula, error) {
	if strings.TrimSpace(column) == "" {
		return db.Formula{}, ErrNoColumn
	}
	if len(column) > maxKeyLen {
		return db.Formula{}, fmt.Errorf("preprod: nazwa kolumny dłuższa niż %d znaków", maxKeyLen)
	}
	rec := db.Formula{
		ColumnName: column,
		Expression: expression,
		UpdatedAt:  time.Now().UTC(),
	}
	err := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "column_name"}},
		DoUpdates: clause.AssignmentColumns([]string{"expression", "updated_at"}),
	}).Create(&rec).Error
	if err != nil {
		return db.Formula{}, fmt.Errorf("upsert formula %q: %w", column, err)
	}
	return rec, nil
}

// Exists – czy NV jest w bazie albo w nakładce
func (s *GormStore) Exists(ctx context.Context, nvs []int64) (map[int64]bool, error) {
	out := make(map[int64]bool, len(nvs))
	for _, part := range chunks(nvs, keysChunk) {
		for _, model := range []any{&db.RawSnapshot{}, &db.OverlayRow{}} {
			var found []int64
			if err := s.db.WithContext(ctx).Model(model).Where("nv IN ?", part).Pluck("nv", &found).Error; err != nil {
				return nil, err
			}
			for _, nv := range found {
				out[nv] = true
			}
		}
	}
	return out, nil
}

func (s *GormStore) FindRaw(ctx context.Context, q RowQuery) ([]StoredRow, error) {
	var out []StoredRow
	err := s.find(ctx, q, func(tx *gorm.DB) error {
		var recs []db.RawSnapshot
		if err := tx.Order("nv").Find(&recs).Error; err != nil {
			return fmt.Errorf("preproduccion_sql: %w", err)
		}
		for _, r := range recs {
			out = append(out, StoredRow{NV: r.NV, Data: rowFromDB(r.Data), UpdatedAt: r.UpdatedAt})
		}
		return nil
	})
	return out, err
}

func (s *GormStore) FindOverlay(ctx context.Context, q RowQuery) ([]StoredRow, error) {
	var out []StoredRow
	err := s.find(ctx, q, func(tx *gorm.DB) error {
		var recs []db.OverlayRow
		if err := tx.Order("nv").Find(&recs).Error; err != nil {
			return fmt.Errorf("preproduccion_valores: %w", err)
		}
		for _, r := range recs {
			out = append(out, StoredRow{NV: r.NV, Data: rowFromDB(r.Data), UpdatedAt: r.UpdatedAt})
		}
		return nil
	})
	return out, err
}

// find buduje WHERE z RowQuery; lista kluczy idzie paczkami
func (s *GormStore) find(ctx context.Context, q RowQuery, run func(tx *gorm.DB) error) error {
	base := func() *gorm.DB {
		tx := s.db.WithContext(ctx)
		if q.NV != nil {
			tx = tx.Where("nv = ?", *q.NV)
		}
		if p := strings.TrimSpace(q.Partida); p != "" {
			if cond := s.partidaCond(p); cond != nil {
				tx = tx.Where(cond)
			}
		}
		if cond := s.anyOfCond(q.AnyOf); cond != nil {
			tx = tx.Where(cond)
		}
		return tx
	}

	if q.Keys == nil {
		return run(base())
	}
	for _, part := range chunks(q.Keys, keysChunk) {
		if err := run(base().Where("nv IN ?", part)); err != nil {
			return err
		}
	}
	return nil
}

// PARTIDA bywa zapisana w różnej wielkości liter i jako liczba albo tekst,
// więc porównujemy tekstową postać pola. Nieznany dialekt = bez filtra w SQL
// (zostaje filtr po scaleniu w Query.Rows).
func (s *GormStore) partidaCond(p string) *gorm.DB {
	expr := jsonText(s.db.Dialector.Name())
	if expr == "" {
		return nil
	}
	cond := s.db.Where(fmt.Sprintf(expr, partidaFields[0])+" = ?", p)
	for _, k := range partidaFields[1:] {
		cond = cond.Or(fmt.Sprintf(expr, k)+" = ?", p)
	}
	return cond
}

// anyOfCond – zawężenie w SQL; dokładne sprawdzenie robi wywołujący
func (s *GormStore) anyOfCond(fields []string) *gorm.DB {
	expr := jsonText(s.db.Dialector.Name())
	if expr == "" || len(fields) == 0 {
		return nil
	}
	var cond *gorm.DB
	for _, f := range fields {
		if !reJSONKey.MatchString(f) {
			// nazwa spoza [A-Za-z0-9_] nie trafia do SQL
			return nil
		}
		sql := fmt.Sprintf(expr, f) + " <> ''"
		if cond == nil {
			cond = s.db.Where(sql)
		} else {
			cond = cond.Or(sql)
		}
	}
	return cond
}

var reJSONKey = regexp.MustCompile(`^[A-Za-z0-9_]+$`)

// jsonText – tekstowa postać pola z kolumny data (wzorzec z %s na nazwę klucza)
func jsonText(dialect string) string {
	switch dialect {
	case "postgres":
		return "TRIM(data->>'%s')"
	case "mysql":
		return "TRIM(JSON_UNQUOTE(JSON_EXTRACT(data, '$.%s')))"
	case "sqlite":
		return "TRIM(CAST(json_extract(data, '$.%s') AS TEXT))"
	}
	return ""
}

func chunks(keys []int64, size int) [][]int64 {
	var out [][]int64
	for len(keys) > size {
		out = append(out, keys[:size])
		keys = keys[size:]
	}
	if len(keys) > 0 {
		out = append(out, keys)
	}
	return out
}

// rowFromDB – datatypes.JSONMap dekoduje liczby jako json.Number; sprowadzamy je do float64,
// żeby wiersze z bazy miały te same typy co świeżo znormalizowane wiersze z ERP.
func rowFromDB(m datatypes.JSONMap) Row {
	out := make(Row, len(m))
	for k, v := range m {
		out[k] = plainJSON(v)
	}
	return out
}

func plainJSON(v any) any {
	switch x := v.(type) {
	case json.Number:
		if f, err := x.Float64(); err == nil {
			return f
		}
		return x.String()
	case map[string]any:
		out := make(map[string]any, len(x))
		for k, el := range x {
			out[k] = plainJSON(el)
		}
		return out
	case []any:
		out := make([]any, len(x))
		for i, el := range x {
			out[i] = plainJSON(el)
		}
		return out
	}
	return v
}

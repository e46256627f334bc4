package preprod

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/bartek5186/dflexsync/internal/db"
	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func newTestStore(t *testing.T) *GormStore {
	t.Helper()
	gdb, err := gorm.Open(sqlite.Open(filepath.Join(t.TempDir(), "test.db")), &gorm.Config{
		Logger: logger.Discard,
	})
	require.NoError(t, err)
	require.NoError(t, db.Migrate(gdb))
	t.Cleanup(func() {
		if sqlDB, err := gdb.DB(); err == nil {
			_ = sqlDB.Close()
		}
	})
	return NewGormStore(gdb)
}

func TestGormStore_RawUpsertReplacesSnapshot(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	id := int64(77)
	require.NoError(t, s.UpsertRaw(ctx, 5, &id, Row{"Nombre": "Jose", "Edad": 40.0}))
	require.NoError(t, s.UpsertRaw(ctx, 5, nil, Row{"Nombre": "Pedro"}))

	got, err := s.RawRow(ctx, 5)
	require.NoError(t, err)
	assert.Equal(t, Row{"Nombre": "Pedro"}, got)

	var cnt int64
	require.NoError(t, s.DB().Model(&db.RawSnapshot{}).Count(&cnt).Error)
	assert.EqualValues(t, 1, cnt)
}

func TestGormStore_MissingRowsAreNil(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	raw, err := s.RawRow(ctx, 1)
	require.NoError(t, err)
	assert.Nil(t, raw)

	over, err := s.OverlayRow(ctx, 1)
	require.NoError(t, err)
	assert.Nil(t, over)
}

func TestGormStore_NumbersComeBackAsFloat(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.ReplaceOverlay(ctx, 3, Row{"n": 12.5, "nested": map[string]any{"x": 1.0}}))

	got, err := s.OverlayRow(ctx, 3)
	require.NoError(t, err)
	assert.Equal(t, 12.5, got["n"])
	assert.Equal(t, map[string]any{"x": 1.0}, got["nested"])
}

func TestGormStore_Formulas(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	_, err := s.UpsertFormula(ctx, "  ", "1+1")
	assert.ErrorIs(t, err, ErrNoColumn)

	_, err = s.UpsertFormula(ctx, "Total", "Precio * Cantidad")
	require.NoError(t, err)
	_, err = s.UpsertFormula(ctx, "Total", "Precio * Cantidad * 2")
	require.NoError(t, err)
	_, err = s.UpsertFormula(ctx, "total", "1")
	require.NoError(t, err)

	defs, err := s.Formulas(ctx)
	require.NoError(t, err)
	require.Len(t, defs, 2)
	byCol := map[string]string{}
	for _, d := range defs {
		byCol[d.Column] = d.Expression
	}
	assert.Equal(t, "Precio * Cantidad * 2", byCol["Total"])
	assert.Equal(t, "1", byCol["total"])
}

func TestGormStore_FindByKeysAndExists(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	for _, nv := range []int64{1, 2, 3} {
		require.NoError(t, s.UpsertRaw(ctx, nv, nil, Row{"i": float64(nv)}))
	}
	require.NoError(t, s.ReplaceOverlay(ctx, 9, Row{"x": "y"}))

	rows, err := s.FindRaw(ctx, RowQuery{Keys: []int64{3, 1, 42}})
	require.NoError(t, err)
	require.Len(t, rows, 2)

	none, err := s.FindRaw(ctx, RowQuery{Keys: []int64{}})
	require.NoError(t, err)
	assert.Empty(t, none)

	ex, err := s.Exists(ctx, []int64{1, 9, 10})
	require.NoError(t, err)
	assert.Equal(t, map[int64]bool{1: true, 9: true}, ex)
}

func TestGormStore_FindOverlayAnyOf(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.ReplaceOverlay(ctx, 1, Row{"inicio_prod_imput": "2024-03-10"}))
	require.NoError(t, s.ReplaceOverlay(ctx, 2, Row{"fecha_envio_produccion": "2024-04-01"}))
	require.NoError(t, s.ReplaceOverlay(ctx, 3, Row{"inicio_prod_imput": ""}))
	require.NoError(t, s.ReplaceOverlay(ctx, 4, Row{"nota": "sin fecha"}))

	rows, err := s.FindOverlay(ctx, RowQuery{AnyOf: []string{"inicio_prod_imput", "fecha_envio_produccion"}})
	require.NoError(t, err)
	got := make([]int64, 0, len(rows))
	for _, r := range rows {
		got = append(got, r.NV)
	}
	assert.Equal(t, []int64{1, 2}, got)

	// nazwa, której nie wolno wkleić do SQL: bez zawężenia, wszystkie wiersze
	all, err := s.FindOverlay(ctx, RowQuery{AnyOf: []string{"x') OR ('1"}})
	require.NoError(t, err)
	assert.Len(t, all, 4)
}

func TestChunks(t *testing.T) {
	keys := []int64{1, 2, 3, 4, 5}
	assert.Equal(t, [][]int64{{1, 2}, {3, 4}, {5}}, chunks(keys, 2))
	assert.Nil(t, chunks(nil, 2))
}

package importer

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/bartek5186/dflexsync/internal/db"
	"github.com/bartek5186/dflexsync/internal/preprod"
	"github.com/glebarez/sqlite"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func newStore(t *testing.T) *preprod.GormStore {
	t.Helper()
	gdb, err := gorm.Open(sqlite.Open(filepath.Join(t.TempDir(), "imp.db")), &gorm.Config{Logger: logger.Discard})
	require.NoError(t, err)
	require.NoError(t, db.Migrate(gdb))
	t.Cleanup(func() {
		if sqlDB, err := gdb.DB(); err == nil {
			_ = sqlDB.Close()
		}
	})
	return preprod.NewGormStore(gdb)
}

// workbook: dwa wiersze nagłówka, dane od wiersza 3 (A=NV, L=opis)
func workbook(t *testing.T, sheet string, rows [][2]any) []byte {
	t.Helper()
	f := excelize.NewFile()
	defer f.Close()
	require.NoError(t, f.SetSheetName("Sheet1", sheet))
	require.NoError(t, f.SetCellValue(sheet, "A1", "LISTADO"))
	require.NoError(t, f.SetCellValue(sheet, "A2", "NV"))
	require.NoError(t, f.SetCellValue(sheet, "L2", "Descripcion"))
	for i, r := range rows {
		n := i + 3
		a, _ := excelize.CoordinatesToCellName(1, n)
		l, _ := excelize.CoordinatesToCellName(12, n)
		require.NoError(t, f.SetCellValue(sheet, a, r[0]))
		require.NoError(t, f.SetCellValue(sheet, l, r[1]))
	}
	buf, err := f.WriteToBuffer()
	require.NoError(t, err)
	return buf.Bytes()
}

func TestParseWorkbook(t *testing.T) {
	data := workbook(t, "PRINCIPAL", [][2]any{
		{101, "Portón corredizo"},
		{"abc", "x"},
		{102, ""},
		{103, "Reja"},
		{101, "Portón batiente"},
	})

	p, err := ParseWorkbook(bytes.NewReader(data), Sheet{})
	require.NoError(t, err)

	assert.Equal(t, []Update{
		{Row: 7, NV: 101, Value: "Portón batiente"},
		{Row: 6, NV: 103, Value: "Reja"},
	}, p.Updates)
	assert.Equal(t, 1, p.Duplicates)
	assert.Equal(t, 1, p.EmptyValue)
	assert.Equal(t, 1, p.InvalidNV)

	edits := p.Edits("Descripcion")
	assert.Equal(t, preprod.Edit{NV: 101, Changes: map[string]any{"Descripcion": "Portón batiente"}}, edits[0])
}

func TestParseWorkbook_MissingSheet(t *testing.T) {
	data := workbook(t, "OTRA", [][2]any{{1, "x"}})

	_, err := ParseWorkbook(bytes.NewReader(data), DefaultSheet())
	assert.ErrorIs(t, err, ErrNoSheet)
}

func TestImportFile_AppliesOnlyKnownNV(t *testing.T) {
	store := newStore(t)
	ctx := context.Background()
	require.NoError(t, store.UpsertRaw(ctx, 101, nil, preprod.Row{"Descripcion": "vieja"}))
	require.NoError(t, store.ReplaceOverlay(ctx, 103, preprod.Row{"Color": "negro"}))

	path := filepath.Join(t.TempDir(), "listado.xlsx")
	require.NoError(t, os.WriteFile(path, workbook(t, "PRINCIPAL", [][2]any{
		{101, "nueva"},
		{102, "no existe"},
		{103, "Reja"},
	}), 0o644))

	imp := New(zerolog.Nop(), Config{}, store)
	res, err := imp.ImportFile(ctx, path)
	require.NoError(t, err)
	assert.False(t, res.Already)
	assert.Equal(t, 2, res.Applied)
	assert.Equal(t, 1, res.NotFound)

	over, err := store.OverlayRow(ctx, 101)
	require.NoError(t, err)
	assert.Equal(t, preprod.Row{"Descripcion": "nueva"}, over)

	over, err = store.OverlayRow(ctx, 103)
	require.NoError(t, err)
	assert.Equal(t, preprod.Row{"Color": "negro", "Descripcion": "Reja"}, over)

	var rec db.ImportFile
	require.NoError(t, store.DB().Take(&rec, "import_id = ?", res.ImportID).Error)
	assert.Equal(t, db.ImportDone, rec.Status)
	assert.Equal(t, 2, rec.Applied)
	assert.Equal(t, 1, rec.NotFound)
	assert.NotNil(t, rec.ProcessedAt)

	// ten sam plik drugi raz – bez przetwarzania
	again, err := imp.ImportFile(ctx, path)
	require.NoError(t, err)
	assert.True(t, again.Already)
	assert.Equal(t, res.ImportID, again.ImportID)
}

func TestImportFile_BrokenFileMarkedAsError(t *testing.T) {
	store := newStore(t)
	path := filepath.Join(t.TempDir(), "roto.xlsx")
	require.NoError(t, os.WriteFile(path, []byte("not a zip"), 0o644))

	_, err := New(zerolog.Nop(), Config{}, store).ImportFile(context.Background(), path)
	require.Error(t, err)

	var rec db.ImportFile
	require.NoError(t, store.DB().Take(&rec).Error)
	assert.Equal(t, db.ImportError, rec.Status)
	assert.NotEmpty(t, rec.LastError)
}

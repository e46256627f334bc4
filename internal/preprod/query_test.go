package preprod

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func seed(t *testing.T, s *GormStore, raws, overs map[int64]Row) {
	t.Helper()
	ctx := context.Background()
	for nv, r := range raws {
		require.NoError(t, s.UpsertRaw(ctx, nv, nil, r))
	}
	for nv, o := range overs {
		require.NoError(t, s.ReplaceOverlay(ctx, nv, o))
	}
}

func nvs(rows []Row) []int64 {
	out := make([]int64, 0, len(rows))
	for _, r := range rows {
		n, _ := ParseNV(r[FieldNV])
		out = append(out, n)
	}
	return out
}

func TestMerge_OverlayWins(t *testing.T) {
	got := Merge(
		[]StoredRow{{NV: 5, Data: Row{"Nombre": "Jose", "Edad": 40.0}}},
		[]StoredRow{{NV: 5, Data: Row{"Nombre": "Juan"}}},
	)
	require.Len(t, got, 1)
	assert.Equal(t, Row{"NV": int64(5), "Nombre": "Juan", "Edad": 40.0}, got[0])
}

func TestMerge_OrphanOverlayIncluded(t *testing.T) {
	got := Merge(
		[]StoredRow{{NV: 1, Data: Row{"a": 1.0}}},
		[]StoredRow{{NV: 2, Data: Row{"b": 2.0}}},
	)
	require.Len(t, got, 2)
	assert.Equal(t, Row{"NV": int64(2), "b": 2.0}, got[1])
}

func TestMerge_DoesNotMutateInputs(t *testing.T) {
	raw := Row{"a": 1.0}
	Merge([]StoredRow{{NV: 1, Data: raw}}, []StoredRow{{NV: 1, Data: Row{"a": 2.0}}})
	assert.Equal(t, Row{"a": 1.0}, raw)
}

func TestSortByNV(t *testing.T) {
	rows := []Row{{"NV": int64(10)}, {"NV": "9"}, {"NV": 100.0}, {"NV": int64(2)}}
	SortByNV(rows)
	assert.Equal(t, []int64{2, 9, 10, 100}, nvs(rows))

	mixed := []Row{{"NV": "b"}, {"NV": "a"}}
	SortByNV(mixed)
	assert.Equal(t, "a", mixed[0]["NV"])
}

func TestNormalizeDate(t *testing.T) {
	cases := map[string]string{
		"2024-03-10":           "2024-03-10",
		"2024-03-10T08:00:00Z": "2024-03-10",
		"2024-03-10 12:30:00":  "2024-03-10",
		"10-03-2024":           "2024-03-10",
		"10/03/2024":           "2024-03-10",
		"10.03.2024":           "2024-03-10",
		"2024-13-40":           "",
		"ayer":                 "",
		"":                     "",
	}
	for in, want := range cases {
		assert.Equal(t, want, NormalizeDate(in), in)
	}
}

func TestQuery_MergedAndSorted(t *testing.T) {
	s := newTestStore(t)
	seed(t, s,
		map[int64]Row{
			10: {"Nombre": "Ana"},
			5:  {"Nombre": "Jose", "Edad": 40.0},
			7:  {"Nombre": "Luis"},
		},
		map[int64]Row{
			5: {"Nombre": "Juan"},
			6: {"Nombre": "Manual"},
		},
	)

	rows, err := NewQuery(s, nil).Rows(context.Background(), Filter{})
	require.NoError(t, err)

	assert.Equal(t, []int64{5, 6, 7, 10}, nvs(rows))
	assert.Equal(t, Row{"NV": int64(5), "Nombre": "Juan", "Edad": 40.0}, rows[0])
	assert.Equal(t, Row{"NV": int64(6), "Nombre": "Manual"}, rows[1])
}

func TestQuery_ByNV(t *testing.T) {
	s := newTestStore(t)
	seed(t, s, map[int64]Row{1: {"a": 1.0}, 2: {"a": 2.0}}, map[int64]Row{2: {"b": 3.0}})

	nv := int64(2)
	rows, err := NewQuery(s, nil).Rows(context.Background(), Filter{NV: &nv})
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, Row{"NV": int64(2), "a": 2.0, "b": 3.0}, rows[0])
}

func TestQuery_ByPartida(t *testing.T) {
	s := newTestStore(t)
	seed(t, s,
		map[int64]Row{
			1: {"PARTIDA": "P1", "x": 1.0},
			2: {"PARTIDA": "P1"},
			3: {"Partida": "P1"},
			5: {"PARTIDA": "P3"},
			8: {"PARTIDA": "P2"},
		},
		map[int64]Row{
			1: {"x": 2.0},        // nakładka bez PARTIDA
			2: {"PARTIDA": "P9"}, // ręcznie przeniesiona do innej partii
			4: {"PARTIDA": "P1"}, // sierota
			5: {"PARTIDA": "P1"}, // ręcznie przeniesiona do P1
		},
	)

	rows, err := NewQuery(s, nil).Rows(context.Background(), Filter{Partida: " P1 "})
	require.NoError(t, err)

	assert.Equal(t, []int64{1, 3, 4, 5}, nvs(rows))
	assert.Equal(t, 2.0, rows[0]["x"])
	assert.Equal(t, "P1", rows[3]["PARTIDA"])
}

func TestQuery_ByNumericPartida(t *testing.T) {
	s := newTestStore(t)
	seed(t, s,
		map[int64]Row{
			1: {"PARTIDA": 7.0},
			2: {"PARTIDA": "7"},
			3: {"PARTIDA": 70.0},
			4: {"partida": " 7 "},
		},
		map[int64]Row{6: {"PARTIDA": 7.0}},
	)

	rows, err := NewQuery(s, nil).Rows(context.Background(), Filter{Partida: "7"})
	require.NoError(t, err)
	assert.Equal(t, []int64{1, 2, 4, 6}, nvs(rows))
}

func TestJSONText(t *testing.T) {
	assert.Contains(t, jsonText("postgres"), "->>")
	assert.Contains(t, jsonText("sqlite"), "AS TEXT")
	assert.Empty(t, jsonText("sqlserver"))
}

func TestQuery_DateRangeLivesInOverlay(t *testing.T) {
	s := newTestStore(t)
	seed(t, s,
		map[int64]Row{
			1: {"PARTIDA": "P1", "Cliente": "ACME"},
			2: {"PARTIDA": "P2", "Cliente": "Foo"},
			3: {"PARTIDA": "P1", "Cliente": "Bar"},
			4: {"PARTIDA": "P1", "Cliente": "Baz"},
		},
		map[int64]Row{
			1: {"inicio_prod_imput": "2024-03-10"},
			2: {"inicio_prod_imput": "2024-03-11"},
			3: {"inicio_prod_imput": "01/05/2024"},
			4: {"nota": "sin fecha"},
		},
	)

	rows, err := NewQuery(s, nil).Rows(context.Background(), Filter{
		Partida: "P1",
		From:    "2024-03-01",
		To:      "2024-03-31",
	})
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, Row{
		"NV":                int64(1),
		"PARTIDA":           "P1",
		"Cliente":           "ACME",
		"inicio_prod_imput": "2024-03-10",
	}, rows[0])

	open, err := NewQuery(s, nil).Rows(context.Background(), Filter{From: "2024-03-11"})
	require.NoError(t, err)
	assert.Equal(t, []int64{2, 3}, nvs(open))
}

func TestQuery_DateRangeNoMatch(t *testing.T) {
	s := newTestStore(t)
	seed(t, s, map[int64]Row{1: {"a": 1.0}}, map[int64]Row{1: {"inicio_prod_imput": "2023-01-01"}})

	rows, err := NewQuery(s, nil).Rows(context.Background(), Filter{From: "2024-01-01"})
	require.NoError(t, err)
	assert.NotNil(t, rows)
	assert.Empty(t, rows)
}

func TestQuery_CustomDateField(t *testing.T) {
	s := newTestStore(t)
	seed(t, s, map[int64]Row{1: {"a": 1.0}}, map[int64]Row{1: {"fecha_corte": "2024-02-02"}})

	rows, err := NewQuery(s, []string{"fecha_corte"}).Rows(context.Background(), Filter{To: "2024-02-02"})
	require.NoError(t, err)
	assert.Len(t, rows, 1)
}

type brokenSource struct{}

func (brokenSource) FindRaw(context.Context, RowQuery) ([]StoredRow, error) {
	return nil, errors.New("timeout")
}

func (brokenSource) FindOverlay(context.Context, RowQuery) ([]StoredRow, error) {
	return []StoredRow{{NV: 1, Data: Row{"inicio_prod_imput": "2024-01-01"}}}, nil
}

func TestQuery_StoreErrorIsHard(t *testing.T) {
	q := NewQuery(brokenSource{}, nil)

	rows, err := q.Rows(context.Background(), Filter{})
	assert.Error(t, err)
	assert.Nil(t, rows)

	rows, err = q.Rows(context.Background(), Filter{From: "2024-01-01"})
	assert.Error(t, err)
	assert.Nil(t, rows)
}

package formula

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func mustCompile(t *testing.T, expr string) *Program {
	t.Helper()
	p, err := Compile(expr)
	require.NoError(t, err)
	return p
}

func TestCompile_Arithmetic(t *testing.T) {
	row := Row{"Precio": 10.0, "Cantidad": 3.0, "Desc": "Porton"}

	tests := []struct {
		expr string
		want any
	}{
		{"Precio * Cantidad", 30.0},
		{"Precio + Cantidad * 2", 16.0},
		{"(Precio + Cantidad) * 2", 26.0},
		{"Precio / 4", 2.5},
		{"Precio % 4", 2.0},
		{"-Precio + 1", -9.0},
		{".5 + 1e1", 10.5},
		{"Desc + ' ' + Cantidad", "Porton 3"},
		{"'a' + \"b\"", "ab"},
		{"Precio > 5 ? 'alto' : 'bajo'", "alto"},
		{"Precio < 5 ? 'alto' : Cantidad == 3 ? 'tres' : 'otro'", "tres"},
		{"Precio >= 10 && Cantidad <= 3", true},
		{"!Precio", false},
		{"Precio == '10'", true},
		{"Precio === '10'", false},
		{"Precio !== 10", false},
		{"Falta || 'def'", "def"},
		{"Precio && Cantidad", 3.0},
		{"Math.max(Precio, Cantidad, 42)", 42.0},
		{"round(2.5) + floor(1.9) + ceil(0.1)", 5.0},
		{"Math.round(-2.5)", -2.0},
		{"Number('12') + parseFloat('3.5cm') + parseInt('7.9')", 22.5},
		{"String(Precio) + 'x'", "10x"},
		{"Desc < 'Q'", true},
	}
	for _, tt := range tests {
		t.Run(tt.expr, func(t *testing.T) {
			got := mustCompile(t, tt.expr).Eval(row)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestCompile_SyntaxErrors(t *testing.T) {
	for _, expr := range []string{
		"Precio *",
		"(Precio",
		"Precio = 3",
		"'sin cerrar",
		"a ? b",
		"foo(1",
		"Precio Cantidad",
		"#",
	} {
		t.Run(expr, func(t *testing.T) {
			_, err := Compile(expr)
			assert.Error(t, err)
		})
	}

	_, err := Compile("   ")
	assert.ErrorIs(t, err, ErrEmptyExpression)
}

func TestEval_RuntimeFailuresAreNil(t *testing.T) {
	row := Row{"a": 1.0, "b": 0.0}

	assert.Nil(t, mustCompile(t, "a / b").Eval(row))
	assert.Nil(t, mustCompile(t, "a % b").Eval(row))
	assert.Nil(t, mustCompile(t, "max()").Eval(row))
	assert.Nil(t, mustCompile(t, "nieznana").Eval(row))
	assert.Nil(t, mustCompile(t, "Math.pow(a, 2)").Eval(row))
	assert.Nil(t, mustCompile(t, "foo(1) + 1").Eval(row))
	assert.Nil(t, mustCompile(t, "a").Eval(nil))

	v := mustCompile(t, "nieznana * 2").Eval(row)
	f, ok := v.(float64)
	require.True(t, ok)
	assert.True(t, math.IsNaN(f))
}

func TestCompile_Refs(t *testing.T) {
	p := mustCompile(t, "Precio * Cantidad + Math.max(Precio, Año)")
	assert.Equal(t, []string{"Año", "Cantidad", "Precio"}, p.Refs())
	assert.Equal(t, "Precio * Cantidad + Math.max(Precio, Año)", p.Source())
}

func TestCompileAll_PerColumnErrors(t *testing.T) {
	set, errs := CompileAll([]Definition{
		{Column: "Total", Expression: "Precio * Cantidad"},
		{Column: "Roto", Expression: "Precio *"},
		{Column: "Vacio", Expression: "  "},
	})

	assert.Contains(t, set, "Total")
	assert.NotContains(t, set, "Roto")
	assert.NotContains(t, set, "Vacio")
	require.Contains(t, errs, "Roto")
	assert.Len(t, errs, 1)
}

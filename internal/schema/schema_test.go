package schema

import (
	"fmt"
	"testing"

	"github.com/brainless/csvexplorer/internal/csvparse"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInfer_MixedNumberAndStringIsString(t *testing.T) {
	cols := Infer([]string{"a"}, []csvparse.Row{{"1"}, {"2"}, {"x"}}, 0)
	require.Len(t, cols, 1)
	assert.Equal(t, "a", cols[0].Name)
	assert.Equal(t, TypeString, cols[0].Type)
	assert.Equal(t, []string{"1", "2", "x"}, cols[0].Examples)
}

func TestInfer_AllNumbers(t *testing.T) {
	cols := Infer([]string{"a"}, []csvparse.Row{{"1"}, {"2"}, {"3"}}, 0)
	require.Len(t, cols, 1)
	assert.Equal(t, TypeNumber, cols[0].Type)
}

func TestInfer_Dates(t *testing.T) {
	rows := []csvparse.Row{
		{"2024-01-02"},
		{"2024-01-02T10:30:00Z"},
		{"2024-01-02 10:30:00.123+05:30"},
		{"2024-01-02T10:30-0700"},
	}
	cols := Infer([]string{"when"}, rows, 0)
	assert.Equal(t, TypeDate, cols[0].Type)
}

func TestInfer_AllEmptyDefaultsToString(t *testing.T) {
	cols := Infer([]string{"a", "b"}, []csvparse.Row{{"", " "}, {"  ", ""}}, 0)
	require.Len(t, cols, 2)
	for _, c := range cols {
		assert.Equal(t, TypeString, c.Type)
		assert.Empty(t, c.Examples)
	}

	cols = Infer([]string{"a"}, nil, 0)
	assert.Equal(t, TypeString, cols[0].Type)
}

func TestInfer_NumberAndDateIsString(t *testing.T) {
	cols := Infer([]string{"a"}, []csvparse.Row{{"1"}, {"2024-01-01"}}, 0)
	assert.Equal(t, TypeString, cols[0].Type)
}

func TestInfer_EmptyCellsDoNotAffectType(t *testing.T) {
	cols := Infer([]string{"a"}, []csvparse.Row{{"1"}, {""}, {"  "}, {"2.5"}}, 0)
	assert.Equal(t, TypeNumber, cols[0].Type)
	assert.Equal(t, []string{"1", "2.5"}, cols[0].Examples)
}

func TestInfer_ExamplesAreTrimmedDedupedAndCapped(t *testing.T) {
	rows := []csvparse.Row{
		{" a "}, {"a"}, {"b"}, {"c"}, {"b"}, {"d"}, {"e"}, {"f"}, {"g"},
	}
	cols := Infer([]string{"x"}, rows, 0)
	assert.Equal(t, []string{"a", "b", "c", "d", "e"}, cols[0].Examples)
}

func TestInfer_SampleIsBoundedPrefix(t *testing.T) {
	rows := make([]csvparse.Row, 0, 300)
	for i := 0; i < 250; i++ {
		rows = append(rows, csvparse.Row{fmt.Sprint(i)})
	}
	// Past the default sample, so it must not affect the type.
	rows = append(rows, csvparse.Row{"not a number"})

	cols := Infer([]string{"n"}, rows, 0)
	assert.Equal(t, TypeNumber, cols[0].Type)

	cols = Infer([]string{"n"}, rows, len(rows))
	assert.Equal(t, TypeString, cols[0].Type)

	cols = Infer([]string{"n"}, []csvparse.Row{{"1"}, {"x"}}, 1)
	assert.Equal(t, TypeNumber, cols[0].Type)
}

func TestInfer_RaggedRows(t *testing.T) {
	rows := []csvparse.Row{
		{"1"},
		{"2", "x", "extra"},
	}
	cols := Infer([]string{"a", "b"}, rows, 0)
	require.Len(t, cols, 2)
	assert.Equal(t, TypeNumber, cols[0].Type)
	assert.Equal(t, TypeString, cols[1].Type)
	assert.Equal(t, []string{"x"}, cols[1].Examples)
}

func TestInfer_PreservesHeaderOrderAndDuplicates(t *testing.T) {
	cols := Infer([]string{"z", "a", "z"}, []csvparse.Row{{"1", "x", "2024-05-06"}}, 0)
	require.Len(t, cols, 3)
	assert.Equal(t, "z", cols[0].Name)
	assert.Equal(t, "a", cols[1].Name)
	assert.Equal(t, "z", cols[2].Name)
	assert.Equal(t, TypeDate, cols[2].Type)
}

func TestClassifyValue(t *testing.T) {
	cases := []struct {
		in   string
		want ColumnType
		ok   bool
	}{
		{"", "", false},
		{"   ", "", false},
		{"42", TypeNumber, true},
		{"-42", TypeNumber, true},
		{"+3.14", TypeNumber, true},
		{" 7 ", TypeNumber, true},
		{"1e5", TypeString, true},
		{"1,000", TypeString, true},
		{".5", TypeString, true},
		{"5.", TypeString, true},
		{"2024-02-29", TypeDate, true},
		{"2024-02-29T23:59:59.999Z", TypeDate, true},
		{"2024-02-29 08:00+0100", TypeDate, true},
		{"02/29/2024", TypeString, true},
		{"2024-2-9", TypeString, true},
		{"hello", TypeString, true},
	}

	for _, tc := range cases {
		got, ok := ClassifyValue(tc.in)
		assert.Equal(t, tc.ok, ok, "ok for %q", tc.in)
		assert.Equal(t, tc.want, got, "type for %q", tc.in)
	}
}

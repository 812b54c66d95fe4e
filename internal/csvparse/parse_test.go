package csvparse

import (
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func mustParse(t *testing.T, text string) []Row {
	t.Helper()
	rows, err := Parse(text, Options{})
	require.NoError(t, err)
	return rows
}

func TestParse_Simple(t *testing.T) {
	rows := mustParse(t, "a,b\n1,2\n")
	assert.Equal(t, []Row{{"a", "b"}, {"1", "2"}}, rows)
}

func TestParse_QuotedFieldWithComma(t *testing.T) {
	rows := mustParse(t, "a,b\n\"hello, world\",2\n")
	require.Len(t, rows, 2)
	assert.Equal(t, "hello, world", rows[1][0])
	assert.Equal(t, "2", rows[1][1])
}

func TestParse_EscapedQuotes(t *testing.T) {
	rows := mustParse(t, "a\n\"he said \"\"hi\"\"\"\n")
	require.Len(t, rows, 2)
	assert.Equal(t, `he said "hi"`, rows[1][0])
}

func TestParse_QuotedNewlines(t *testing.T) {
	rows := mustParse(t, "a,b\n\"line1\nline2\r\nline3\",x\n")
	require.Len(t, rows, 2)
	assert.Equal(t, "line1\nline2\r\nline3", rows[1][0])
	assert.Equal(t, "x", rows[1][1])
}

func TestParse_LineEndings(t *testing.T) {
	want := []Row{{"a", "b"}, {"1", "2"}, {"3", "4"}}

	assert.Equal(t, want, mustParse(t, "a,b\r\n1,2\r\n3,4\r\n"))
	assert.Equal(t, want, mustParse(t, "a,b\r1,2\r3,4\r"))
	assert.Equal(t, want, mustParse(t, "a,b\n1,2\r\n3,4\r"))
}

func TestParse_TrailingNewlineDoesNotChangeRowCount(t *testing.T) {
	with := mustParse(t, "a,b\n1,2\n")
	without := mustParse(t, "a,b\n1,2")
	assert.Equal(t, len(with), len(without))
	assert.Equal(t, with, without)

	withCRLF := mustParse(t, "a,b\r\n1,2\r\n")
	assert.Equal(t, with, withCRLF)
}

func TestParse_BlankLineInMiddleIsKept(t *testing.T) {
	rows := mustParse(t, "a\n\nb\n")
	assert.Equal(t, []Row{{"a"}, {""}, {"b"}}, rows)
}

func TestParse_EmptyFields(t *testing.T) {
	rows := mustParse(t, "a,,\"\",b\n")
	assert.Equal(t, []Row{{"a", "", "", "b"}}, rows)
}

func TestParse_RaggedRowsAreKept(t *testing.T) {
	rows := mustParse(t, "a,b,c\n1\n1,2,3,4\n")
	require.Len(t, rows, 3)
	assert.Len(t, rows[1], 1)
	assert.Len(t, rows[2], 4)
}

func TestParse_UnterminatedQuoteConsumesRest(t *testing.T) {
	rows := mustParse(t, "a,b\n\"open,field\nmore")
	require.Len(t, rows, 2)
	assert.Equal(t, Row{"open,field\nmore"}, rows[1])
}

func TestParse_QuoteInsideUnquotedField(t *testing.T) {
	// A quote mid-field toggles quoted state; the quote itself is dropped.
	rows := mustParse(t, "ab\"c,d\"e\n")
	assert.Equal(t, []Row{{"abc,de"}}, rows)
}

func TestParse_EmptyInput(t *testing.T) {
	rows := mustParse(t, "")
	assert.Equal(t, []Row{{""}}, rows)

	rows = mustParse(t, "\n")
	assert.Equal(t, []Row{{""}}, rows)
}

func TestParse_MaxRows(t *testing.T) {
	rows, err := Parse("a\n1\n2\n3\n", Options{MaxRows: 2})
	require.NoError(t, err)
	assert.Equal(t, []Row{{"a"}, {"1"}}, rows)

	rows, err = Parse("a\n1\n", Options{MaxRows: 10})
	require.NoError(t, err)
	assert.Equal(t, []Row{{"a"}, {"1"}}, rows)
}

func TestParse_UTF8Content(t *testing.T) {
	rows := mustParse(t, "ciudad,año\nSão Paulo,\"日本, 東京\"\n")
	require.Len(t, rows, 2)
	assert.Equal(t, Row{"ciudad", "año"}, rows[0])
	assert.Equal(t, Row{"São Paulo", "日本, 東京"}, rows[1])
}

func TestParse_InvalidInput(t *testing.T) {
	_, err := Parse("a,b\n\x00\x01", Options{})
	var invalid *InvalidInputError
	require.True(t, errors.As(err, &invalid))
	assert.Equal(t, 4, invalid.Offset)

	assert.Contains(t, err.Error(), "NUL byte")
}

func TestParse_InvalidUTF8IsReplaced(t *testing.T) {
	rows, err := Parse("name,city\nJos\xe9,M\xe9rida\n", Options{})
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, Row{"Jos\uFFFD", "M\uFFFDrida"}, rows[1])

	rows, err = ParseBytes([]byte{'a', ',', 0xff, 0xfe}, Options{})
	require.NoError(t, err)
	assert.Equal(t, []Row{{"a", "\uFFFD"}}, rows)
}

func TestFormat_RoundTrip(t *testing.T) {
	inputs := []string{
		"a,b\n1,2\n",
		"a,b\n\"hello, world\",2\n",
		"a\n\"he said \"\"hi\"\"\"\n",
		"x,y\n\"multi\nline\",\"\"\n,\n",
		"a\r\n\r\nb",
		"h\n\"\"\n",
	}

	for _, in := range inputs {
		first := mustParse(t, in)
		again := mustParse(t, Format(first))
		assert.Equal(t, first, again, "round trip of %q", in)
	}
}

func TestFormat_UsesCRLF(t *testing.T) {
	out := Format([]Row{{"a", "b"}, {"1", "x,y"}})
	assert.Equal(t, "a,b\r\n1,\"x,y\"\r\n", out)
}

func BenchmarkParse(b *testing.B) {
	var sb strings.Builder
	sb.WriteString("id,name,amount,date\n")
	for i := 0; i < 10000; i++ {
		sb.WriteString("1234,\"Doe, Jane\",42.50,2024-01-02\n")
	}
	text := sb.String()

	b.SetBytes(int64(len(text)))
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, err := Parse(text, Options{}); err != nil {
			b.Fatal(err)
		}
	}
}

// Package schema infers a lightweight column type for each CSV column from
// a bounded prefix sample of rows. The result is a hint for display; it is
// not a contract that rows are validated against.
package schema

import (
	"regexp"
	"strings"

	"github.com/brainless/csvexplorer/internal/csvparse"
)

// DefaultSampleSize is the number of leading data rows examined by Infer.
const DefaultSampleSize = 200

// MaxExamples bounds the example values kept per column.
const MaxExamples = 5

// ColumnType is the inferred type of a column.
type ColumnType string

const (
	TypeString ColumnType = "string"
	TypeNumber ColumnType = "number"
	TypeDate   ColumnType = "date"
)

// Column describes one header column.
type Column struct {
	Name     string     `json:"name"`
	Type     ColumnType `json:"type"`
	Examples []string   `json:"examples"`
}

type valueClass int

const (
	classEmpty valueClass = iota
	classString
	classNumber
	classDate
)

var (
	numberPattern = regexp.MustCompile(`^[+-]?\d+(\.\d+)?$`)
	datePattern   = regexp.MustCompile(`^\d{4}-\d{2}-\d{2}(?:[T ]\d{2}:\d{2}(?::\d{2}(?:\.\d+)?)?(?:Z|[+-]\d{2}:?\d{2})?)?$`)
)

func classify(v string) valueClass {
	s := strings.TrimSpace(v)
	switch {
	case s == "":
		return classEmpty
	case numberPattern.MatchString(s):
		return classNumber
	case datePattern.MatchString(s):
		return classDate
	default:
		return classString
	}
}

// ClassifyValue reports the type a single cell would contribute, and false
// when the cell is empty.
func ClassifyValue(v string) (ColumnType, bool) {
	switch classify(v) {
	case classNumber:
		return TypeNumber, true
	case classDate:
		return TypeDate, true
	case classString:
		return TypeString, true
	default:
		return "", false
	}
}

type accumulator struct {
	name     string
	seen     map[valueClass]struct{}
	examples *ExampleSet
}

func (a *accumulator) add(v string) {
	c := classify(v)
	if c == classEmpty {
		return
	}
	a.seen[c] = struct{}{}
	a.examples.Add(strings.TrimSpace(v))
}

func (a *accumulator) resolve() ColumnType {
	if len(a.seen) != 1 {
		// No values at all, or conflicting types: string is the fallback.
		return TypeString
	}
	for c := range a.seen {
		switch c {
		case classNumber:
			return TypeNumber
		case classDate:
			return TypeDate
		}
	}
	return TypeString
}

// Infer assigns a type and example values to each header column using at
// most sampleSize leading rows. A sampleSize of zero or less uses
// DefaultSampleSize. Cells missing from short rows count as empty.
func Infer(headers []string, rows []csvparse.Row, sampleSize int) []Column {
	if sampleSize <= 0 {
		sampleSize = DefaultSampleSize
	}

	cols := make([]*accumulator, len(headers))
	for i, name := range headers {
		cols[i] = &accumulator{
			name:     name,
			seen:     make(map[valueClass]struct{}, 3),
			examples: NewExampleSet(MaxExamples),
		}
	}

	limit := min(len(rows), sampleSize)
	for r := 0; r < limit; r++ {
		row := rows[r]
		for c, col := range cols {
			if c >= len(row) {
				break
			}
			col.add(row[c])
		}
	}

	out := make([]Column, len(cols))
	for i, col := range cols {
		out[i] = Column{
			Name:     col.name,
			Type:     col.resolve(),
			Examples: col.examples.Values(),
		}
	}
	return out
}

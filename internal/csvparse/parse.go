// Package csvparse is a small CSV tokenizer for comma-delimited text.
//
// It handles CRLF, LF and bare CR line endings and quoted fields with
// escaped quotes (""). Quoted fields may span lines. It does not try to
// cover every CSV dialect: there is no delimiter detection, BOM handling
// or validation of row widths.
package csvparse

import (
	"bytes"
	"fmt"
	"strings"
	"unicode/utf8"
)

// Row is one parsed record. Rows are not padded or truncated to the
// header width.
type Row []string

// Options controls parsing.
type Options struct {
	// MaxRows stops parsing after the row that reaches the bound.
	// Zero or negative means no bound.
	MaxRows int
}

// InvalidInputError is returned when the input is not text at all.
// Malformed CSV is never an error; it produces best-effort rows.
type InvalidInputError struct {
	Offset int
	Reason string
}

func (e *InvalidInputError) Error() string {
	return fmt.Sprintf("csv input is not text: %s at byte %d", e.Reason, e.Offset)
}

// Parse splits text into rows of fields. Invalid UTF-8 sequences are
// replaced with U+FFFD; callers that know the source charset should decode
// before parsing.
func Parse(text string, opts Options) ([]Row, error) {
	if err := checkText(text); err != nil {
		return nil, err
	}
	if !utf8.ValidString(text) {
		text = strings.ToValidUTF8(text, "\uFFFD")
	}
	return parse(text, opts.MaxRows), nil
}

// ParseBytes is Parse for a byte slice, such as an HTTP response body.
func ParseBytes(data []byte, opts Options) ([]Row, error) {
	return Parse(string(data), opts)
}

// checkText rejects binary input. A NUL byte never appears in a text export.
func checkText(text string) error {
	if i := strings.IndexByte(text, 0); i >= 0 {
		return &InvalidInputError{Offset: i, Reason: "NUL byte"}
	}
	return nil
}

func parse(text string, maxRows int) []Row {
	var (
		rows     []Row
		row      Row
		field    strings.Builder
		inQuotes bool
	)

	pushField := func() {
		row = append(row, field.String())
		field.Reset()
	}
	pushRow := func() {
		rows = append(rows, row)
		row = nil
	}

	// Scanning bytes is safe for UTF-8: the delimiters are ASCII and never
	// occur inside a multi-byte sequence.
	n := len(text)
	i := 0
	for i < n {
		ch := text[i]

		if inQuotes {
			if ch == '"' {
				if i+1 < n && text[i+1] == '"' {
					field.WriteByte('"')
					i += 2
					continue
				}
				inQuotes = false
				i++
				continue
			}
			// Copy the run up to the next quote in one go.
			j := strings.IndexByte(text[i:], '"')
			if j < 0 {
				field.WriteString(text[i:])
				i = n
				break
			}
			field.WriteString(text[i : i+j])
			i += j
			continue
		}

		switch ch {
		case '"':
			inQuotes = true
			i++
		case ',':
			pushField()
			i++
		case '\n', '\r':
			if ch == '\r' && i+1 < n && text[i+1] == '\n' {
				i += 2
			} else {
				i++
			}
			pushField()
			pushRow()
			if maxRows > 0 && len(rows) >= maxRows {
				return rows
			}
		default:
			field.WriteByte(ch)
			i++
		}
	}

	pushField()
	// A file ending in a newline would otherwise yield a spurious [""] row.
	trailingEmpty := len(row) == 1 && row[0] == "" && n > 0 && (text[n-1] == '\n' || text[n-1] == '\r')
	if !trailingEmpty {
		pushRow()
	}
	return rows
}

// Format serializes rows with comma separators and CRLF terminators,
// quoting only the fields that need it.
func Format(rows []Row) string {
	var buf bytes.Buffer
	for _, row := range rows {
		for j, f := range row {
			if j > 0 {
				buf.WriteByte(',')
			}
			// A lone empty field is quoted so it is not read back as a blank line.
			if strings.ContainsAny(f, ",\"\r\n") || (len(row) == 1 && f == "") {
				buf.WriteByte('"')
				buf.WriteString(strings.ReplaceAll(f, `"`, `""`))
				buf.WriteByte('"')
			} else {
				buf.WriteString(f)
			}
		}
		buf.WriteString("\r\n")
	}
	return buf.String()
}

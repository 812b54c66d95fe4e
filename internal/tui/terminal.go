package tui

import (
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"unicode/utf8"

	"golang.org/x/term"
)

const (
	defaultWidth  = 80
	minColumn     = 3
	maxColumn     = 50
	maxTableLines = 20
)

// TerminalWidth returns the width of stdout, falling back to $COLUMNS and
// then to 80 when stdout is not a terminal.
func TerminalWidth() int {
	if width, _, err := term.GetSize(int(os.Stdout.Fd())); err == nil && width > 0 {
		return width
	}
	if w := os.Getenv("COLUMNS"); w != "" {
		if val, err := strconv.Atoi(w); err == nil && val > 0 {
			return val
		}
	}
	return defaultWidth
}

// truncateString shortens s to maxLen runes with an ellipsis
func truncateString(s string, maxLen int) string {
	if utf8.RuneCountInString(s) <= maxLen {
		return s
	}
	r := []rune(s)
	if maxLen <= 3 {
		return string(r[:maxLen])
	}
	return string(r[:maxLen-3]) + "..."
}

// columnWidths sizes each column to its widest cell, capped at maxColumn,
// then narrows the widest columns until the table fits within width.
func columnWidths(headers []string, rows [][]string, width int) []int {
	widths := make([]int, len(headers))
	for i, h := range headers {
		widths[i] = max(minColumn, utf8.RuneCountInString(h))
	}
	for _, row := range rows {
		for j, cell := range row {
			if j < len(widths) {
				widths[j] = max(widths[j], utf8.RuneCountInString(cell))
			}
		}
	}
	for i := range widths {
		widths[i] = min(widths[i], maxColumn)
	}

	// Each column costs its width plus " │" padding, plus the leading "│".
	total := func() int {
		sum := 1
		for _, w := range widths {
			sum += w + 3
		}
		return sum
	}
	for total() > width {
		widest := 0
		for i, w := range widths {
			if w > widths[widest] {
				widest = i
			}
		}
		if widths[widest] <= minColumn {
			break
		}
		widths[widest]--
	}
	return widths
}

// renderTable writes a bordered table of at most maxTableLines rows
func renderTable(out io.Writer, headers []string, rows [][]string, width int) {
	if len(headers) == 0 {
		return
	}
	shown := rows
	if len(shown) > maxTableLines {
		shown = shown[:maxTableLines]
	}
	widths := columnWidths(headers, shown, width)

	border := func(left, mid, right string) {
		var sb strings.Builder
		sb.WriteString(left)
		for i, w := range widths {
			sb.WriteString(strings.Repeat("─", w+2))
			if i < len(widths)-1 {
				sb.WriteString(mid)
			}
		}
		sb.WriteString(right)
		fmt.Fprintln(out, sb.String())
	}
	line := func(cells []string) {
		var sb strings.Builder
		sb.WriteString("│")
		for i, w := range widths {
			cell := ""
			if i < len(cells) {
				cell = cells[i]
			}
			cell = truncateString(cell, w)
			sb.WriteString(" " + cell + strings.Repeat(" ", w-utf8.RuneCountInString(cell)) + " │")
		}
		fmt.Fprintln(out, sb.String())
	}

	border("╭", "┬", "╮")
	line(headers)
	border("├", "┼", "┤")
	for _, row := range shown {
		line(row)
	}
	border("╰", "┴", "╯")

	if len(rows) > len(shown) {
		fmt.Fprintf(out, "... and %d more rows\n", len(rows)-len(shown))
	}
}

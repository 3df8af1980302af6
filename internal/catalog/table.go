package catalog

import (
	"fmt"
	"strings"

	apperrors "github.com/Adithya-Monish-Kumar-K/product-atlas/pkg/errors"
)

// TableParser splits delimited text into rows of cells.
type TableParser func(text string) ([][]string, error)

// ParserFor returns the table parser registered under name ("lenient" or
// "strict").
func ParserFor(name string) (TableParser, error) {
	switch name {
	case "", "lenient":
		return func(text string) ([][]string, error) { return ParseTable(text), nil }, nil
	case "strict":
		return ParseTableStrict, nil
	default:
		return nil, fmt.Errorf("unknown table parser %q", name)
	}
}

// ParseTable splits text into lines and each line into cells. A comma is a
// delimiter only when an even number of double quotes precedes it on the
// line, which lets quoted cells contain commas. One leading and one trailing
// quote are stripped from every cell before trimming.
//
// Lines with an odd number of quotes are split unpredictably and are not
// reported; use ParseTableStrict when the source cannot be trusted.
func ParseTable(text string) [][]string {
	lines := strings.Split(text, "\n")
	rows := make([][]string, 0, len(lines))
	for _, line := range lines {
		line = strings.TrimSuffix(line, "\r")
		if strings.TrimSpace(line) == "" {
			continue
		}
		rows = append(rows, splitLine(line))
	}
	return rows
}

func splitLine(line string) []string {
	cells := make([]string, 0, 16)
	quotes := 0
	start := 0
	for i := 0; i < len(line); i++ {
		switch line[i] {
		case '"':
			quotes++
		case ',':
			if quotes%2 == 0 {
				cells = append(cells, cleanCell(line[start:i]))
				start = i + 1
			}
		}
	}
	return append(cells, cleanCell(line[start:]))
}

func cleanCell(v string) string {
	v = strings.TrimPrefix(v, `"`)
	v = strings.TrimSuffix(v, `"`)
	return strings.TrimSpace(v)
}

type quoteState int

const (
	stateFieldStart quoteState = iota
	stateUnquoted
	stateQuoted
	stateQuoteInQuoted
)

// ParseTableStrict parses text with an explicit quoted-field state machine.
// Quoted cells may contain commas, line breaks and "" escapes. An unclosed
// quote, or a quote inside an unquoted cell, fails with ErrMalformedQuoting.
// Blank lines are skipped and cells are trimmed, as in ParseTable.
func ParseTableStrict(text string) ([][]string, error) {
	var (
		rows  [][]string
		row   []string
		cell  strings.Builder
		state = stateFieldStart
		line  = 1
		quote = 0
	)
	endCell := func() {
		row = append(row, strings.TrimSpace(cell.String()))
		cell.Reset()
	}
	endRow := func() {
		endCell()
		if len(row) > 1 || row[0] != "" {
			rows = append(rows, row)
		}
		row = nil
	}

	for i := 0; i < len(text); i++ {
		c := text[i]
		switch state {
		case stateFieldStart, stateUnquoted:
			switch c {
			case '"':
				if state == stateUnquoted && strings.TrimSpace(cell.String()) != "" {
					return nil, malformed(line, "quote inside unquoted cell")
				}
				cell.Reset()
				state = stateQuoted
				quote = line
			case ',':
				endCell()
				state = stateFieldStart
			case '\r':
				if i+1 < len(text) && text[i+1] == '\n' {
					continue
				}
				cell.WriteByte(c)
				state = stateUnquoted
			case '\n':
				endRow()
				state = stateFieldStart
				line++
			default:
				cell.WriteByte(c)
				state = stateUnquoted
			}
		case stateQuoted:
			if c == '"' {
				state = stateQuoteInQuoted
				continue
			}
			if c == '\n' {
				line++
			}
			cell.WriteByte(c)
		case stateQuoteInQuoted:
			switch c {
			case '"':
				cell.WriteByte('"')
				state = stateQuoted
			case ',':
				endCell()
				state = stateFieldStart
			case '\r':
				if i+1 < len(text) && text[i+1] == '\n' {
					continue
				}
				return nil, malformed(line, "unexpected carriage return after closing quote")
			case '\n':
				endRow()
				state = stateFieldStart
				line++
			case ' ', '\t':
			default:
				return nil, malformed(line, "text after closing quote")
			}
		}
	}

	if state == stateQuoted {
		return nil, malformed(quote, "unclosed quote")
	}
	if state != stateFieldStart || len(row) > 0 {
		endRow()
	}
	return rows, nil
}

func malformed(line int, reason string) error {
	return fmt.Errorf("line %d: %s: %w", line, reason, apperrors.ErrMalformedQuoting)
}

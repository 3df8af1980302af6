package resolver

import (
	"fmt"
	"io"
	"strconv"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
)

// WriteReport prints a human-readable summary of res: a one-line tally,
// then a table per non-empty section (fuzzy matches, collisions,
// unmatched guests).
func WriteReport(w io.Writer, res *Result) error {
	if _, err := fmt.Fprintf(w, "Exact: %d  Fuzzy: %d  Unmatched: %d  Collisions: %d\n",
		len(res.Exact), len(res.Fuzzy), len(res.Unmatched), len(res.Collisions)); err != nil {
		return err
	}

	if len(res.Fuzzy) > 0 {
		rows := make([]table.Row, 0, len(res.Fuzzy))
		for _, m := range res.Fuzzy {
			rows = append(rows, table.Row{m.Guest, m.File, strconv.FormatFloat(m.Score, 'f', 2, 64)})
		}
		if err := writeSection(w, "Fuzzy matches", table.Row{"Guest", "File", "Score"}, rows, 3); err != nil {
			return err
		}
	}

	if len(res.Collisions) > 0 {
		rows := make([]table.Row, 0, len(res.Collisions))
		for _, c := range res.Collisions {
			rows = append(rows, table.Row{c.Key, c.PreviousGuest, c.PreviousFile, c.Guest, c.File})
		}
		header := table.Row{"Key", "Overwritten guest", "Overwritten file", "Guest", "File"}
		if err := writeSection(w, "Key collisions", header, rows, 0); err != nil {
			return err
		}
	}

	if len(res.Unmatched) > 0 {
		rows := make([]table.Row, 0, len(res.Unmatched))
		for _, g := range res.Unmatched {
			rows = append(rows, table.Row{g})
		}
		if err := writeSection(w, "Unmatched guests", table.Row{"Guest"}, rows, 0); err != nil {
			return err
		}
	}
	return nil
}

// writeSection renders one titled table. rightCol is the 1-based column to
// right-align, or 0 for none.
func writeSection(w io.Writer, title string, header table.Row, rows []table.Row, rightCol int) error {
	tw := table.NewWriter()
	tw.SetStyle(table.StyleRounded)
	tw.SetTitle(title)
	tw.AppendHeader(header)
	tw.AppendRows(rows)
	if rightCol > 0 {
		tw.SetColumnConfigs([]table.ColumnConfig{{
			Number:      rightCol,
			Align:       text.AlignRight,
			AlignHeader: text.AlignLeft,
		}})
	}
	_, err := fmt.Fprintln(w, tw.Render())
	return err
}

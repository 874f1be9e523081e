package formatting

import (
	"fmt"
	"io"
	"strings"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"

	strs "dashsync/pkg/strings"
)

// shortChecksumLength is how much of a checksum the table shows.
const shortChecksumLength = 12

// TableFormatter provides rich table output formatting
type TableFormatter struct {
	options Options
}

// NewTableFormatter creates a new table formatter
func NewTableFormatter(options Options) Formatter {
	return &TableFormatter{
		options: options,
	}
}

// FormatReport renders the dashboards and, when present, the problems as two tables.
func (f *TableFormatter) FormatReport(w io.Writer, report Report) error {
	if len(report.Dashboards) == 0 && len(report.Problems) == 0 {
		_, err := fmt.Fprintln(w, f.color(text.FgYellow, "No dashboards found"))
		return err
	}

	if len(report.Dashboards) > 0 {
		t := f.createTable(w)
		t.AppendHeader(f.header("Source", "Key", "UID", "Title", "Tags", "Checksum"))
		for _, d := range report.Dashboards {
			t.AppendRow(table.Row{
				d.Source,
				d.PayloadKey,
				d.UID,
				f.color(text.FgHiWhite, d.Title),
				strings.Join(d.Tags, ","),
				shorten(d.Checksum, shortChecksumLength),
			})
		}
		t.Render()
	}

	if len(report.Problems) > 0 {
		if len(report.Dashboards) > 0 {
			fmt.Fprintln(w)
		}
		t := f.createTable(w)
		t.AppendHeader(f.header("Source", "Key", "Error"))
		for _, p := range report.Problems {
			t.AppendRow(table.Row{p.Source, p.PayloadKey, f.color(text.FgRed, strs.Truncate(p.Error, strs.MaxTableCellLen))})
		}
		t.Render()
	}

	if f.options.Quiet {
		return nil
	}
	_, err := fmt.Fprintf(w, "\n%s %s %s, %s %s\n",
		f.color(text.FgHiBlue, "Total:"),
		f.color(text.FgHiWhite, fmt.Sprint(len(report.Dashboards))),
		f.color(text.FgHiBlue, "dashboards"),
		f.color(text.FgHiWhite, fmt.Sprint(len(report.Problems))),
		f.color(text.FgHiBlue, "invalid"))
	return err
}

// GetOptions returns the current formatter options
func (f *TableFormatter) GetOptions() Options {
	return f.options
}

// createTable creates a new table with standard styling
func (f *TableFormatter) createTable(w io.Writer) table.Writer {
	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.SetStyle(table.StyleRounded)
	return t
}

func (f *TableFormatter) header(names ...string) table.Row {
	row := make(table.Row, 0, len(names))
	for _, name := range names {
		row = append(row, f.color(text.FgHiCyan, strings.ToUpper(name)))
	}
	return row
}

func (f *TableFormatter) color(c text.Color, s string) string {
	if !f.options.Color {
		return s
	}
	return c.Sprint(s)
}

func shorten(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}

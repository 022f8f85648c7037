package cmd

import (
	"fmt"
	"io"
	"os"

	"github.com/ivyleavedtoadflax/remote.py/pkg/utils/pager"
	"github.com/ivyleavedtoadflax/remote.py/pkg/utils/printer"
	"github.com/jedib0t/go-pretty/v6/table"
)

// stdout receives tables and values; tests replace it with a buffer.
var stdout io.Writer = os.Stdout

// listing is what a list command hands to render.
type listing struct {
	Title  string
	Header table.Row
	// Rows is called once the table writer exists, so rows can use its colours.
	Rows   func(t *printer.TableWriter) []table.Row
	Footer table.Row
	// Value is encoded instead of the table for json and yaml output.
	Value interface{}
}

func (o *listOutput) render(l *listing) error {
	out := stdout
	var page *pager.Pager
	if o.Pager {
		var err error
		page, err = pager.New(out)
		if err != nil {
			return err
		}
		if err = page.Start(); err != nil {
			return err
		}
		defer page.Close()
		out = page
	}
	if printer.IsStructured(o.Output) {
		return printer.WriteStructured(out, o.Output, l.Value)
	}
	t, err := printer.GetTableWriter(o.Output, o.TableTheme, o.SortBy, !page.HasColors(), page != nil)
	if err != nil {
		return err
	}
	rows := l.Rows(t)
	if l.Footer != nil {
		fmt.Fprintln(out, t.RenderTableWithFooter(printer.String(l.Title), l.Header, rows, l.Footer))
	} else {
		fmt.Fprintln(out, t.RenderTable(printer.String(l.Title), l.Header, rows))
	}
	return nil
}

// details prints a single-object panel.
func details(title string, fields func(t *printer.TableWriter) []printer.Field) error {
	t, err := printer.GetTableWriter(printer.OutputTable, "default", nil, false, false)
	if err != nil {
		return err
	}
	fmt.Fprintln(stdout, t.RenderDetails(title, fields(t)))
	return nil
}

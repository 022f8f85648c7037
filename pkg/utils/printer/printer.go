// Package printer renders command output as tables, detail panels or
// structured documents.
package printer

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
	"github.com/mattn/go-isatty"
	"golang.org/x/term"
	"gopkg.in/yaml.v3"
)

var ErrUnknownOutput = errors.New("unknown output format")

// Formats accepted by list commands; the table ones go through go-pretty.
const (
	OutputTable      = "table"
	OutputJSON       = "json"
	OutputJSONIndent = "json-indent"
	OutputYAML       = "yaml"
	OutputCSV        = "csv"
	OutputTSV        = "tsv"
	OutputHTML       = "html"
	OutputMarkdown   = "markdown"
)

// IsStructured reports whether the format is a document rather than a table.
func IsStructured(output string) bool {
	switch strings.ToLower(output) {
	case OutputJSON, OutputJSONIndent, OutputYAML:
		return true
	}
	return false
}

type TableWriter struct {
	t              table.Writer
	r              func() string
	ColorHiWhite   colorPrint
	ColorWarn      colorPrint
	ColorErr       colorPrint
	ColorOK        colorPrint
	IsColorEnabled bool
	IsTerminal     bool
}

func parseSort(sortBy []string) ([]table.SortBy, error) {
	sort := []table.SortBy{}
	for _, item := range sortBy {
		name, mode, ok := strings.Cut(item, ":")
		if !ok {
			return nil, fmt.Errorf("sort item %q must be COLUMN:MODE", item)
		}
		m := table.Asc
		switch mode {
		case "asc":
		case "dsc":
			m = table.Dsc
		case "ascnum":
			m = table.AscNumeric
		case "dscnum":
			m = table.DscNumeric
		default:
			return nil, fmt.Errorf("sort mode %q is not one of asc|dsc|ascnum|dscnum", mode)
		}
		sort = append(sort, table.SortBy{Name: name, Mode: m})
	}
	return sort, nil
}

// GetTableWriter prepares a writer for one of the table formats. withPager
// tests stdin for a terminal, since stdout then feeds the pager.
func GetTableWriter(output string, theme string, sortBy []string, forceColorOff bool, withPager bool) (*TableWriter, error) {
	sort, err := parseSort(sortBy)
	if err != nil {
		return nil, err
	}
	t := table.NewWriter()
	var render func() string
	switch strings.ToLower(output) {
	case "", OutputTable:
		render = t.Render
	case OutputHTML:
		render = t.RenderHTML
	case OutputCSV:
		render = t.RenderCSV
	case OutputTSV:
		render = t.RenderTSV
	case OutputMarkdown:
		render = t.RenderMarkdown
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnknownOutput, output)
	}

	fd := os.Stdout.Fd()
	if withPager {
		fd = os.Stdin.Fd()
	}
	isTerminal := isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd)
	isColor := isTerminal && theme == "default"
	if _, ok := os.LookupEnv("NO_COLOR"); ok || os.Getenv("CLICOLOR") == "0" || forceColorOff {
		isColor = false
	}

	w := &TableWriter{
		t:              t,
		r:              render,
		ColorHiWhite:   colorPrint{c: text.Colors{text.FgHiWhite}, enable: isColor},
		ColorWarn:      colorPrint{c: text.Colors{text.FgHiYellow}, enable: isColor},
		ColorErr:       colorPrint{c: text.Colors{text.FgHiRed}, enable: isColor},
		ColorOK:        colorPrint{c: text.Colors{text.FgHiGreen}, enable: isColor},
		IsColorEnabled: isColor,
		IsTerminal:     isTerminal,
	}
	if len(sort) > 0 {
		t.SortBy(sort)
	}
	if isColor {
		t.SetStyle(table.StyleColoredBlackOnCyanWhite)
	} else {
		t.SetStyle(table.StyleDefault)
		switch theme {
		case "frame":
			t.SetStyle(table.StyleRounded)
			t.Style().Options.SeparateColumns = false
		case "box":
			t.SetStyle(table.StyleRounded)
		default:
			t.Style().Options.DrawBorder = false
			t.Style().Options.SeparateColumns = false
		}
	}
	if isTerminal && !withPager {
		if width, _, err := term.GetSize(int(os.Stdout.Fd())); err == nil && width > 0 {
			t.SetAllowedRowLength(max(width, 40))
		}
	}
	t.Style().Format.Header = text.FormatDefault
	t.Style().Format.Footer = text.FormatDefault
	return w, nil
}

func (t *TableWriter) RenderTable(title *string, header table.Row, rows []table.Row) string {
	if title != nil {
		t.t.SetTitle(t.ColorHiWhite.Sprint(*title))
	}
	t.t.AppendHeader(header)
	for _, row := range rows {
		t.t.AppendRow(row)
	}
	return t.r()
}

// RenderTableWithFooter is RenderTable with a totals row.
func (t *TableWriter) RenderTableWithFooter(title *string, header table.Row, rows []table.Row, footer table.Row) string {
	t.t.AppendFooter(footer)
	return t.RenderTable(title, header, rows)
}

// State colours an instance or alarm state for terminal output.
func (t *TableWriter) State(state string) string {
	switch strings.ToLower(state) {
	case "running", "ok", "enabled", "active", "available", "completed", "in-use":
		return t.ColorOK.Sprint(state)
	case "pending", "stopping", "insufficient_data", "optimizing", "modifying":
		return t.ColorWarn.Sprint(state)
	case "stopped", "terminated", "shutting-down", "alarm", "disabled", "error", "failed":
		return t.ColorErr.Sprint(state)
	}
	return state
}

// Field is one labelled line of a details panel.
type Field struct {
	Name  string
	Value string
}

// RenderDetails draws a two-column panel for a single object. Empty values
// are shown as "-".
func (t *TableWriter) RenderDetails(title string, fields []Field) string {
	t.t.SetTitle(t.ColorHiWhite.Sprint(title))
	for _, f := range fields {
		v := f.Value
		if v == "" {
			v = "-"
		}
		t.t.AppendRow(table.Row{f.Name, v})
	}
	return t.r()
}

// WriteStructured encodes v as json, indented json or yaml.
func WriteStructured(w io.Writer, output string, v interface{}) error {
	switch strings.ToLower(output) {
	case OutputJSON:
		return json.NewEncoder(w).Encode(v)
	case OutputJSONIndent:
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(v)
	case OutputYAML:
		enc := yaml.NewEncoder(w)
		defer enc.Close()
		return enc.Encode(v)
	}
	return fmt.Errorf("%w: %s", ErrUnknownOutput, output)
}

type colorPrint struct {
	c      text.Colors
	enable bool
}

func (c *colorPrint) Sprint(a ...interface{}) string {
	if c.enable {
		return c.c.Sprint(a...)
	}
	return fmt.Sprint(a...)
}

func (c *colorPrint) Sprintf(format string, a ...interface{}) string {
	if c.enable {
		return c.c.Sprintf(format, a...)
	}
	return fmt.Sprintf(format, a...)
}

func String(s string) *string {
	return &s
}

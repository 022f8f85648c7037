// Package choice shows an arrow-key pick list in the terminal.
package choice

import (
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/bubbles/list"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

const listHeight = 14

var ErrCancelled = errors.New("selection cancelled")

var (
	titleStyle        = lipgloss.NewStyle().MarginLeft(2)
	itemStyle         = lipgloss.NewStyle().PaddingLeft(4)
	selectedItemStyle = lipgloss.NewStyle().PaddingLeft(2).Foreground(lipgloss.Color("170"))
	paginationStyle   = list.DefaultStyles().PaginationStyle.PaddingLeft(4)
	helpStyle         = list.DefaultStyles().HelpStyle.PaddingLeft(4).PaddingBottom(1)
)

type item struct {
	index int
	label string
}

func (i item) FilterValue() string { return i.label }

type itemDelegate struct {
	count int
}

func (d itemDelegate) Height() int                             { return 1 }
func (d itemDelegate) Spacing() int                            { return 0 }
func (d itemDelegate) Update(_ tea.Msg, _ *list.Model) tea.Cmd { return nil }
func (d itemDelegate) Render(w io.Writer, m list.Model, index int, listItem list.Item) {
	i, ok := listItem.(item)
	if !ok {
		return
	}
	digits := len(fmt.Sprintf("%d", d.count))
	str := fmt.Sprintf("%*d. %s", digits, index+1, i.label)
	if index == m.Index() {
		fmt.Fprint(w, selectedItemStyle.Render("> "+str))
		return
	}
	fmt.Fprint(w, itemStyle.Render(str))
}

type model struct {
	list     list.Model
	selected int
	quitting bool
}

func newModel(title string, labels []string, height int) *model {
	items := make([]list.Item, len(labels))
	for i, l := range labels {
		items[i] = item{index: i, label: l}
	}
	l := list.New(items, itemDelegate{count: len(items)}, 20, height)
	l.Title = title
	l.SetShowStatusBar(false)
	l.SetFilteringEnabled(len(items) > listHeight)
	l.Styles.Title = titleStyle
	l.Styles.PaginationStyle = paginationStyle
	l.Styles.HelpStyle = helpStyle
	return &model{list: l, selected: -1}
}

func (m *model) Init() tea.Cmd {
	return nil
}

func (m *model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.list.SetWidth(msg.Width)
		return m, nil
	case tea.KeyMsg:
		if m.list.FilterState() == list.Filtering {
			break
		}
		switch msg.String() {
		case "q", "esc", "ctrl+c":
			m.quitting = true
			return m, tea.Quit
		case "enter":
			if i, ok := m.list.SelectedItem().(item); ok {
				m.selected = i.index
			}
			return m, tea.Quit
		}
	}
	var cmd tea.Cmd
	m.list, cmd = m.list.Update(msg)
	return m, cmd
}

func (m *model) View() string {
	if m.selected >= 0 || m.quitting {
		return ""
	}
	return "\n" + m.list.View()
}

// Pick shows labels and returns the index the user selected, or
// ErrCancelled when the list was closed without a selection.
func Pick(title string, labels []string) (int, error) {
	if len(labels) == 0 {
		return -1, errors.New("nothing to choose from")
	}
	height := listHeight
	if len(labels)+4 < height {
		height = len(labels) + 4
	}
	m := newModel(title, labels, height)
	if _, err := tea.NewProgram(m).Run(); err != nil {
		return -1, err
	}
	if m.quitting || m.selected < 0 {
		return -1, ErrCancelled
	}
	return m.selected, nil
}

// Labels joins columns of each row into a single aligned label.
func Labels(rows [][]string) []string {
	widths := []int{}
	for _, r := range rows {
		for i, c := range r {
			if i >= len(widths) {
				widths = append(widths, 0)
			}
			widths[i] = max(widths[i], len(c))
		}
	}
	labels := make([]string, len(rows))
	for n, r := range rows {
		parts := make([]string, len(r))
		for i, c := range r {
			parts[i] = fmt.Sprintf("%-*s", widths[i], c)
		}
		labels[n] = strings.TrimRight(strings.Join(parts, "  "), " ")
	}
	return labels
}

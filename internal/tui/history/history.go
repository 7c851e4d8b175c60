package history

import (
	"fmt"
	"time"

	"github.com/charmbracelet/bubbles/table"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"stageq/internal/storage"
	"stageq/internal/tui/styles"
)

const listLimit = 100

type Model struct {
	Store   *storage.Store
	Table   table.Model
	Records []storage.Record
	Err     error

	Width  int
	Height int
}

func NewModel(store *storage.Store) Model {
	columns := []table.Column{
		{Title: "Started", Width: 20},
		{Title: "Target", Width: 30},
		{Title: "Mode", Width: 6},
		{Title: "Reqs", Width: 8},
		{Title: "Errors", Width: 8},
		{Title: "p95", Width: 10},
		{Title: "Result", Width: 6},
	}

	t := table.New(
		table.WithColumns(columns),
		table.WithFocused(true),
		table.WithHeight(10),
	)

	s := table.DefaultStyles()
	s.Header = s.Header.
		BorderStyle(lipgloss.NormalBorder()).
		BorderForeground(lipgloss.Color("240")).
		BorderBottom(true).
		Bold(false)
	s.Selected = s.Selected.
		Foreground(lipgloss.Color("229")).
		Background(lipgloss.Color("57")).
		Bold(false)
	t.SetStyles(s)

	m := Model{
		Store: store,
		Table: t,
	}
	m.Refresh()
	return m
}

func (m *Model) Refresh() {
	if m.Store == nil {
		return
	}
	m.Records, m.Err = m.Store.List(listLimit)
	m.Table.SetRows(Rows(m.Records))
}

// Rows renders records as table rows, newest first.
func Rows(records []storage.Record) []table.Row {
	rows := make([]table.Row, len(records))
	for i, rec := range records {
		rep := rec.Report
		result := "PASS"
		if !rep.Passed {
			result = "FAIL"
		}
		rows[i] = table.Row{
			rep.StartedAt.Local().Format(time.DateTime),
			rep.Target,
			string(rep.Mode),
			fmt.Sprintf("%d", rep.Summary.Count),
			fmt.Sprintf("%.2f%%", rep.Summary.ErrorRate()*100),
			rep.Summary.Quantile(95).Round(time.Millisecond).String(),
			result,
		}
	}
	return rows
}

// Selected returns the highlighted record, if any.
func (m Model) Selected() *storage.Record {
	i := m.Table.Cursor()
	if i < 0 || i >= len(m.Records) {
		return nil
	}
	return &m.Records[i]
}

func (m Model) Init() tea.Cmd {
	return nil
}

func (m Model) Update(msg tea.Msg) (Model, tea.Cmd) {
	var cmd tea.Cmd
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.Width = msg.Width
		m.Height = msg.Height
		m.Table.SetWidth(msg.Width - 4)
	}

	m.Table, cmd = m.Table.Update(msg)
	return m, cmd
}

func (m Model) View() string {
	if m.Store == nil {
		return styles.Subtle.Render("History is disabled.")
	}
	if m.Err != nil {
		return styles.Error.Render(fmt.Sprintf("Cannot read history: %v", m.Err))
	}
	return styles.Box.Render(m.Table.View())
}

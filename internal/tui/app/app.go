// Package app is the interactive dashboard shown with --tui: live progress
// while the run is going, then the result and run history.
package app

import (
	"context"
	"fmt"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"stageq/internal/config"
	"stageq/internal/report"
	"stageq/internal/runner"
	"stageq/internal/sample"
	"stageq/internal/storage"
	"stageq/internal/tui/history"
	"stageq/internal/tui/live"
	"stageq/internal/tui/result"
	"stageq/internal/tui/styles"
)

type ClearStatusMsg struct{}

func clearStatusCmd() tea.Cmd {
	return tea.Tick(3*time.Second, func(_ time.Time) tea.Msg {
		return ClearStatusMsg{}
	})
}

type ViewID int

const (
	ViewLive ViewID = iota
	ViewResult
	ViewHistory
)

// DoneMsg is sent once the run has returned.
type DoneMsg struct {
	Report *runner.Report
	Err    error
}

// Model owns the run's screen. Stop cancels the run; the runner still drains
// and reports, which arrives as DoneMsg.
type Model struct {
	Cfg     *config.Config
	Updates runner.ProgressChan
	Stop    context.CancelFunc
	Store   *storage.Store
	Samples func() []sample.Sample

	RunActive bool
	Stopping  bool
	Err       error

	Width  int
	Height int

	CurrentView ViewID
	MenuItems   []string

	LiveView    live.Model
	ResultView  result.Model
	HistoryView history.Model

	StatusMsg string
}

func NewModel(cfg *config.Config, updates runner.ProgressChan, stop context.CancelFunc, store *storage.Store, samples func() []sample.Sample) Model {
	return Model{
		Cfg:         cfg,
		Updates:     updates,
		Stop:        stop,
		Store:       store,
		Samples:     samples,
		RunActive:   true,
		CurrentView: ViewLive,
		MenuItems:   []string{"[1] Live", "[2] Result", "[3] History"},
		LiveView:    live.NewModel(cfg),
		HistoryView: history.NewModel(store),
	}
}

func (m Model) Init() tea.Cmd {
	return waitForUpdate(m.Updates)
}

func waitForUpdate(sub runner.ProgressChan) tea.Cmd {
	return func() tea.Msg {
		p, ok := <-sub
		if !ok {
			return nil
		}
		return p
	}
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmds []tea.Cmd

	switch msg := msg.(type) {
	case ClearStatusMsg:
		m.StatusMsg = ""
		return m, nil

	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c", "q":
			if m.RunActive {
				if !m.Stopping {
					m.Stopping = true
					m.StatusMsg = "Stopping: waiting for in-flight requests..."
					m.Stop()
				}
				return m, nil
			}
			return m, tea.Quit

		case "1":
			m.CurrentView = ViewLive
			return m, nil
		case "2":
			m.CurrentView = ViewResult
			return m, nil
		case "3":
			m.HistoryView.Refresh()
			m.CurrentView = ViewHistory
			return m, nil
		case "tab":
			m.CurrentView = (m.CurrentView + 1) % 3
			return m, nil

		case "e":
			if !m.RunActive && m.ResultView.Report != nil {
				m.StatusMsg = m.export()
				return m, clearStatusCmd()
			}
		}

	case tea.WindowSizeMsg:
		m.Width = msg.Width
		m.Height = msg.Height
		m.LiveView, _ = m.LiveView.Update(msg)
		m.ResultView, _ = m.ResultView.Update(msg)
		m.HistoryView, _ = m.HistoryView.Update(msg)
		return m, nil

	case runner.Progress:
		var c tea.Cmd
		m.LiveView, c = m.LiveView.Update(msg)
		cmds = append(cmds, c)
		if m.RunActive {
			cmds = append(cmds, waitForUpdate(m.Updates))
		}
		return m, tea.Batch(cmds...)

	case DoneMsg:
		m.RunActive = false
		m.Stopping = false
		if msg.Err != nil {
			m.Err = msg.Err
			m.StatusMsg = fmt.Sprintf("Run failed: %v", msg.Err)
			return m, nil
		}
		m.ResultView = result.NewModel(msg.Report)
		m.ResultView.Width, m.ResultView.Height = m.Width, m.Height
		m.HistoryView.Refresh()
		m.CurrentView = ViewResult
		m.StatusMsg = ""
		return m, nil
	}

	var cmd tea.Cmd
	switch m.CurrentView {
	case ViewLive:
		m.LiveView, cmd = m.LiveView.Update(msg)
	case ViewResult:
		m.ResultView, cmd = m.ResultView.Update(msg)
	case ViewHistory:
		m.HistoryView, cmd = m.HistoryView.Update(msg)
	}
	return m, cmd
}

func (m Model) export() string {
	prefix := m.Cfg.Output.Prefix
	if prefix == "" {
		prefix = "stageq_" + m.ResultView.Report.StartedAt.Format("20060102-150405")
	}
	var samples []sample.Sample
	if m.Samples != nil {
		samples = m.Samples()
	}
	files, err := report.WriteFiles(prefix, m.ResultView.Report, samples)
	if err != nil {
		return fmt.Sprintf("Export failed: %v", err)
	}
	return fmt.Sprintf("Exported %s, %s, %s", files.CSV, files.JSON, files.Timeline)
}

func (m Model) View() string {
	if m.Width == 0 {
		return "Loading..."
	}

	nav := strings.Builder{}
	for i, item := range m.MenuItems {
		if ViewID(i) == m.CurrentView {
			nav.WriteString(styles.TabActive.Render(item))
		} else {
			nav.WriteString(styles.TabBase.Render(item))
		}
	}
	navBar := styles.FooterBase.Width(m.Width).Render(nav.String())

	var content string
	switch m.CurrentView {
	case ViewLive:
		content = m.LiveView.View()
	case ViewResult:
		content = m.ResultView.View()
	case ViewHistory:
		content = m.HistoryView.View()
	}
	content = styles.Panel.Width(m.Width - 2).Height(max(m.Height-6, 1)).Render(content)

	keys := []string{styles.RenderKey("1/2/3", "View"), styles.RenderKey("Tab", "Next")}
	if m.RunActive {
		keys = append(keys, styles.RenderKey("q", "Stop"))
	} else {
		keys = append(keys, styles.RenderKey("e", "Export"), styles.RenderKey("q", "Quit"))
	}
	footer := styles.FooterBase.Width(m.Width).Render(strings.Join(keys, "   "))

	if m.StatusMsg != "" {
		status := styles.Box.BorderForeground(styles.ColorHighlight).Render(m.StatusMsg)
		return lipgloss.JoinVertical(lipgloss.Left, navBar, content, status, footer)
	}
	return lipgloss.JoinVertical(lipgloss.Left, navBar, content, footer)
}

package result

import (
	"fmt"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"stageq/internal/runner"
	"stageq/internal/tui/live"
	"stageq/internal/tui/styles"
)

// Model shows a finished run.
type Model struct {
	Report *runner.Report

	Width  int
	Height int
}

func NewModel(rep *runner.Report) Model {
	return Model{Report: rep}
}

func (m Model) Init() tea.Cmd {
	return nil
}

func (m Model) Update(msg tea.Msg) (Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.Width = msg.Width
		m.Height = msg.Height
	}
	return m, nil
}

func (m Model) View() string {
	rep := m.Report
	if rep == nil {
		return styles.Subtle.Render("No results yet.")
	}
	s := rep.Summary
	var b strings.Builder

	title := "📊 Test Complete"
	if rep.Interrupted {
		title = "📊 Test Stopped"
	}
	b.WriteString(styles.Title.Render(title))
	b.WriteString("\n\n")

	b.WriteString(styles.Active.Render("Overview"))
	b.WriteString("\n")
	overview := fmt.Sprintf(
		"Run ID:         %s\nDuration:       %s\nTotal Requests: %d\nSuccess:        %d\nFailed:         %d\nRate:           %.2f req/s\nTotal Bytes:    %d",
		rep.ID, rep.Duration.Round(time.Millisecond), s.Count, s.Success, s.Failed, s.Rate, s.Bytes,
	)
	if rep.Unsent > 0 {
		overview += fmt.Sprintf("\nUnsent:         %d", rep.Unsent)
	}
	b.WriteString(styles.Box.Render(overview))
	b.WriteString("\n\n")

	b.WriteString(styles.Active.Render("Latency"))
	b.WriteString("\n")
	b.WriteString(styles.Box.Render(live.Latencies(s)))
	b.WriteString("\n\n")

	if len(rep.Thresholds) > 0 {
		b.WriteString(styles.Active.Render("Thresholds"))
		b.WriteString("\n")
		lines := make([]string, 0, len(rep.Thresholds))
		for _, r := range rep.Thresholds {
			lines = append(lines, fmt.Sprintf("%s %s (observed %.4g)", styles.Verdict(r.Passed), r.Expression, r.Observed))
		}
		b.WriteString(styles.Box.Render(strings.Join(lines, "\n")))
		b.WriteString("\n\n")
	}

	verdict := styles.Success.Render("PASSED")
	if !rep.Passed {
		verdict = styles.Error.Render("FAILED")
	}
	b.WriteString(verdict)
	return b.String()
}

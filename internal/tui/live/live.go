package live

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/progress"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"stageq/internal/config"
	"stageq/internal/runner"
	"stageq/internal/stats"
	"stageq/internal/tui/components"
	"stageq/internal/tui/styles"
)

// Model is the live dashboard of a running test.
type Model struct {
	Cfg      *config.Config
	Last     runner.Progress
	Progress progress.Model

	RpsLine     components.Sparkline
	LatencyLine components.Sparkline

	prevElapsed time.Duration
	prevCount   uint64

	Width  int
	Height int
}

func NewModel(cfg *config.Config) Model {
	return Model{
		Cfg:         cfg,
		Progress:    progress.New(progress.WithDefaultGradient()),
		RpsLine:     components.NewSparkline(40, "RPS", styles.Active),
		LatencyLine: components.NewSparkline(40, "Latency p90 (ms)", styles.Warn),
	}
}

func (m Model) Init() tea.Cmd {
	return nil
}

func (m Model) Update(msg tea.Msg) (Model, tea.Cmd) {
	switch msg := msg.(type) {
	case runner.Progress:
		// rate over the last update interval
		dt := (msg.Elapsed - m.prevElapsed).Seconds()
		if dt > 0 && msg.Summary.Count >= m.prevCount {
			m.RpsLine.Add(float64(msg.Summary.Count-m.prevCount) / dt)
		}
		m.LatencyLine.Add(ms(msg.Summary.Quantile(90)))

		m.Last = msg
		m.prevElapsed = msg.Elapsed
		m.prevCount = msg.Summary.Count

		pct := 0.0
		if msg.Total > 0 {
			pct = min(float64(msg.Elapsed)/float64(msg.Total), 1)
		}
		return m, m.Progress.SetPercent(pct)

	case tea.WindowSizeMsg:
		m.Width = msg.Width
		m.Height = msg.Height
		m.Progress.Width = msg.Width - 4

		half := max((msg.Width/2)-6, 10)
		m.RpsLine.Resize(half)
		m.LatencyLine.Resize(half)
		return m, nil

	case progress.FrameMsg:
		prog, cmd := m.Progress.Update(msg)
		m.Progress = prog.(progress.Model)
		return m, cmd
	}

	return m, nil
}

func (m Model) View() string {
	p := m.Last
	s := p.Summary
	var b strings.Builder

	stage := "done"
	if p.Stage >= 0 && p.Stage < len(m.Cfg.Stages) {
		stage = fmt.Sprintf("%d/%d", p.Stage+1, len(m.Cfg.Stages))
	}
	unit := "req/s"
	if m.Cfg.Mode == config.ModeUsers {
		unit = "VUs"
	}

	col1 := fmt.Sprintf("STAGE: %s\nTARGET: %.1f %s\nELAPSED: %s / %s",
		stage, p.TargetRate, unit, p.Elapsed.Round(time.Second), p.Total)
	col2 := fmt.Sprintf("REQ: %d\nINF: %d\nACTIVE: %d", s.Count, p.Inflight, p.Active)
	col3 := styles.ErrorRate(s.ErrorRate()).Render(
		fmt.Sprintf("ERR: %.2f%%\nFAIL: %d\nRPS: %.1f", s.ErrorRate()*100, s.Failed, s.Rate))

	b.WriteString(lipgloss.JoinHorizontal(lipgloss.Top,
		styles.Box.Render(col1),
		styles.Box.Render(col2),
		styles.Box.Render(col3),
	))
	b.WriteString("\n\n")

	b.WriteString(lipgloss.JoinHorizontal(lipgloss.Top,
		styles.Box.Render(m.RpsLine.View()),
		styles.Box.Render(m.LatencyLine.View()),
	))
	b.WriteString("\n\n")

	b.WriteString(styles.Box.Render(Latencies(s)))
	b.WriteString("\n\n")

	b.WriteString(m.Progress.View())
	return b.String()
}

// Latencies formats min, mean, configured percentiles and max on one line.
func Latencies(s stats.Summary) string {
	parts := []string{
		fmt.Sprintf("Min: %.2f ms", ms(s.Min)),
		fmt.Sprintf("Avg: %.2f ms", ms(s.Mean)),
	}
	for _, p := range []float64{50, 90, 95, 99} {
		parts = append(parts, fmt.Sprintf("%s: %.2f ms", strings.ToUpper(stats.PercentileLabel(p)), ms(s.Quantile(p))))
	}
	parts = append(parts, fmt.Sprintf("Max: %.2f ms", ms(s.Max)))
	return strings.Join(parts, "  |  ")
}

func ms(d time.Duration) float64 {
	return float64(d) / float64(time.Millisecond)
}

package components

import (
	"testing"
	"unicode/utf8"

	"github.com/charmbracelet/lipgloss"
	"github.com/stretchr/testify/assert"
)

func TestSparkline_ScrollsAndScales(t *testing.T) {
	s := NewSparkline(4, "rps", lipgloss.NewStyle())
	for _, v := range []float64{1, 2, 3, 4, 8, -1} {
		s.Add(v)
	}

	assert.Equal(t, []float64{3, 4, 8, 0}, s.Data)
	assert.Equal(t, 8.0, s.Max)
	assert.Equal(t, "▃▄█ ", s.Graph())
}

func TestSparkline_PadsAndResizes(t *testing.T) {
	s := NewSparkline(5, "p90", lipgloss.NewStyle())
	s.Add(0)
	assert.Equal(t, 5, utf8.RuneCountInString(s.Graph()))

	s.Add(2)
	s.Add(4)
	s.Resize(2)
	assert.Equal(t, []float64{2, 4}, s.Data)
	assert.Equal(t, "▄█", s.Graph())
}

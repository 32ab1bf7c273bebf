package ui

import (
	"github.com/charmbracelet/lipgloss"

	"ditatrack/internal/render"
)

const (
	colorAccent  = lipgloss.Color("#7D56F4")
	colorRunning = lipgloss.Color("#06B6D4")
	colorDone    = lipgloss.Color("#22C55E")
	colorFailed  = lipgloss.Color("#EF4444")
	colorIdle    = lipgloss.Color("#6B7280")
	colorText    = lipgloss.Color("#D1D5DB")
)

// Styles is the palette of the job screen. Stage rows and notices pick
// their colour from the render class or level they carry.
type Styles struct {
	Title     lipgloss.Style
	Subtitle  lipgloss.Style
	Heading   lipgloss.Style
	StageName lipgloss.Style
	Faint     lipgloss.Style
	Block     lipgloss.Style
	Panel     lipgloss.Style
	Spinner   lipgloss.Style

	classes map[render.Class]lipgloss.Style
	levels  map[render.Level]lipgloss.Style
}

func defaultStyles() Styles {
	fg := func(c lipgloss.Color) lipgloss.Style { return lipgloss.NewStyle().Foreground(c) }
	return Styles{
		Title:     fg(colorAccent).Bold(true),
		Subtitle:  lipgloss.NewStyle().Faint(true),
		Heading:   lipgloss.NewStyle().Bold(true),
		StageName: fg(lipgloss.Color("#A3A3A3")).Width(20),
		Faint:     lipgloss.NewStyle().Faint(true),
		Block:     lipgloss.NewStyle().Padding(0, 1),
		Panel:     lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).BorderForeground(lipgloss.Color("#60A5FA")).Padding(0, 1),
		Spinner:   fg(colorRunning),
		classes: map[render.Class]lipgloss.Style{
			render.ClassActive:    fg(colorRunning),
			render.ClassCompleted: fg(colorDone),
			render.ClassFailed:    fg(colorFailed),
		},
		levels: map[render.Level]lipgloss.Style{
			render.LevelSuccess: fg(colorDone),
			render.LevelError:   fg(colorFailed),
		},
	}
}

func (s Styles) class(c render.Class) lipgloss.Style {
	if st, ok := s.classes[c]; ok {
		return st
	}
	return lipgloss.NewStyle().Foreground(colorIdle)
}

func (s Styles) level(l render.Level) lipgloss.Style {
	if st, ok := s.levels[l]; ok {
		return st
	}
	return lipgloss.NewStyle().Foreground(colorText)
}

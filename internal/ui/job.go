package ui

import (
	bubblesprogress "github.com/charmbracelet/bubbles/progress"
	"github.com/charmbracelet/bubbles/spinner"

	"ditatrack/internal/progress"
	"ditatrack/internal/render"
)

// jobView holds the widgets that draw one frame. Bars are rendered with
// ViewAs so they always show the frame's value without animation state.
type jobView struct {
	frame   render.Frame
	overall bubblesprogress.Model
	stages  [progress.StageCount]bubblesprogress.Model
	spinner spinner.Model
}

func newJobView(jobID string, styles Styles) jobView {
	sp := spinner.New()
	sp.Spinner = spinner.Dot
	sp.Style = styles.Spinner

	v := jobView{
		frame:   render.Project(progress.NewJob(jobID), render.Links{}),
		overall: bubblesprogress.New(bubblesprogress.WithDefaultGradient(), bubblesprogress.WithWidth(48)),
		spinner: sp,
	}
	for i := range v.stages {
		v.stages[i] = bubblesprogress.New(
			bubblesprogress.WithSolidFill("#06B6D4"),
			bubblesprogress.WithWidth(30),
			bubblesprogress.WithoutPercentage(),
		)
	}
	return v
}

func (v *jobView) resize(width int) {
	if width <= 0 {
		return
	}
	v.overall.Width = max(20, min(64, width-16))
	for i := range v.stages {
		v.stages[i].Width = max(10, min(40, width-44))
	}
}

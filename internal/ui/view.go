package ui

import (
	"fmt"
	"strings"

	"ditatrack/internal/render"
)

func (m Model) viewHeader() string {
	f := m.view.frame
	name := f.Filename
	if name == "" {
		name = "job " + f.JobID
	}
	title := m.styles.Title.Render("ditatrack · " + truncate(name, 48))

	hints := []string{"q: quit"}
	if f.Actions.ShowDetails {
		hints = append(hints, "1-4: stage details")
	}
	if f.Actions.ShowDownload {
		hints = append(hints, "d: download")
	}
	if m.detail != nil {
		hints = append(hints, "esc: close details")
	}
	sub := m.styles.Subtitle.Render(fmt.Sprintf("%s • %s", f.JobID, strings.Join(hints, " • ")))
	return title + "\n" + sub
}

func (m Model) viewOverall() string {
	f := m.view.frame
	label := m.styles.class(f.OverallClass).Render(f.OverallLabel)
	if !f.Terminal {
		label = m.styles.Spinner.Render(m.view.spinner.View()) + " " + label
	}
	bar := m.view.overall.ViewAs(float64(f.OverallWidth) / 100)
	return m.styles.Block.Render(m.styles.Heading.Render("Overall") + "\n" + bar + "\n" + label)
}

func (m Model) viewStages() string {
	var b strings.Builder
	for i, sv := range m.view.frame.Stages {
		style := m.styles.class(sv.Class)
		name := m.styles.StageName.Render(fmt.Sprintf("%d. %s", sv.Index, sv.Title))
		bar := m.view.stages[i].ViewAs(float64(sv.Width) / 100)
		fmt.Fprintf(&b, "%s %s %5s  %s\n", name, bar, sv.ProgressText, style.Render(sv.Label))

		var extra []string
		if sv.Message != "" {
			extra = append(extra, sv.Message)
		}
		if sv.Detail != "" {
			extra = append(extra, sv.Detail)
		}
		if len(extra) > 0 {
			b.WriteString(m.styles.Faint.Render("   " + truncate(strings.Join(extra, " · "), 72)))
			b.WriteString("\n")
		}
	}
	return m.styles.Block.Render(strings.TrimRight(b.String(), "\n"))
}

func (m Model) viewMessage() string {
	msg := m.view.frame.Message
	if !msg.Visible {
		return ""
	}
	text := msg.Text
	if m.view.frame.Actions.ShowDownload {
		text += " Press d to download the result."
	}
	return m.styles.Block.Render(m.styles.level(msg.Level).Render(text))
}

func (m Model) viewNotices() string {
	if len(m.notices) == 0 {
		return ""
	}
	lines := make([]string, 0, len(m.notices))
	for _, n := range m.notices {
		prefix := "•"
		if n.level == render.LevelError {
			prefix = "✗"
		}
		lines = append(lines, m.styles.level(n.level).Render(prefix+" "+n.text))
	}
	return m.styles.Block.Render(strings.Join(lines, "\n"))
}

func (m Model) viewDetail() string {
	if m.loading {
		return m.styles.Block.Render(m.styles.Faint.Render("Loading stage details…"))
	}
	if m.detail == nil {
		return ""
	}
	var b strings.Builder
	b.WriteString(m.styles.Heading.Render(m.detail.Title))
	for _, row := range m.detail.Rows() {
		fmt.Fprintf(&b, "\n%-18s %s", row[0], truncate(row[1], 56))
	}
	if s := m.detail.Semantic; s != nil {
		for _, c := range s.Chunks {
			fmt.Fprintf(&b, "\n  %s %s", m.styles.Faint.Render(c.Type), truncate(c.Title, 56))
		}
	}
	return m.styles.Panel.Render(b.String())
}

func joinBlocks(parts []string) string {
	return strings.Join(parts, "\n\n")
}

func truncate(s string, n int) string {
	rs := []rune(s)
	if n <= 0 || len(rs) <= n {
		return s
	}
	return string(rs[:n-1]) + "…"
}

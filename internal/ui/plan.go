package ui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/google/uuid"

	"vibeboard/internal/db"
	"vibeboard/internal/scheduler"
)

var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("62")).
			MarginBottom(1)
	levelStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("241"))
	readyStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("42"))
	blockedStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("208"))
	progressStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("39"))
	completedStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("243")).Strikethrough(true)
	cancelledStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("240"))
	statsStyle     = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("62")).
			Padding(0, 1).
			MarginTop(1)
)

func readinessStyle(r scheduler.Readiness) lipgloss.Style {
	switch r {
	case scheduler.ReadinessReady:
		return readyStyle
	case scheduler.ReadinessBlocked:
		return blockedStyle
	case scheduler.ReadinessInProgress:
		return progressStyle
	case scheduler.ReadinessCompleted:
		return completedStyle
	default:
		return cancelledStyle
	}
}

// RenderPlan formats an execution plan as a level-by-level console view.
func RenderPlan(projectID uuid.UUID, plan *scheduler.ExecutionPlan, tasks []db.Task) string {
	titles := make(map[uuid.UUID]string, len(tasks))
	for _, t := range tasks {
		titles[t.ID] = t.Title
	}

	var b strings.Builder
	b.WriteString(titleStyle.Render(fmt.Sprintf("Execution plan for project %s", projectID)))
	b.WriteString("\n")

	if len(plan.Levels) == 0 {
		b.WriteString(cancelledStyle.Render("  (no tasks)"))
		b.WriteString("\n")
	}

	for _, level := range plan.Levels {
		b.WriteString(levelStyle.Render(fmt.Sprintf("Level %d", level.Level)))
		b.WriteString("\n")
		for _, t := range level.Tasks {
			title := titles[t.TaskID]
			line := fmt.Sprintf("  %-12s %s", t.Readiness, title)
			if len(t.BlockingTasks) > 0 {
				blockers := make([]string, len(t.BlockingTasks))
				for i, id := range t.BlockingTasks {
					name := titles[id]
					if name == "" {
						name = id.String()
					}
					blockers[i] = name
				}
				line += fmt.Sprintf("  (waiting on: %s)", strings.Join(blockers, ", "))
			}
			b.WriteString(readinessStyle(t.Readiness).Render(line))
			b.WriteString("\n")
		}
	}

	stats := plan.Stats
	summary := fmt.Sprintf("total %d | ready %d | in progress %d | in review %d | blocked %d | done %d",
		stats.TotalTasks, stats.ReadyTasks, stats.InProgressTasks,
		stats.InReviewTasks, stats.BlockedTasks, stats.CompletedTasks)
	b.WriteString(statsStyle.Render(summary))
	b.WriteString("\n")

	return b.String()
}

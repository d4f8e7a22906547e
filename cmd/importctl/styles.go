package main

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"schedule-management-backend/internal/analysis"
)

var (
	primary = lipgloss.Color("#7aa2f7")
	dim     = lipgloss.Color("#565f89")
	success = lipgloss.Color("#9ece6a")
	warning = lipgloss.Color("#e0af68")
	failure = lipgloss.Color("#f7768e")

	titleStyle   = lipgloss.NewStyle().Bold(true).Foreground(primary)
	labelStyle   = lipgloss.NewStyle().Foreground(dim).Width(24)
	okStyle      = lipgloss.NewStyle().Foreground(success)
	warnStyle    = lipgloss.NewStyle().Foreground(warning)
	errorStyle   = lipgloss.NewStyle().Bold(true).Foreground(failure)
	boxStyle     = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).BorderForeground(dim).Padding(0, 1)
	mutedStyle   = lipgloss.NewStyle().Foreground(dim)
	captionStyle = lipgloss.NewStyle().Italic(true).Foreground(dim)
)

func field(label string, value any) string {
	return labelStyle.Render(label) + fmt.Sprint(value)
}

func statusBadge(s string) string {
	switch s {
	case analysis.StatusCompleted, analysis.ResultSuccess:
		return okStyle.Render(s)
	case analysis.StatusPending, analysis.StatusProcessing, string(analysis.EntryInProgress):
		return warnStyle.Render(s)
	case analysis.StatusFailed:
		return errorStyle.Render(s)
	}
	return s
}

func renderSubmit(res *analysis.SubmitResponse) string {
	lines := []string{
		titleStyle.Render("Analysis " + res.AnalysisID),
		field("status", statusBadge(res.Status)),
		field("entries submitted", res.EntriesSubmitted),
		field("entries locked", res.EntriesLocked),
		field("entries skipped", res.EntriesSkipped),
	}
	if len(res.SkippedEntryIDs) > 0 {
		lines = append(lines, captionStyle.Render(fmt.Sprintf("already locked: %v", res.SkippedEntryIDs)))
	}
	return boxStyle.Render(strings.Join(lines, "\n"))
}

func renderStatus(st *analysis.StatusResponse) string {
	lines := []string{
		titleStyle.Render(fmt.Sprintf("Entries of user %d", st.UserID)),
		field("total", st.TotalEntries),
		field("available for analysis", okStyle.Render(fmt.Sprint(st.AvailableForAnalysis))),
		field("pending", st.PendingAnalysis),
		field("in progress", st.InProgress),
		field("completed", st.Completed),
		field("failed", st.Failed),
		field("locked", st.Locked),
	}
	if st.OldestLockAgeSeconds != nil {
		lines = append(lines, warnStyle.Render(fmt.Sprintf("oldest lock held for %ds; run `importctl unlock` if it is stuck", *st.OldestLockAgeSeconds)))
	}
	return boxStyle.Render(strings.Join(lines, "\n"))
}

func renderResults(res *analysis.ResultsResponse) string {
	var b strings.Builder
	b.WriteString(titleStyle.Render(fmt.Sprintf("Analysis %s (%s)", res.AnalysisID, res.AnalysisType)))
	b.WriteString("\n")
	b.WriteString(field("status", statusBadge(res.Status)))
	b.WriteString("\n")
	b.WriteString(field("analyzed", fmt.Sprintf("%d/%d", res.EntriesAnalyzed, res.EntriesSubmitted)))
	if res.ErrorMessage != "" {
		b.WriteString("\n" + errorStyle.Render(res.ErrorMessage))
	}

	for _, r := range res.Results {
		b.WriteString("\n\n")
		b.WriteString(fmt.Sprintf("#%d %s", r.EntryID, statusBadge(r.Status)))
		if r.ErrorMessage != "" {
			b.WriteString("  " + errorStyle.Render(r.ErrorMessage))
			continue
		}
		if ev := r.ParsedResult; ev != nil {
			b.WriteString("\n  " + ev.Title)
			b.WriteString(mutedStyle.Render(fmt.Sprintf("  %s - %s",
				ev.StartDatetime.Format("02/01/2006 15:04"), ev.EndDatetime.Format("15:04"))))
			if ev.Location != "" {
				b.WriteString(mutedStyle.Render("  @ " + ev.Location))
			}
			b.WriteString(mutedStyle.Render(fmt.Sprintf("  [%s, P%d]", ev.Category, ev.Priority)))
		}
		if ai := r.AIAnalysis; ai != nil {
			b.WriteString(captionStyle.Render(fmt.Sprintf("\n  %s confidence %.2f", ai.Provider, ai.Confidence)))
			for _, s := range ai.Suggestions {
				b.WriteString("\n  - " + s)
			}
			for _, c := range ai.Conflicts {
				b.WriteString("\n  " + warnStyle.Render("! "+c.Description))
			}
		}
	}
	return b.String()
}

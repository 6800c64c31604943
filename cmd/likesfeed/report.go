package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"

	"github.com/abelbrown/likesfeed/internal/history"
	"github.com/abelbrown/likesfeed/internal/pipeline"
)

// Terminal styles. lipgloss drops the colors when stdout is not a TTY, so
// the same text is readable in CI logs.
var (
	headerStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("12"))
	labelStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("8")).Width(10)
	likesStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("10")).Width(6).Align(lipgloss.Right)
	dimStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("8"))
)

const reportEntries = 10

// renderReport summarizes a finished run. The first line is stable and
// grep-friendly; the rest is decoration.
func renderReport(res pipeline.Result, dryRun bool) string {
	s := res.Stats
	var b strings.Builder

	prefix := "run"
	if dryRun {
		prefix = "dry-run"
	}
	fmt.Fprintf(&b, "%s: merged=%d stored=%d entries=%d\n", prefix, s.Inserted+s.Updated, s.Stored, len(res.Entries))

	b.WriteString(headerStyle.Render("Summary") + "\n")
	rows := []struct {
		label string
		value int
	}{
		{"fetched", s.Fetched},
		{"dropped", s.Dropped},
		{"inserted", s.Inserted},
		{"updated", s.Updated},
		{"expired", s.ExpiredByAge},
		{"evicted", s.EvictedByCap},
		{"stored", s.Stored},
		{"rendered", s.Rendered},
	}
	for _, r := range rows {
		b.WriteString("  " + labelStyle.Render(r.label) + fmt.Sprint(r.value) + "\n")
	}

	if len(res.Entries) > 0 {
		b.WriteString(headerStyle.Render("Top entries") + "\n")
		for i, a := range res.Entries {
			if i == reportEntries {
				b.WriteString(dimStyle.Render(fmt.Sprintf("  ... %d more", len(res.Entries)-reportEntries)) + "\n")
				break
			}
			b.WriteString("  " + likesStyle.Render(fmt.Sprint(a.LikesCount)) + "  " + a.Title + "\n")
		}
	}

	if dryRun {
		b.WriteString(dimStyle.Render("dry run: nothing was written") + "\n")
	} else if res.RunID != "" {
		b.WriteString(dimStyle.Render("run "+res.RunID+" recorded") + "\n")
	}
	return b.String()
}

func renderRuns(runs []history.Run) string {
	if len(runs) == 0 {
		return dimStyle.Render("no runs recorded") + "\n"
	}
	var b strings.Builder
	b.WriteString(headerStyle.Render("Recent runs") + "\n")
	for _, r := range runs {
		fmt.Fprintf(&b, "  %s  fetched=%d dropped=%d stored=%d rendered=%d\n",
			r.StartedAt.Format(time.RFC3339), r.Fetched, r.Dropped, r.Stored, r.Rendered)
	}
	return b.String()
}

func renderLikesHistory(itemID string, obs []history.Observation) string {
	if len(obs) == 0 {
		return dimStyle.Render("no history for "+itemID) + "\n"
	}
	var b strings.Builder
	b.WriteString(headerStyle.Render("Likes for "+itemID) + "\n")
	prev := -1
	for _, o := range obs {
		delta := ""
		if prev >= 0 && o.LikesCount != prev {
			delta = dimStyle.Render(fmt.Sprintf(" (%+d)", o.LikesCount-prev))
		}
		b.WriteString("  " + o.ObservedAt.Format(time.RFC3339) + "  " + likesStyle.Render(fmt.Sprint(o.LikesCount)) + delta + "\n")
		prev = o.LikesCount
	}
	return b.String()
}

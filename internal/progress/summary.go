package progress

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"

	"github.com/go-scripts/sitemirror/internal/types"
)

var (
	summaryStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("99")).
			Padding(0, 1)
	titleStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("205")).
			Bold(true)
	labelStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("241")).
			Bold(true)
	valueStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("86"))
	failStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("196"))
)

// RenderSummary formats the end-of-run report.
func RenderSummary(s types.Summary) string {
	rows := []struct {
		label string
		value string
		bad   bool
	}{
		{"Origin", s.Origin, false},
		{"Output", s.OutputDir, false},
		{"Pages cloned", fmt.Sprintf("%d", s.PagesCloned), false},
		{"Pages failed", fmt.Sprintf("%d", s.PagesFailed), s.PagesFailed > 0},
		{"Assets downloaded", fmt.Sprintf("%d", s.AssetsDownloaded), false},
		{"Assets failed", fmt.Sprintf("%d", s.AssetsFailed), s.AssetsFailed > 0},
		{"Bundles", fmt.Sprintf("%d processed, %d modified", s.BundlesProcessed, s.BundlesModified), false},
		{"Elapsed", formatElapsed(s.Duration), false},
	}

	var content strings.Builder
	content.WriteString(titleStyle.Render("Mirror complete") + "\n\n")
	for _, row := range rows {
		value := valueStyle.Render(row.value)
		if row.bad {
			value = failStyle.Render(row.value)
		}
		content.WriteString(fmt.Sprintf("%s %s\n", labelStyle.Render(fmt.Sprintf("%-18s", row.label+":")), value))
	}

	return summaryStyle.Render(strings.TrimSuffix(content.String(), "\n"))
}

func formatElapsed(d time.Duration) string {
	return fmt.Sprintf("%02d:%02d:%02d",
		int(d.Hours()),
		int(d.Minutes())%60,
		int(d.Seconds())%60,
	)
}

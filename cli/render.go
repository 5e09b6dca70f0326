// Package cli renders analysis runs, run history and thresholds for the
// terminal.
package cli

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/warp/variance-engine/variance"
)

// Theme colors (Flexoki Dark)
var (
	ColorBorder    = lipgloss.Color("#282726")
	ColorTextDim   = lipgloss.Color("#575653")
	ColorTextMuted = lipgloss.Color("#6F6E69")
	ColorText      = lipgloss.Color("#FFFCF0")
	ColorAccent    = lipgloss.Color("#3AA99F")
	ColorGreen     = lipgloss.Color("#879A39")
	ColorOrange    = lipgloss.Color("#DA702C")
	ColorRed       = lipgloss.Color("#D14D41")
	ColorYellow    = lipgloss.Color("#D0A215")
)

// Styles
var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(ColorText).
			Align(lipgloss.Center)

	headerStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(ColorAccent)

	valueStyle = lipgloss.NewStyle().
			Foreground(ColorText)

	mutedStyle = lipgloss.NewStyle().
			Foreground(ColorTextMuted)

	goodStyle = lipgloss.NewStyle().
			Foreground(ColorGreen)

	warnStyle = lipgloss.NewStyle().
			Foreground(ColorOrange)

	badStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(ColorRed)

	dimStyle = lipgloss.NewStyle().
			Foreground(ColorTextDim)
)

// SeverityStyle colors a severity by how urgent it is in either profile.
func SeverityStyle(s variance.Severity) lipgloss.Style {
	switch s {
	case variance.SeverityCritical:
		return badStyle
	case variance.SeverityHigh:
		return warnStyle
	case variance.SeverityWarning, variance.SeverityMedium:
		return lipgloss.NewStyle().Foreground(ColorYellow)
	default:
		return goodStyle
	}
}

func directionStyle(d variance.Direction) lipgloss.Style {
	switch d {
	case variance.DirectionFavorable:
		return goodStyle
	case variance.DirectionUnfavorable:
		return warnStyle
	default:
		return mutedStyle
	}
}

// Table represents a bordered text table for CLI output. Cells may carry
// ANSI styling; widths are measured on the visible text.
type Table struct {
	Title   string
	Headers []string
	Rows    [][]string
	Widths  []int // optional column widths, auto-calculated if nil
}

// RenderTitle renders a centered title bar in a bordered box.
func RenderTitle(title string) string {
	border := lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(ColorBorder).
		Width(55).
		Align(lipgloss.Center).
		Padding(0, 1)

	return border.Render(titleStyle.Render(title))
}

// RenderTable renders a bordered table with headers and rows. The first
// column is left-aligned, the rest right-aligned. A row holding the single
// cell "---" draws a separator.
func RenderTable(t Table) string {
	if len(t.Rows) == 0 && len(t.Headers) == 0 {
		return ""
	}

	numCols := len(t.Headers)
	if numCols == 0 {
		numCols = len(t.Rows[0])
	}

	widths := make([]int, numCols)
	if t.Widths != nil {
		copy(widths, t.Widths)
	} else {
		for i, h := range t.Headers {
			widths[i] = max(widths[i], lipgloss.Width(h))
		}
		for _, row := range t.Rows {
			for i, cell := range row {
				if i < numCols {
					widths[i] = max(widths[i], lipgloss.Width(cell))
				}
			}
		}
	}

	var b strings.Builder

	if t.Title != "" {
		b.WriteString("  ")
		b.WriteString(headerStyle.Render(t.Title))
		b.WriteString("\n")
	}

	rule := func(left, mid, right string) {
		b.WriteString(dimStyle.Render(left))
		for i, w := range widths {
			b.WriteString(dimStyle.Render(strings.Repeat("─", w+2)))
			if i < numCols-1 {
				b.WriteString(dimStyle.Render(mid))
			}
		}
		b.WriteString(dimStyle.Render(right))
		b.WriteString("\n")
	}

	rule("╭", "┬", "╮")

	if len(t.Headers) > 0 {
		b.WriteString(dimStyle.Render("│"))
		for i, h := range t.Headers {
			b.WriteString(headerStyle.Render(" " + pad(h, widths[i], true) + " "))
			if i < numCols-1 {
				b.WriteString(dimStyle.Render("│"))
			}
		}
		b.WriteString(dimStyle.Render("│"))
		b.WriteString("\n")
		rule("├", "┼", "┤")
	}

	for _, row := range t.Rows {
		if len(row) == 1 && row[0] == "---" {
			rule("├", "┼", "┤")
			continue
		}

		b.WriteString(dimStyle.Render("│"))
		for i := range numCols {
			cell := ""
			if i < len(row) {
				cell = row[i]
			}
			b.WriteString(" " + pad(cell, widths[i], i == 0) + " ")
			if i < numCols-1 {
				b.WriteString(dimStyle.Render("│"))
			}
		}
		b.WriteString(dimStyle.Render("│"))
		b.WriteString("\n")
	}

	rule("╰", "┴", "╯")
	return b.String()
}

func pad(cell string, width int, left bool) string {
	gap := width - lipgloss.Width(cell)
	if gap <= 0 {
		return cell
	}
	if left {
		return cell + strings.Repeat(" ", gap)
	}
	return strings.Repeat(" ", gap) + cell
}

// =============================================================================
// RUN VIEWS
// =============================================================================

// RenderRun renders the summary, the variance records and the ranked
// insights of one run.
func RenderRun(run variance.AnalysisRun) string {
	res := run.Result
	var b strings.Builder

	b.WriteString(RenderTitle(fmt.Sprintf("VARIANCE %s  %s", run.Key.BoardID, res.Period)))
	b.WriteString("\n")
	fmt.Fprintf(&b, "  %s %s  %s %s  %s %s\n\n",
		mutedStyle.Render("org"), valueStyle.Render(run.Key.OrgID),
		mutedStyle.Render("profile"), valueStyle.Render(string(res.Profile)),
		mutedStyle.Render("run"), valueStyle.Render(run.ID),
	)

	s := res.Summary
	b.WriteString(RenderTable(Table{
		Title:   "Summary",
		Headers: []string{"Budget", "Actual", "Variance", "Variance %", "Matched", "Unmatched"},
		Rows: [][]string{{
			FormatMoney(s.TotalBudget),
			FormatMoney(s.TotalActual),
			FormatMoney(s.TotalVariance),
			FormatPercent(s.TotalVariancePercent),
			fmt.Sprint(s.MatchedCount),
			fmt.Sprint(s.UnmatchedCount),
		}},
	}))

	b.WriteString("\n")
	b.WriteString(RenderTable(recordTable(res)))

	if len(res.Insights) > 0 {
		b.WriteString("\n  ")
		b.WriteString(headerStyle.Render("Insights"))
		b.WriteString("\n")
		for _, in := range res.Insights {
			fmt.Fprintf(&b, "  %s %s\n",
				SeverityStyle(in.Severity).Render(fmt.Sprintf("%-8s", in.Severity)),
				in.Message,
			)
			for _, action := range in.ActionItems {
				fmt.Fprintf(&b, "           %s %s\n", dimStyle.Render("-"), mutedStyle.Render(action))
			}
		}
	}
	return b.String()
}

func recordTable(res variance.AnalysisResult) Table {
	t := Table{
		Title:   "Accounts",
		Headers: []string{"Account", "Budget", "Actual", "Variance", "%", "Severity", "Direction", "Trend"},
	}

	rollupsStarted := false
	for _, r := range res.Records {
		if r.Rollup && !rollupsStarted {
			t.Rows = append(t.Rows, []string{"---"})
			rollupsStarted = true
		}

		name := r.AccountName
		if r.AccountCode != "" {
			name = r.AccountCode + " " + name
		}
		if r.Rollup {
			name = fmt.Sprintf("%s (%d)", name, r.ChildCount)
		}
		if !r.Matched && !r.Rollup {
			name += mutedStyle.Render(" *")
		}

		t.Rows = append(t.Rows, []string{
			name,
			FormatMoney(r.Budget),
			FormatMoney(r.Actual),
			FormatMoney(r.Variance),
			FormatPercent(r.VariancePercent),
			SeverityStyle(r.Severity).Render(string(r.Severity)),
			directionStyle(r.Direction).Render(string(r.Direction)),
			mutedStyle.Render(string(r.Trend)),
		})
	}
	return t
}

// RenderHistory renders runs newest first, one row each.
func RenderHistory(runs []variance.AnalysisRun) string {
	if len(runs) == 0 {
		return mutedStyle.Render("  No runs recorded.") + "\n"
	}

	t := Table{
		Title:   "Runs",
		Headers: []string{"Period", "Run", "Created", "Variance", "%", "Critical", "Insights"},
	}
	for _, run := range runs {
		s := run.Result.Summary
		critical := s.SeverityCounts[variance.SeverityCritical]
		criticalCell := fmt.Sprint(critical)
		if critical > 0 {
			criticalCell = badStyle.Render(criticalCell)
		}
		t.Rows = append(t.Rows, []string{
			run.Key.Period,
			run.ID,
			run.CreatedAt.Format("2006-01-02 15:04"),
			FormatMoney(s.TotalVariance),
			FormatPercent(s.TotalVariancePercent),
			criticalCell,
			fmt.Sprint(len(run.Result.Insights)),
		})
	}
	return RenderTable(t)
}

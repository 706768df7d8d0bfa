package export

import (
	"bytes"
	"fmt"
	"sort"
	"strings"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"
	"github.com/yuin/goldmark/renderer/html"

	"github.com/ternarybob/scrutor/internal/models"
)

// renderMarkdown builds the report text: header, summary table, the
// histogram tables and one row per sampled session.
func renderMarkdown(report *models.AnalysisReport) string {
	var b strings.Builder
	summary := report.Summary

	b.WriteString("# Session Analysis Report\n\n")
	b.WriteString(fmt.Sprintf("**Bot:** %s  \n", report.BotID))
	b.WriteString(fmt.Sprintf("**Analysis:** %s  \n", report.AnalysisID))
	b.WriteString(fmt.Sprintf("**Model:** %s  \n", summary.Model))
	b.WriteString(fmt.Sprintf("**Generated:** %s\n\n", report.GeneratedAt.Format("2006-01-02 15:04:05 MST")))

	b.WriteString("## Summary\n\n")
	b.WriteString("| Metric | Value |\n")
	b.WriteString("|--------|-------|\n")
	b.WriteString(fmt.Sprintf("| Total sessions | %d |\n", summary.TotalSessions))
	b.WriteString(fmt.Sprintf("| Analyzed | %d |\n", summary.AnalyzedSessions))
	b.WriteString(fmt.Sprintf("| Unanalyzed | %d |\n", summary.UnanalyzedSessions))
	b.WriteString(fmt.Sprintf("| Contained | %d |\n", summary.ContainedCount))
	b.WriteString(fmt.Sprintf("| Transferred | %d |\n", summary.TransferCount))
	b.WriteString(fmt.Sprintf("| Containment rate | %.1f%% |\n", summary.ContainmentRate*100))
	b.WriteString(fmt.Sprintf("| Windows searched | %d |\n", summary.WindowsSearched))
	b.WriteString(fmt.Sprintf("| Tokens used | %d |\n", summary.TokensUsed))
	b.WriteString(fmt.Sprintf("| Estimated cost | $%.4f |\n", summary.EstimatedCost))
	b.WriteString("\n")

	if len(summary.TransferReasons) > 0 {
		b.WriteString("## Transfer Reasons\n\n")
		b.WriteString("| Reason | Count |\n")
		b.WriteString("|--------|-------|\n")
		for _, entry := range sortedCounts(summary.TransferReasons) {
			b.WriteString(fmt.Sprintf("| %s | %d |\n", entry.name, entry.count))
		}
		b.WriteString("\n")
	}

	if len(summary.Intents) > 0 {
		b.WriteString("## Intents\n\n")
		b.WriteString("| Intent | Count |\n")
		b.WriteString("|--------|-------|\n")
		for _, entry := range sortedCounts(summary.Intents) {
			b.WriteString(fmt.Sprintf("| %s | %d |\n", entry.name, entry.count))
		}
		b.WriteString("\n")
	}

	if len(summary.Windows) > 0 {
		b.WriteString("## Sampling Windows\n\n")
		b.WriteString("| Window | Found | Kept |\n")
		b.WriteString("|--------|-------|------|\n")
		for _, window := range summary.Windows {
			b.WriteString(fmt.Sprintf("| %s | %d | %d |\n", window.Label, window.Found, window.Kept))
		}
		b.WriteString("\n")
	}

	b.WriteString("## Sessions\n\n")
	b.WriteString("| Session | Start | Messages | Outcome | Intent | Transfer Reason | Notes |\n")
	b.WriteString("|---------|-------|----------|---------|--------|-----------------|-------|\n")
	for _, result := range report.Results {
		outcome := result.Outcome
		if !result.Analyzed {
			outcome = "unanalyzed: " + result.AnalysisError
		}
		b.WriteString(fmt.Sprintf("| %s | %s | %d | %s | %s | %s | %s |\n",
			result.SessionID,
			result.StartTime.Format("2006-01-02 15:04"),
			result.MessageCount,
			cell(outcome),
			cell(result.Intent),
			cell(result.TransferReason),
			cell(result.Notes)))
	}

	return b.String()
}

// renderHTML converts the markdown report to a styled standalone page.
func renderHTML(report *models.AnalysisReport) (string, error) {
	md := goldmark.New(
		goldmark.WithExtensions(extension.GFM),
		goldmark.WithRendererOptions(
			html.WithHardWraps(),
			html.WithXHTML(),
		),
	)

	var buf bytes.Buffer
	if err := md.Convert([]byte(renderMarkdown(report)), &buf); err != nil {
		return "", fmt.Errorf("failed to convert report to HTML: %w", err)
	}

	return wrapInReportTemplate(buf.String()), nil
}

// cell sanitizes a value for a markdown table cell.
func cell(value string) string {
	if value == "" {
		return "-"
	}
	value = strings.ReplaceAll(value, "|", "\\|")
	return strings.ReplaceAll(value, "\n", " ")
}

type countEntry struct {
	name  string
	count int
}

// sortedCounts orders a histogram by count descending, names ascending on
// ties, so rendered tables are deterministic.
func sortedCounts(histogram map[string]int) []countEntry {
	entries := make([]countEntry, 0, len(histogram))
	for name, count := range histogram {
		entries = append(entries, countEntry{name: name, count: count})
	}
	sort.Slice(entries, func(i, j int) bool {
		if entries[i].count != entries[j].count {
			return entries[i].count > entries[j].count
		}
		return entries[i].name < entries[j].name
	})
	return entries
}

// wrapInReportTemplate wraps rendered HTML in a styled standalone page
func wrapInReportTemplate(content string) string {
	return `<!DOCTYPE html>
<html>
<head>
  <meta charset="UTF-8">
  <meta name="viewport" content="width=device-width, initial-scale=1.0">
  <title>Session Analysis Report</title>
  <style>
    body {
      font-family: -apple-system, BlinkMacSystemFont, 'Segoe UI', Roboto, 'Helvetica Neue', Arial, sans-serif;
      line-height: 1.6;
      color: #333;
      max-width: 1000px;
      margin: 0 auto;
      padding: 20px;
      background-color: #f9f9f9;
    }
    .content {
      background-color: #fff;
      padding: 30px;
      border-radius: 8px;
      box-shadow: 0 1px 3px rgba(0,0,0,0.1);
    }
    h1 { color: #1a1a1a; font-size: 24px; margin-top: 0; border-bottom: 2px solid #eee; padding-bottom: 10px; }
    h2 { color: #2a2a2a; font-size: 20px; margin-top: 24px; }
    p { margin: 12px 0; }
    table { border-collapse: collapse; width: 100%; margin: 16px 0; font-size: 14px; }
    th, td { border: 1px solid #ddd; padding: 8px 12px; text-align: left; }
    th { background: #f4f4f4; font-weight: 600; }
    .footer { margin-top: 30px; padding-top: 20px; border-top: 1px solid #eee; font-size: 12px; color: #888; }
  </style>
</head>
<body>
  <div class="content">
    ` + content + `
  </div>
  <div class="footer">
    <p>Generated by Scrutor.</p>
  </div>
</body>
</html>`
}

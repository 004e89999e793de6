package report

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/fatih/color"

	"categorizer/internal/domain"
)

// RunInfo describes the run a summary belongs to. Zero values are omitted.
type RunInfo struct {
	RunID    string
	Provider string
	Model    string
	Elapsed  time.Duration
	Failures int
	Usage    domain.LLMUsage
}

const rule = "================================================================================"
const thinRule = "--------------------------------------------------------------------------------"

// Print writes the category analysis for a terminal.
func Print(w io.Writer, stats domain.RunStatistics) {
	header := color.New(color.Bold)
	used := color.New(color.FgGreen)
	unused := color.New(color.FgRed)

	header.Fprintln(w, "Category Analysis")
	fmt.Fprintln(w, rule)
	fmt.Fprintf(w, "Total questions: %d\n", stats.Total)
	fmt.Fprintf(w, "Questions with NO categories: %d (%.1f%%)\n", stats.Unlabeled, stats.UnlabeledFraction*100)
	fmt.Fprintf(w, "Questions with categories: %d\n", stats.Labeled())
	fmt.Fprintf(w, "Average categories per question: %.2f\n", stats.MeanLabels)
	fmt.Fprintf(w, "Max categories on one question: %d\n", stats.MaxLabels)
	fmt.Fprintln(w)
	header.Fprintln(w, "Category Usage:")
	fmt.Fprintln(w, thinRule)
	for _, lc := range stats.LabelCounts {
		line := fmt.Sprintf("%-35s %4d questions (%5.1f%%)", lc.Label, lc.Count, percent(lc.Count, stats.Total))
		if lc.Count > 0 {
			used.Fprint(w, "✓ ")
		} else {
			unused.Fprint(w, "✗ ")
		}
		fmt.Fprintln(w, line)
	}
}

// PrintHistory writes label totals aggregated from the run history.
func PrintHistory(w io.Writer, counts []domain.LabelCount) {
	color.New(color.Bold).Fprintln(w, "Label totals across recorded runs")
	fmt.Fprintln(w, thinRule)
	if len(counts) == 0 {
		fmt.Fprintln(w, "No classifications recorded.")
		return
	}
	for _, lc := range counts {
		fmt.Fprintf(w, "%-35s %6d\n", lc.Label, lc.Count)
	}
}

// PrintClassifications lists recorded classifications, one per line, with
// the raw model answer when validation changed it.
func PrintClassifications(w io.Writer, records []domain.ClassificationRecord, loc *time.Location) {
	if loc == nil {
		loc = time.Local
	}
	color.New(color.Bold).Fprintf(w, "Recorded classifications (%d)\n", len(records))
	fmt.Fprintln(w, thinRule)
	if len(records) == 0 {
		fmt.Fprintln(w, "No classifications recorded.")
		return
	}
	failed := color.New(color.FgRed)
	for _, r := range records {
		fmt.Fprintf(w, "%s  run %s #%d  %s: ", r.ClassifiedAt.In(loc).Format("2006-01-02 15:04"), shortID(r.RunID), r.Position+1, r.QuestionName)
		if r.Error != "" {
			failed.Fprintf(w, "failed after %d attempts: %s\n", r.Attempts, r.Error)
			continue
		}
		fmt.Fprintf(w, "[%s]", strings.Join(r.Labels, ", "))
		if strings.Join(r.RawLabels, "\x00") != strings.Join(r.Labels, "\x00") {
			fmt.Fprintf(w, " (model said [%s])", strings.Join(r.RawLabels, ", "))
		}
		fmt.Fprintln(w)
	}
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

// Markdown renders the analysis for the report file and Slack.
func Markdown(stats domain.RunStatistics, info RunInfo) string {
	var b strings.Builder
	b.WriteString("# Category Analysis\n\n")
	if info.RunID != "" {
		fmt.Fprintf(&b, "- Run: `%s`\n", info.RunID)
	}
	if info.Provider != "" || info.Model != "" {
		fmt.Fprintf(&b, "- Model: %s/%s\n", info.Provider, info.Model)
	}
	if info.Elapsed > 0 {
		fmt.Fprintf(&b, "- Elapsed: %.1f min\n", info.Elapsed.Minutes())
	}
	if info.Usage.TotalTokens() > 0 {
		fmt.Fprintf(&b, "- Tokens: %d in / %d out\n", info.Usage.InputTokens, info.Usage.OutputTokens)
	}
	fmt.Fprintf(&b, "- Total questions: %d\n", stats.Total)
	fmt.Fprintf(&b, "- Questions with no categories: %d (%.1f%%)\n", stats.Unlabeled, stats.UnlabeledFraction*100)
	fmt.Fprintf(&b, "- Questions with categories: %d\n", stats.Labeled())
	fmt.Fprintf(&b, "- Average categories per question: %.2f\n", stats.MeanLabels)
	fmt.Fprintf(&b, "- Max categories on one question: %d\n", stats.MaxLabels)
	if info.Failures > 0 {
		fmt.Fprintf(&b, "- Classification failures: %d\n", info.Failures)
	}

	b.WriteString("\n## Category Usage\n\n")
	b.WriteString("| | Category | Questions | Share |\n")
	b.WriteString("|---|---|---:|---:|\n")
	for _, lc := range stats.LabelCounts {
		mark := "✗"
		if lc.Count > 0 {
			mark = "✓"
		}
		fmt.Fprintf(&b, "| %s | %s | %d | %.1f%% |\n", mark, lc.Label, lc.Count, percent(lc.Count, stats.Total))
	}
	return b.String()
}

// WriteReportFile stores content as <name>_<yyyymmdd>.md under outputDir.
func WriteReportFile(content, outputDir string, reportDate time.Time, name string) (string, error) {
	if err := os.MkdirAll(outputDir, 0755); err != nil {
		return "", err
	}
	filename := fmt.Sprintf("%s_%s.md", sanitizeFilename(name), reportDate.Format("20060102"))
	path := filepath.Join(outputDir, filename)
	return path, os.WriteFile(path, []byte(content), 0644)
}

var unsafeFilenameChars = regexp.MustCompile(`[^A-Za-z0-9._-]+`)

func sanitizeFilename(s string) string {
	s = unsafeFilenameChars.ReplaceAllString(strings.TrimSpace(s), "_")
	if s == "" {
		return "report"
	}
	return s
}

func percent(n, total int) float64 {
	if total == 0 {
		return 0
	}
	return float64(n) / float64(total) * 100
}

package slackbot

import (
	"context"
	"fmt"
	"net/http"
	"sort"
	"strings"

	"github.com/slack-go/slack"
	"go.uber.org/zap"

	"categorizer/internal/domain"
	"categorizer/internal/report"
)

const topLabelCount = 10

// Notifier posts a run summary to a Slack channel.
type Notifier struct {
	api       *slack.Client
	channelID string
	logger    *zap.Logger
}

func NewNotifier(token, channelID string, httpClient *http.Client, logger *zap.Logger, opts ...slack.Option) *Notifier {
	if httpClient != nil {
		opts = append([]slack.Option{slack.OptionHTTPClient(httpClient)}, opts...)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Notifier{
		api:       slack.New(token, opts...),
		channelID: channelID,
		logger:    logger,
	}
}

// NotifyRun posts the summary. The returned error is for the caller to log;
// the run's outputs are already on disk.
func (n *Notifier) NotifyRun(ctx context.Context, stats domain.RunStatistics, info report.RunInfo) error {
	text := SummaryText(stats, info)
	_, ts, err := n.api.PostMessageContext(ctx, n.channelID, slack.MsgOptionText(text, false))
	if err != nil {
		return fmt.Errorf("posting run summary to %s: %w", n.channelID, err)
	}
	n.logger.Info("run summary posted", zap.String("channel", n.channelID), zap.String("ts", ts))
	return nil
}

// SummaryText renders a short mrkdwn summary with the most used labels.
func SummaryText(stats domain.RunStatistics, info report.RunInfo) string {
	var b strings.Builder
	b.WriteString("*Categorization finished*")
	if info.RunID != "" {
		fmt.Fprintf(&b, " (`%s`)", info.RunID)
	}
	b.WriteString("\n")
	fmt.Fprintf(&b, "Questions: %d | with categories: %d | none: %d (%.1f%%)\n",
		stats.Total, stats.Labeled(), stats.Unlabeled, stats.UnlabeledFraction*100)
	fmt.Fprintf(&b, "Average per question: %.2f | max: %d\n", stats.MeanLabels, stats.MaxLabels)
	if info.Failures > 0 {
		fmt.Fprintf(&b, ":warning: %d questions failed classification\n", info.Failures)
	}

	top := make([]domain.LabelCount, 0, len(stats.LabelCounts))
	for _, lc := range stats.LabelCounts {
		if lc.Count > 0 {
			top = append(top, lc)
		}
	}
	sort.SliceStable(top, func(i, j int) bool { return top[i].Count > top[j].Count })
	if len(top) > topLabelCount {
		top = top[:topLabelCount]
	}
	if len(top) > 0 {
		b.WriteString("Top categories:\n")
		for _, lc := range top {
			fmt.Fprintf(&b, "• %s: %d\n", lc.Label, lc.Count)
		}
	}
	return strings.TrimRight(b.String(), "\n")
}

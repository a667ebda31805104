package notify

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/conspectus/internal/common"
	"github.com/ternarybob/conspectus/internal/models"
)

// Slack rejects messages past roughly 4000 characters; cutting well before
// that leaves room for the truncation notice.
const (
	maxMessageRunes = 3900
	truncateAtRunes = 3870
	maxSourceLines  = 3
)

const truncationNotice = "...\n\n_(Summary truncated for length)_"

// SlackNotifier posts briefings and insights to a Slack incoming webhook.
type SlackNotifier struct {
	client     *resty.Client
	webhookURL string
	logger     arbor.ILogger
	now        func() time.Time
}

// NewSlackNotifier creates a notifier for the configured webhook.
func NewSlackNotifier(cfg *common.Config, logger arbor.ILogger) *SlackNotifier {
	if logger == nil {
		logger = common.GetLogger()
	}
	client := resty.New().
		SetTimeout(cfg.NotifyTimeout()).
		SetHeader("Content-Type", "application/json")

	return &SlackNotifier{
		client:     client,
		webhookURL: cfg.Notify.WebhookURL,
		logger:     logger,
		now:        time.Now,
	}
}

// SendBriefing posts the portfolio summary with a morning greeting and a
// confidence footer.
func (n *SlackNotifier) SendBriefing(ctx context.Context, briefing models.QueryResult) error {
	var b strings.Builder
	fmt.Fprintf(&b, "🌅 *Good morning! Here's your portfolio summary for %s*\n\n",
		n.now().Format("January 2, 2006 at 3:04 PM"))
	b.WriteString(ToMrkdwn(briefing.Answer))
	b.WriteString(sourceLines(briefing.Sources))
	fmt.Fprintf(&b, "\n\n---\n*Confidence: %s* | *Generated by Conspectus* 🤖", briefing.Confidence)

	return n.post(ctx, b.String())
}

// SendInsight posts a proactive portfolio observation.
func (n *SlackNotifier) SendInsight(ctx context.Context, insight models.QueryResult) error {
	var b strings.Builder
	b.WriteString("💡 *Portfolio Insight*\n\n")
	b.WriteString(ToMrkdwn(insight.Answer))
	b.WriteString(sourceLines(insight.Sources))

	return n.post(ctx, b.String())
}

func (n *SlackNotifier) post(ctx context.Context, message string) error {
	message = truncate(message)

	resp, err := n.client.R().
		SetContext(ctx).
		SetBody(map[string]string{"text": message}).
		Post(n.webhookURL)
	if err != nil {
		return fmt.Errorf("slack webhook: %w", err)
	}
	if resp.IsError() {
		return fmt.Errorf("slack webhook: status %d: %s", resp.StatusCode(), resp.String())
	}

	n.logger.Info().Int("chars", len(message)).Msg("Posted notification to Slack")
	return nil
}

func sourceLines(sources []models.Source) string {
	if len(sources) == 0 {
		return ""
	}
	var b strings.Builder
	b.WriteString("\n\n_Sources:_")
	for i, src := range sources {
		if i == maxSourceLines {
			break
		}
		b.WriteString("\n• " + src.Title)
	}
	return b.String()
}

// truncate cuts over-long messages on a rune boundary so multi-byte
// characters never split.
func truncate(message string) string {
	runes := []rune(message)
	if len(runes) <= maxMessageRunes {
		return message
	}
	return string(runes[:truncateAtRunes]) + truncationNotice
}

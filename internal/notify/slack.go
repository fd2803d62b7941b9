package notify

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/slack-go/slack"
	"golang.org/x/time/rate"

	"github.com/nao1215/dqmon/internal/alert"
)

var (
	// ErrSlackNotConfigured is returned when neither a webhook URL nor a bot
	// token is set.
	ErrSlackNotConfigured = errors.New("slack requires a webhook URL or a bot token")

	// ErrNoChannel is returned when a bot-token message has no channel.
	ErrNoChannel = errors.New("no slack channel specified")
)

// Slack retry defaults.
const (
	DefaultSlackAttempts   = 3
	DefaultSlackMinBackoff = 2 * time.Second
	DefaultSlackMaxBackoff = 10 * time.Second
)

type severityStyle struct {
	color    string
	emoji    string
	priority string
}

var severityStyles = map[alert.Severity]severityStyle{
	alert.Info:     {color: "#36a64f", emoji: ":information_source:", priority: "Informational"},
	alert.Warning:  {color: "#ff9900", emoji: ":warning:", priority: "Attention"},
	alert.Error:    {color: "#e01e5a", emoji: ":rotating_light:", priority: "Error"},
	alert.Critical: {color: "#8b0000", emoji: ":fire:", priority: "CRITICAL"},
}

// SlackConfig configures the Slack notifier. WebhookURL wins when both it
// and Token are set.
type SlackConfig struct {
	WebhookURL     string
	Token          string
	DefaultChannel string

	// APIURL overrides the Slack Web API base URL.
	APIURL string
}

// Slack posts alerts as Block Kit messages through an incoming webhook or
// the chat.postMessage API.
type Slack struct {
	client     *slack.Client
	webhookURL string
	channel    string
	pacer      *rate.Limiter
	attempts   int
	minBackoff time.Duration
	maxBackoff time.Duration
	logger     *slog.Logger
}

// SlackOption configures a Slack notifier.
type SlackOption func(*Slack)

// WithSlackLogger sets the logger.
func WithSlackLogger(logger *slog.Logger) SlackOption {
	return func(s *Slack) {
		s.logger = logger
	}
}

// WithSlackRetry sets the number of attempts and the backoff bounds.
func WithSlackRetry(attempts int, minBackoff, maxBackoff time.Duration) SlackOption {
	return func(s *Slack) {
		if attempts > 0 {
			s.attempts = attempts
		}
		s.minBackoff = minBackoff
		s.maxBackoff = maxBackoff
	}
}

// WithSlackRate sets how many messages per second may be posted.
func WithSlackRate(perSecond float64) SlackOption {
	return func(s *Slack) {
		if perSecond > 0 {
			s.pacer = rate.NewLimiter(rate.Limit(perSecond), 1)
		}
	}
}

// NewSlack creates a Slack notifier.
func NewSlack(cfg SlackConfig, opts ...SlackOption) (*Slack, error) {
	if cfg.WebhookURL == "" && cfg.Token == "" {
		return nil, ErrSlackNotConfigured
	}

	s := &Slack{
		webhookURL: cfg.WebhookURL,
		channel:    cfg.DefaultChannel,
		pacer:      rate.NewLimiter(rate.Limit(1), 1),
		attempts:   DefaultSlackAttempts,
		minBackoff: DefaultSlackMinBackoff,
		maxBackoff: DefaultSlackMaxBackoff,
		logger:     slog.Default(),
	}
	if cfg.Token != "" {
		var clientOpts []slack.Option
		if cfg.APIURL != "" {
			clientOpts = append(clientOpts, slack.OptionAPIURL(strings.TrimSuffix(cfg.APIURL, "/")+"/"))
		}
		s.client = slack.New(cfg.Token, clientOpts...)
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Name implements Notifier.
func (s *Slack) Name() string { return "slack" }

// AuthTest verifies the bot token. It is a no-op for webhooks.
func (s *Slack) AuthTest(ctx context.Context) error {
	if s.client == nil {
		return nil
	}
	resp, err := s.client.AuthTestContext(ctx)
	if err != nil {
		return fmt.Errorf("slack auth test failed: %w", err)
	}
	s.logger.Debug("connected to slack", "user", resp.User, "team", resp.Team)
	return nil
}

// Send implements Notifier.
func (s *Slack) Send(ctx context.Context, a alert.Alert, channel string, mentions []string) error {
	blocks := AlertBlocks(a, mentions)
	fallback := fmt.Sprintf("%s: %s", strings.ToUpper(a.Severity.String()), a.Title)
	color := severityStyles[a.Severity].color

	err := s.post(ctx, channel, fallback, blocks, color)
	if err != nil {
		return deliveryError(s.Name(), err)
	}
	s.logger.Info("alert sent to slack", "title", a.Title, "severity", a.Severity.String())
	return nil
}

// SendSummary implements Notifier.
func (s *Slack) SendSummary(ctx context.Context, sum alert.Summary, channel string) error {
	if err := s.post(ctx, channel, "Daily alert summary", SummaryBlocks(sum), ""); err != nil {
		return deliveryError(s.Name(), err)
	}
	return nil
}

func (s *Slack) post(ctx context.Context, channel, fallback string, blocks []slack.Block, color string) error {
	if channel == "" {
		channel = s.channel
	}
	if s.webhookURL == "" && channel == "" {
		return ErrNoChannel
	}

	op := func() error {
		if err := s.pacer.Wait(ctx); err != nil {
			return backoff.Permanent(err)
		}
		err := s.postOnce(ctx, channel, fallback, blocks, color)
		if err != nil && !retryable(err) {
			return backoff.Permanent(err)
		}
		if err != nil {
			s.logger.Warn("slack post failed, retrying", "error", err)
		}
		return err
	}

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = s.minBackoff
	b.MaxInterval = s.maxBackoff
	policy := backoff.WithContext(backoff.WithMaxRetries(b, uint64(s.attempts-1)), ctx) //nolint:gosec // attempts > 0

	return backoff.Retry(op, policy)
}

func (s *Slack) postOnce(ctx context.Context, channel, fallback string, blocks []slack.Block, color string) error {
	if s.webhookURL != "" {
		msg := &slack.WebhookMessage{
			Channel: channel,
			Text:    fallback,
			Blocks:  &slack.Blocks{BlockSet: blocks},
		}
		if color != "" {
			msg.Attachments = []slack.Attachment{{Color: color, Fallback: fallback}}
		}
		return slack.PostWebhookContext(ctx, s.webhookURL, msg)
	}

	opts := []slack.MsgOption{
		slack.MsgOptionText(fallback, false),
		slack.MsgOptionBlocks(blocks...),
	}
	if color != "" {
		opts = append(opts, slack.MsgOptionAttachments(slack.Attachment{Color: color, Fallback: fallback}))
	}
	_, _, err := s.client.PostMessageContext(ctx, channel, opts...)
	return err
}

// retryable reports whether a post error may succeed on a later attempt.
// Slack API errors such as invalid_auth or channel_not_found never will.
func retryable(err error) bool {
	var apiErr slack.SlackErrorResponse
	if errors.As(err, &apiErr) {
		return false
	}
	var status slack.StatusCodeError
	if errors.As(err, &status) {
		return status.Code >= 500 || status.Code == 429
	}
	return !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded)
}

// AlertBlocks renders a as Block Kit blocks.
func AlertBlocks(a alert.Alert, mentions []string) []slack.Block {
	style := severityStyles[a.Severity]

	blocks := []slack.Block{
		slack.NewHeaderBlock(slack.NewTextBlockObject(slack.PlainTextType, style.emoji+" "+a.Title, true, false)),
		slack.NewContextBlock("",
			slack.NewTextBlockObject(slack.MarkdownType, "*Priority:* "+style.priority, false, false),
			slack.NewTextBlockObject(slack.MarkdownType, "*Source:* "+a.Source, false, false),
			slack.NewTextBlockObject(slack.MarkdownType, "*Time:* "+a.Timestamp.Format("02/01/2006 15:04:05"), false, false),
		),
		slack.NewDividerBlock(),
		slack.NewSectionBlock(slack.NewTextBlockObject(slack.MarkdownType, a.Message, false, false), nil, nil),
	}

	if a.MetricName != "" {
		var fields []*slack.TextBlockObject
		if a.MetricValue != nil {
			fields = append(fields,
				slack.NewTextBlockObject(slack.MarkdownType, "*Metric:*\n"+a.MetricName, false, false),
				slack.NewTextBlockObject(slack.MarkdownType, "*Value:*\n"+FormatValue(*a.MetricValue), false, false),
			)
		}
		if a.Threshold != nil {
			fields = append(fields,
				slack.NewTextBlockObject(slack.MarkdownType, "*Limit:*\n"+FormatValue(*a.Threshold), false, false))
		}
		if len(fields) > 0 {
			blocks = append(blocks, slack.NewSectionBlock(nil, fields, nil))
		}
	}

	if meta := a.Metadata(); len(meta) > 0 {
		keys := make([]string, 0, len(meta))
		for k := range meta {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		lines := make([]string, 0, len(keys))
		for _, k := range keys {
			lines = append(lines, fmt.Sprintf("• *%s:* %v", k, meta[k]))
		}
		blocks = append(blocks, slack.NewSectionBlock(
			slack.NewTextBlockObject(slack.MarkdownType, "*Details:*\n"+strings.Join(lines, "\n"), false, false), nil, nil))
	}

	if len(mentions) > 0 {
		tags := make([]string, 0, len(mentions))
		for _, id := range mentions {
			if id = strings.TrimSpace(id); id != "" {
				tags = append(tags, "<@"+id+">")
			}
		}
		if len(tags) > 0 {
			blocks = append(blocks, slack.NewContextBlock("",
				slack.NewTextBlockObject(slack.MarkdownType, "cc: "+strings.Join(tags, " "), false, false)))
		}
	}

	return blocks
}

// SummaryBlocks renders an alert digest.
func SummaryBlocks(s alert.Summary) []slack.Block {
	blocks := []slack.Block{
		slack.NewHeaderBlock(slack.NewTextBlockObject(slack.PlainTextType, ":bar_chart: Daily Summary", true, false)),
		slack.NewSectionBlock(nil, []*slack.TextBlockObject{
			slack.NewTextBlockObject(slack.MarkdownType, fmt.Sprintf("*Total alerts:*\n%d", s.TotalAlerts), false, false),
			slack.NewTextBlockObject(slack.MarkdownType, fmt.Sprintf("*Last 24h:*\n%d", s.Last24h), false, false),
		}, nil),
		slack.NewDividerBlock(),
	}

	if len(s.BySeverity) > 0 {
		lines := make([]string, 0, len(s.BySeverity))
		for _, sev := range alert.Severities() {
			if n, ok := s.BySeverity[sev.String()]; ok {
				lines = append(lines, fmt.Sprintf("• %s: %d", strings.ToUpper(sev.String()), n))
			}
		}
		blocks = append(blocks, slack.NewSectionBlock(
			slack.NewTextBlockObject(slack.MarkdownType, "*By severity:*\n"+strings.Join(lines, "\n"), false, false), nil, nil))
	}

	if len(s.BySource) > 0 {
		lines := make([]string, 0, len(s.BySource))
		for _, src := range s.Sources() {
			lines = append(lines, fmt.Sprintf("• %s: %d", src, s.BySource[src]))
		}
		blocks = append(blocks, slack.NewSectionBlock(
			slack.NewTextBlockObject(slack.MarkdownType, "*By source:*\n"+strings.Join(lines, "\n"), false, false), nil, nil))
	}

	return blocks
}

// FormatValue renders fractions in (0, 1) as percentages and everything else
// with two decimals.
func FormatValue(v float64) string {
	if v > 0 && v < 1 {
		return fmt.Sprintf("%.2f%%", v*100)
	}
	return fmt.Sprintf("%.2f", v)
}

package notify

import (
	"context"
	"fmt"
	"net/http"
	"time"

	httpclient "github.com/abdul-hamid-achik/statusprobe/packages/http"
)

// SlackNotifier sends notifications to Slack via webhook
type SlackNotifier struct {
	webhookURL string
	channel    string
	username   string
	iconEmoji  string
	client     *httpclient.Client
}

type SlackOption func(*SlackNotifier)

func WithSlackChannel(channel string) SlackOption {
	return func(s *SlackNotifier) {
		s.channel = channel
	}
}

func WithSlackUsername(username string) SlackOption {
	return func(s *SlackNotifier) {
		s.username = username
	}
}

func WithSlackIconEmoji(emoji string) SlackOption {
	return func(s *SlackNotifier) {
		s.iconEmoji = emoji
	}
}

// WithSlackClient replaces the default webhook client.
func WithSlackClient(c *httpclient.Client) SlackOption {
	return func(s *SlackNotifier) {
		s.client = c
	}
}

func NewSlackNotifier(webhookURL string, opts ...SlackOption) *SlackNotifier {
	s := &SlackNotifier{
		webhookURL: webhookURL,
		username:   "statusprobe",
		iconEmoji:  ":satellite:",
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.client == nil {
		s.client = httpclient.NewClient(httpclient.WithTimeout(10 * time.Second))
	}
	return s
}

func (s *SlackNotifier) Name() string {
	return "slack"
}

type slackMessage struct {
	Channel     string            `json:"channel,omitempty"`
	Username    string            `json:"username,omitempty"`
	IconEmoji   string            `json:"icon_emoji,omitempty"`
	Attachments []slackAttachment `json:"attachments"`
}

type slackAttachment struct {
	Color  string       `json:"color"`
	Title  string       `json:"title"`
	Text   string       `json:"text,omitempty"`
	Fields []slackField `json:"fields,omitempty"`
	Footer string       `json:"footer,omitempty"`
	TS     int64        `json:"ts,omitempty"`
}

type slackField struct {
	Title string `json:"title"`
	Value string `json:"value"`
	Short bool   `json:"short"`
}

func (s *SlackNotifier) message(summary *RunSummary) slackMessage {
	color := "good"
	emoji := ":white_check_mark:"
	switch {
	case summary.Failure != nil:
		color = "danger"
		emoji = ":x:"
	case summary.IsRecovery:
		emoji = ":tada:"
	case summary.Warnings > 0:
		color = "warning"
		emoji = ":warning:"
	}

	fields := []slackField{
		{Title: "Target", Value: summary.target(), Short: false},
		{Title: "State", Value: summary.State, Short: true},
		{Title: "Duration", Value: summary.Duration.Round(time.Millisecond).String(), Short: true},
	}

	var text string
	if f := summary.Failure; f != nil {
		text = fmt.Sprintf("*%s*: %s", f.Kind, f.Message)
		if f.Detail != "" {
			text += fmt.Sprintf("\n```%s```", f.Detail)
		}
	}

	return slackMessage{
		Channel:   s.channel,
		Username:  s.username,
		IconEmoji: s.iconEmoji,
		Attachments: []slackAttachment{{
			Color:  color,
			Title:  fmt.Sprintf("%s %s", emoji, summary.headline()),
			Text:   text,
			Fields: fields,
			Footer: "statusprobe run " + summary.RunID,
			TS:     time.Now().Unix(),
		}},
	}
}

func (s *SlackNotifier) Notify(ctx context.Context, summary *RunSummary) error {
	return postJSON(ctx, s.client, s.webhookURL, s.message(summary), http.StatusOK)
}

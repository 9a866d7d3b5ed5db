package notify

import (
	"context"
	"fmt"
	"net/http"
	"time"

	httpclient "github.com/abdul-hamid-achik/statusprobe/packages/http"
)

// TeamsNotifier sends notifications to Microsoft Teams via webhook
type TeamsNotifier struct {
	webhookURL string
	client     *httpclient.Client
}

type TeamsOption func(*TeamsNotifier)

// WithTeamsClient replaces the default webhook client.
func WithTeamsClient(c *httpclient.Client) TeamsOption {
	return func(t *TeamsNotifier) {
		t.client = c
	}
}

func NewTeamsNotifier(webhookURL string, opts ...TeamsOption) *TeamsNotifier {
	t := &TeamsNotifier{
		webhookURL: webhookURL,
	}
	for _, opt := range opts {
		opt(t)
	}
	if t.client == nil {
		t.client = httpclient.NewClient(httpclient.WithTimeout(10 * time.Second))
	}
	return t
}

func (t *TeamsNotifier) Name() string {
	return "teams"
}

// teamsMessage is a message carrying one Adaptive Card.
type teamsMessage struct {
	Type        string      `json:"type"`
	Attachments []teamsCard `json:"attachments"`
}

type teamsCard struct {
	ContentType string           `json:"contentType"`
	ContentURL  *string          `json:"contentUrl"`
	Content     teamsCardContent `json:"content"`
}

type teamsCardContent struct {
	Schema  string       `json:"$schema"`
	Type    string       `json:"type"`
	Version string       `json:"version"`
	Body    []teamsBlock `json:"body"`
}

type teamsBlock struct {
	Type      string      `json:"type"`
	Size      string      `json:"size,omitempty"`
	Weight    string      `json:"weight,omitempty"`
	Text      string      `json:"text,omitempty"`
	Color     string      `json:"color,omitempty"`
	Wrap      bool        `json:"wrap,omitempty"`
	Facts     []teamsFact `json:"facts,omitempty"`
	Spacing   string      `json:"spacing,omitempty"`
	Separator bool        `json:"separator,omitempty"`
}

type teamsFact struct {
	Title string `json:"title"`
	Value string `json:"value"`
}

func (t *TeamsNotifier) message(summary *RunSummary) teamsMessage {
	color := "good"
	if summary.Failure != nil {
		color = "attention"
	} else if summary.Warnings > 0 {
		color = "warning"
	}

	body := []teamsBlock{
		{
			Type:   "TextBlock",
			Size:   "Large",
			Weight: "Bolder",
			Text:   summary.headline(),
			Color:  color,
			Wrap:   true,
		},
		{
			Type:      "FactSet",
			Separator: true,
			Spacing:   "Medium",
			Facts: []teamsFact{
				{Title: "Target", Value: summary.target()},
				{Title: "State", Value: summary.State},
				{Title: "Duration", Value: summary.Duration.Round(time.Millisecond).String()},
				{Title: "Run ID", Value: summary.RunID},
			},
		},
	}

	if f := summary.Failure; f != nil {
		body = append(body, teamsBlock{
			Type:      "TextBlock",
			Text:      fmt.Sprintf("**%s:** %s", f.Kind, f.Message),
			Separator: true,
			Wrap:      true,
		})
		if f.Detail != "" {
			body = append(body, teamsBlock{Type: "TextBlock", Text: f.Detail, Wrap: true})
		}
	}

	return teamsMessage{
		Type: "message",
		Attachments: []teamsCard{{
			ContentType: "application/vnd.microsoft.card.adaptive",
			Content: teamsCardContent{
				Schema:  "http://adaptivecards.io/schemas/adaptive-card.json",
				Type:    "AdaptiveCard",
				Version: "1.2",
				Body:    body,
			},
		}},
	}
}

func (t *TeamsNotifier) Notify(ctx context.Context, summary *RunSummary) error {
	return postJSON(ctx, t.client, t.webhookURL, t.message(summary), http.StatusOK, http.StatusAccepted)
}

package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/user/poe/pkg/release"
)

//go:generate mockgen -destination=mocks/http_doer_mock.go -package=mocks github.com/user/poe/pkg/notify HTTPDoer

type HTTPDoer interface {
	Do(req *http.Request) (*http.Response, error)
}

const (
	colorPrerelease = "#f2c744"
	colorStable     = "#2eb67d"
)

// Message is an incoming-webhook payload understood by both Slack and
// Mattermost.
type Message struct {
	Username    string       `json:"username,omitempty"`
	Text        string       `json:"text,omitempty"`
	Attachments []Attachment `json:"attachments,omitempty"`
}

type Attachment struct {
	Fallback  string  `json:"fallback"`
	Color     string  `json:"color,omitempty"`
	Title     string  `json:"title"`
	TitleLink string  `json:"title_link,omitempty"`
	Fields    []Field `json:"fields,omitempty"`
}

type Field struct {
	Title string `json:"title"`
	Value string `json:"value"`
	Short bool   `json:"short"`
}

// Webhook announces published releases on a chat incoming webhook.
type Webhook struct {
	url        string
	username   string
	httpClient HTTPDoer
}

func NewWebhook(url, username string) *Webhook {
	return NewWebhookWithHTTP(url, username, &http.Client{})
}

func NewWebhookWithHTTP(url, username string, httpClient HTTPDoer) *Webhook {
	return &Webhook{
		url:        url,
		username:   username,
		httpClient: httpClient,
	}
}

func (w *Webhook) Send(ctx context.Context, msg Message) error {
	if msg.Username == "" {
		msg.Username = w.username
	}
	body, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshaling message: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := w.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("posting to webhook: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("webhook error: %d", resp.StatusCode)
	}
	return nil
}

// Published announces a published release request.
func (w *Webhook) Published(ctx context.Context, req *release.Request) error {
	return w.Send(ctx, PublishedMessage(req))
}

func PublishedMessage(req *release.Request) Message {
	channel := "unknown"
	color := colorPrerelease
	if ch, err := req.Channel(); err == nil {
		channel = ch.Name
		if !ch.MarkAsPrerelease {
			color = colorStable
		}
	}

	title := fmt.Sprintf("%s %s", req.Repo.FullName(), req.Next.Next)
	return Message{
		Attachments: []Attachment{{
			Fallback:  fmt.Sprintf("%s released %s to %s", req.Repo.FullName(), req.Next.Next, channel),
			Color:     color,
			Title:     title,
			TitleLink: req.CompareURL(),
			Fields: []Field{
				{Title: "Channel", Value: channel, Short: true},
				{Title: "Commit", Value: shortSHA(req.Next.HeadCommit), Short: true},
			},
		}},
	}
}

func shortSHA(sha string) string {
	if len(sha) > 7 {
		return sha[:7]
	}
	return sha
}

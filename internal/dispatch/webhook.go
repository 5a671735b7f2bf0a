// Package dispatch delivers rendered messages to a chat webhook.
package dispatch

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/ppiankov/postmirror/internal/render"
)

const (
	httpTimeout  = 30 * time.Second
	maxBodyBytes = 4 << 10
)

// Response is the raw webhook answer, kept for logging.
type Response struct {
	StatusCode int
	Body       string
}

// Error is returned when the webhook POST fails or is rejected.
type Error struct {
	StatusCode int // 0 when no response was received
	Body       string
	Err        error
}

func (e *Error) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("dispatch: HTTP %d: %s", e.StatusCode, e.Body)
	}
	return fmt.Sprintf("dispatch: %v", e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// payload is the webhook execute body.
type payload struct {
	Content   string `json:"content"`
	Username  string `json:"username,omitempty"`
	AvatarURL string `json:"avatar_url,omitempty"`
}

// Webhook posts messages to a single destination URL.
type Webhook struct {
	url    string
	client *http.Client
}

// NewWebhook creates a dispatcher for url.
func NewWebhook(url string) (*Webhook, error) {
	if strings.TrimSpace(url) == "" {
		return nil, errors.New("dispatch: webhook url is required")
	}
	return &Webhook{
		url:    url,
		client: &http.Client{Timeout: httpTimeout},
	}, nil
}

// Send issues one POST for msg. A non-2xx answer is an *Error carrying the
// response; there is no retry.
func (w *Webhook) Send(ctx context.Context, msg render.Message) (Response, error) {
	body, err := json.Marshal(payload{
		Content:   msg.Content(),
		Username:  msg.DisplayName,
		AvatarURL: msg.AvatarURL,
	})
	if err != nil {
		return Response{}, &Error{Err: fmt.Errorf("marshal payload: %w", err)}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.url, bytes.NewReader(body))
	if err != nil {
		return Response{}, &Error{Err: fmt.Errorf("create request: %w", err)}
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := w.client.Do(req)
	if err != nil {
		return Response{}, &Error{Err: err}
	}
	defer func() { _ = resp.Body.Close() }()

	raw, _ := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	out := Response{StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(raw))}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return out, &Error{
			StatusCode: resp.StatusCode,
			Body:       out.Body,
			Err:        fmt.Errorf("unexpected status %d", resp.StatusCode),
		}
	}
	return out, nil
}

package slack

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"
)

const defaultAPIBase = "https://slack.com/api"

// APIError is a Slack Web API call that came back with ok=false or a non-2xx status.
type APIError struct {
	Method     string
	StatusCode int
	Code       string
}

func (e *APIError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("slack %s: %s", e.Method, e.Code)
	}
	return fmt.Sprintf("slack %s: HTTP %d", e.Method, e.StatusCode)
}

// Poster sends bot replies through the Slack Web API.
type Poster struct {
	token   string
	client  *http.Client
	logger  *slog.Logger
	apiBase string
}

func NewPoster(token string, logger *slog.Logger) *Poster {
	return &Poster{
		token:   token,
		client:  &http.Client{Timeout: 10 * time.Second},
		logger:  logger,
		apiBase: defaultAPIBase,
	}
}

type postMessageRequest struct {
	Channel  string `json:"channel"`
	Text     string `json:"text"`
	ThreadTS string `json:"thread_ts,omitempty"`
}

// PostMessage posts text to a channel, as a threaded reply when threadTS is set.
// Returns the timestamp of the posted message.
func (p *Poster) PostMessage(ctx context.Context, channel, text, threadTS string) (string, error) {
	var out struct {
		TS string `json:"ts"`
	}
	req := postMessageRequest{Channel: channel, Text: text, ThreadTS: threadTS}
	if err := p.call(ctx, "chat.postMessage", req, &out); err != nil {
		return "", err
	}
	p.logger.Debug("posted reply to slack", "channel", channel, "ts", out.TS)
	return out.TS, nil
}

// call invokes a Web API method with a JSON body and decodes the response
// envelope into out.
func (p *Poster) call(ctx context.Context, method string, in, out any) error {
	body, err := json.Marshal(in)
	if err != nil {
		return fmt.Errorf("encode %s request: %w", method, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.apiBase+"/"+method, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build %s request: %w", method, err)
	}
	req.Header.Set("Content-Type", "application/json; charset=utf-8")
	req.Header.Set("Authorization", "Bearer "+p.token)

	resp, err := p.client.Do(req)
	if err != nil {
		return fmt.Errorf("slack %s: %w", method, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode/100 != 2 {
		return &APIError{Method: method, StatusCode: resp.StatusCode}
	}

	raw := json.RawMessage{}
	if err := json.NewDecoder(resp.Body).Decode(&raw); err != nil {
		return fmt.Errorf("decode %s response: %w", method, err)
	}
	var envelope struct {
		OK    bool   `json:"ok"`
		Error string `json:"error"`
	}
	if err := json.Unmarshal(raw, &envelope); err != nil {
		return fmt.Errorf("decode %s response: %w", method, err)
	}
	if !envelope.OK {
		return &APIError{Method: method, StatusCode: resp.StatusCode, Code: envelope.Error}
	}
	if out != nil {
		if err := json.Unmarshal(raw, out); err != nil {
			return fmt.Errorf("decode %s result: %w", method, err)
		}
	}
	return nil
}

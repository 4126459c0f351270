package dialog

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// APIError is returned when the dialog service answers with a non-200 status.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("dialog api error %d: %s", e.StatusCode, e.Message)
}

type Client struct {
	baseURL     string
	username    string
	password    string
	workspaceID string
	version     string
	client      *http.Client
}

func NewClient(baseURL, username, password, workspaceID, version string) *Client {
	return &Client{
		baseURL:     strings.TrimRight(baseURL, "/"),
		username:    username,
		password:    password,
		workspaceID: workspaceID,
		version:     version,
		client:      &http.Client{Timeout: 30 * time.Second},
	}
}

// Message sends the user's text along with the current dialog context and
// returns the service's response. The caller's context map is not modified.
func (c *Client) Message(ctx context.Context, text string, dctx Context) (*Response, error) {
	body, err := json.Marshal(request{
		Input:   Input{Text: text},
		Context: dctx,
	})
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	endpoint := fmt.Sprintf("%s/v1/workspaces/%s/message?version=%s",
		c.baseURL, url.PathEscape(c.workspaceID), url.QueryEscape(c.version))

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	if c.username != "" {
		req.SetBasicAuth(c.username, c.password)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("api call: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		var errResp errorResponse
		if json.Unmarshal(respBody, &errResp) == nil && errResp.Error != "" {
			return nil, &APIError{StatusCode: resp.StatusCode, Message: errResp.Error}
		}
		return nil, &APIError{StatusCode: resp.StatusCode, Message: string(respBody)}
	}

	var out Response
	if err := json.Unmarshal(respBody, &out); err != nil {
		return nil, fmt.Errorf("unmarshal response: %w", err)
	}
	if out.Context == nil {
		out.Context = Context{}
	}
	return &out, nil
}

package foursquare

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"
)

const (
	defaultBaseURL = "https://api.foursquare.com/v2"
	apiVersion     = "20170801"
)

type Client struct {
	clientID     string
	clientSecret string
	client       *http.Client
	baseURL      string
}

func NewClient(clientID, clientSecret string) *Client {
	return &Client{
		clientID:     clientID,
		clientSecret: clientSecret,
		client:       &http.Client{Timeout: 10 * time.Second},
		baseURL:      defaultBaseURL,
	}
}

// Venue is the subset of a Foursquare venue the concierge uses.
type Venue struct {
	ID       string   `json:"id"`
	Name     string   `json:"name"`
	Location Location `json:"location"`
}

type Location struct {
	Address string `json:"address"`
	City    string `json:"city"`
}

// SearchParams narrows a venue search. Near is a free-form place name.
type SearchParams struct {
	Query  string
	Near   string
	Radius int // metres
	Limit  int
}

type searchResponse struct {
	Meta struct {
		Code        int    `json:"code"`
		ErrorType   string `json:"errorType"`
		ErrorDetail string `json:"errorDetail"`
	} `json:"meta"`
	Response struct {
		Venues []Venue `json:"venues"`
	} `json:"response"`
}

// SearchVenues returns venues matching params.
func (c *Client) SearchVenues(ctx context.Context, params SearchParams) ([]Venue, error) {
	q := url.Values{}
	q.Set("client_id", c.clientID)
	q.Set("client_secret", c.clientSecret)
	q.Set("v", apiVersion)
	q.Set("near", params.Near)
	if params.Query != "" {
		q.Set("query", params.Query)
	}
	if params.Radius > 0 {
		q.Set("radius", strconv.Itoa(params.Radius))
	}
	if params.Limit > 0 {
		q.Set("limit", strconv.Itoa(params.Limit))
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/venues/search?"+q.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("venue search: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	var out searchResponse
	if err := json.Unmarshal(body, &out); err != nil {
		return nil, fmt.Errorf("parse venue response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("foursquare error %d: %s %s", resp.StatusCode, out.Meta.ErrorType, out.Meta.ErrorDetail)
	}

	return out.Response.Venues, nil
}

// Package chat holds the client side of the portal's chat widget: a thin
// gateway client and the per-surface session driving it.
package chat

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/portailagence/knowledgeflow/internal/models"
)

// ErrQuery covers every way a gateway call can fail: transport error,
// non-success status, or a malformed body. Callers show the user one fixed
// fallback message regardless of which it was; the detail is for logs.
var ErrQuery = errors.New("chat gateway query failed")

// Client calls the conversation gateway. It is stateless per request.
type Client struct {
	httpClient *http.Client
	endpoint   string
}

// NewClient creates a client for the /chat endpoint.
func NewClient(endpoint string) *Client {
	return &Client{
		httpClient: &http.Client{Timeout: 45 * time.Second},
		endpoint:   endpoint,
	}
}

// Ask submits one question and returns the answer with its ordered
// citations. Sources is never nil on success.
func (c *Client) Ask(ctx context.Context, query string) (*models.ChatResponse, error) {
	payload, err := json.Marshal(models.ChatRequest{Query: query})
	if err != nil {
		return nil, fmt.Errorf("%w: marshal request: %v", ErrQuery, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("%w: build request: %v", ErrQuery, err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrQuery, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("%w: gateway returned status %d", ErrQuery, resp.StatusCode)
	}

	var answer models.ChatResponse
	if err := json.NewDecoder(resp.Body).Decode(&answer); err != nil {
		return nil, fmt.Errorf("%w: malformed response body: %v", ErrQuery, err)
	}
	if answer.Sources == nil {
		answer.Sources = []models.Citation{}
	}
	return &answer, nil
}

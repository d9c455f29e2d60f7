// Package sources holds the HTTP clients behind the background jobs: the
// mailbox bridge, the marketplace scraper and the bookkeeping API.
package sources

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/yohand-byte/huawei-sales-margin-tracker-sub002/internal/ingest"
)

// MailAPI talks to the IMAP bridge that exposes the notification mailbox
// over plain JSON.
type MailAPI struct {
	baseURL    string
	httpClient *http.Client
}

// NewMailAPI constructs a new client.
func NewMailAPI(baseURL string, timeout time.Duration) *MailAPI {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &MailAPI{
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: timeout},
	}
}

// ListUnseen returns up to max unseen messages, oldest first.
func (c *MailAPI) ListUnseen(ctx context.Context, max int) ([]ingest.InboundEmail, error) {
	u := fmt.Sprintf("%s/messages/unseen?limit=%s", c.baseURL, strconv.Itoa(max))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, err
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer func() {
		_ = resp.Body.Close()
	}()
	if resp.StatusCode >= 400 {
		return nil, fmt.Errorf("mailapi: list unseen returned status %d", resp.StatusCode)
	}
	var out struct {
		Messages []ingest.InboundEmail `json:"messages"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("mailapi: decode messages: %w", err)
	}
	return out.Messages, nil
}

// MarkSeen flags a message so it is not returned again.
func (c *MailAPI) MarkSeen(ctx context.Context, messageID string) error {
	u := fmt.Sprintf("%s/messages/%s/seen", c.baseURL, url.PathEscape(messageID))
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u, nil)
	if err != nil {
		return err
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer func() {
		_ = resp.Body.Close()
	}()
	if resp.StatusCode >= 400 {
		return fmt.Errorf("mailapi: mark seen returned status %d", resp.StatusCode)
	}
	return nil
}

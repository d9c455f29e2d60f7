package sources

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/yohand-byte/huawei-sales-margin-tracker-sub002/internal/ingest"
	"github.com/yohand-byte/huawei-sales-margin-tracker-sub002/jobs"
)

// Scraper drives the headless-browser service that re-reads negotiation
// pages on the marketplaces.
type Scraper struct {
	baseURL    string
	httpClient *http.Client
}

// NewScraper constructs a new client.
func NewScraper(baseURL string, timeout time.Duration) *Scraper {
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	return &Scraper{
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: timeout},
	}
}

// Fetch scrapes one negotiation page. Pages that are gone or behind a login
// wall come back as jobs.ErrPageUnavailable so the pass moves on.
func (c *Scraper) Fetch(ctx context.Context, channel, negotiationID string) (ingest.ScrapeResult, error) {
	body, err := json.Marshal(map[string]string{
		"channel":        channel,
		"negotiation_id": negotiationID,
	})
	if err != nil {
		return ingest.ScrapeResult{}, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/scrape", bytes.NewReader(body))
	if err != nil {
		return ingest.ScrapeResult{}, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return ingest.ScrapeResult{}, err
	}
	defer func() {
		_ = resp.Body.Close()
	}()
	switch {
	case resp.StatusCode == http.StatusNotFound,
		resp.StatusCode == http.StatusBadGateway,
		resp.StatusCode == http.StatusServiceUnavailable:
		return ingest.ScrapeResult{}, jobs.ErrPageUnavailable
	case resp.StatusCode >= 400:
		return ingest.ScrapeResult{}, fmt.Errorf("scraper: fetch returned status %d", resp.StatusCode)
	}

	var out ingest.ScrapeResult
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return ingest.ScrapeResult{}, fmt.Errorf("scraper: decode result: %w", err)
	}
	if out.ScrapedAt.IsZero() {
		out.ScrapedAt = time.Now().UTC()
	}
	return out, nil
}

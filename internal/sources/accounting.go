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

const accountingPageSize = 200

// AccountingAPI pulls sales orders from the bookkeeping system.
type AccountingAPI struct {
	baseURL    string
	token      string
	httpClient *http.Client
}

// NewAccountingAPI constructs a new client.
func NewAccountingAPI(baseURL, token string, timeout time.Duration) *AccountingAPI {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &AccountingAPI{
		baseURL:    baseURL,
		token:      token,
		httpClient: &http.Client{Timeout: timeout},
	}
}

// ListModifiedSince pages through sales orders changed after the cursor.
func (c *AccountingAPI) ListModifiedSince(ctx context.Context, since time.Time) ([]ingest.AccountingSalesOrder, error) {
	var all []ingest.AccountingSalesOrder
	for page := 1; ; page++ {
		batch, more, err := c.page(ctx, since, page)
		if err != nil {
			return nil, err
		}
		all = append(all, batch...)
		if !more {
			return all, nil
		}
	}
}

func (c *AccountingAPI) page(ctx context.Context, since time.Time, page int) ([]ingest.AccountingSalesOrder, bool, error) {
	q := url.Values{}
	q.Set("page", strconv.Itoa(page))
	q.Set("per_page", strconv.Itoa(accountingPageSize))
	q.Set("sort_column", "last_modified_time")
	if !since.IsZero() {
		q.Set("last_modified_time", since.UTC().Format(time.RFC3339))
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/salesorders?"+q.Encode(), nil)
	if err != nil {
		return nil, false, err
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Zoho-oauthtoken "+c.token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, false, err
	}
	defer func() {
		_ = resp.Body.Close()
	}()
	if resp.StatusCode >= 400 {
		return nil, false, fmt.Errorf("accounting: list salesorders returned status %d", resp.StatusCode)
	}

	var out struct {
		SalesOrders []ingest.AccountingSalesOrder `json:"salesorders"`
		PageContext struct {
			HasMorePage bool `json:"has_more_page"`
		} `json:"page_context"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, false, fmt.Errorf("accounting: decode salesorders: %w", err)
	}
	return out.SalesOrders, out.PageContext.HasMorePage, nil
}

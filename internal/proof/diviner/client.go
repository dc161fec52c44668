// Package diviner queries the location consensus service: an external network
// that corroborates a claimed location from multiple witness observations.
package diviner

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/xyo-geohacker/chaincheck-sub003/internal/proof/models"
	dErrors "github.com/xyo-geohacker/chaincheck-sub003/pkg/domain-errors"
)

// Client answers location consensus queries.
type Client interface {
	Query(ctx context.Context, lat, lon float64, ts time.Time) (*models.DivinerResult, error)
}

// HTTPClient is the real diviner client.
type HTTPClient struct {
	baseURL string
	client  *http.Client
}

// NewHTTPClient builds a diviner client with a bounded per-call timeout.
func NewHTTPClient(baseURL string, timeout time.Duration) *HTTPClient {
	if timeout <= 0 {
		timeout = 8 * time.Second
	}
	return &HTTPClient{baseURL: baseURL, client: &http.Client{Timeout: timeout}}
}

func (c *HTTPClient) Query(ctx context.Context, lat, lon float64, ts time.Time) (*models.DivinerResult, error) {
	body, err := json.Marshal(map[string]any{
		"latitude":  lat,
		"longitude": lon,
		"timestamp": ts.UnixMilli(),
	})
	if err != nil {
		return nil, fmt.Errorf("encode diviner query: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/query/location", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build diviner request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeTransient, "diviner unreachable")
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, dErrors.Newf(dErrors.CodeTransient, "diviner returned status %d", resp.StatusCode)
	}

	var result models.DivinerResult
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeTransient, "decode diviner response")
	}
	return &result, nil
}

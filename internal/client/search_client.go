package client

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"astroshare/equipment-service/internal/models"
)

// ItemAggregates are the precomputed per-item fields maintained by the
// indexing pipeline. Users and Images are kept as raw JSON; this service
// passes them through without inspecting their structure.
type ItemAggregates struct {
	Users             json.RawMessage  `json:"users"`
	Images            json.RawMessage  `json:"images"`
	MostOftenUsedWith map[string]int64 `json:"most_often_used_with"`
}

// SearchClient reads precomputed aggregates from the search index
type SearchClient interface {
	// GetItemAggregates returns nil (no error) when the index has no entry for the id
	GetItemAggregates(ctx context.Context, klass models.ItemType, id uint64) (*ItemAggregates, error)
}

type searchClient struct {
	baseURL    string
	httpClient *http.Client
}

// NewSearchClient creates a new search index client
func NewSearchClient(baseURL string) SearchClient {
	return &searchClient{
		baseURL: baseURL,
		httpClient: &http.Client{
			Timeout: 10 * time.Second,
		},
	}
}

func (c *searchClient) GetItemAggregates(ctx context.Context, klass models.ItemType, id uint64) (*ItemAggregates, error) {
	endpoint := fmt.Sprintf("%s/api/v1/index/%s/%d", c.baseURL, url.PathEscape(string(klass)), id)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build search index request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to call search index: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return nil, nil
	}
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("search index returned %s: %s", resp.Status, string(body))
	}

	var aggregates ItemAggregates
	if err := json.NewDecoder(resp.Body).Decode(&aggregates); err != nil {
		return nil, fmt.Errorf("failed to decode search index response: %w", err)
	}
	return &aggregates, nil
}

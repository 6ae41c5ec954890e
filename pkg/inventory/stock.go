package inventory

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"
)

// HTTPStockReader resolves real stock from the commerce platform's stock
// endpoint: GET {base}/stock/{tenant}/{resource} -> {"stock": n}.
type HTTPStockReader struct {
	baseURL string
	client  *http.Client
}

// NewHTTPStockReader builds a reader against the platform base URL.
func NewHTTPStockReader(baseURL string) *HTTPStockReader {
	return &HTTPStockReader{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  &http.Client{Timeout: 10 * time.Second},
	}
}

// RealStock fetches the authoritative stock level for a resource key.
func (r *HTTPStockReader) RealStock(ctx context.Context, tenantID, resourceKey string) (int64, error) {
	url := fmt.Sprintf("%s/stock/%s/%s", r.baseURL, tenantID, resourceKey)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return 0, fmt.Errorf("build stock request: %w", err)
	}
	resp, err := r.client.Do(req)
	if err != nil {
		return 0, fmt.Errorf("stock lookup: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return 0, fmt.Errorf("stock lookup returned %d", resp.StatusCode)
	}
	var out struct {
		Stock int64 `json:"stock"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return 0, fmt.Errorf("decode stock response: %w", err)
	}
	return out.Stock, nil
}

// StaticStockReader serves stock levels from a fixed map. Useful for local
// runs and tests where no platform endpoint exists.
type StaticStockReader struct {
	mu     sync.RWMutex
	levels map[string]int64 // tenantID:resourceKey
}

// NewStaticStockReader builds an empty static reader.
func NewStaticStockReader() *StaticStockReader {
	return &StaticStockReader{levels: make(map[string]int64)}
}

// Set records the stock level for a resource.
func (r *StaticStockReader) Set(tenantID, resourceKey string, stock int64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.levels[tenantID+":"+resourceKey] = stock
}

// RealStock returns the recorded level, zero when unset.
func (r *StaticStockReader) RealStock(_ context.Context, tenantID, resourceKey string) (int64, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.levels[tenantID+":"+resourceKey], nil
}

package connector

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/glasswing-labs/keel/pkg/contracts"
)

// HTTPConnector is a generic JSON-over-HTTP adapter for platforms that expose
// a REST surface. Provider-specific connectors can embed it or replace it.
type HTTPConnector struct {
	name    string
	baseURL string
	apiKey  string
	client  *http.Client
}

// NewHTTPConnector builds a connector for one named downstream service.
func NewHTTPConnector(name, baseURL, apiKey string) *HTTPConnector {
	return &HTTPConnector{
		name:    name,
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
		client:  &http.Client{Timeout: 30 * time.Second},
	}
}

// Name implements Connector.
func (c *HTTPConnector) Name() string { return c.name }

// Send implements Connector.
func (c *HTTPConnector) Send(ctx context.Context, in SendInput) Result {
	return c.post(ctx, "/sends", in, in.IdempotencyKey)
}

// UpdatePrice implements Connector.
func (c *HTTPConnector) UpdatePrice(ctx context.Context, in PriceInput) Result {
	return c.post(ctx, "/prices", in, "")
}

// CreateListing implements Connector.
func (c *HTTPConnector) CreateListing(ctx context.Context, in ListingInput) Result {
	return c.post(ctx, "/listings", in, "")
}

// CancelListing implements Connector.
func (c *HTTPConnector) CancelListing(ctx context.Context, in CancelInput) Result {
	req, err := http.NewRequestWithContext(ctx, http.MethodDelete,
		c.baseURL+"/listings/"+in.ExternalID, nil)
	if err != nil {
		return Failure(contracts.OutcomeTerminal, err)
	}
	return c.do(req)
}

func (c *HTTPConnector) post(ctx context.Context, path string, body any, idempotencyKey string) Result {
	payload, err := json.Marshal(body)
	if err != nil {
		return Failure(contracts.OutcomeTerminal, err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return Failure(contracts.OutcomeTerminal, err)
	}
	req.Header.Set("Content-Type", "application/json")
	if idempotencyKey != "" {
		req.Header.Set("Idempotency-Key", idempotencyKey)
	}
	return c.do(req)
}

func (c *HTTPConnector) do(req *http.Request) Result {
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}
	resp, err := c.client.Do(req)
	if err != nil {
		return Failure(contracts.ClassifyError(err), err)
	}
	defer resp.Body.Close()

	outcome := contracts.ClassifyHTTP(resp.StatusCode)
	if outcome != contracts.OutcomeSuccess {
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return Failure(outcome, fmt.Errorf("%s returned %d: %s", c.name, resp.StatusCode, string(detail)))
	}

	var out struct {
		ID string `json:"id"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil && err != io.EOF {
		// Mutation landed; a malformed body must not look like a failure.
		return Success("")
	}
	return Success(out.ID)
}

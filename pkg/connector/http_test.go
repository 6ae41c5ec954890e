package connector

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/glasswing-labs/keel/pkg/contracts"
)

func TestHTTPConnector_Send(t *testing.T) {
	var gotIdem, gotAuth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		require.Equal(t, "/sends", r.URL.Path)
		gotIdem = r.Header.Get("Idempotency-Key")
		gotAuth = r.Header.Get("Authorization")

		var in SendInput
		require.NoError(t, json.NewDecoder(r.Body).Decode(&in))
		assert.Equal(t, "user@example.com", in.Target)

		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]string{"id": "msg-42"})
	}))
	defer srv.Close()

	c := NewHTTPConnector("klaviyo", srv.URL, "secret-key")
	res := c.Send(context.Background(), SendInput{
		Target:         "user@example.com",
		Content:        "hello",
		IdempotencyKey: "prop-1:0",
	})

	assert.Equal(t, contracts.OutcomeSuccess, res.Outcome)
	assert.Equal(t, "msg-42", res.ExternalID)
	assert.Equal(t, "prop-1:0", gotIdem)
	assert.Equal(t, "Bearer secret-key", gotAuth)
}

func TestHTTPConnector_ClassifiesStatuses(t *testing.T) {
	status := http.StatusOK
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(status)
	}))
	defer srv.Close()

	c := NewHTTPConnector("shopify", srv.URL, "")
	in := PriceInput{TenantID: "t1", ProductID: "p1", VariantID: "v1", NewPrice: 9.99}

	status = http.StatusTooManyRequests
	assert.Equal(t, contracts.OutcomeRateLimited, c.UpdatePrice(context.Background(), in).Outcome)

	status = http.StatusBadGateway
	assert.Equal(t, contracts.OutcomeRetryable, c.UpdatePrice(context.Background(), in).Outcome)

	status = http.StatusUnprocessableEntity
	res := c.UpdatePrice(context.Background(), in)
	assert.Equal(t, contracts.OutcomeTerminal, res.Outcome)
	assert.Contains(t, res.Error, "shopify returned 422")
}

func TestHTTPConnector_CancelListing(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodDelete, r.Method)
		require.Equal(t, "/listings/lst-9", r.URL.Path)
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	c := NewHTTPConnector("ebay", srv.URL, "")
	res := c.CancelListing(context.Background(), CancelInput{TenantID: "t1", ExternalID: "lst-9"})
	assert.Equal(t, contracts.OutcomeSuccess, res.Outcome)
}

func TestHTTPConnector_ConnectionRefusedIsRetryable(t *testing.T) {
	// Point at a closed port.
	c := NewHTTPConnector("ebay", "http://127.0.0.1:1", "")
	res := c.CreateListing(context.Background(), ListingInput{TenantID: "t1", SKU: "x", Quantity: 1})
	assert.Equal(t, contracts.OutcomeRetryable, res.Outcome)
}

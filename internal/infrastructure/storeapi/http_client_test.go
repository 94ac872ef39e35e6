package storeapi

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) (*HTTPClient, *httptest.Server) {
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	client := NewHTTPClient(server.URL, server.Client(), Credentials{
		StoreID:     100,
		AccessToken: "token",
		MyID:        "my-id",
	})
	return client, server
}

func TestHTTPClient_GetOrder(t *testing.T) {
	var gotHeaders http.Header
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		gotHeaders = r.Header.Clone()
		assert.Equal(t, "/orders/abc123.json", r.URL.Path)
		json.NewEncoder(w).Encode(map[string]interface{}{
			"_id":    "abc123",
			"number": 42,
			"fulfillment_status": map[string]string{
				"current": "delivered",
			},
		})
	})

	order, err := client.GetOrder(context.Background(), "abc123")
	require.NoError(t, err)
	assert.Equal(t, "abc123", order.ID)
	assert.Equal(t, 42, order.Number)
	assert.True(t, order.Delivered())

	assert.Equal(t, "100", gotHeaders.Get("X-Store-Id"))
	assert.Equal(t, "token", gotHeaders.Get("X-Access-Token"))
	assert.Equal(t, "my-id", gotHeaders.Get("X-My-Id"))
}

func TestHTTPClient_OmitsMyIDHeaderForBearerCredentials(t *testing.T) {
	var gotHeaders http.Header
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotHeaders = r.Header.Clone()
		w.Write([]byte(`{}`))
	}))
	t.Cleanup(server.Close)

	client := NewHTTPClient(server.URL, server.Client(), Credentials{
		StoreID:     100,
		AccessToken: "token",
	})

	_, err := client.GetStore(context.Background())
	require.NoError(t, err)
	_, present := gotHeaders["X-My-Id"]
	assert.False(t, present)
}

func TestHTTPClient_ListUnsyncedDeliveredOrders(t *testing.T) {
	from := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	to := time.Date(2024, 3, 3, 0, 0, 0, 0, time.UTC)

	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		query := r.URL.Query()
		assert.Equal(t, "paid", query.Get("financial_status.current"))
		assert.Equal(t, "delivered", query.Get("fulfillment_status.current"))
		assert.Equal(t, "martan_synchronized_order", query.Get("metafields.field!"))
		assert.Equal(t, "2024-03-01T00:00:00Z", query.Get("updated_at>="))
		assert.Equal(t, "2024-03-03T00:00:00Z", query.Get("updated_at<="))
		assert.Equal(t, "updated_at", query.Get("sort"))
		assert.Equal(t, "100", query.Get("limit"))

		json.NewEncoder(w).Encode(map[string]interface{}{
			"result": []map[string]interface{}{
				{"_id": "order-1"},
				{"_id": "order-2"},
			},
		})
	})

	orders, err := client.ListUnsyncedDeliveredOrders(context.Background(), ListWindow{From: from, To: to}, 100)
	require.NoError(t, err)
	require.Len(t, orders, 2)
	assert.Equal(t, "order-1", orders[0].ID)
}

func TestHTTPClient_SetOrderMetafield(t *testing.T) {
	var gotBody Metafield
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/orders/abc123/metafields.json", r.URL.Path)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotBody))
		w.WriteHeader(http.StatusCreated)
	})

	err := client.SetOrderMetafield(context.Background(), "abc123", MarkerSynchronized)
	require.NoError(t, err)
	assert.Equal(t, "martan-app", gotBody.Namespace)
	assert.Equal(t, "martan_synchronized_order", gotBody.Field)
	assert.Equal(t, "successfully", gotBody.Value)
}

func TestHTTPClient_ErrorMapping(t *testing.T) {
	t.Run("429 maps to ErrRateLimited", func(t *testing.T) {
		client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusTooManyRequests)
		})

		_, err := client.GetProduct(context.Background(), "p1")
		assert.ErrorIs(t, err, ErrRateLimited)
	})

	t.Run("other 4xx maps to APIError", func(t *testing.T) {
		client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusNotFound)
			w.Write([]byte(`{"message":"not found"}`))
		})

		_, err := client.GetProduct(context.Background(), "p1")
		var apiErr *APIError
		require.ErrorAs(t, err, &apiErr)
		assert.Equal(t, http.StatusNotFound, apiErr.Status)
		assert.Contains(t, apiErr.Body, "not found")
	})
}

func TestOrder_DeliveryDate(t *testing.T) {
	delivered := time.Date(2024, 3, 2, 14, 0, 0, 0, time.UTC)
	updated := time.Date(2024, 3, 5, 9, 0, 0, 0, time.UTC)

	t.Run("uses the delivered fulfillment event", func(t *testing.T) {
		order := Order{
			UpdatedAt: updated,
			Fulfillments: []Fulfillment{
				{Status: "shipped", DateTime: delivered.Add(-24 * time.Hour)},
				{Status: "delivered", DateTime: delivered},
			},
		}
		assert.Equal(t, delivered, order.DeliveryDate())
	})

	t.Run("falls back to updated_at", func(t *testing.T) {
		order := Order{
			UpdatedAt:    updated,
			Fulfillments: []Fulfillment{{Status: "shipped"}},
		}
		assert.Equal(t, updated, order.DeliveryDate())
	})
}

func TestHTTPAuthenticator_Authenticate(t *testing.T) {
	expires := time.Now().Add(24 * time.Hour).UTC().Truncate(time.Second)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/authenticate", r.URL.Path)

		var body map[string]string
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "auth-1", body["_id"])
		assert.Equal(t, "secret", body["api_key"])

		json.NewEncoder(w).Encode(map[string]interface{}{
			"my_id":        "my-1",
			"access_token": "session-token",
			"expires":      expires.Format(time.RFC3339),
		})
	}))
	t.Cleanup(server.Close)

	auth := NewHTTPAuthenticator(server.URL, 10*time.Second)
	session, err := auth.Authenticate(context.Background(), "auth-1", "secret")
	require.NoError(t, err)
	assert.Equal(t, "my-1", session.MyID)
	assert.Equal(t, "session-token", session.AccessToken)
	assert.True(t, session.ExpiresAt.Equal(expires))
}

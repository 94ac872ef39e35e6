package storeapi

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"
)

// Sync marker metafield written on relayed orders. Poll sweeps exclude
// orders that already carry the field.
const (
	markerNamespace = "martan-app"
	markerField     = "martan_synchronized_order"

	// MarkerSynchronized is the marker value for accepted orders.
	MarkerSynchronized = "successfully"
	// MarkerFailed is the marker value for permanently rejected orders.
	MarkerFailed = "failed"
)

// orderListFields keeps list responses to the fields the relay reads.
const orderListFields = "_id,number,financial_status,fulfillment_status,fulfillments,items,buyers,metafields,created_at,updated_at"

// Credentials authenticates calls on behalf of one store.
type Credentials struct {
	StoreID     int64
	AccessToken string
	// MyID is set for API-key-derived sessions and sent as X-My-Id.
	MyID string
}

// Factory builds per-store clients against one platform base URL.
type Factory struct {
	baseURL string
	http    *http.Client
}

// NewFactory creates a client factory
func NewFactory(baseURL string, timeout time.Duration) *Factory {
	return &Factory{
		baseURL: baseURL,
		http:    &http.Client{Timeout: timeout},
	}
}

// ForStore returns a client bound to one store's credentials
func (f *Factory) ForStore(creds Credentials) Client {
	return &HTTPClient{baseURL: f.baseURL, http: f.http, creds: creds}
}

// HTTPClient implements Client against the platform REST API
type HTTPClient struct {
	baseURL string
	http    *http.Client
	creds   Credentials
}

// NewHTTPClient creates a client bound to one store's credentials
func NewHTTPClient(baseURL string, httpClient *http.Client, creds Credentials) *HTTPClient {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 10 * time.Second}
	}
	return &HTTPClient{baseURL: baseURL, http: httpClient, creds: creds}
}

// GetOrder fetches a full order by id
func (c *HTTPClient) GetOrder(ctx context.Context, orderID string) (*Order, error) {
	var order Order
	if err := c.do(ctx, http.MethodGet, "/orders/"+orderID+".json", nil, &order); err != nil {
		return nil, err
	}
	return &order, nil
}

// ListUnsyncedDeliveredOrders lists paid, delivered orders in the window
// that carry no sync marker yet
func (c *HTTPClient) ListUnsyncedDeliveredOrders(ctx context.Context, window ListWindow, limit int) ([]Order, error) {
	params := url.Values{}
	params.Set("fields", orderListFields)
	params.Set("financial_status.current", "paid")
	params.Set("fulfillment_status.current", "delivered")
	params.Set("metafields.field!", markerField)
	params.Set("updated_at>=", window.From.UTC().Format(time.RFC3339))
	params.Set("updated_at<=", window.To.UTC().Format(time.RFC3339))
	params.Set("sort", "updated_at")
	params.Set("limit", strconv.Itoa(limit))

	var response struct {
		Result []Order `json:"result"`
	}
	if err := c.do(ctx, http.MethodGet, "/orders.json?"+params.Encode(), nil, &response); err != nil {
		return nil, err
	}
	return response.Result, nil
}

// GetProduct fetches a product by id
func (c *HTTPClient) GetProduct(ctx context.Context, productID string) (*Product, error) {
	var product Product
	if err := c.do(ctx, http.MethodGet, "/products/"+productID+".json", nil, &product); err != nil {
		return nil, err
	}
	return &product, nil
}

// GetStore fetches the store resource
func (c *HTTPClient) GetStore(ctx context.Context) (*Store, error) {
	var store Store
	if err := c.do(ctx, http.MethodGet, "/stores/me.json", nil, &store); err != nil {
		return nil, err
	}
	return &store, nil
}

// SetOrderMetafield writes the sync marker metafield on an order
func (c *HTTPClient) SetOrderMetafield(ctx context.Context, orderID, value string) error {
	body := Metafield{
		Namespace: markerNamespace,
		Field:     markerField,
		Value:     value,
	}
	return c.do(ctx, http.MethodPost, "/orders/"+orderID+"/metafields.json", body, nil)
}

func (c *HTTPClient) do(ctx context.Context, method, path string, body, out interface{}) error {
	var reader io.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode request body: %w", err)
		}
		reader = bytes.NewReader(encoded)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Store-Id", strconv.FormatInt(c.creds.StoreID, 10))
	req.Header.Set("X-Access-Token", c.creds.AccessToken)
	if c.creds.MyID != "" {
		req.Header.Set("X-My-Id", c.creds.MyID)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusTooManyRequests {
		return ErrRateLimited
	}
	if resp.StatusCode >= 400 {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return &APIError{Status: resp.StatusCode, Body: string(raw)}
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response body: %w", err)
	}
	return nil
}

// Ensure HTTPClient implements Client
var _ Client = (*HTTPClient)(nil)

// HTTPAuthenticator implements Authenticator against the platform auth API
type HTTPAuthenticator struct {
	baseURL string
	http    *http.Client
}

// NewHTTPAuthenticator creates an authenticator
func NewHTTPAuthenticator(baseURL string, timeout time.Duration) *HTTPAuthenticator {
	return &HTTPAuthenticator{
		baseURL: baseURL,
		http:    &http.Client{Timeout: timeout},
	}
}

// Authenticate exchanges an authentication id and API key for a session
func (a *HTTPAuthenticator) Authenticate(ctx context.Context, authenticationID, apiKey string) (*Session, error) {
	payload, err := json.Marshal(map[string]string{
		"_id":     authenticationID,
		"api_key": apiKey,
	})
	if err != nil {
		return nil, fmt.Errorf("encode request body: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.baseURL+"/authenticate", bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := a.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusTooManyRequests {
		return nil, ErrRateLimited
	}
	if resp.StatusCode >= 400 {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, &APIError{Status: resp.StatusCode, Body: string(raw)}
	}

	var body struct {
		MyID        string    `json:"my_id"`
		AccessToken string    `json:"access_token"`
		Expires     time.Time `json:"expires"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, fmt.Errorf("decode response body: %w", err)
	}

	return &Session{
		MyID:        body.MyID,
		AccessToken: body.AccessToken,
		ExpiresAt:   body.Expires,
	}, nil
}

// Ensure HTTPAuthenticator implements Authenticator
var _ Authenticator = (*HTTPAuthenticator)(nil)

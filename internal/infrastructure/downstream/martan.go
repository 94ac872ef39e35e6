package downstream

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/ordersync/backend/internal/domain/sync"
)

// Downstream error codes that drive submission classification.
const (
	// codeDuplicate means the order already exists downstream. Treated as
	// success.
	codeDuplicate = 103

	// Critical codes reject the order permanently. Retrying cannot help.
	codeInvalidOrder   = 802030
	codeStoreSuspended = 520
	codeInvalidPayload = 81211
)

// APIError is an error response from the order-management API.
type APIError struct {
	Status    int
	ErrorCode int
	Body      string
}

// Error implements the error interface
func (e *APIError) Error() string {
	return fmt.Sprintf("downstream: status %d error_code %d: %s", e.Status, e.ErrorCode, e.Body)
}

// IsDuplicate reports whether the order already exists downstream.
func (e *APIError) IsDuplicate() bool {
	return e.ErrorCode == codeDuplicate
}

// IsCritical reports whether the rejection is permanent.
func (e *APIError) IsCritical() bool {
	switch e.ErrorCode {
	case codeInvalidOrder, codeStoreSuspended, codeInvalidPayload:
		return true
	default:
		return false
	}
}

// Credentials authenticates order submissions for one store.
type Credentials struct {
	// ExternalStoreID is the order-management platform's own store id.
	ExternalStoreID string
	AccessToken     string
}

// OrderSender submits normalized orders to the order-management API.
type OrderSender interface {
	// PostOrder submits an order. A duplicate rejection is returned as an
	// *APIError with IsDuplicate() true; callers decide how to classify it.
	PostOrder(ctx context.Context, creds Credentials, payload *sync.OrderPayload) error
}

// MartanClient implements OrderSender against the Martan REST API
type MartanClient struct {
	baseURL   string
	moduleTag string
	http      *http.Client
}

// NewMartanClient creates a new MartanClient
func NewMartanClient(baseURL, moduleTag string, timeout time.Duration) *MartanClient {
	return &MartanClient{
		baseURL:   baseURL,
		moduleTag: moduleTag,
		http:      &http.Client{Timeout: timeout},
	}
}

// PostOrder submits an order
func (c *MartanClient) PostOrder(ctx context.Context, creds Credentials, payload *sync.OrderPayload) error {
	encoded, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encode order payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/orders.json", bytes.NewReader(encoded))
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Store-Id", creds.ExternalStoreID)
	req.Header.Set("X-Token", creds.AccessToken)
	req.Header.Set("X-Integration-Module", c.moduleTag)

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 8192))
		return &APIError{
			Status:    resp.StatusCode,
			ErrorCode: parseErrorCode(raw),
			Body:      string(raw),
		}
	}
	return nil
}

// parseErrorCode extracts the error_code field from an error body. Returns
// zero when the body carries none.
func parseErrorCode(raw []byte) int {
	var body struct {
		ErrorCode int `json:"error_code"`
	}
	if err := json.Unmarshal(raw, &body); err != nil {
		return 0
	}
	return body.ErrorCode
}

// Ensure MartanClient implements OrderSender
var _ OrderSender = (*MartanClient)(nil)

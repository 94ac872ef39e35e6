package storeapi

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// ErrRateLimited indicates the platform answered 429. Callers pause and
// retry without consuming their retry budget.
var ErrRateLimited = errors.New("storeapi: rate limited")

// APIError is a non-429 error response from the platform.
type APIError struct {
	Status int
	Body   string
}

// Error implements the error interface
func (e *APIError) Error() string {
	return fmt.Sprintf("storeapi: status %d: %s", e.Status, e.Body)
}

// StatusRef is a nested status object carrying the current value.
type StatusRef struct {
	Current string `json:"current"`
}

// Fulfillment is one fulfillment event of an order.
type Fulfillment struct {
	Status   string    `json:"status"`
	DateTime time.Time `json:"date_time"`
}

// Item is one line of an order as the platform reports it.
type Item struct {
	ProductID  string           `json:"product_id"`
	SKU        string           `json:"sku"`
	Name       string           `json:"name"`
	Quantity   int              `json:"quantity"`
	Price      decimal.Decimal  `json:"price"`
	FinalPrice *decimal.Decimal `json:"final_price,omitempty"`
}

// BuyerName is the structured name of a buyer.
type BuyerName struct {
	GivenName  string `json:"given_name"`
	MiddleName string `json:"middle_name"`
	FamilyName string `json:"family_name"`
}

// Phone is one phone number of a buyer.
type Phone struct {
	Number string `json:"number"`
}

// Buyer is a purchaser attached to an order.
type Buyer struct {
	MainEmail   string    `json:"main_email"`
	DisplayName string    `json:"display_name"`
	Name        BuyerName `json:"name"`
	Phones      []Phone   `json:"phones"`
}

// Metafield is an arbitrary key/value annotation on an order.
type Metafield struct {
	Namespace string `json:"namespace,omitempty"`
	Field     string `json:"field"`
	Value     string `json:"value"`
}

// Order is the platform's order resource, reduced to the fields the relay
// reads.
type Order struct {
	ID                string        `json:"_id"`
	Number            int           `json:"number"`
	FinancialStatus   StatusRef     `json:"financial_status"`
	FulfillmentStatus StatusRef     `json:"fulfillment_status"`
	Fulfillments      []Fulfillment `json:"fulfillments"`
	Items             []Item        `json:"items"`
	Buyers            []Buyer       `json:"buyers"`
	Metafields        []Metafield   `json:"metafields"`
	CreatedAt         time.Time     `json:"created_at"`
	UpdatedAt         time.Time     `json:"updated_at"`
}

// Delivered reports whether the order reached its delivered fulfillment
// state.
func (o *Order) Delivered() bool {
	return o.FulfillmentStatus.Current == "delivered"
}

// DeliveryDate returns the date_time of the delivered fulfillment event,
// falling back to the order's updated_at when no event carries it.
func (o *Order) DeliveryDate() time.Time {
	for _, f := range o.Fulfillments {
		if f.Status == "delivered" && !f.DateTime.IsZero() {
			return f.DateTime
		}
	}
	return o.UpdatedAt
}

// PictureSize is one rendition of a product picture.
type PictureSize struct {
	URL string `json:"url"`
}

// Picture is a product picture with its renditions.
type Picture struct {
	Normal *PictureSize `json:"normal,omitempty"`
	Big    *PictureSize `json:"big,omitempty"`
}

// Product is the platform's product resource, reduced to the fields the
// relay reads.
type Product struct {
	ID         string           `json:"_id"`
	SKU        string           `json:"sku"`
	Name       string           `json:"name"`
	Slug       string           `json:"slug"`
	Price      decimal.Decimal  `json:"price"`
	FinalPrice *decimal.Decimal `json:"final_price,omitempty"`
	GTIN       []string         `json:"gtin"`
	MPN        []string         `json:"mpn"`
	Pictures   []Picture        `json:"pictures"`
}

// Store is the platform's store resource.
type Store struct {
	ID     int64  `json:"store_id"`
	Domain string `json:"domain"`
	Name   string `json:"name"`
}

// ListWindow bounds an updated_at range for order listing. Delivery flips
// the order's updated_at, so the window tracks status changes rather than
// order creation.
type ListWindow struct {
	From time.Time
	To   time.Time
}

// Client reads source-platform resources on behalf of one store.
type Client interface {
	// GetOrder fetches a full order by id.
	GetOrder(ctx context.Context, orderID string) (*Order, error)

	// ListUnsyncedDeliveredOrders lists paid, delivered orders updated
	// inside the window that carry no sync marker yet.
	ListUnsyncedDeliveredOrders(ctx context.Context, window ListWindow, limit int) ([]Order, error)

	// GetProduct fetches a product by id.
	GetProduct(ctx context.Context, productID string) (*Product, error)

	// GetStore fetches the store resource.
	GetStore(ctx context.Context) (*Store, error)

	// SetOrderMetafield writes the sync marker metafield on an order.
	SetOrderMetafield(ctx context.Context, orderID, value string) error
}

// Session is an API session derived from a store API key.
type Session struct {
	MyID        string
	AccessToken string
	ExpiresAt   time.Time
}

// Authenticator derives API sessions from stored API keys.
type Authenticator interface {
	// Authenticate exchanges an authentication id and API key for a session.
	Authenticate(ctx context.Context, authenticationID, apiKey string) (*Session, error)
}

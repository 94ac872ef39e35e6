package sync

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	syncdomain "github.com/ordersync/backend/internal/domain/sync"
	"github.com/ordersync/backend/internal/infrastructure/config"
	"github.com/ordersync/backend/internal/infrastructure/storeapi"
)

// Enricher builds the normalized downstream payload for a source order.
// Each item gets its own retry budget; a rate-limited call pauses and does
// not consume the budget. Items whose product cannot be fetched within the
// budget are dropped rather than failing the whole order.
type Enricher struct {
	cfg    config.EnrichmentConfig
	logger *zap.Logger
}

// NewEnricher creates a new Enricher
func NewEnricher(cfg config.EnrichmentConfig, logger *zap.Logger) *Enricher {
	return &Enricher{
		cfg:    cfg,
		logger: logger.Named("enricher"),
	}
}

// Enrich normalizes a source order into the downstream payload
func (e *Enricher) Enrich(ctx context.Context, client storeapi.Client, order *storeapi.Order) (*syncdomain.OrderPayload, error) {
	store, err := e.fetchStore(ctx, client)
	if err != nil {
		return nil, fmt.Errorf("fetch store: %w", err)
	}

	payload := &syncdomain.OrderPayload{
		OrderID:      order.ID,
		OrderDate:    order.CreatedAt,
		DeliveryDate: order.DeliveryDate(),
		Products:     make([]syncdomain.Product, 0, len(order.Items)),
		Customers:    buildCustomers(order.Buyers),
	}

	for _, item := range order.Items {
		product, err := e.buildProduct(ctx, client, store, item)
		if err != nil {
			e.logger.Warn("dropping item after exhausted retries",
				zap.String("order_id", order.ID),
				zap.String("product_id", item.ProductID),
				zap.Error(err))
			continue
		}
		payload.Products = append(payload.Products, *product)
	}

	return payload, nil
}

// fetchStore reads the store resource with the item retry budget
func (e *Enricher) fetchStore(ctx context.Context, client storeapi.Client) (*storeapi.Store, error) {
	var store *storeapi.Store
	err := e.withRetries(ctx, func() error {
		var err error
		store, err = client.GetStore(ctx)
		return err
	})
	return store, err
}

// buildProduct normalizes one line item, fetching its product resource
func (e *Enricher) buildProduct(ctx context.Context, client storeapi.Client, store *storeapi.Store, item storeapi.Item) (*syncdomain.Product, error) {
	product := &syncdomain.Product{
		ProductID: item.ProductID,
		SKU:       item.SKU,
		Name:      item.Name,
		Price:     itemPrice(item),
	}

	// items detached from a catalog product pass through as-is
	if item.ProductID == "" {
		return product, nil
	}

	var source *storeapi.Product
	err := e.withRetries(ctx, func() error {
		var err error
		source, err = client.GetProduct(ctx, item.ProductID)
		return err
	})
	if err != nil {
		return nil, err
	}

	if source.SKU != "" {
		product.SKU = source.SKU
	}
	if source.Name != "" {
		product.Name = source.Name
	}
	product.Price = productPrice(source)
	if source.Slug != "" && store.Domain != "" {
		product.URL = fmt.Sprintf("https://%s/%s", store.Domain, source.Slug)
	}
	product.GTIN = strings.Join(source.GTIN, ",")
	product.MPN = strings.Join(source.MPN, ",")
	product.Pictures = pictureURLs(source.Pictures)

	return product, nil
}

// withRetries runs fn with the per-item budget. Failures wait linearly
// longer each attempt; a rate limit pauses without consuming an attempt.
func (e *Enricher) withRetries(ctx context.Context, fn func() error) error {
	attempt := 0
	for {
		err := fn()
		if err == nil {
			return nil
		}
		if errors.Is(err, storeapi.ErrRateLimited) {
			if !sleep(ctx, e.cfg.RateLimitPause) {
				return ctx.Err()
			}
			continue
		}

		attempt++
		if attempt > e.cfg.MaxItemRetries {
			return err
		}
		if !sleep(ctx, time.Duration(attempt)*e.cfg.RetryBaseDelay) {
			return ctx.Err()
		}
	}
}

// itemPrice resolves the unit price of a detached item: final_price wins
// over the listed price, and a missing price falls back to zero.
func itemPrice(item storeapi.Item) decimal.Decimal {
	if item.FinalPrice != nil {
		return *item.FinalPrice
	}
	return item.Price
}

// productPrice resolves the price of a catalog product the same way:
// final_price, then price, then zero.
func productPrice(product *storeapi.Product) decimal.Decimal {
	if product.FinalPrice != nil {
		return *product.FinalPrice
	}
	return product.Price
}

// buildCustomers normalizes the first buyer of the order
func buildCustomers(buyers []storeapi.Buyer) []syncdomain.Customer {
	if len(buyers) == 0 {
		return []syncdomain.Customer{}
	}
	buyer := buyers[0]

	customer := syncdomain.Customer{
		Name:  buyerName(buyer),
		Email: buyer.MainEmail,
	}
	if len(buyer.Phones) > 0 {
		customer.Phone = buyer.Phones[0].Number
	}
	return []syncdomain.Customer{customer}
}

// buyerName joins the structured name parts, falling back to display_name
func buyerName(buyer storeapi.Buyer) string {
	parts := make([]string, 0, 3)
	for _, part := range []string{buyer.Name.GivenName, buyer.Name.MiddleName, buyer.Name.FamilyName} {
		if part != "" {
			parts = append(parts, part)
		}
	}
	if len(parts) > 0 {
		return strings.Join(parts, " ")
	}
	return buyer.DisplayName
}

// pictureURLs collects the normal and big renditions of the lead picture.
// A product contributes at most two URLs regardless of gallery size.
func pictureURLs(pictures []storeapi.Picture) []string {
	if len(pictures) == 0 {
		return nil
	}
	urls := make([]string, 0, 2)
	lead := pictures[0]
	if lead.Normal != nil && lead.Normal.URL != "" {
		urls = append(urls, lead.Normal.URL)
	}
	if lead.Big != nil && lead.Big.URL != "" {
		urls = append(urls, lead.Big.URL)
	}
	return urls
}

// sleep waits for d or until the context ends. Returns false on cancellation.
func sleep(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}

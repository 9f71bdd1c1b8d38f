package catalogsync

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/Gobusters/ectologger"

	"github.com/multistore/variants/pkg/kafka"
	"github.com/multistore/variants/pkg/models"
	"github.com/multistore/variants/pkg/tracing"
)

// Event types carried on the catalog topic.
const (
	EventProductUpdated = "product.updated"
	EventProductDeleted = "product.deleted"
)

// ProductEvent is one catalog change published by the storefronts. Updates
// carry the full product snapshot; deletes only identify the row.
type ProductEvent struct {
	EventType string `json:"event_type"`
	TenantID  string `json:"tenant_id"`
	SiteID    string `json:"site_id"`
	SKU       string `json:"sku"`
	Product   *struct {
		Name      string   `json:"name"`
		Permalink string   `json:"permalink"`
		Price     float64  `json:"price"`
		SalePrice *float64 `json:"sale_price,omitempty"`
		OnSale    bool     `json:"on_sale"`
		ImageURL  string   `json:"image_url"`
	} `json:"product,omitempty"`
}

// ProductStore is the catalog write surface the handler needs.
type ProductStore interface {
	Upsert(ctx context.Context, p models.Product) error
	SoftDelete(ctx context.Context, tenantID, siteID, sku string) error
	GetBySKU(ctx context.Context, tenantID, siteID, sku string) (*models.Product, error)
}

// PriceStore records price observations.
type PriceStore interface {
	Append(ctx context.Context, tenantID string, productID int64, price float64) error
}

// IdentityCache is the resolver's invalidation surface.
type IdentityCache interface {
	Invalidate(tenantID, siteID, sku string)
}

// RelationsCache is the read cache's invalidation surface.
type RelationsCache interface {
	InvalidateSKU(tenantID, sku string)
}

// Handler applies catalog product events: it keeps the local catalog mirror
// current, logs price observations, and evicts cache entries the change
// stales. This is what keeps SKU/id resolution correct when a storefront
// deletes and re-creates a product under a new id.
type Handler struct {
	logger    ectologger.Logger
	products  ProductStore
	prices    PriceStore
	identity  IdentityCache
	relations RelationsCache
}

// NewHandler creates the catalog event handler.
func NewHandler(
	logger ectologger.Logger,
	products ProductStore,
	prices PriceStore,
	identity IdentityCache,
	relations RelationsCache,
) *Handler {
	return &Handler{
		logger:    logger,
		products:  products,
		prices:    prices,
		identity:  identity,
		relations: relations,
	}
}

// Handle processes one message from the catalog topic.
func (h *Handler) Handle(ctx context.Context, msg *kafka.IncomingMessage) error {
	ctx, span := tracing.StartSpan(ctx, "catalogsync.Handler.Handle")
	defer span.End()

	var event ProductEvent
	if err := json.Unmarshal(msg.Value, &event); err != nil {
		// malformed payloads are logged and committed, retrying cannot fix them
		h.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{
			"topic":  msg.Topic,
			"offset": msg.Offset,
		}).Error("Failed to parse catalog event")
		return nil
	}

	if event.TenantID == "" || event.SiteID == "" || event.SKU == "" {
		h.logger.WithContext(ctx).WithFields(map[string]any{
			"event_type": event.EventType,
			"offset":     msg.Offset,
		}).Error("Catalog event missing identity fields")
		return nil
	}

	switch event.EventType {
	case EventProductUpdated:
		return h.handleUpdated(ctx, event)
	case EventProductDeleted:
		return h.handleDeleted(ctx, event)
	default:
		h.logger.WithContext(ctx).WithFields(map[string]any{
			"event_type": event.EventType,
		}).Debug("Ignoring unknown catalog event type")
		return nil
	}
}

func (h *Handler) handleUpdated(ctx context.Context, event ProductEvent) error {
	if event.Product == nil {
		return fmt.Errorf("product.updated event for %s has no product payload", event.SKU)
	}

	err := h.products.Upsert(ctx, models.Product{
		TenantID:  event.TenantID,
		SiteID:    event.SiteID,
		SKU:       event.SKU,
		Name:      event.Product.Name,
		Permalink: event.Product.Permalink,
		Price:     event.Product.Price,
		SalePrice: event.Product.SalePrice,
		OnSale:    event.Product.OnSale,
		ImageURL:  event.Product.ImageURL,
	})
	if err != nil {
		return err
	}

	// the upsert may have created the row, so the id comes from a re-read
	stored, err := h.products.GetBySKU(ctx, event.TenantID, event.SiteID, event.SKU)
	if err != nil {
		return err
	}
	if stored != nil {
		price := stored.Price
		if stored.OnSale && stored.SalePrice != nil {
			price = *stored.SalePrice
		}
		if err := h.prices.Append(ctx, event.TenantID, stored.ID, price); err != nil {
			return err
		}
	}

	h.invalidate(event)
	return nil
}

func (h *Handler) handleDeleted(ctx context.Context, event ProductEvent) error {
	if err := h.products.SoftDelete(ctx, event.TenantID, event.SiteID, event.SKU); err != nil {
		return err
	}

	h.invalidate(event)
	return nil
}

func (h *Handler) invalidate(event ProductEvent) {
	h.identity.Invalidate(event.TenantID, event.SiteID, event.SKU)
	h.relations.InvalidateSKU(event.TenantID, event.SKU)
}

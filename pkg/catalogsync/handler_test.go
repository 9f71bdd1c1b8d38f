package catalogsync

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/Gobusters/ectologger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/multistore/variants/pkg/kafka"
	"github.com/multistore/variants/pkg/models"
)

type fakeProducts struct {
	upserts []models.Product
	deletes []string
	stored  map[string]*models.Product // sku -> product
}

func (f *fakeProducts) Upsert(ctx context.Context, p models.Product) error {
	f.upserts = append(f.upserts, p)
	return nil
}

func (f *fakeProducts) SoftDelete(ctx context.Context, tenantID, siteID, sku string) error {
	f.deletes = append(f.deletes, siteID+"|"+sku)
	return nil
}

func (f *fakeProducts) GetBySKU(ctx context.Context, tenantID, siteID, sku string) (*models.Product, error) {
	return f.stored[sku], nil
}

type fakePrices struct {
	appended []float64
}

func (f *fakePrices) Append(ctx context.Context, tenantID string, productID int64, price float64) error {
	f.appended = append(f.appended, price)
	return nil
}

type fakeIdentity struct {
	invalidated []string
}

func (f *fakeIdentity) Invalidate(tenantID, siteID, sku string) {
	f.invalidated = append(f.invalidated, siteID+"|"+sku)
}

type fakeRelationsCache struct {
	invalidated []string
}

func (f *fakeRelationsCache) InvalidateSKU(tenantID, sku string) {
	f.invalidated = append(f.invalidated, sku)
}

type handlerFixture struct {
	handler   *Handler
	products  *fakeProducts
	prices    *fakePrices
	identity  *fakeIdentity
	relations *fakeRelationsCache
}

func newHandlerFixture() *handlerFixture {
	products := &fakeProducts{stored: map[string]*models.Product{}}
	prices := &fakePrices{}
	identity := &fakeIdentity{}
	relations := &fakeRelationsCache{}
	logger := ectologger.NewEctoLogger(func(msg ectologger.EctoLogMessage) {})

	return &handlerFixture{
		handler:   NewHandler(logger, products, prices, identity, relations),
		products:  products,
		prices:    prices,
		identity:  identity,
		relations: relations,
	}
}

func message(t *testing.T, event any) *kafka.IncomingMessage {
	t.Helper()
	data, err := json.Marshal(event)
	require.NoError(t, err)
	return &kafka.IncomingMessage{Value: data}
}

func TestHandleProductUpdated(t *testing.T) {
	f := newHandlerFixture()
	salePrice := 80.0
	f.products.stored["CHAIR-RED"] = &models.Product{
		ID: 11, TenantID: "shop", SiteID: "en", SKU: "CHAIR-RED",
		Price: 100, SalePrice: &salePrice, OnSale: true,
	}

	event := map[string]any{
		"event_type": EventProductUpdated,
		"tenant_id":  "shop",
		"site_id":    "en",
		"sku":        "CHAIR-RED",
		"product": map[string]any{
			"name": "Red Chair", "price": 100.0, "sale_price": 80.0, "on_sale": true,
		},
	}

	err := f.handler.Handle(context.Background(), message(t, event))
	require.NoError(t, err)

	require.Len(t, f.products.upserts, 1)
	assert.Equal(t, "Red Chair", f.products.upserts[0].Name)

	// the effective (sale) price is what gets logged
	assert.Equal(t, []float64{80}, f.prices.appended)

	assert.Equal(t, []string{"en|CHAIR-RED"}, f.identity.invalidated)
	assert.Equal(t, []string{"CHAIR-RED"}, f.relations.invalidated)
}

func TestHandleProductDeleted(t *testing.T) {
	f := newHandlerFixture()

	event := map[string]any{
		"event_type": EventProductDeleted,
		"tenant_id":  "shop",
		"site_id":    "en",
		"sku":        "CHAIR-RED",
	}

	err := f.handler.Handle(context.Background(), message(t, event))
	require.NoError(t, err)

	assert.Equal(t, []string{"en|CHAIR-RED"}, f.products.deletes)
	assert.Empty(t, f.prices.appended)
	assert.Equal(t, []string{"en|CHAIR-RED"}, f.identity.invalidated)
}

func TestHandleMalformedPayloadIsCommitted(t *testing.T) {
	f := newHandlerFixture()

	err := f.handler.Handle(context.Background(), &kafka.IncomingMessage{Value: []byte("not json")})
	assert.NoError(t, err, "malformed payloads are skipped, not retried")
	assert.Empty(t, f.products.upserts)
}

func TestHandleMissingIdentityFieldsIsCommitted(t *testing.T) {
	f := newHandlerFixture()

	event := map[string]any{"event_type": EventProductUpdated, "tenant_id": "shop"}
	err := f.handler.Handle(context.Background(), message(t, event))
	assert.NoError(t, err)
	assert.Empty(t, f.products.upserts)
}

func TestHandleUpdatedWithoutProductPayloadFails(t *testing.T) {
	f := newHandlerFixture()

	event := map[string]any{
		"event_type": EventProductUpdated,
		"tenant_id":  "shop",
		"site_id":    "en",
		"sku":        "CHAIR-RED",
	}
	err := f.handler.Handle(context.Background(), message(t, event))
	assert.Error(t, err)
}

func TestHandleUnknownEventTypeIgnored(t *testing.T) {
	f := newHandlerFixture()

	event := map[string]any{
		"event_type": "order.created",
		"tenant_id":  "shop",
		"site_id":    "en",
		"sku":        "CHAIR-RED",
	}
	err := f.handler.Handle(context.Background(), message(t, event))
	assert.NoError(t, err)
	assert.Empty(t, f.products.upserts)
	assert.Empty(t, f.products.deletes)
}

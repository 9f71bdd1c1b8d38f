package identity

import (
	"context"
	"testing"
	"time"

	"github.com/Gobusters/ectologger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/multistore/variants/pkg/models"
)

type fakeCatalog struct {
	products []models.Product
	calls    int
}

func (f *fakeCatalog) find(tenantID, siteID string, match func(models.Product) bool) *models.Product {
	for i := range f.products {
		p := f.products[i]
		if p.TenantID == tenantID && p.SiteID == siteID && match(p) {
			return &p
		}
	}
	return nil
}

func (f *fakeCatalog) GetByID(ctx context.Context, tenantID, siteID string, id int64) (*models.Product, error) {
	f.calls++
	return f.find(tenantID, siteID, func(p models.Product) bool { return p.ID == id }), nil
}

func (f *fakeCatalog) GetBySKU(ctx context.Context, tenantID, siteID, sku string) (*models.Product, error) {
	f.calls++
	return f.find(tenantID, siteID, func(p models.Product) bool { return p.SKU == sku }), nil
}

func (f *fakeCatalog) ListBySKUs(ctx context.Context, tenantID, siteID string, skus []string) ([]models.Product, error) {
	f.calls++
	wanted := map[string]bool{}
	for _, sku := range skus {
		wanted[sku] = true
	}
	result := []models.Product{}
	for _, p := range f.products {
		if p.TenantID == tenantID && p.SiteID == siteID && wanted[p.SKU] {
			result = append(result, p)
		}
	}
	return result, nil
}

func newTestResolver(products []models.Product, ttl time.Duration) (*Resolver, *fakeCatalog) {
	store := &fakeCatalog{products: products}
	logger := ectologger.NewEctoLogger(func(msg ectologger.EctoLogMessage) {})
	return NewResolver(store, logger, ttl), store
}

func TestIDOf(t *testing.T) {
	resolver, _ := newTestResolver([]models.Product{
		{ID: 11, TenantID: "shop", SiteID: "en", SKU: "CHAIR-RED"},
		{ID: 42, TenantID: "shop", SiteID: "de", SKU: "CHAIR-RED"},
	}, time.Minute)
	ctx := context.Background()

	id, err := resolver.IDOf(ctx, "shop", "en", "CHAIR-RED")
	require.NoError(t, err)
	assert.Equal(t, int64(11), id)

	// same SKU resolves differently per site
	id, err = resolver.IDOf(ctx, "shop", "de", "CHAIR-RED")
	require.NoError(t, err)
	assert.Equal(t, int64(42), id)

	// unknown SKU resolves to zero, not an error
	id, err = resolver.IDOf(ctx, "shop", "en", "MISSING")
	require.NoError(t, err)
	assert.Equal(t, int64(0), id)
}

func TestIDOfCachesHitsAndMisses(t *testing.T) {
	resolver, store := newTestResolver([]models.Product{
		{ID: 11, TenantID: "shop", SiteID: "en", SKU: "CHAIR-RED"},
	}, time.Minute)
	ctx := context.Background()

	_, err := resolver.IDOf(ctx, "shop", "en", "CHAIR-RED")
	require.NoError(t, err)
	_, err = resolver.IDOf(ctx, "shop", "en", "MISSING")
	require.NoError(t, err)
	callsAfterFirst := store.calls

	_, err = resolver.IDOf(ctx, "shop", "en", "CHAIR-RED")
	require.NoError(t, err)
	_, err = resolver.IDOf(ctx, "shop", "en", "MISSING")
	require.NoError(t, err)

	assert.Equal(t, callsAfterFirst, store.calls, "cached lookups should not hit the store")
}

func TestSKUOf(t *testing.T) {
	resolver, _ := newTestResolver([]models.Product{
		{ID: 11, TenantID: "shop", SiteID: "en", SKU: "CHAIR-RED"},
	}, time.Minute)
	ctx := context.Background()

	sku, err := resolver.SKUOf(ctx, "shop", "en", 11)
	require.NoError(t, err)
	assert.Equal(t, "CHAIR-RED", sku)

	sku, err = resolver.SKUOf(ctx, "shop", "en", 999)
	require.NoError(t, err)
	assert.Equal(t, "", sku)
}

func TestIDsOf(t *testing.T) {
	resolver, store := newTestResolver([]models.Product{
		{ID: 11, TenantID: "shop", SiteID: "en", SKU: "CHAIR-RED"},
		{ID: 12, TenantID: "shop", SiteID: "en", SKU: "CHAIR-BLUE"},
	}, time.Minute)
	ctx := context.Background()

	ids, err := resolver.IDsOf(ctx, "shop", "en", []string{"CHAIR-RED", "CHAIR-BLUE", "MISSING"})
	require.NoError(t, err)
	assert.Equal(t, map[string]int64{"CHAIR-RED": 11, "CHAIR-BLUE": 12}, ids)
	assert.Equal(t, 1, store.calls, "bulk resolution should use one query")

	// second call is fully served from cache, misses included
	ids, err = resolver.IDsOf(ctx, "shop", "en", []string{"CHAIR-RED", "MISSING"})
	require.NoError(t, err)
	assert.Equal(t, map[string]int64{"CHAIR-RED": 11}, ids)
	assert.Equal(t, 1, store.calls)
}

func TestInvalidate(t *testing.T) {
	resolver, store := newTestResolver([]models.Product{
		{ID: 11, TenantID: "shop", SiteID: "en", SKU: "CHAIR-RED"},
	}, time.Minute)
	ctx := context.Background()

	_, err := resolver.IDOf(ctx, "shop", "en", "CHAIR-RED")
	require.NoError(t, err)
	callsAfterFirst := store.calls

	resolver.Invalidate("shop", "en", "CHAIR-RED")

	_, err = resolver.IDOf(ctx, "shop", "en", "CHAIR-RED")
	require.NoError(t, err)
	assert.Equal(t, callsAfterFirst+1, store.calls, "invalidated entry should be re-fetched")
}

func TestTTLExpiry(t *testing.T) {
	resolver, store := newTestResolver([]models.Product{
		{ID: 11, TenantID: "shop", SiteID: "en", SKU: "CHAIR-RED"},
	}, time.Nanosecond)
	ctx := context.Background()

	_, err := resolver.IDOf(ctx, "shop", "en", "CHAIR-RED")
	require.NoError(t, err)
	callsAfterFirst := store.calls

	time.Sleep(time.Millisecond)

	_, err = resolver.IDOf(ctx, "shop", "en", "CHAIR-RED")
	require.NoError(t, err)
	assert.Equal(t, callsAfterFirst+1, store.calls, "expired entry should be re-fetched")
}

package identity

import (
	"context"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/Gobusters/ectologger"

	"github.com/multistore/variants/pkg/models"
	"github.com/multistore/variants/pkg/tracing"
)

// CatalogStore is the slice of the product repository the resolver needs.
type CatalogStore interface {
	GetByID(ctx context.Context, tenantID, siteID string, id int64) (*models.Product, error)
	GetBySKU(ctx context.Context, tenantID, siteID, sku string) (*models.Product, error)
	ListBySKUs(ctx context.Context, tenantID, siteID string, skus []string) ([]models.Product, error)
}

type skuEntry struct {
	sku       string
	expiresAt time.Time
}

type idEntry struct {
	id        int64
	expiresAt time.Time
}

// Resolver translates between a product's durable identity (SKU) and its
// site-local numeric id. The same SKU maps to a different id on every site,
// so every lookup is scoped by (tenant, site). Misses are cached too: a SKU
// absent from a site's catalog is a real, frequent answer ("not sold here"),
// not an error.
type Resolver struct {
	store  CatalogStore
	logger ectologger.Logger
	ttl    time.Duration

	mu    sync.RWMutex
	bySKU map[string]idEntry
	byID  map[string]skuEntry
}

// NewResolver creates a resolver with the given cache TTL.
func NewResolver(store CatalogStore, logger ectologger.Logger, ttl time.Duration) *Resolver {
	return &Resolver{
		store:  store,
		logger: logger,
		ttl:    ttl,
		bySKU:  map[string]idEntry{},
		byID:   map[string]skuEntry{},
	}
}

func skuKey(tenantID, siteID, sku string) string {
	return tenantID + "|" + siteID + "|" + sku
}

func idKey(tenantID, siteID string, id int64) string {
	return tenantID + "|" + siteID + "|#" + strconv.FormatInt(id, 10)
}

// SKUOf returns the SKU for a site-local product id, or "" when the id does
// not exist on the site.
func (r *Resolver) SKUOf(ctx context.Context, tenantID, siteID string, productID int64) (string, error) {
	ctx, span := tracing.StartSpan(ctx, "identity.Resolver.SKUOf")
	defer span.End()

	key := idKey(tenantID, siteID, productID)

	r.mu.RLock()
	entry, ok := r.byID[key]
	r.mu.RUnlock()
	if ok && time.Now().Before(entry.expiresAt) {
		return entry.sku, nil
	}

	p, err := r.store.GetByID(ctx, tenantID, siteID, productID)
	if err != nil {
		return "", err
	}

	sku := ""
	if p != nil {
		sku = p.SKU
	}

	r.mu.Lock()
	r.byID[key] = skuEntry{sku: sku, expiresAt: time.Now().Add(r.ttl)}
	if p != nil {
		r.bySKU[skuKey(tenantID, siteID, sku)] = idEntry{id: p.ID, expiresAt: time.Now().Add(r.ttl)}
	}
	r.mu.Unlock()

	return sku, nil
}

// IDOf returns the site-local product id for a SKU, or 0 when the SKU is not
// in the site's catalog.
func (r *Resolver) IDOf(ctx context.Context, tenantID, siteID, sku string) (int64, error) {
	ctx, span := tracing.StartSpan(ctx, "identity.Resolver.IDOf")
	defer span.End()

	key := skuKey(tenantID, siteID, sku)

	r.mu.RLock()
	entry, ok := r.bySKU[key]
	r.mu.RUnlock()
	if ok && time.Now().Before(entry.expiresAt) {
		return entry.id, nil
	}

	p, err := r.store.GetBySKU(ctx, tenantID, siteID, sku)
	if err != nil {
		return 0, err
	}

	var id int64
	if p != nil {
		id = p.ID
	}

	r.mu.Lock()
	r.bySKU[key] = idEntry{id: id, expiresAt: time.Now().Add(r.ttl)}
	if p != nil {
		r.byID[idKey(tenantID, siteID, id)] = skuEntry{sku: sku, expiresAt: time.Now().Add(r.ttl)}
	}
	r.mu.Unlock()

	return id, nil
}

// IDsOf resolves many SKUs in one catalog query, returning only the SKUs that
// exist on the site. Cached entries are served without touching the store.
func (r *Resolver) IDsOf(ctx context.Context, tenantID, siteID string, skus []string) (map[string]int64, error) {
	ctx, span := tracing.StartSpan(ctx, "identity.Resolver.IDsOf")
	defer span.End()

	result := make(map[string]int64, len(skus))
	missing := []string{}

	now := time.Now()
	r.mu.RLock()
	for _, sku := range skus {
		entry, ok := r.bySKU[skuKey(tenantID, siteID, sku)]
		if ok && now.Before(entry.expiresAt) {
			if entry.id != 0 {
				result[sku] = entry.id
			}
			continue
		}
		missing = append(missing, sku)
	}
	r.mu.RUnlock()

	if len(missing) == 0 {
		return result, nil
	}

	products, err := r.store.ListBySKUs(ctx, tenantID, siteID, missing)
	if err != nil {
		return nil, err
	}

	found := make(map[string]int64, len(products))
	for _, p := range products {
		found[p.SKU] = p.ID
		result[p.SKU] = p.ID
	}

	expires := time.Now().Add(r.ttl)
	r.mu.Lock()
	for _, sku := range missing {
		id := found[sku] // zero for misses, cached as "not on this site"
		r.bySKU[skuKey(tenantID, siteID, sku)] = idEntry{id: id, expiresAt: expires}
		if id != 0 {
			r.byID[idKey(tenantID, siteID, id)] = skuEntry{sku: sku, expiresAt: expires}
		}
	}
	r.mu.Unlock()

	return result, nil
}

// Invalidate drops cached mappings for one SKU on one site. Called by the
// catalog event consumer when a product changes or is removed.
func (r *Resolver) Invalidate(tenantID, siteID, sku string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	key := skuKey(tenantID, siteID, sku)
	if entry, ok := r.bySKU[key]; ok {
		delete(r.bySKU, key)
		if entry.id != 0 {
			delete(r.byID, idKey(tenantID, siteID, entry.id))
		}
	}
}

// InvalidateSite drops every cached mapping for one site.
func (r *Resolver) InvalidateSite(tenantID, siteID string) {
	prefix := tenantID + "|" + siteID + "|"

	r.mu.Lock()
	defer r.mu.Unlock()

	for key := range r.bySKU {
		if strings.HasPrefix(key, prefix) {
			delete(r.bySKU, key)
		}
	}
	for key := range r.byID {
		if strings.HasPrefix(key, prefix) {
			delete(r.byID, key)
		}
	}
}

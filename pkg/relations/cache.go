package relations

import (
	"strings"
	"sync"
	"time"

	"github.com/multistore/variants/pkg/models"
)

type cacheEntry struct {
	response  *models.ProductRelationsResponse
	skus      []string
	expiresAt time.Time
}

// responseCache is a short-TTL cache for assembled read responses. Each entry
// is tagged with every SKU it was built from, so a save touching any of those
// SKUs can evict exactly the responses it stales.
type responseCache struct {
	ttl time.Duration

	mu      sync.RWMutex
	entries map[string]cacheEntry
}

func newResponseCache(ttl time.Duration) *responseCache {
	return &responseCache{
		ttl:     ttl,
		entries: map[string]cacheEntry{},
	}
}

func cacheKey(tenantID, siteID, sku string, renderCtx models.RenderContext) string {
	return tenantID + "|" + siteID + "|" + sku + "|" + string(renderCtx)
}

func (c *responseCache) get(key string) (*models.ProductRelationsResponse, bool) {
	c.mu.RLock()
	entry, ok := c.entries[key]
	c.mu.RUnlock()
	if !ok || time.Now().After(entry.expiresAt) {
		return nil, false
	}
	return entry.response, true
}

func (c *responseCache) set(key string, response *models.ProductRelationsResponse, skus []string) {
	c.mu.Lock()
	c.entries[key] = cacheEntry{
		response:  response,
		skus:      skus,
		expiresAt: time.Now().Add(c.ttl),
	}
	c.mu.Unlock()
}

// invalidateSKU evicts every cached response that involves the SKU, for any
// site and render context of the tenant.
func (c *responseCache) invalidateSKU(tenantID, sku string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	for key, entry := range c.entries {
		if !strings.HasPrefix(key, tenantID+"|") {
			continue
		}
		if entry.response.ProductSKU == sku {
			delete(c.entries, key)
			continue
		}
		for _, tagged := range entry.skus {
			if tagged == sku {
				delete(c.entries, key)
				break
			}
		}
	}
}

package relations

import (
	"context"
	"net/http"
	"time"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/Gobusters/ectologger"

	"github.com/multistore/variants/internal/repositories/relation"
	"github.com/multistore/variants/pkg/database"
	"github.com/multistore/variants/pkg/models"
	"github.com/multistore/variants/pkg/tracing"
)

// RelationStore is the edge persistence surface the service needs.
type RelationStore interface {
	ListForward(ctx context.Context, tenantID string, productSKU string) ([]models.Relation, error)
	ListBySKUs(ctx context.Context, tenantID string, skus []string, archiveOnly bool) ([]models.RelationRow, error)
	Upsert(ctx context.Context, tenantID string, edge relation.UpsertEdge) (string, error)
	EnsureReverse(ctx context.Context, tenantID string, edge relation.UpsertEdge) (string, error)
	UpdateSortAndSettings(ctx context.Context, tenantID string, id string, sortOrder int, settingsID *string) error
	RemoveBidirectional(ctx context.Context, tenantID string, skuA, skuB string, groupID string) (int64, error)
	FindSettingsIDForTarget(ctx context.Context, tenantID string, groupID string, targetSKU string) (*string, error)
}

// SettingsStore is the settings persistence surface the service needs.
type SettingsStore interface {
	Create(ctx context.Context, tenantID string, payload *models.SettingsPayload) (*models.Settings, error)
	Update(ctx context.Context, tenantID string, id string, payload *models.SettingsPayload) error
}

// GroupStore validates group references on writes.
type GroupStore interface {
	GetByID(ctx context.Context, tenantID string, id string) (*models.Group, error)
}

// IdentityResolver translates between site-local product ids and SKUs.
type IdentityResolver interface {
	SKUOf(ctx context.Context, tenantID, siteID string, productID int64) (string, error)
	IDsOf(ctx context.Context, tenantID, siteID string, skus []string) (map[string]int64, error)
}

// Emitter publishes relation lifecycle events.
type Emitter interface {
	RelationsChanged(ctx context.Context, tenantID, productSKU string, touched []string)
}

// Config tunes the service's save and cache behavior.
type Config struct {
	ReconcileStaleEdges bool
	CacheTTL            time.Duration
}

// Service owns the relation graph: the per-product read path and the admin
// save path.
type Service struct {
	db        database.DB
	logger    ectologger.Logger
	relations RelationStore
	settings  SettingsStore
	groups    GroupStore
	resolver  IdentityResolver
	emitter   Emitter
	cfg       Config
	cache     *responseCache
}

// NewService creates the relations service.
func NewService(
	db database.DB,
	logger ectologger.Logger,
	relations RelationStore,
	settings SettingsStore,
	groups GroupStore,
	resolver IdentityResolver,
	emitter Emitter,
	cfg Config,
) *Service {
	return &Service{
		db:        db,
		logger:    logger,
		relations: relations,
		settings:  settings,
		groups:    groups,
		resolver:  resolver,
		emitter:   emitter,
		cfg:       cfg,
		cache:     newResponseCache(cfg.CacheTTL),
	}
}

// InvalidateSKU evicts cached responses involving the SKU. Called by the
// catalog event consumer when product data changes underneath a response.
func (s *Service) InvalidateSKU(tenantID, sku string) {
	s.cache.invalidateSKU(tenantID, sku)
}

// GetProductRelations assembles the read-side payload for one product:
// stored edges grouped by relation group, targets translated to the current
// site's product ids. Targets not sold on the current site are omitted
// rather than rendered as dead links.
func (s *Service) GetProductRelations(ctx context.Context, tenantID, siteID string, productID int64, renderCtx models.RenderContext) (*models.ProductRelationsResponse, error) {
	ctx, span := tracing.StartSpan(ctx, "relations.Service.GetProductRelations")
	defer span.End()

	sku, err := s.resolver.SKUOf(ctx, tenantID, siteID, productID)
	if err != nil {
		return nil, err
	}
	if sku == "" {
		return nil, httperror.NewHTTPErrorf(http.StatusNotFound, "product %d not found", productID)
	}

	key := cacheKey(tenantID, siteID, sku, renderCtx)
	if cached, ok := s.cache.get(key); ok {
		return cached, nil
	}

	rows, err := s.relations.ListBySKUs(ctx, tenantID, []string{sku}, renderCtx == models.RenderContextArchive)
	if err != nil {
		return nil, err
	}

	targets := make([]string, 0, len(rows))
	seen := map[string]bool{}
	for _, row := range rows {
		if !seen[row.RelatedProductSKU] {
			seen[row.RelatedProductSKU] = true
			targets = append(targets, row.RelatedProductSKU)
		}
	}

	ids, err := s.resolver.IDsOf(ctx, tenantID, siteID, targets)
	if err != nil {
		return nil, err
	}

	response := &models.ProductRelationsResponse{
		ProductID:  productID,
		ProductSKU: sku,
		Context:    renderCtx,
		Groups:     []models.RelationGroup{},
	}

	groupIndex := map[string]int{}
	for _, row := range rows {
		targetID, ok := ids[row.RelatedProductSKU]
		if !ok || targetID == 0 {
			continue
		}

		idx, ok := groupIndex[row.GroupID]
		if !ok {
			response.Groups = append(response.Groups, models.RelationGroup{
				GroupID:             row.GroupID,
				GroupName:           row.GroupName,
				AttributeID:         row.AttributeID,
				DisplayOnList:       row.DisplayOnList,
				DisplayStyleSingle:  row.DisplayStyleSingle,
				DisplayStyleArchive: row.DisplayStyleArchive,
				SortOrder:           row.GroupSortOrder,
				Relations:           []models.ResolvedRelation{},
			})
			idx = len(response.Groups) - 1
			groupIndex[row.GroupID] = idx
		}

		response.Groups[idx].Relations = append(response.Groups[idx].Relations, models.ResolvedRelation{
			RelationID:      row.ID,
			TargetSKU:       row.RelatedProductSKU,
			TargetProductID: targetID,
			SortOrder:       row.SortOrder,
			Settings:        row.Settings.Val,
		})
	}

	s.cache.set(key, response, append(targets, sku))

	return response, nil
}

package grouping

import (
	"context"
	"net/http"
	"time"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/Gobusters/ectologger"

	"github.com/multistore/variants/pkg/models"
	"github.com/multistore/variants/pkg/tracing"
)

// RelationStore is the edge read surface the aggregator needs.
type RelationStore interface {
	ListBySKUs(ctx context.Context, tenantID string, skus []string, archiveOnly bool) ([]models.RelationRow, error)
}

// CatalogStore supplies product display data and attribute values.
type CatalogStore interface {
	ListBySKUs(ctx context.Context, tenantID, siteID string, skus []string) ([]models.Product, error)
	AttributeValues(ctx context.Context, productIDs []int64, attributeID int64) (map[int64]string, error)
}

// PriceStore supplies lowest-observed prices for sale rendering.
type PriceStore interface {
	LowestSinceBulk(ctx context.Context, tenantID string, productIDs []int64, since time.Time) (map[int64]float64, error)
}

// IdentityResolver translates the entry product id to its SKU.
type IdentityResolver interface {
	SKUOf(ctx context.Context, tenantID, siteID string, productID int64) (string, error)
}

// Config tunes the aggregator.
type Config struct {
	LowestPriceWindow time.Duration
}

// Service assembles variant maps: the nested group -> option structure
// storefront templates render variant selectors from. Options carry their own
// adjacency (which products each option links to, per group) so the client
// can narrow selectors without further requests.
type Service struct {
	logger    ectologger.Logger
	relations RelationStore
	catalog   CatalogStore
	prices    PriceStore
	resolver  IdentityResolver
	cfg       Config
}

// NewService creates the variant map aggregator.
func NewService(
	logger ectologger.Logger,
	relations RelationStore,
	catalog CatalogStore,
	prices PriceStore,
	resolver IdentityResolver,
	cfg Config,
) *Service {
	return &Service{
		logger:    logger,
		relations: relations,
		catalog:   catalog,
		prices:    prices,
		resolver:  resolver,
		cfg:       cfg,
	}
}

// BuildVariantMap assembles the variant map for one product page.
func (s *Service) BuildVariantMap(ctx context.Context, tenantID, siteID string, productID int64, renderCtx models.RenderContext) (*models.VariantMapResponse, error) {
	ctx, span := tracing.StartSpan(ctx, "grouping.Service.BuildVariantMap")
	defer span.End()

	sku, err := s.resolver.SKUOf(ctx, tenantID, siteID, productID)
	if err != nil {
		return nil, err
	}
	if sku == "" {
		return nil, httperror.NewHTTPErrorf(http.StatusNotFound, "product %d not found", productID)
	}

	maps, err := s.assemble(ctx, tenantID, siteID, []string{sku}, renderCtx, nil)
	if err != nil {
		return nil, err
	}

	vm, ok := maps[sku]
	if !ok {
		vm = models.VariantMap{}
	}

	return &models.VariantMapResponse{
		ProductID: productID,
		Context:   renderCtx,
		Groups:    vm,
	}, nil
}

// BuildArchiveMaps assembles variant maps for every product visible on a
// listing page in one pass. Options and adjacency are restricted to the
// visible set, so a swatch never points at a product the current filter or
// pagination excluded.
func (s *Service) BuildArchiveMaps(ctx context.Context, tenantID, siteID string, productIDs []int64) (map[int64]models.VariantMap, error) {
	ctx, span := tracing.StartSpan(ctx, "grouping.Service.BuildArchiveMaps")
	defer span.End()

	visible := make(map[int64]bool, len(productIDs))
	for _, id := range productIDs {
		visible[id] = true
	}

	skuByID := make(map[int64]string, len(productIDs))
	sources := make([]string, 0, len(productIDs))
	for _, id := range productIDs {
		sku, err := s.resolver.SKUOf(ctx, tenantID, siteID, id)
		if err != nil {
			return nil, err
		}
		if sku == "" {
			continue
		}
		skuByID[id] = sku
		sources = append(sources, sku)
	}

	maps, err := s.assemble(ctx, tenantID, siteID, sources, models.RenderContextArchive, visible)
	if err != nil {
		return nil, err
	}

	result := make(map[int64]models.VariantMap, len(productIDs))
	for _, id := range productIDs {
		sku, ok := skuByID[id]
		if !ok {
			continue
		}
		if vm, ok := maps[sku]; ok {
			result[id] = vm
		} else {
			result[id] = models.VariantMap{}
		}
	}

	return result, nil
}

// assemble builds variant maps for a set of source SKUs. It issues two bulk
// edge queries (the sources' own edges, then the targets' edges for
// adjacency), one catalog query, and one price query, regardless of how many
// sources are requested. When visible is non-nil, options and adjacency are
// limited to those product ids.
func (s *Service) assemble(ctx context.Context, tenantID, siteID string, sources []string, renderCtx models.RenderContext, visible map[int64]bool) (map[string]models.VariantMap, error) {
	archiveOnly := renderCtx == models.RenderContextArchive

	firstHop, err := s.relations.ListBySKUs(ctx, tenantID, sources, archiveOnly)
	if err != nil {
		return nil, err
	}

	targetSet := map[string]bool{}
	targets := []string{}
	for _, row := range firstHop {
		if !targetSet[row.RelatedProductSKU] {
			targetSet[row.RelatedProductSKU] = true
			targets = append(targets, row.RelatedProductSKU)
		}
	}

	secondHop := []models.RelationRow{}
	if len(targets) > 0 {
		secondHop, err = s.relations.ListBySKUs(ctx, tenantID, targets, archiveOnly)
		if err != nil {
			return nil, err
		}
	}

	// one catalog query covers option display data and adjacency resolution
	skuSet := map[string]bool{}
	allSKUs := []string{}
	for _, sku := range targets {
		skuSet[sku] = true
		allSKUs = append(allSKUs, sku)
	}
	for _, row := range secondHop {
		if !skuSet[row.RelatedProductSKU] {
			skuSet[row.RelatedProductSKU] = true
			allSKUs = append(allSKUs, row.RelatedProductSKU)
		}
	}

	products, err := s.catalog.ListBySKUs(ctx, tenantID, siteID, allSKUs)
	if err != nil {
		return nil, err
	}
	productBySKU := make(map[string]models.Product, len(products))
	for _, p := range products {
		productBySKU[p.SKU] = p
	}

	adjacency := s.buildAdjacency(secondHop, productBySKU, visible)

	attributeLabels, err := s.attributeLabels(ctx, firstHop, productBySKU)
	if err != nil {
		return nil, err
	}

	lowestPrices, err := s.lowestPrices(ctx, tenantID, firstHop, productBySKU)
	if err != nil {
		return nil, err
	}

	result := map[string]models.VariantMap{}
	for _, row := range firstHop {
		target, ok := productBySKU[row.RelatedProductSKU]
		if !ok {
			continue // not sold on this site
		}
		if visible != nil && !visible[target.ID] {
			continue
		}

		vm, ok := result[row.ProductSKU]
		if !ok {
			vm = models.VariantMap{}
			result[row.ProductSKU] = vm
		}

		group, ok := vm[row.GroupID]
		if !ok {
			style := row.DisplayStyleSingle
			if archiveOnly {
				style = row.DisplayStyleArchive
			}
			group = &models.VariantGroup{
				GroupID:       row.GroupID,
				GroupName:     row.GroupName,
				AttributeID:   row.AttributeID,
				DisplayStyle:  style,
				DisplayOnList: row.DisplayOnList,
				SortOrder:     row.GroupSortOrder,
				Relations:     map[string]*models.VariantOption{},
			}
			vm[row.GroupID] = group
		}

		if _, exists := group.Relations[row.RelatedProductSKU]; exists {
			continue
		}

		group.Relations[row.RelatedProductSKU] = s.buildOption(row, target, adjacency, attributeLabels, lowestPrices)
	}

	return result, nil
}

// buildAdjacency maps each SKU to the product ids its own edges reach, per
// group. This is the second hop: what the client needs to narrow the other
// selectors when an option is chosen.
func (s *Service) buildAdjacency(secondHop []models.RelationRow, productBySKU map[string]models.Product, visible map[int64]bool) map[string]map[string][]int64 {
	adjacency := map[string]map[string][]int64{}
	for _, row := range secondHop {
		target, ok := productBySKU[row.RelatedProductSKU]
		if !ok {
			continue
		}
		if visible != nil && !visible[target.ID] {
			continue
		}

		byGroup, ok := adjacency[row.ProductSKU]
		if !ok {
			byGroup = map[string][]int64{}
			adjacency[row.ProductSKU] = byGroup
		}
		byGroup[row.GroupID] = append(byGroup[row.GroupID], target.ID)
	}
	return adjacency
}

// attributeLabels fetches attribute values for every option in groups that
// label by attribute, one query per distinct attribute.
func (s *Service) attributeLabels(ctx context.Context, rows []models.RelationRow, productBySKU map[string]models.Product) (map[int64]map[int64]string, error) {
	idsByAttribute := map[int64][]int64{}
	for _, row := range rows {
		if row.AttributeID == nil {
			continue
		}
		target, ok := productBySKU[row.RelatedProductSKU]
		if !ok {
			continue
		}
		idsByAttribute[*row.AttributeID] = append(idsByAttribute[*row.AttributeID], target.ID)
	}

	labels := map[int64]map[int64]string{}
	for attributeID, productIDs := range idsByAttribute {
		values, err := s.catalog.AttributeValues(ctx, productIDs, attributeID)
		if err != nil {
			return nil, err
		}
		labels[attributeID] = values
	}
	return labels, nil
}

// lowestPrices fetches the lowest observed price within the configured window
// for every on-sale option, in one query.
func (s *Service) lowestPrices(ctx context.Context, tenantID string, rows []models.RelationRow, productBySKU map[string]models.Product) (map[int64]float64, error) {
	if s.prices == nil || s.cfg.LowestPriceWindow <= 0 {
		return map[int64]float64{}, nil
	}

	ids := []int64{}
	seen := map[int64]bool{}
	for _, row := range rows {
		target, ok := productBySKU[row.RelatedProductSKU]
		if !ok || !target.OnSale || seen[target.ID] {
			continue
		}
		seen[target.ID] = true
		ids = append(ids, target.ID)
	}
	if len(ids) == 0 {
		return map[int64]float64{}, nil
	}

	return s.prices.LowestSinceBulk(ctx, tenantID, ids, time.Now().Add(-s.cfg.LowestPriceWindow))
}

func (s *Service) buildOption(
	row models.RelationRow,
	target models.Product,
	adjacency map[string]map[string][]int64,
	attributeLabels map[int64]map[int64]string,
	lowestPrices map[int64]float64,
) *models.VariantOption {
	option := &models.VariantOption{
		ProductID: target.ID,
		SKU:       target.SKU,
		Title:     target.Name,
		URL:       target.Permalink,
		ImageURL:  target.ImageURL,
		Price:     target.Price,
		SalePrice: target.SalePrice,
		OnSale:    target.OnSale,
		Label:     target.Name,
		SortOrder: row.SortOrder,
		Settings:  row.Settings.Val,
		Related:   map[string][]int64{},
	}

	if byGroup, ok := adjacency[target.SKU]; ok {
		option.Related = byGroup
	}

	// label precedence: custom settings label, then attribute value, then name
	if row.AttributeID != nil {
		if values, ok := attributeLabels[*row.AttributeID]; ok {
			if value, ok := values[target.ID]; ok && value != "" {
				option.Label = value
			}
		}
	}
	if settings := row.Settings.Val; settings != nil && settings.LabelSource == models.LabelSourceCustom && settings.CustomLabel != "" {
		option.Label = settings.CustomLabel
	}

	if lowest, ok := lowestPrices[target.ID]; ok {
		option.LowestPrice = &lowest
	}

	return option
}

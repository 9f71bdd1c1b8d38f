package relations

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/Gobusters/ectoerror/httperror"
	"github.com/Gobusters/ectologger"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/multistore/variants/internal/repositories/relation"
	"github.com/multistore/variants/pkg/database"
	"github.com/multistore/variants/pkg/models"
)

type updateCall struct {
	id         string
	sortOrder  int
	settingsID *string
}

type fakeRelations struct {
	forward        []models.Relation
	rows           []models.RelationRow
	sharedSettings map[string]*string // "group|target" -> settings id

	upserts     []relation.UpsertEdge
	reverses    []relation.UpsertEdge
	updates     []updateCall
	removals    []string
	listCalls   int
	archiveOnly bool
}

func (f *fakeRelations) ListForward(ctx context.Context, tenantID, productSKU string) ([]models.Relation, error) {
	return f.forward, nil
}

func (f *fakeRelations) ListBySKUs(ctx context.Context, tenantID string, skus []string, archiveOnly bool) ([]models.RelationRow, error) {
	f.listCalls++
	f.archiveOnly = archiveOnly
	return f.rows, nil
}

func (f *fakeRelations) Upsert(ctx context.Context, tenantID string, edge relation.UpsertEdge) (string, error) {
	f.upserts = append(f.upserts, edge)
	return relation.ComputeDeterministicID(tenantID, edge.GroupID, edge.ProductSKU, edge.RelatedProductSKU), nil
}

func (f *fakeRelations) EnsureReverse(ctx context.Context, tenantID string, edge relation.UpsertEdge) (string, error) {
	f.reverses = append(f.reverses, edge)
	return relation.ComputeDeterministicID(tenantID, edge.GroupID, edge.ProductSKU, edge.RelatedProductSKU), nil
}

func (f *fakeRelations) UpdateSortAndSettings(ctx context.Context, tenantID, id string, sortOrder int, settingsID *string) error {
	f.updates = append(f.updates, updateCall{id: id, sortOrder: sortOrder, settingsID: settingsID})
	return nil
}

func (f *fakeRelations) RemoveBidirectional(ctx context.Context, tenantID, skuA, skuB, groupID string) (int64, error) {
	f.removals = append(f.removals, skuA+"->"+skuB)
	return 2, nil
}

func (f *fakeRelations) FindSettingsIDForTarget(ctx context.Context, tenantID, groupID, targetSKU string) (*string, error) {
	return f.sharedSettings[groupID+"|"+targetSKU], nil
}

type fakeSettings struct {
	created []models.SettingsPayload
	updated map[string]*models.SettingsPayload
	nextID  string
}

func (f *fakeSettings) Create(ctx context.Context, tenantID string, payload *models.SettingsPayload) (*models.Settings, error) {
	f.created = append(f.created, *payload)
	return &models.Settings{ID: f.nextID, TenantID: tenantID}, nil
}

func (f *fakeSettings) Update(ctx context.Context, tenantID, id string, payload *models.SettingsPayload) error {
	if f.updated == nil {
		f.updated = map[string]*models.SettingsPayload{}
	}
	f.updated[id] = payload
	return nil
}

type fakeGroups struct {
	known map[string]bool
}

func (f *fakeGroups) GetByID(ctx context.Context, tenantID, id string) (*models.Group, error) {
	if f.known[id] {
		return &models.Group{ID: id, TenantID: tenantID}, nil
	}
	return nil, nil
}

type fakeResolver struct {
	skuByID map[int64]string
	idBySKU map[string]int64
}

func (f *fakeResolver) SKUOf(ctx context.Context, tenantID, siteID string, productID int64) (string, error) {
	return f.skuByID[productID], nil
}

func (f *fakeResolver) IDsOf(ctx context.Context, tenantID, siteID string, skus []string) (map[string]int64, error) {
	result := map[string]int64{}
	for _, sku := range skus {
		if id, ok := f.idBySKU[sku]; ok {
			result[sku] = id
		}
	}
	return result, nil
}

type fakeEmitter struct {
	events []string
}

func (f *fakeEmitter) RelationsChanged(ctx context.Context, tenantID, productSKU string, touched []string) {
	f.events = append(f.events, productSKU)
}

type serviceFixture struct {
	service   *Service
	relations *fakeRelations
	settings  *fakeSettings
	emitter   *fakeEmitter
	mock      sqlmock.Sqlmock
}

func newServiceFixture(t *testing.T, cfg Config) *serviceFixture {
	t.Helper()

	mockDB, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { mockDB.Close() })

	logger := ectologger.NewEctoLogger(func(msg ectologger.EctoLogMessage) {})
	db := database.NewDatabaseInstance(sqlx.NewDb(mockDB, "sqlmock"), logger)

	relations := &fakeRelations{sharedSettings: map[string]*string{}}
	settings := &fakeSettings{nextID: "settings-new"}
	groups := &fakeGroups{known: map[string]bool{"color": true, "size": true}}
	resolver := &fakeResolver{
		skuByID: map[int64]string{11: "CHAIR-RED", 12: "CHAIR-BLUE"},
		idBySKU: map[string]int64{"CHAIR-RED": 11, "CHAIR-BLUE": 12},
	}
	emitter := &fakeEmitter{}

	if cfg.CacheTTL == 0 {
		cfg.CacheTTL = time.Minute
	}

	return &serviceFixture{
		service:   NewService(db, logger, relations, settings, groups, resolver, emitter, cfg),
		relations: relations,
		settings:  settings,
		emitter:   emitter,
		mock:      mock,
	}
}

func TestSaveRelationsCreatesEdgePair(t *testing.T) {
	f := newServiceFixture(t, Config{})
	f.mock.ExpectBegin()
	f.mock.ExpectCommit()

	resp, err := f.service.SaveRelations(context.Background(), "shop", "en", 11, models.SaveRelationsRequest{
		Relations: []models.SubmittedRelation{
			{GroupID: "color", TargetSKU: "CHAIR-BLUE", SortOrder: 3},
		},
	})
	require.NoError(t, err)

	assert.Equal(t, 1, resp.Created)
	assert.Equal(t, 0, resp.Updated)
	assert.Equal(t, []string{"CHAIR-BLUE"}, resp.Touched)

	require.Len(t, f.relations.upserts, 1)
	assert.Equal(t, "CHAIR-RED", f.relations.upserts[0].ProductSKU)
	assert.Equal(t, "CHAIR-BLUE", f.relations.upserts[0].RelatedProductSKU)
	assert.Equal(t, 3, f.relations.upserts[0].SortOrder)

	require.Len(t, f.relations.reverses, 1)
	assert.Equal(t, "CHAIR-BLUE", f.relations.reverses[0].ProductSKU)
	assert.Equal(t, "CHAIR-RED", f.relations.reverses[0].RelatedProductSKU)

	assert.Equal(t, []string{"CHAIR-RED"}, f.emitter.events)
	assert.NoError(t, f.mock.ExpectationsWereMet())
}

func TestSaveRelationsReusesSharedSettings(t *testing.T) {
	f := newServiceFixture(t, Config{})
	shared := "settings-shared"
	f.relations.sharedSettings["color|CHAIR-BLUE"] = &shared
	f.mock.ExpectBegin()
	f.mock.ExpectCommit()

	payload := &models.SettingsPayload{LabelSource: models.LabelSourceCustom, CustomLabel: "Blue"}
	_, err := f.service.SaveRelations(context.Background(), "shop", "en", 11, models.SaveRelationsRequest{
		Relations: []models.SubmittedRelation{
			{GroupID: "color", TargetSKU: "CHAIR-BLUE", Settings: payload},
		},
	})
	require.NoError(t, err)

	// the existing shared row is updated, not duplicated
	assert.Empty(t, f.settings.created)
	assert.Equal(t, payload, f.settings.updated[shared])
	require.Len(t, f.relations.upserts, 1)
	assert.Equal(t, &shared, f.relations.upserts[0].SettingsID)
}

func TestSaveRelationsNilPayloadInheritsSharedSettings(t *testing.T) {
	f := newServiceFixture(t, Config{})
	shared := "settings-shared"
	f.relations.sharedSettings["color|CHAIR-BLUE"] = &shared
	f.mock.ExpectBegin()
	f.mock.ExpectCommit()

	// a new edge submitted without a payload still renders the target with
	// the settings other edges already share
	resp, err := f.service.SaveRelations(context.Background(), "shop", "en", 11, models.SaveRelationsRequest{
		Relations: []models.SubmittedRelation{
			{GroupID: "color", TargetSKU: "CHAIR-BLUE", SortOrder: 1},
		},
	})
	require.NoError(t, err)

	assert.Equal(t, 1, resp.Created)
	assert.Empty(t, f.settings.created)
	assert.Empty(t, f.settings.updated)
	require.Len(t, f.relations.upserts, 1)
	assert.Equal(t, &shared, f.relations.upserts[0].SettingsID)
}

func TestSaveRelationsCreatesSettingsWhenNoneShared(t *testing.T) {
	f := newServiceFixture(t, Config{})
	f.mock.ExpectBegin()
	f.mock.ExpectCommit()

	payload := &models.SettingsPayload{LabelSource: models.LabelSourceCustom, CustomLabel: "Blue"}
	_, err := f.service.SaveRelations(context.Background(), "shop", "en", 11, models.SaveRelationsRequest{
		Relations: []models.SubmittedRelation{
			{GroupID: "color", TargetSKU: "CHAIR-BLUE", Settings: payload},
		},
	})
	require.NoError(t, err)

	require.Len(t, f.settings.created, 1)
	require.Len(t, f.relations.upserts, 1)
	require.NotNil(t, f.relations.upserts[0].SettingsID)
	assert.Equal(t, "settings-new", *f.relations.upserts[0].SettingsID)
}

func TestSaveRelationsReconcileDisabledKeepsStaleEdges(t *testing.T) {
	f := newServiceFixture(t, Config{ReconcileStaleEdges: false})
	f.relations.forward = []models.Relation{
		{ID: "e1", GroupID: "color", ProductSKU: "CHAIR-RED", RelatedProductSKU: "CHAIR-BLUE"},
	}
	f.mock.ExpectBegin()
	f.mock.ExpectCommit()

	resp, err := f.service.SaveRelations(context.Background(), "shop", "en", 11, models.SaveRelationsRequest{})
	require.NoError(t, err)

	assert.Equal(t, 0, resp.Removed)
	assert.Empty(t, f.relations.removals)
}

func TestSaveRelationsReconcileRemovesStaleEdges(t *testing.T) {
	f := newServiceFixture(t, Config{ReconcileStaleEdges: true})
	f.relations.forward = []models.Relation{
		{ID: "e1", GroupID: "color", ProductSKU: "CHAIR-RED", RelatedProductSKU: "CHAIR-BLUE"},
	}
	f.mock.ExpectBegin()
	f.mock.ExpectCommit()

	resp, err := f.service.SaveRelations(context.Background(), "shop", "en", 11, models.SaveRelationsRequest{})
	require.NoError(t, err)

	assert.Equal(t, 1, resp.Removed)
	assert.Equal(t, []string{"CHAIR-RED->CHAIR-BLUE"}, f.relations.removals)
}

func TestSaveRelationsRequestOverridesReconcileDefault(t *testing.T) {
	f := newServiceFixture(t, Config{ReconcileStaleEdges: false})
	f.relations.forward = []models.Relation{
		{ID: "e1", GroupID: "color", ProductSKU: "CHAIR-RED", RelatedProductSKU: "CHAIR-BLUE"},
	}
	f.mock.ExpectBegin()
	f.mock.ExpectCommit()

	reconcile := true
	resp, err := f.service.SaveRelations(context.Background(), "shop", "en", 11, models.SaveRelationsRequest{
		Reconcile: &reconcile,
	})
	require.NoError(t, err)

	assert.Equal(t, 1, resp.Removed)
}

func TestSaveRelationsRejectsUnknownGroup(t *testing.T) {
	f := newServiceFixture(t, Config{})

	_, err := f.service.SaveRelations(context.Background(), "shop", "en", 11, models.SaveRelationsRequest{
		Relations: []models.SubmittedRelation{
			{GroupID: "nope", TargetSKU: "CHAIR-BLUE"},
		},
	})
	require.Error(t, err)
	assert.Equal(t, 400, httperror.GetStatusCode(err))
	assert.Empty(t, f.relations.upserts)
}

func TestSaveRelationsUnknownProduct(t *testing.T) {
	f := newServiceFixture(t, Config{})

	_, err := f.service.SaveRelations(context.Background(), "shop", "en", 999, models.SaveRelationsRequest{})
	require.Error(t, err)
	assert.Equal(t, 404, httperror.GetStatusCode(err))
}

func relationRow(id, group, groupName string, groupSort int, source, target string, sort int, displayOnList bool) models.RelationRow {
	return models.RelationRow{
		Relation: models.Relation{
			ID:                id,
			GroupID:           group,
			ProductSKU:        source,
			RelatedProductSKU: target,
			SortOrder:         sort,
		},
		GroupName:      groupName,
		GroupSortOrder: groupSort,
		DisplayOnList:  displayOnList,
	}
}

func TestGetProductRelationsGroupsAndResolves(t *testing.T) {
	f := newServiceFixture(t, Config{})
	f.relations.rows = []models.RelationRow{
		relationRow("e1", "color", "Color", 0, "CHAIR-RED", "CHAIR-BLUE", 0, true),
		relationRow("e2", "color", "Color", 0, "CHAIR-RED", "CHAIR-DE-ONLY", 1, true),
	}

	resp, err := f.service.GetProductRelations(context.Background(), "shop", "en", 11, models.RenderContextSingle)
	require.NoError(t, err)

	assert.Equal(t, "CHAIR-RED", resp.ProductSKU)
	require.Len(t, resp.Groups, 1)
	// CHAIR-DE-ONLY is not in the en catalog and must be omitted
	require.Len(t, resp.Groups[0].Relations, 1)
	assert.Equal(t, int64(12), resp.Groups[0].Relations[0].TargetProductID)
	assert.False(t, f.relations.archiveOnly)
}

func TestGetProductRelationsArchiveContext(t *testing.T) {
	f := newServiceFixture(t, Config{})

	_, err := f.service.GetProductRelations(context.Background(), "shop", "en", 11, models.RenderContextArchive)
	require.NoError(t, err)

	assert.True(t, f.relations.archiveOnly)
}

func TestGetProductRelationsCachesUntilSave(t *testing.T) {
	f := newServiceFixture(t, Config{})
	f.relations.rows = []models.RelationRow{
		relationRow("e1", "color", "Color", 0, "CHAIR-RED", "CHAIR-BLUE", 0, true),
	}

	_, err := f.service.GetProductRelations(context.Background(), "shop", "en", 11, models.RenderContextSingle)
	require.NoError(t, err)
	_, err = f.service.GetProductRelations(context.Background(), "shop", "en", 11, models.RenderContextSingle)
	require.NoError(t, err)
	assert.Equal(t, 1, f.relations.listCalls, "second read should be served from cache")

	f.mock.ExpectBegin()
	f.mock.ExpectCommit()
	_, err = f.service.SaveRelations(context.Background(), "shop", "en", 11, models.SaveRelationsRequest{
		Relations: []models.SubmittedRelation{
			{GroupID: "color", TargetSKU: "CHAIR-BLUE"},
		},
	})
	require.NoError(t, err)

	_, err = f.service.GetProductRelations(context.Background(), "shop", "en", 11, models.RenderContextSingle)
	require.NoError(t, err)
	assert.Equal(t, 2, f.relations.listCalls, "save should evict the cached response")
}

package audit

import (
	"context"
	"testing"
	"time"

	"github.com/Gobusters/ectologger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/multistore/variants/internal/repositories/relation"
	"github.com/multistore/variants/pkg/models"
)

type fakeRelations struct {
	edges    []models.Relation
	reverses []relation.UpsertEdge
	repoints []string
}

func (f *fakeRelations) ListAll(ctx context.Context, tenantID string) ([]models.Relation, error) {
	return f.edges, nil
}

func (f *fakeRelations) EnsureReverse(ctx context.Context, tenantID string, edge relation.UpsertEdge) (string, error) {
	f.reverses = append(f.reverses, edge)
	return "", nil
}

func (f *fakeRelations) RepointSettings(ctx context.Context, tenantID, groupID, targetSKU, settingsID string) (int64, error) {
	f.repoints = append(f.repoints, groupID+"|"+targetSKU+"|"+settingsID)
	return 1, nil
}

type fakeSettings struct {
	orphaned []string
	deleted  bool
}

func (f *fakeSettings) ListOrphaned(ctx context.Context, tenantID string) ([]string, error) {
	return f.orphaned, nil
}

func (f *fakeSettings) DeleteOrphaned(ctx context.Context, tenantID string) (int64, error) {
	f.deleted = true
	return int64(len(f.orphaned)), nil
}

func edge(group, from, to string, settingsID *string, createdAt time.Time) models.Relation {
	return models.Relation{
		ID:                group + "|" + from + "|" + to,
		GroupID:           group,
		ProductSKU:        from,
		RelatedProductSKU: to,
		SettingsID:        settingsID,
		CreatedAt:         createdAt,
	}
}

func newAuditor(relations *fakeRelations, settings *fakeSettings) *Auditor {
	logger := ectologger.NewEctoLogger(func(msg ectologger.EctoLogMessage) {})
	return NewAuditor(logger, relations, settings)
}

func TestRunHealthyGraph(t *testing.T) {
	now := time.Now()
	relations := &fakeRelations{edges: []models.Relation{
		edge("color", "A", "B", nil, now),
		edge("color", "B", "A", nil, now),
	}}
	settings := &fakeSettings{}

	report, err := newAuditor(relations, settings).Run(context.Background(), "shop", false)
	require.NoError(t, err)

	assert.Equal(t, 2, report.EdgesChecked)
	assert.Empty(t, report.Issues)
	assert.Equal(t, 0, report.Repaired)
}

func TestRunDetectsMissingReverse(t *testing.T) {
	relations := &fakeRelations{edges: []models.Relation{
		edge("color", "A", "B", nil, time.Now()),
	}}
	settings := &fakeSettings{}

	report, err := newAuditor(relations, settings).Run(context.Background(), "shop", false)
	require.NoError(t, err)

	require.Len(t, report.Issues, 1)
	assert.Equal(t, models.AuditMissingReverse, report.Issues[0].Type)
	assert.Equal(t, "A", report.Issues[0].ProductSKU)
	assert.Empty(t, relations.reverses, "detection must not write")
}

func TestRunRepairsMissingReverse(t *testing.T) {
	sharedA := "settings-a"
	relations := &fakeRelations{edges: []models.Relation{
		edge("color", "A", "B", nil, time.Now()),
		// some other edge already renders A with settings
		edge("color", "C", "A", &sharedA, time.Now()),
		edge("color", "A", "C", nil, time.Now()),
	}}
	settings := &fakeSettings{}

	report, err := newAuditor(relations, settings).Run(context.Background(), "shop", true)
	require.NoError(t, err)

	require.Len(t, relations.reverses, 1)
	assert.Equal(t, "B", relations.reverses[0].ProductSKU)
	assert.Equal(t, "A", relations.reverses[0].RelatedProductSKU)
	require.NotNil(t, relations.reverses[0].SettingsID, "mirror should adopt A's shared settings")
	assert.Equal(t, sharedA, *relations.reverses[0].SettingsID)
	assert.Equal(t, 1, report.Repaired)
}

func TestRunDetectsDivergentSettings(t *testing.T) {
	older := time.Now().Add(-time.Hour)
	s1, s2 := "settings-1", "settings-2"
	relations := &fakeRelations{edges: []models.Relation{
		edge("color", "A", "B", &s1, older),
		edge("color", "C", "B", &s2, time.Now()),
		edge("color", "B", "A", nil, older),
		edge("color", "B", "C", nil, older),
	}}
	settings := &fakeSettings{}

	report, err := newAuditor(relations, settings).Run(context.Background(), "shop", false)
	require.NoError(t, err)

	found := 0
	for _, issue := range report.Issues {
		if issue.Type == models.AuditDivergentSettings {
			found++
			assert.Equal(t, "B", issue.RelatedProductSKU)
			assert.Equal(t, s1, issue.SettingsID, "oldest edge's settings row is canonical")
		}
	}
	assert.Equal(t, 1, found)
}

func TestRunRepairsDivergentSettings(t *testing.T) {
	older := time.Now().Add(-time.Hour)
	s1, s2 := "settings-1", "settings-2"
	relations := &fakeRelations{edges: []models.Relation{
		edge("color", "A", "B", &s1, older),
		edge("color", "C", "B", &s2, time.Now()),
		edge("color", "B", "A", nil, older),
		edge("color", "B", "C", nil, older),
	}}
	settings := &fakeSettings{}

	_, err := newAuditor(relations, settings).Run(context.Background(), "shop", true)
	require.NoError(t, err)

	assert.Contains(t, relations.repoints, "color|B|"+s1)
}

func TestRunDetectsAndRepairsOrphanedSettings(t *testing.T) {
	relations := &fakeRelations{}
	settings := &fakeSettings{orphaned: []string{"settings-x", "settings-y"}}

	report, err := newAuditor(relations, settings).Run(context.Background(), "shop", true)
	require.NoError(t, err)

	assert.Len(t, report.Issues, 2)
	assert.True(t, settings.deleted)
	assert.Equal(t, 2, report.Repaired)
}

func TestRunMixedNilAndSetSettingsIsDivergent(t *testing.T) {
	s1 := "settings-1"
	now := time.Now()
	relations := &fakeRelations{edges: []models.Relation{
		edge("color", "A", "B", &s1, now),
		edge("color", "C", "B", nil, now), // renders B without the shared row
		edge("color", "B", "A", nil, now),
		edge("color", "B", "C", nil, now),
	}}
	settings := &fakeSettings{}

	report, err := newAuditor(relations, settings).Run(context.Background(), "shop", false)
	require.NoError(t, err)

	found := false
	for _, issue := range report.Issues {
		if issue.Type == models.AuditDivergentSettings && issue.RelatedProductSKU == "B" {
			found = true
		}
	}
	assert.True(t, found)
}

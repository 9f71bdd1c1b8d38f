package relations

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/multistore/variants/pkg/models"
)

func strPtr(s string) *string { return &s }

func TestBuildPlanSplitsCreatesUpdatesRemoves(t *testing.T) {
	stored := []models.Relation{
		{ID: "e1", GroupID: "color", ProductSKU: "CHAIR-RED", RelatedProductSKU: "CHAIR-BLUE", SortOrder: 0},
		{ID: "e2", GroupID: "color", ProductSKU: "CHAIR-RED", RelatedProductSKU: "CHAIR-GREEN", SortOrder: 1},
	}
	submitted := []models.SubmittedRelation{
		{GroupID: "color", TargetSKU: "CHAIR-BLUE", SortOrder: 2},  // existing, reordered
		{GroupID: "color", TargetSKU: "CHAIR-BLACK", SortOrder: 0}, // new
	}

	plan := BuildPlan("CHAIR-RED", stored, submitted)

	require.Len(t, plan.Creates, 1)
	assert.Equal(t, "CHAIR-BLACK", plan.Creates[0].TargetSKU)

	require.Len(t, plan.Updates, 1)
	assert.Equal(t, "e1", plan.Updates[0].Existing.ID)
	assert.Equal(t, 2, plan.Updates[0].Submitted.SortOrder)

	require.Len(t, plan.Removes, 1)
	assert.Equal(t, "CHAIR-GREEN", plan.Removes[0].RelatedProductSKU)
}

func TestBuildPlanMatchesByNaturalKeyNotRelationID(t *testing.T) {
	stored := []models.Relation{
		{ID: "e1", GroupID: "color", ProductSKU: "CHAIR-RED", RelatedProductSKU: "CHAIR-BLUE"},
	}
	// stale form: carries a relation id that no longer matches storage
	submitted := []models.SubmittedRelation{
		{GroupID: "color", RelationID: strPtr("gone"), TargetSKU: "CHAIR-BLUE", SortOrder: 5},
	}

	plan := BuildPlan("CHAIR-RED", stored, submitted)

	assert.Empty(t, plan.Creates)
	assert.Empty(t, plan.Removes)
	require.Len(t, plan.Updates, 1)
	assert.Equal(t, "e1", plan.Updates[0].Existing.ID)
}

func TestBuildPlanSkipsSelfLinks(t *testing.T) {
	submitted := []models.SubmittedRelation{
		{GroupID: "color", TargetSKU: "CHAIR-RED"},
		{GroupID: "color", TargetSKU: "CHAIR-BLUE"},
	}

	plan := BuildPlan("CHAIR-RED", nil, submitted)

	require.Len(t, plan.Creates, 1)
	assert.Equal(t, "CHAIR-BLUE", plan.Creates[0].TargetSKU)
}

func TestBuildPlanDeduplicatesSubmission(t *testing.T) {
	submitted := []models.SubmittedRelation{
		{GroupID: "color", TargetSKU: "CHAIR-BLUE", SortOrder: 0},
		{GroupID: "color", TargetSKU: "CHAIR-BLUE", SortOrder: 9},
		{GroupID: "size", TargetSKU: "CHAIR-BLUE", SortOrder: 1}, // different group, kept
	}

	plan := BuildPlan("CHAIR-RED", nil, submitted)

	require.Len(t, plan.Creates, 2)
	assert.Equal(t, 0, plan.Creates[0].SortOrder, "first occurrence wins")
	assert.Equal(t, "size", plan.Creates[1].GroupID)
}

func TestBuildPlanEmptySubmissionRemovesEverything(t *testing.T) {
	stored := []models.Relation{
		{ID: "e1", GroupID: "color", ProductSKU: "CHAIR-RED", RelatedProductSKU: "CHAIR-BLUE"},
		{ID: "e2", GroupID: "size", ProductSKU: "CHAIR-RED", RelatedProductSKU: "CHAIR-XL"},
	}

	plan := BuildPlan("CHAIR-RED", stored, nil)

	assert.Empty(t, plan.Creates)
	assert.Empty(t, plan.Updates)
	assert.Len(t, plan.Removes, 2)
}

func TestPlanTouched(t *testing.T) {
	plan := Plan{
		Creates: []models.SubmittedRelation{{GroupID: "color", TargetSKU: "A"}},
		Updates: []PlannedUpdate{{Submitted: models.SubmittedRelation{GroupID: "size", TargetSKU: "A"}}},
		Removes: []models.Relation{{RelatedProductSKU: "B"}},
	}

	assert.Equal(t, []string{"A", "B"}, plan.Touched())
}

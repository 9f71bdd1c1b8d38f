package relations

import (
	"github.com/multistore/variants/pkg/models"
)

// PlannedUpdate pairs a stored edge with the submitted row that matched it.
type PlannedUpdate struct {
	Existing  models.Relation
	Submitted models.SubmittedRelation
}

// Plan is the diff between a product's stored edges and an admin submission.
// Removes lists stored edges absent from the submission; whether they are
// actually deleted is the caller's reconcile decision, the plan just reports
// them.
type Plan struct {
	Creates []models.SubmittedRelation
	Updates []PlannedUpdate
	Removes []models.Relation
}

// Touched returns every target SKU the plan affects, deduplicated.
func (p Plan) Touched() []string {
	seen := map[string]bool{}
	touched := []string{}
	add := func(sku string) {
		if !seen[sku] {
			seen[sku] = true
			touched = append(touched, sku)
		}
	}
	for _, c := range p.Creates {
		add(c.TargetSKU)
	}
	for _, u := range p.Updates {
		add(u.Submitted.TargetSKU)
	}
	for _, r := range p.Removes {
		add(r.RelatedProductSKU)
	}
	return touched
}

type planKey struct {
	groupID   string
	targetSKU string
}

// BuildPlan diffs the stored forward edges of sourceSKU against a submission.
// Matching is by (group, target SKU), not by the submitted relation id: the
// id a stale form carries may belong to an edge another admin already
// replaced, and the natural key is what the storage upserts on anyway.
// Self-links and duplicate submissions of the same (group, target) are
// dropped, keeping the first occurrence.
func BuildPlan(sourceSKU string, stored []models.Relation, submitted []models.SubmittedRelation) Plan {
	existing := make(map[planKey]models.Relation, len(stored))
	for _, rel := range stored {
		existing[planKey{groupID: rel.GroupID, targetSKU: rel.RelatedProductSKU}] = rel
	}

	plan := Plan{}
	seen := map[planKey]bool{}

	for _, sub := range submitted {
		if sub.TargetSKU == sourceSKU {
			continue
		}
		key := planKey{groupID: sub.GroupID, targetSKU: sub.TargetSKU}
		if seen[key] {
			continue
		}
		seen[key] = true

		if rel, ok := existing[key]; ok {
			plan.Updates = append(plan.Updates, PlannedUpdate{Existing: rel, Submitted: sub})
		} else {
			plan.Creates = append(plan.Creates, sub)
		}
	}

	for _, rel := range stored {
		key := planKey{groupID: rel.GroupID, targetSKU: rel.RelatedProductSKU}
		if !seen[key] {
			plan.Removes = append(plan.Removes, rel)
		}
	}

	return plan
}

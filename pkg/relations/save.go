package relations

import (
	"context"
	"net/http"

	"github.com/Gobusters/ectoerror/httperror"

	"github.com/multistore/variants/internal/repositories/relation"
	"github.com/multistore/variants/pkg/database"
	"github.com/multistore/variants/pkg/models"
	"github.com/multistore/variants/pkg/tracing"
)

// SaveRelations applies an admin submission for one product. The whole
// save runs in a single transaction: the forward edges, their mirrors, and
// the shared settings rows either all land or none do. A half-saved relation
// set is exactly the asymmetry the mirror writes exist to prevent.
func (s *Service) SaveRelations(ctx context.Context, tenantID, siteID string, productID int64, req models.SaveRelationsRequest) (*models.SaveRelationsResponse, error) {
	ctx, span := tracing.StartSpan(ctx, "relations.Service.SaveRelations")
	defer span.End()

	sourceSKU, err := s.resolver.SKUOf(ctx, tenantID, siteID, productID)
	if err != nil {
		return nil, err
	}
	if sourceSKU == "" {
		return nil, httperror.NewHTTPErrorf(http.StatusNotFound, "product %d not found", productID)
	}

	if err := s.validateSubmission(ctx, tenantID, req.Relations); err != nil {
		return nil, err
	}

	stored, err := s.relations.ListForward(ctx, tenantID, sourceSKU)
	if err != nil {
		return nil, err
	}

	plan := BuildPlan(sourceSKU, stored, req.Relations)

	reconcile := s.cfg.ReconcileStaleEdges
	if req.Reconcile != nil {
		reconcile = *req.Reconcile
	}

	txCtx, tx, err := database.GetTx(ctx, s.logger, s.db, nil)
	if err != nil {
		return nil, httperror.NewHTTPErrorf(http.StatusInternalServerError, "failed to begin save transaction: %s", err.Error())
	}
	// Rollback gets the pre-transaction ctx so it actually closes the tx on
	// the error paths; after Commit it is a no-op.
	defer tx.Rollback(ctx)

	response := &models.SaveRelationsResponse{ProductSKU: sourceSKU}

	for _, sub := range plan.Creates {
		settingsID, err := s.resolveSettings(txCtx, tenantID, sub)
		if err != nil {
			return nil, err
		}
		if err := s.writeEdgePair(txCtx, tenantID, sourceSKU, sub, settingsID); err != nil {
			return nil, err
		}
		response.Created++
	}

	for _, upd := range plan.Updates {
		settingsID, err := s.resolveSettings(txCtx, tenantID, upd.Submitted)
		if err != nil {
			return nil, err
		}
		if err := s.relations.UpdateSortAndSettings(txCtx, tenantID, upd.Existing.ID, upd.Submitted.SortOrder, settingsID); err != nil {
			return nil, err
		}
		// heals a missing mirror left by pre-transactional writers
		if err := s.ensureReverse(txCtx, tenantID, sourceSKU, upd.Submitted); err != nil {
			return nil, err
		}
		response.Updated++
	}

	if reconcile {
		for _, rel := range plan.Removes {
			if _, err := s.relations.RemoveBidirectional(txCtx, tenantID, sourceSKU, rel.RelatedProductSKU, rel.GroupID); err != nil {
				return nil, err
			}
			response.Removed++
		}
	}

	if err := tx.Commit(txCtx); err != nil {
		return nil, httperror.NewHTTPErrorf(http.StatusInternalServerError, "failed to commit save transaction: %s", err.Error())
	}

	response.Touched = plan.Touched()

	s.cache.invalidateSKU(tenantID, sourceSKU)
	for _, sku := range response.Touched {
		s.cache.invalidateSKU(tenantID, sku)
	}

	if s.emitter != nil {
		s.emitter.RelationsChanged(ctx, tenantID, sourceSKU, response.Touched)
	}

	s.logger.WithContext(ctx).WithFields(map[string]any{
		"tenant_id":   tenantID,
		"product_sku": sourceSKU,
		"created":     response.Created,
		"updated":     response.Updated,
		"removed":     response.Removed,
	}).Info("saved product relations")

	return response, nil
}

// validateSubmission rejects references to unknown or deleted groups before
// any write happens.
func (s *Service) validateSubmission(ctx context.Context, tenantID string, submitted []models.SubmittedRelation) error {
	checked := map[string]bool{}
	for _, sub := range submitted {
		if checked[sub.GroupID] {
			continue
		}
		group, err := s.groups.GetByID(ctx, tenantID, sub.GroupID)
		if err != nil {
			return err
		}
		if group == nil {
			return httperror.NewHTTPErrorf(http.StatusBadRequest, "relation group %s not found", sub.GroupID)
		}
		checked[sub.GroupID] = true
	}
	return nil
}

// resolveSettings returns the settings id the submitted row's edge should
// reference. Settings are shared per (group, target): when any edge already
// points at the target with settings, that row is reused, and a submitted
// payload updates it in place for every edge that renders the target.
func (s *Service) resolveSettings(ctx context.Context, tenantID string, sub models.SubmittedRelation) (*string, error) {
	existingID, err := s.relations.FindSettingsIDForTarget(ctx, tenantID, sub.GroupID, sub.TargetSKU)
	if err != nil {
		return nil, err
	}

	if sub.Settings == nil {
		return existingID, nil
	}

	if existingID != nil {
		if err := s.settings.Update(ctx, tenantID, *existingID, sub.Settings); err != nil {
			return nil, err
		}
		return existingID, nil
	}

	created, err := s.settings.Create(ctx, tenantID, sub.Settings)
	if err != nil {
		return nil, err
	}
	return &created.ID, nil
}

// writeEdgePair writes the forward edge and ensures its mirror.
func (s *Service) writeEdgePair(ctx context.Context, tenantID, sourceSKU string, sub models.SubmittedRelation, settingsID *string) error {
	if _, err := s.relations.Upsert(ctx, tenantID, relation.UpsertEdge{
		ProductSKU:        sourceSKU,
		RelatedProductSKU: sub.TargetSKU,
		GroupID:           sub.GroupID,
		SettingsID:        settingsID,
		SortOrder:         sub.SortOrder,
	}); err != nil {
		return err
	}
	return s.ensureReverse(ctx, tenantID, sourceSKU, sub)
}

// ensureReverse writes the mirror edge. The mirror's settings describe the
// SOURCE product's tile as seen from the target, so they come from the
// source's own shared settings row, not from the submitted payload.
func (s *Service) ensureReverse(ctx context.Context, tenantID, sourceSKU string, sub models.SubmittedRelation) error {
	sourceSettingsID, err := s.relations.FindSettingsIDForTarget(ctx, tenantID, sub.GroupID, sourceSKU)
	if err != nil {
		return err
	}

	_, err = s.relations.EnsureReverse(ctx, tenantID, relation.UpsertEdge{
		ProductSKU:        sub.TargetSKU,
		RelatedProductSKU: sourceSKU,
		GroupID:           sub.GroupID,
		SettingsID:        sourceSettingsID,
		SortOrder:         sub.SortOrder,
	})
	return err
}

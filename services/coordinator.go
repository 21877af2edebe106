package services

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/agromallas/mallas-app/apperrors"
	"github.com/agromallas/mallas-app/events"
	"github.com/agromallas/mallas-app/models"
	"github.com/agromallas/mallas-app/planner"
	"github.com/agromallas/mallas-app/utils"
)

// Coordinator drives inventory under an order's lifecycle: reserving and
// consuming panels, remnants and materials when an order is taken into
// production, and replaying the movement ledger to undo all of it when the
// order is cancelled. Every order-level operation is one all-or-nothing
// transaction.
type Coordinator struct {
	DB         *gorm.DB
	Remnants   *RemnantStore
	Dispatcher *events.Dispatcher
}

func NewCoordinator(db *gorm.DB, dispatcher *events.Dispatcher) *Coordinator {
	return &Coordinator{
		DB:         db,
		Remnants:   NewRemnantStore(db),
		Dispatcher: dispatcher,
	}
}

// ConsumeItem is one line of an order's consumption request.
type ConsumeItem struct {
	Type models.DetailItemType `json:"type"`
	ID   uint                  `json:"id"`

	// Panel / remnant cut request.
	ReqLength        float64 `json:"req_length,omitempty"`
	ReqWidth         float64 `json:"req_width,omitempty"`
	DiscardThreshold float64 `json:"discard_threshold,omitempty"`

	// Material request.
	Quantity decimal.Decimal `json:"quantity,omitempty"`
}

// ConsumeResult reports what an accepted consumption created.
type ConsumeResult struct {
	JobIDs     []uint `json:"job_ids"`
	RemnantIDs []uint `json:"remnant_ids"`
}

// RestoredSummary reports what a cancellation put back.
type RestoredSummary struct {
	OrderID           uint `json:"order_id"`
	PanelsRestored    int  `json:"panels_restored"`
	RemnantsRestored  int  `json:"remnants_restored"`
	MaterialsRestored int  `json:"materials_restored"`
	RemnantsDeleted   int  `json:"remnants_deleted"`
	JobsDeleted       int  `json:"jobs_deleted"`
	DetailsDeleted    int  `json:"details_deleted"`
	CompensatingMoves int  `json:"compensating_moves"`
}

// PlanCut previews a cut on a panel. Nothing is persisted; committing a plan
// happens through ConsumeForOrder.
func (co *Coordinator) PlanCut(panelID uint, reqLength, reqWidth, threshold float64) (planner.Plan, error) {
	var panel models.Panel
	if err := co.DB.First(&panel, panelID).Error; err != nil {
		return planner.Plan{}, apperrors.Wrap(apperrors.ErrNotFound, "panel %d", panelID)
	}
	return planner.Compute(panel.Length, panel.Width, reqLength, reqWidth, threshold)
}

// ConsumeForOrder reserves and consumes every item of the order in a single
// transaction. If any one item cannot be satisfied no partial consumption is
// committed.
func (co *Coordinator) ConsumeForOrder(orderID uint, items []ConsumeItem) (ConsumeResult, error) {
	var result ConsumeResult

	err := co.DB.Transaction(func(tx *gorm.DB) error {
		var order models.ProductionOrder
		if err := tx.First(&order, orderID).Error; err != nil {
			return apperrors.Wrap(apperrors.ErrNotFound, "order %d", orderID)
		}
		if order.Status != models.OrderPorAprobar && order.Status != models.OrderEnProceso {
			return apperrors.Wrap(apperrors.ErrInvalidState,
				"order %d is %s, cannot consume", orderID, order.Status)
		}

		for _, item := range items {
			switch item.Type {
			case models.ItemPanel:
				jobID, remnantIDs, err := co.consumePanel(tx, &order, item)
				if err != nil {
					return err
				}
				result.JobIDs = append(result.JobIDs, jobID)
				result.RemnantIDs = append(result.RemnantIDs, remnantIDs...)
			case models.ItemRemnant:
				jobID, remnantIDs, err := co.consumeRemnant(tx, &order, item)
				if err != nil {
					return err
				}
				result.JobIDs = append(result.JobIDs, jobID)
				result.RemnantIDs = append(result.RemnantIDs, remnantIDs...)
			case models.ItemMaterial:
				if err := co.consumeMaterial(tx, &order, item); err != nil {
					return err
				}
			default:
				return fmt.Errorf("unknown item type %q", item.Type)
			}
		}
		return nil
	})
	if err != nil {
		return ConsumeResult{}, err
	}

	if co.Dispatcher != nil {
		co.Dispatcher.Publish(events.EventOrderConsumed, map[string]interface{}{
			"order_id":    orderID,
			"job_ids":     result.JobIDs,
			"remnant_ids": result.RemnantIDs,
		})
	}
	return result, nil
}

// consumePanel locks the panel row, plans the cut, persists job + plan pieces
// + remnants, appends the consumption movement and shrinks the panel in place.
func (co *Coordinator) consumePanel(tx *gorm.DB, order *models.ProductionOrder, item ConsumeItem) (uint, []uint, error) {
	var panel models.Panel
	if err := lockForUpdate(tx).
		First(&panel, item.ID).Error; err != nil {
		return 0, nil, apperrors.Wrap(apperrors.ErrNotFound, "panel %d", item.ID)
	}
	if panel.State != models.PanelFree {
		return 0, nil, apperrors.Wrap(apperrors.ErrInvalidState,
			"panel %d is %s", panel.ID, panel.State)
	}

	plan, err := planner.Compute(panel.Length, panel.Width, item.ReqLength, item.ReqWidth, item.DiscardThreshold)
	if err != nil {
		return 0, nil, err
	}

	now := time.Now()
	job := models.CuttingJob{
		OrderID:   order.ID,
		PanelID:   panel.ID,
		State:     models.JobPending,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := tx.Create(&job).Error; err != nil {
		return 0, nil, err
	}
	if err := createPlanPieces(tx, job.ID, plan); err != nil {
		return 0, nil, err
	}

	remnants, err := co.Remnants.StoreFromPlan(tx, panel.ID, &order.ID, &job.ID, plan)
	if err != nil {
		return 0, nil, err
	}
	remnantIDs := make([]uint, 0, len(remnants))
	for _, r := range remnants {
		remnantIDs = append(remnantIDs, r.ID)
	}

	prevLength, prevWidth := panel.Length, panel.Width
	if err := appendMovement(tx, models.MovementRecord{
		Reference:  uuid.New().String(),
		OrderID:    order.ID,
		ItemType:   models.ItemPanel,
		ItemID:     panel.ID,
		Type:       models.MovementConsumo,
		Quantity:   decimal.NewFromFloat(-plan.Target.Area()),
		Unit:       "m2",
		PrevLength: &prevLength,
		PrevWidth:  &prevWidth,
	}); err != nil {
		return 0, nil, err
	}

	// The physical remainder now lives in the remnant rows; the panel row
	// keeps the largest usable remainder as its own dimensions so concurrent
	// readers re-evaluate fit against real leftover stock.
	newLength, newWidth := largestUsable(plan)
	res := tx.Model(&models.Panel{}).
		Where("id = ? AND lock_version = ?", panel.ID, panel.LockVersion).
		Updates(map[string]interface{}{
			"length":       newLength,
			"width":        newWidth,
			"state":        models.PanelReserved,
			"lock_version": panel.LockVersion + 1,
			"updated_at":   now,
		})
	if res.Error != nil {
		return 0, nil, res.Error
	}
	if res.RowsAffected == 0 {
		return 0, nil, apperrors.Wrap(apperrors.ErrConcurrentModification, "panel %d", panel.ID)
	}

	detail := models.OrderDetail{
		OrderID:   order.ID,
		ItemType:  models.ItemPanel,
		ItemID:    panel.ID,
		Length:    item.ReqLength,
		Width:     item.ReqWidth,
		Quantity:  decimal.NewFromFloat(plan.Target.Area()),
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := tx.Create(&detail).Error; err != nil {
		return 0, nil, err
	}
	return job.ID, remnantIDs, nil
}

// consumeRemnant slices an existing remnant again. The cut job still belongs
// to the remnant's parent panel; offcuts of the offcut become new remnants.
func (co *Coordinator) consumeRemnant(tx *gorm.DB, order *models.ProductionOrder, item ConsumeItem) (uint, []uint, error) {
	var remnant models.Remnant
	if err := lockForUpdate(tx).
		First(&remnant, item.ID).Error; err != nil {
		return 0, nil, apperrors.Wrap(apperrors.ErrNotFound, "remnant %d", item.ID)
	}
	if remnant.Status != models.RemnantAvailable {
		return 0, nil, apperrors.Wrap(apperrors.ErrInvalidState,
			"remnant %d is %s", remnant.ID, remnant.Status)
	}

	plan, err := planner.Compute(remnant.Length, remnant.Width, item.ReqLength, item.ReqWidth, item.DiscardThreshold)
	if err != nil {
		return 0, nil, err
	}

	now := time.Now()
	job := models.CuttingJob{
		OrderID:   order.ID,
		PanelID:   remnant.PanelID,
		State:     models.JobPending,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := tx.Create(&job).Error; err != nil {
		return 0, nil, err
	}
	if err := createPlanPieces(tx, job.ID, plan); err != nil {
		return 0, nil, err
	}

	children, err := co.Remnants.StoreFromPlan(tx, remnant.PanelID, &order.ID, &job.ID, plan)
	if err != nil {
		return 0, nil, err
	}
	childIDs := make([]uint, 0, len(children))
	for _, r := range children {
		childIDs = append(childIDs, r.ID)
	}

	prevLength, prevWidth := remnant.Length, remnant.Width
	if err := appendMovement(tx, models.MovementRecord{
		Reference:  uuid.New().String(),
		OrderID:    order.ID,
		ItemType:   models.ItemRemnant,
		ItemID:     remnant.ID,
		Type:       models.MovementConsumo,
		Quantity:   decimal.NewFromFloat(-plan.Target.Area()),
		Unit:       "m2",
		PrevLength: &prevLength,
		PrevWidth:  &prevWidth,
	}); err != nil {
		return 0, nil, err
	}

	if err := tx.Model(&models.Remnant{}).
		Where("id = ?", remnant.ID).
		Updates(map[string]interface{}{
			"status":     models.RemnantConsumed,
			"updated_at": now,
		}).Error; err != nil {
		return 0, nil, err
	}

	detail := models.OrderDetail{
		OrderID:   order.ID,
		ItemType:  models.ItemRemnant,
		ItemID:    remnant.ID,
		Length:    item.ReqLength,
		Width:     item.ReqWidth,
		Quantity:  decimal.NewFromFloat(plan.Target.Area()),
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := tx.Create(&detail).Error; err != nil {
		return 0, nil, err
	}
	return job.ID, childIDs, nil
}

// consumeMaterial checks and decrements countable stock.
func (co *Coordinator) consumeMaterial(tx *gorm.DB, order *models.ProductionOrder, item ConsumeItem) error {
	var material models.Material
	if err := lockForUpdate(tx).
		First(&material, item.ID).Error; err != nil {
		return apperrors.Wrap(apperrors.ErrNotFound, "material %d", item.ID)
	}
	if item.Quantity.LessThanOrEqual(decimal.Zero) {
		return fmt.Errorf("material %d: quantity must be positive", item.ID)
	}
	if material.Stock.LessThan(item.Quantity) {
		return apperrors.Wrap(apperrors.ErrInsufficientQuantity,
			"material %d (%s) has %s, requested %s",
			material.ID, material.Name, material.Stock, item.Quantity)
	}

	now := time.Now()
	if err := tx.Model(&models.Material{}).
		Where("id = ?", material.ID).
		Updates(map[string]interface{}{
			"stock":      material.Stock.Sub(item.Quantity),
			"updated_at": now,
		}).Error; err != nil {
		return err
	}

	if err := appendMovement(tx, models.MovementRecord{
		Reference: uuid.New().String(),
		OrderID:   order.ID,
		ItemType:  models.ItemMaterial,
		ItemID:    material.ID,
		Type:      models.MovementConsumo,
		Quantity:  item.Quantity.Neg(),
		Unit:      material.Unit,
	}); err != nil {
		return err
	}

	detail := models.OrderDetail{
		OrderID:   order.ID,
		ItemType:  models.ItemMaterial,
		ItemID:    material.ID,
		Kind:      material.Kind,
		Quantity:  item.Quantity,
		CreatedAt: now,
		UpdatedAt: now,
	}
	return tx.Create(&detail).Error
}

// Transition drives the order lifecycle. Cancellation runs the full ledger
// restoration inside the same transaction as the status change.
func (co *Coordinator) Transition(orderID uint, newStatus models.OrderStatus) (*RestoredSummary, error) {
	var summary *RestoredSummary

	err := co.DB.Transaction(func(tx *gorm.DB) error {
		var order models.ProductionOrder
		if err := lockForUpdate(tx).
			First(&order, orderID).Error; err != nil {
			return apperrors.Wrap(apperrors.ErrNotFound, "order %d", orderID)
		}
		if !models.CanTransition(order.Status, newStatus) {
			return apperrors.Wrap(apperrors.ErrInvalidState,
				"order %d: %s -> %s", orderID, order.Status, newStatus)
		}

		if newStatus == models.OrderCancelada {
			s, err := co.restoreInTx(tx, &order)
			if err != nil {
				return err
			}
			summary = s
		}

		return tx.Model(&models.ProductionOrder{}).
			Where("id = ?", order.ID).
			Updates(map[string]interface{}{
				"status":     newStatus,
				"updated_at": time.Now(),
			}).Error
	})
	if err != nil {
		return nil, err
	}

	if newStatus == models.OrderCancelada && co.Dispatcher != nil {
		co.Dispatcher.Publish(events.EventOrderCancelled, summary)
	}
	return summary, nil
}

// CancelOrder is the external cancellation entry point.
func (co *Coordinator) CancelOrder(orderID uint) (*RestoredSummary, error) {
	return co.Transition(orderID, models.OrderCancelada)
}

// Restore replays the order's ledger and puts every touched panel, remnant and
// material back to its pre-order state. Idempotent: once compensating records
// zero out the order's net movement, another call is a no-op.
func (co *Coordinator) Restore(orderID uint) (*RestoredSummary, error) {
	var summary *RestoredSummary
	err := co.DB.Transaction(func(tx *gorm.DB) error {
		var order models.ProductionOrder
		if err := lockForUpdate(tx).
			First(&order, orderID).Error; err != nil {
			return apperrors.Wrap(apperrors.ErrNotFound, "order %d", orderID)
		}
		s, err := co.restoreInTx(tx, &order)
		if err != nil {
			return err
		}
		summary = s
		return nil
	})
	if err != nil {
		return nil, err
	}
	return summary, nil
}

// itemKey identifies one inventory item across ledger rows.
type itemKey struct {
	Type models.DetailItemType
	ID   uint
}

func (co *Coordinator) restoreInTx(tx *gorm.DB, order *models.ProductionOrder) (*RestoredSummary, error) {
	summary := &RestoredSummary{OrderID: order.ID}

	var records []models.MovementRecord
	if err := tx.Where("order_id = ?", order.ID).
		Order("id ASC").
		Find(&records).Error; err != nil {
		return nil, err
	}

	// Net movement per item decides what still needs crediting back. The
	// oldest consumption row of each item holds the pre-order dimensions.
	nets := make(map[itemKey]decimal.Decimal)
	first := make(map[itemKey]models.MovementRecord)
	var keys []itemKey
	for _, rec := range records {
		key := itemKey{Type: rec.ItemType, ID: rec.ItemID}
		if _, seen := nets[key]; !seen {
			nets[key] = decimal.Zero
			keys = append(keys, key)
		}
		nets[key] = nets[key].Add(rec.Quantity)
		if rec.Type == models.MovementConsumo {
			if _, seen := first[key]; !seen {
				first[key] = rec
			}
		}
	}

	now := time.Now()
	for _, key := range keys {
		net := nets[key]
		if net.IsZero() {
			continue
		}
		if net.IsPositive() {
			return nil, apperrors.Wrap(apperrors.ErrRestorationInconsistency,
				"order %d %s %d over-credited by %s", order.ID, key.Type, key.ID, net)
		}

		consumo, ok := first[key]
		if !ok {
			return nil, apperrors.Wrap(apperrors.ErrRestorationInconsistency,
				"order %d %s %d has net %s but no consumption record",
				order.ID, key.Type, key.ID, net)
		}

		switch key.Type {
		case models.ItemPanel:
			if err := restorePanel(tx, order.ID, key.ID, consumo, now); err != nil {
				return nil, err
			}
			summary.PanelsRestored++
		case models.ItemRemnant:
			if err := restoreRemnant(tx, order.ID, key.ID, consumo, now); err != nil {
				return nil, err
			}
			summary.RemnantsRestored++
		case models.ItemMaterial:
			if err := restoreMaterial(tx, order.ID, key.ID, net.Neg(), now); err != nil {
				return nil, err
			}
			summary.MaterialsRestored++
		}

		if err := appendMovement(tx, models.MovementRecord{
			Reference:  uuid.New().String(),
			OrderID:    order.ID,
			ItemType:   key.Type,
			ItemID:     key.ID,
			Type:       models.MovementRestauracion,
			Quantity:   net.Neg(),
			Unit:       consumo.Unit,
			PrevLength: consumo.PrevLength,
			PrevWidth:  consumo.PrevWidth,
		}); err != nil {
			return nil, err
		}
		summary.CompensatingMoves++
	}

	// Remnants born from this order's cuts are void now.
	res := tx.Where("source_order_id = ?", order.ID).Delete(&models.Remnant{})
	if res.Error != nil {
		return nil, res.Error
	}
	summary.RemnantsDeleted = int(res.RowsAffected)

	var jobIDs []uint
	if err := tx.Model(&models.CuttingJob{}).
		Where("order_id = ?", order.ID).
		Pluck("id", &jobIDs).Error; err != nil {
		return nil, err
	}
	if len(jobIDs) > 0 {
		if err := tx.Where("job_id IN ?", jobIDs).Delete(&models.CutPiece{}).Error; err != nil {
			return nil, err
		}
		res = tx.Where("id IN ?", jobIDs).Delete(&models.CuttingJob{})
		if res.Error != nil {
			return nil, res.Error
		}
		summary.JobsDeleted = int(res.RowsAffected)
	}

	res = tx.Where("order_id = ?", order.ID).Delete(&models.OrderDetail{})
	if res.Error != nil {
		return nil, res.Error
	}
	summary.DetailsDeleted = int(res.RowsAffected)

	if summary.CompensatingMoves > 0 {
		utils.InfoLogger.WithFields(map[string]interface{}{
			"order_id": order.ID,
			"moves":    summary.CompensatingMoves,
		}).Info("order inventory restored")
	}
	return summary, nil
}

func restorePanel(tx *gorm.DB, orderID, panelID uint, consumo models.MovementRecord, now time.Time) error {
	var panel models.Panel
	if err := lockForUpdate(tx).
		First(&panel, panelID).Error; err != nil {
		return apperrors.Wrap(apperrors.ErrRestorationInconsistency,
			"order %d references missing panel %d", orderID, panelID)
	}
	if consumo.PrevLength == nil || consumo.PrevWidth == nil {
		return apperrors.Wrap(apperrors.ErrRestorationInconsistency,
			"panel %d consumption record %s lacks prior dimensions", panelID, consumo.Reference)
	}
	return tx.Model(&models.Panel{}).
		Where("id = ?", panel.ID).
		Updates(map[string]interface{}{
			"length":       *consumo.PrevLength,
			"width":        *consumo.PrevWidth,
			"state":        models.PanelFree,
			"lock_version": panel.LockVersion + 1,
			"updated_at":   now,
		}).Error
}

func restoreRemnant(tx *gorm.DB, orderID, remnantID uint, consumo models.MovementRecord, now time.Time) error {
	var remnant models.Remnant
	if err := lockForUpdate(tx).
		First(&remnant, remnantID).Error; err != nil {
		return apperrors.Wrap(apperrors.ErrRestorationInconsistency,
			"order %d references missing remnant %d", orderID, remnantID)
	}
	if consumo.PrevLength == nil || consumo.PrevWidth == nil {
		return apperrors.Wrap(apperrors.ErrRestorationInconsistency,
			"remnant %d consumption record %s lacks prior dimensions", remnantID, consumo.Reference)
	}
	return tx.Model(&models.Remnant{}).
		Where("id = ?", remnant.ID).
		Updates(map[string]interface{}{
			"length":     *consumo.PrevLength,
			"width":      *consumo.PrevWidth,
			"status":     models.RemnantAvailable,
			"updated_at": now,
		}).Error
}

func restoreMaterial(tx *gorm.DB, orderID, materialID uint, qty decimal.Decimal, now time.Time) error {
	var material models.Material
	if err := lockForUpdate(tx).
		First(&material, materialID).Error; err != nil {
		return apperrors.Wrap(apperrors.ErrRestorationInconsistency,
			"order %d references missing material %d", orderID, materialID)
	}
	return tx.Model(&models.Material{}).
		Where("id = ?", material.ID).
		Updates(map[string]interface{}{
			"stock":      material.Stock.Add(qty),
			"updated_at": now,
		}).Error
}

// ReconcileOrphans frees panels stuck in Reserved/InProgress that no live
// order references anymore. It is an explicit idempotent sweep, safe to run
// on a timer or on demand.
func (co *Coordinator) ReconcileOrphans() (int, error) {
	active := []models.OrderStatus{
		models.OrderPorAprobar, models.OrderEnProceso, models.OrderPausada,
	}

	var freed int64
	err := co.DB.Transaction(func(tx *gorm.DB) error {
		referenced := tx.Model(&models.CuttingJob{}).
			Select("cutting_jobs.panel_id").
			Joins("JOIN production_orders ON production_orders.id = cutting_jobs.order_id").
			Where("production_orders.status IN ?", active)

		res := tx.Model(&models.Panel{}).
			Where("state IN ?", []models.PanelState{models.PanelReserved, models.PanelInProgress}).
			Where("id NOT IN (?)", referenced).
			Updates(map[string]interface{}{
				"state":        models.PanelFree,
				"lock_version": gorm.Expr("lock_version + 1"),
				"updated_at":   time.Now(),
			})
		if res.Error != nil {
			return res.Error
		}
		freed = res.RowsAffected
		return nil
	})
	if err != nil {
		return 0, err
	}

	if freed > 0 {
		utils.InfoLogger.Printf("orphan sweep freed %d panel(s)", freed)
		if co.Dispatcher != nil {
			co.Dispatcher.Publish(events.EventPanelsFreed, freed)
		}
	}
	return int(freed), nil
}

// createPlanPieces persists the plan as CutPiece rows owned by the job.
func createPlanPieces(tx *gorm.DB, jobID uint, plan planner.Plan) error {
	now := time.Now()
	pieces := make([]models.CutPiece, 0, 1+len(plan.Remnants))
	pieces = append(pieces, models.CutPiece{
		JobID:     jobID,
		Seq:       plan.Target.Seq,
		Role:      plan.Target.Role,
		Length:    plan.Target.Length,
		Width:     plan.Target.Width,
		CreatedAt: now,
		UpdatedAt: now,
	})
	for _, r := range plan.Remnants {
		pieces = append(pieces, models.CutPiece{
			JobID:     jobID,
			Seq:       r.Seq,
			Role:      r.Role,
			Length:    r.Length,
			Width:     r.Width,
			Discarded: r.Discard,
			CreatedAt: now,
			UpdatedAt: now,
		})
	}
	return tx.Create(&pieces).Error
}

// largestUsable picks the biggest non-discarded remnant of a plan, or zero
// dimensions when the cut leaves nothing worth keeping on the panel.
func largestUsable(plan planner.Plan) (float64, float64) {
	var bestLength, bestWidth, bestArea float64
	for _, r := range plan.UsableRemnants() {
		if a := r.Area(); a > bestArea {
			bestArea = a
			bestLength, bestWidth = r.Length, r.Width
		}
	}
	return bestLength, bestWidth
}

// appendMovement writes one immutable ledger row.
func appendMovement(tx *gorm.DB, rec models.MovementRecord) error {
	rec.CreatedAt = time.Now()
	return tx.Create(&rec).Error
}

// lockForUpdate takes an exclusive row lock where the dialect supports it.
// SQLite has no FOR UPDATE; its writers serialize on the transaction itself.
func lockForUpdate(tx *gorm.DB) *gorm.DB {
	if tx.Dialector.Name() == "sqlite" {
		return tx
	}
	return tx.Clauses(clause.Locking{Strength: "UPDATE"})
}

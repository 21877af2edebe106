package services

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/agromallas/mallas-app/apperrors"
	"github.com/agromallas/mallas-app/events"
	"github.com/agromallas/mallas-app/models"
	"github.com/agromallas/mallas-app/utils"
)

func setupServiceDB(t *testing.T) *gorm.DB {
	t.Helper()
	utils.InitLogger()

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	require.NoError(t, err)

	err = db.AutoMigrate(
		&models.Panel{},
		&models.Remnant{},
		&models.Material{},
		&models.ProductionOrder{},
		&models.OrderDetail{},
		&models.CuttingJob{},
		&models.CutPiece{},
		&models.MovementRecord{},
	)
	require.NoError(t, err)
	return db
}

func seedOrder(t *testing.T, db *gorm.DB, status models.OrderStatus) models.ProductionOrder {
	t.Helper()
	order := models.ProductionOrder{
		Folio:      "OP-TEST-" + time.Now().Format("150405.000000"),
		ClientName: "Rancho El Encino",
		Status:     status,
		CreatedAt:  time.Now(),
		UpdatedAt:  time.Now(),
	}
	require.NoError(t, db.Create(&order).Error)
	return order
}

func seedPanel(t *testing.T, db *gorm.DB, length, width float64) models.Panel {
	t.Helper()
	panel := models.Panel{
		Code:      "PAN-" + time.Now().Format("150405.000000"),
		Length:    length,
		Width:     width,
		State:     models.PanelFree,
		CreatedAt: time.Now(),
		UpdatedAt: time.Now(),
	}
	require.NoError(t, db.Create(&panel).Error)
	return panel
}

func seedMaterial(t *testing.T, db *gorm.DB, kind models.MaterialKind, stock string) models.Material {
	t.Helper()
	material := models.Material{
		Kind:      kind,
		Name:      string(kind) + " test",
		Unit:      "kg",
		Stock:     decimal.RequireFromString(stock),
		CreatedAt: time.Now(),
		UpdatedAt: time.Now(),
	}
	require.NoError(t, db.Create(&material).Error)
	return material
}

func TestConsumeForOrder_PanelHappyPath(t *testing.T) {
	db := setupServiceDB(t)
	co := NewCoordinator(db, events.NewDispatcher())

	order := seedOrder(t, db, models.OrderPorAprobar)
	panel := seedPanel(t, db, 5.0, 2.0)

	result, err := co.ConsumeForOrder(order.ID, []ConsumeItem{{
		Type:             models.ItemPanel,
		ID:               panel.ID,
		ReqLength:        3.0,
		ReqWidth:         2.0,
		DiscardThreshold: 1.0,
	}})
	require.NoError(t, err)
	require.Len(t, result.JobIDs, 1)
	require.Len(t, result.RemnantIDs, 1)

	// Job is pending with the full plan persisted.
	var job models.CuttingJob
	require.NoError(t, db.Preload("Pieces").First(&job, result.JobIDs[0]).Error)
	assert.Equal(t, models.JobPending, job.State)
	require.Len(t, job.Pieces, 2)
	assert.Equal(t, models.RoleTarget, job.Pieces[0].Role)
	assert.InDelta(t, 6.0, job.Pieces[0].Length*job.Pieces[0].Width, 1e-9)

	// The 2.0 x 2.0 remainder is an available remnant.
	var remnant models.Remnant
	require.NoError(t, db.First(&remnant, result.RemnantIDs[0]).Error)
	assert.Equal(t, models.RemnantAvailable, remnant.Status)
	assert.InDelta(t, 4.0, remnant.Area(), 1e-9)

	// Panel shrank to the remainder and is reserved.
	var got models.Panel
	require.NoError(t, db.First(&got, panel.ID).Error)
	assert.Equal(t, models.PanelReserved, got.State)
	assert.InDelta(t, 2.0, got.Length, 1e-9)
	assert.InDelta(t, 2.0, got.Width, 1e-9)
	assert.Equal(t, uint(1), got.LockVersion)

	// One negative ledger row for the consumed area.
	var moves []models.MovementRecord
	require.NoError(t, db.Where("order_id = ?", order.ID).Find(&moves).Error)
	require.Len(t, moves, 1)
	assert.Equal(t, models.MovementConsumo, moves[0].Type)
	assert.True(t, moves[0].Quantity.Equal(decimal.NewFromFloat(-6.0)))
	require.NotNil(t, moves[0].PrevLength)
	assert.InDelta(t, 5.0, *moves[0].PrevLength, 1e-9)
}

func TestConsumeForOrder_AllOrNothing(t *testing.T) {
	db := setupServiceDB(t)
	co := NewCoordinator(db, nil)

	order := seedOrder(t, db, models.OrderPorAprobar)
	panel := seedPanel(t, db, 5.0, 2.0)
	material := seedMaterial(t, db, models.KindNylon, "1.5")

	_, err := co.ConsumeForOrder(order.ID, []ConsumeItem{
		{
			Type:             models.ItemPanel,
			ID:               panel.ID,
			ReqLength:        3.0,
			ReqWidth:         2.0,
			DiscardThreshold: 1.0,
		},
		{
			Type:     models.ItemMaterial,
			ID:       material.ID,
			Quantity: decimal.RequireFromString("2.0"), // more than stocked
		},
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, apperrors.ErrInsufficientQuantity)

	// The panel work from the same order must be rolled back too.
	var got models.Panel
	require.NoError(t, db.First(&got, panel.ID).Error)
	assert.Equal(t, models.PanelFree, got.State)
	assert.InDelta(t, 5.0, got.Length, 1e-9)

	var jobCount, moveCount int64
	db.Model(&models.CuttingJob{}).Count(&jobCount)
	db.Model(&models.MovementRecord{}).Count(&moveCount)
	assert.Zero(t, jobCount)
	assert.Zero(t, moveCount)
}

func TestConsumeForOrder_RejectsUnfittablePanel(t *testing.T) {
	db := setupServiceDB(t)
	co := NewCoordinator(db, nil)

	order := seedOrder(t, db, models.OrderPorAprobar)
	panel := seedPanel(t, db, 2.0, 2.0)

	_, err := co.ConsumeForOrder(order.ID, []ConsumeItem{{
		Type:      models.ItemPanel,
		ID:        panel.ID,
		ReqLength: 3.5,
		ReqWidth:  1.0,
	}})
	assert.ErrorIs(t, err, apperrors.ErrInsufficientArea)
}

func TestConsumeForOrder_RejectsBusyPanel(t *testing.T) {
	db := setupServiceDB(t)
	co := NewCoordinator(db, nil)

	order := seedOrder(t, db, models.OrderPorAprobar)
	panel := seedPanel(t, db, 5.0, 2.0)
	require.NoError(t, db.Model(&models.Panel{}).
		Where("id = ?", panel.ID).
		Update("state", models.PanelReserved).Error)

	_, err := co.ConsumeForOrder(order.ID, []ConsumeItem{{
		Type:      models.ItemPanel,
		ID:        panel.ID,
		ReqLength: 1.0,
		ReqWidth:  1.0,
	}})
	assert.ErrorIs(t, err, apperrors.ErrInvalidState)
}

func TestConsumeForOrder_ConcurrentPanelWriteRejected(t *testing.T) {
	db := setupServiceDB(t)
	co := NewCoordinator(db, nil)

	order := seedOrder(t, db, models.OrderPorAprobar)
	panel := seedPanel(t, db, 5.0, 2.0)

	// A writer slips in between the coordinator's panel read and its guarded
	// update: bump lock_version right after every panels query on this
	// connection, so the version the coordinator read is stale by commit time.
	err := db.Callback().Query().After("gorm:query").Register("bump_panel_version", func(tx *gorm.DB) {
		if tx.Statement.Table == "panels" {
			tx.Session(&gorm.Session{NewDB: true}).
				Exec("UPDATE panels SET lock_version = lock_version + 1 WHERE id = ?", panel.ID)
		}
	})
	require.NoError(t, err)
	defer db.Callback().Query().Remove("bump_panel_version")

	_, err = co.ConsumeForOrder(order.ID, []ConsumeItem{{
		Type:             models.ItemPanel,
		ID:               panel.ID,
		ReqLength:        3.0,
		ReqWidth:         2.0,
		DiscardThreshold: 1.0,
	}})
	require.Error(t, err)
	assert.ErrorIs(t, err, apperrors.ErrConcurrentModification)

	// The whole attempt rolled back: no job, no pieces, no ledger rows, and
	// the panel is untouched.
	var jobs, pieces, remnants, moves int64
	db.Model(&models.CuttingJob{}).Count(&jobs)
	db.Model(&models.CutPiece{}).Count(&pieces)
	db.Model(&models.Remnant{}).Count(&remnants)
	db.Model(&models.MovementRecord{}).Count(&moves)
	assert.Zero(t, jobs)
	assert.Zero(t, pieces)
	assert.Zero(t, remnants)
	assert.Zero(t, moves)

	var got models.Panel
	require.NoError(t, db.First(&got, panel.ID).Error)
	assert.Equal(t, models.PanelFree, got.State)
	assert.InDelta(t, 5.0, got.Length, 1e-9)
}

func TestConsumeForOrder_RejectsTerminalOrder(t *testing.T) {
	db := setupServiceDB(t)
	co := NewCoordinator(db, nil)

	order := seedOrder(t, db, models.OrderCancelada)
	panel := seedPanel(t, db, 5.0, 2.0)

	_, err := co.ConsumeForOrder(order.ID, []ConsumeItem{{
		Type:      models.ItemPanel,
		ID:        panel.ID,
		ReqLength: 1.0,
		ReqWidth:  1.0,
	}})
	assert.ErrorIs(t, err, apperrors.ErrInvalidState)
}

func TestCancelOrder_RestoresPanelExactly(t *testing.T) {
	db := setupServiceDB(t)
	co := NewCoordinator(db, events.NewDispatcher())

	order := seedOrder(t, db, models.OrderPorAprobar)
	panel := seedPanel(t, db, 2.5, 1.8)
	material := seedMaterial(t, db, models.KindLona, "10")

	_, err := co.ConsumeForOrder(order.ID, []ConsumeItem{
		{
			Type:             models.ItemPanel,
			ID:               panel.ID,
			ReqLength:        2.0,
			ReqWidth:         1.5,
			DiscardThreshold: 0.2,
		},
		{
			Type:     models.ItemMaterial,
			ID:       material.ID,
			Quantity: decimal.RequireFromString("3.5"),
		},
	})
	require.NoError(t, err)

	summary, err := co.CancelOrder(order.ID)
	require.NoError(t, err)
	require.NotNil(t, summary)
	assert.Equal(t, 1, summary.PanelsRestored)
	assert.Equal(t, 1, summary.MaterialsRestored)
	assert.Equal(t, 1, summary.JobsDeleted)
	assert.NotZero(t, summary.RemnantsDeleted)

	// Panel dimensions come back exactly.
	var got models.Panel
	require.NoError(t, db.First(&got, panel.ID).Error)
	assert.Equal(t, models.PanelFree, got.State)
	assert.Equal(t, 2.5, got.Length)
	assert.Equal(t, 1.8, got.Width)

	// Material stock comes back exactly.
	var mat models.Material
	require.NoError(t, db.First(&mat, material.ID).Error)
	assert.True(t, mat.Stock.Equal(decimal.RequireFromString("10")))

	// Jobs, pieces, remnants and details are gone.
	var jobs, pieces, remnants, details int64
	db.Model(&models.CuttingJob{}).Where("order_id = ?", order.ID).Count(&jobs)
	db.Model(&models.CutPiece{}).Count(&pieces)
	db.Model(&models.Remnant{}).Where("source_order_id = ?", order.ID).Count(&remnants)
	db.Model(&models.OrderDetail{}).Where("order_id = ?", order.ID).Count(&details)
	assert.Zero(t, jobs)
	assert.Zero(t, pieces)
	assert.Zero(t, remnants)
	assert.Zero(t, details)

	// The ledger keeps both sides of the story.
	var moves []models.MovementRecord
	require.NoError(t, db.Where("order_id = ?", order.ID).Order("id ASC").Find(&moves).Error)
	assert.Len(t, moves, 4)

	var status models.ProductionOrder
	require.NoError(t, db.First(&status, order.ID).Error)
	assert.Equal(t, models.OrderCancelada, status.Status)
}

func TestRestore_Idempotent(t *testing.T) {
	db := setupServiceDB(t)
	co := NewCoordinator(db, nil)

	order := seedOrder(t, db, models.OrderPorAprobar)
	panel := seedPanel(t, db, 4.0, 2.0)

	_, err := co.ConsumeForOrder(order.ID, []ConsumeItem{{
		Type:             models.ItemPanel,
		ID:               panel.ID,
		ReqLength:        2.0,
		ReqWidth:         2.0,
		DiscardThreshold: 0.5,
	}})
	require.NoError(t, err)

	first, err := co.Restore(order.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, first.PanelsRestored)

	var afterFirst models.Panel
	require.NoError(t, db.First(&afterFirst, panel.ID).Error)

	second, err := co.Restore(order.ID)
	require.NoError(t, err)
	assert.Zero(t, second.PanelsRestored)
	assert.Zero(t, second.CompensatingMoves)

	var afterSecond models.Panel
	require.NoError(t, db.First(&afterSecond, panel.ID).Error)
	assert.Equal(t, afterFirst.Length, afterSecond.Length)
	assert.Equal(t, afterFirst.Width, afterSecond.Width)
	assert.Equal(t, afterFirst.State, afterSecond.State)

	// No extra compensating rows on the second run.
	var moves int64
	db.Model(&models.MovementRecord{}).Where("order_id = ?", order.ID).Count(&moves)
	assert.Equal(t, int64(2), moves)
}

func TestRestore_ReportsMissingPanel(t *testing.T) {
	db := setupServiceDB(t)
	co := NewCoordinator(db, nil)

	order := seedOrder(t, db, models.OrderPorAprobar)
	panel := seedPanel(t, db, 4.0, 2.0)

	_, err := co.ConsumeForOrder(order.ID, []ConsumeItem{{
		Type:             models.ItemPanel,
		ID:               panel.ID,
		ReqLength:        2.0,
		ReqWidth:         2.0,
		DiscardThreshold: 0.5,
	}})
	require.NoError(t, err)

	// Simulate data corruption: the panel row vanishes under the ledger.
	require.NoError(t, db.Delete(&models.Panel{}, panel.ID).Error)

	_, err = co.Restore(order.ID)
	require.Error(t, err)
	assert.ErrorIs(t, err, apperrors.ErrRestorationInconsistency)
}

func TestConsumeRemnant_Recursive(t *testing.T) {
	db := setupServiceDB(t)
	co := NewCoordinator(db, nil)

	firstOrder := seedOrder(t, db, models.OrderPorAprobar)
	panel := seedPanel(t, db, 5.0, 2.0)

	result, err := co.ConsumeForOrder(firstOrder.ID, []ConsumeItem{{
		Type:             models.ItemPanel,
		ID:               panel.ID,
		ReqLength:        3.0,
		ReqWidth:         2.0,
		DiscardThreshold: 0.5,
	}})
	require.NoError(t, err)
	require.Len(t, result.RemnantIDs, 1)
	remnantID := result.RemnantIDs[0]

	// A second order slices the 2.0 x 2.0 remnant.
	secondOrder := seedOrder(t, db, models.OrderPorAprobar)
	second, err := co.ConsumeForOrder(secondOrder.ID, []ConsumeItem{{
		Type:             models.ItemRemnant,
		ID:               remnantID,
		ReqLength:        1.0,
		ReqWidth:         2.0,
		DiscardThreshold: 0.5,
	}})
	require.NoError(t, err)
	require.Len(t, second.JobIDs, 1)
	require.Len(t, second.RemnantIDs, 1)

	var parent models.Remnant
	require.NoError(t, db.First(&parent, remnantID).Error)
	assert.Equal(t, models.RemnantConsumed, parent.Status)

	var child models.Remnant
	require.NoError(t, db.First(&child, second.RemnantIDs[0]).Error)
	assert.Equal(t, panel.ID, child.PanelID)
	assert.InDelta(t, 2.0, child.Area(), 1e-9)

	// Cancelling the second order puts the parent remnant back.
	_, err = co.CancelOrder(secondOrder.ID)
	require.NoError(t, err)

	require.NoError(t, db.First(&parent, remnantID).Error)
	assert.Equal(t, models.RemnantAvailable, parent.Status)
	assert.InDelta(t, 2.0, parent.Length, 1e-9)
	assert.InDelta(t, 2.0, parent.Width, 1e-9)

	var children int64
	db.Model(&models.Remnant{}).Where("source_order_id = ?", secondOrder.ID).Count(&children)
	assert.Zero(t, children)
}

func TestTransition_Lifecycle(t *testing.T) {
	db := setupServiceDB(t)
	co := NewCoordinator(db, nil)

	order := seedOrder(t, db, models.OrderPorAprobar)

	_, err := co.Transition(order.ID, models.OrderEnProceso)
	require.NoError(t, err)

	_, err = co.Transition(order.ID, models.OrderPausada)
	require.NoError(t, err)

	_, err = co.Transition(order.ID, models.OrderCompletada)
	assert.ErrorIs(t, err, apperrors.ErrInvalidState, "paused orders cannot complete directly")

	_, err = co.Transition(order.ID, models.OrderEnProceso)
	require.NoError(t, err)
	_, err = co.Transition(order.ID, models.OrderCompletada)
	require.NoError(t, err)

	// Completed is terminal: consumption stays as-is and no transition leaves it.
	_, err = co.Transition(order.ID, models.OrderCancelada)
	assert.ErrorIs(t, err, apperrors.ErrInvalidState)
}

func TestReconcileOrphans(t *testing.T) {
	db := setupServiceDB(t)
	co := NewCoordinator(db, nil)

	// Orphan: reserved with no job at all.
	orphan := seedPanel(t, db, 3.0, 2.0)
	require.NoError(t, db.Model(&models.Panel{}).
		Where("id = ?", orphan.ID).
		Update("state", models.PanelReserved).Error)

	// Not an orphan: reserved by a live order.
	order := seedOrder(t, db, models.OrderEnProceso)
	held := seedPanel(t, db, 5.0, 2.0)
	_, err := co.ConsumeForOrder(order.ID, []ConsumeItem{{
		Type:             models.ItemPanel,
		ID:               held.ID,
		ReqLength:        2.0,
		ReqWidth:         2.0,
		DiscardThreshold: 0.5,
	}})
	require.NoError(t, err)

	freed, err := co.ReconcileOrphans()
	require.NoError(t, err)
	assert.Equal(t, 1, freed)

	var gotOrphan, gotHeld models.Panel
	require.NoError(t, db.First(&gotOrphan, orphan.ID).Error)
	require.NoError(t, db.First(&gotHeld, held.ID).Error)
	assert.Equal(t, models.PanelFree, gotOrphan.State)
	assert.Equal(t, models.PanelReserved, gotHeld.State)

	// Second sweep finds nothing.
	freed, err = co.ReconcileOrphans()
	require.NoError(t, err)
	assert.Zero(t, freed)
}

func TestPlanCut_PreviewDoesNotPersist(t *testing.T) {
	db := setupServiceDB(t)
	co := NewCoordinator(db, nil)

	panel := seedPanel(t, db, 5.0, 2.0)

	plan, err := co.PlanCut(panel.ID, 3.0, 2.0, 1.0)
	require.NoError(t, err)
	assert.InDelta(t, 6.0, plan.Target.Area(), 1e-9)

	var jobs, remnants, moves int64
	db.Model(&models.CuttingJob{}).Count(&jobs)
	db.Model(&models.Remnant{}).Count(&remnants)
	db.Model(&models.MovementRecord{}).Count(&moves)
	assert.Zero(t, jobs)
	assert.Zero(t, remnants)
	assert.Zero(t, moves)

	var got models.Panel
	require.NoError(t, db.First(&got, panel.ID).Error)
	assert.Equal(t, models.PanelFree, got.State)
	assert.InDelta(t, 5.0, got.Length, 1e-9)
}

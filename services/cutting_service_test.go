package services

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/agromallas/mallas-app/apperrors"
	"github.com/agromallas/mallas-app/events"
	"github.com/agromallas/mallas-app/models"
)

// seedJob consumes a 5.0x3.0 panel with a 2.0x1.0 request, which yields a
// three-piece plan: target 2.0x1.0, strip 5.0x2.0, strip 3.0x1.0.
func seedJob(t *testing.T, db *gorm.DB, co *Coordinator) (uint, uint) {
	t.Helper()
	order := seedOrder(t, db, models.OrderPorAprobar)
	panel := seedPanel(t, db, 5.0, 3.0)

	result, err := co.ConsumeForOrder(order.ID, []ConsumeItem{{
		Type:             models.ItemPanel,
		ID:               panel.ID,
		ReqLength:        2.0,
		ReqWidth:         1.0,
		DiscardThreshold: 0.25,
	}})
	require.NoError(t, err)
	require.Len(t, result.JobIDs, 1)
	return result.JobIDs[0], panel.ID
}

func TestSubmitActualPieces_PartialStaysInProgress(t *testing.T) {
	db := setupServiceDB(t)
	co := NewCoordinator(db, nil)
	cs := NewCuttingService(db, nil)

	jobID, panelID := seedJob(t, db, co)

	res, err := cs.SubmitActualPieces(jobID, []PieceMeasurement{
		{Seq: 1, ActualLength: 2.0, ActualWidth: 1.0},
	})
	require.NoError(t, err)
	assert.Equal(t, models.JobInProgress, res.State)
	assert.True(t, res.WithinTolerance)
	assert.Equal(t, 1, res.PiecesMeasured)
	assert.Equal(t, 3, res.PiecesPlanned)

	var panel models.Panel
	require.NoError(t, db.First(&panel, panelID).Error)
	assert.Equal(t, models.PanelInProgress, panel.State)
}

func TestSubmitActualPieces_AllWithinTolerance_Confirms(t *testing.T) {
	db := setupServiceDB(t)
	co := NewCoordinator(db, nil)
	dispatcher := events.NewDispatcher()
	sub := dispatcher.Subscribe(4)
	cs := NewCuttingService(db, dispatcher)

	jobID, panelID := seedJob(t, db, co)

	res, err := cs.SubmitActualPieces(jobID, []PieceMeasurement{
		{Seq: 1, ActualLength: 2.02, ActualWidth: 0.99},
		{Seq: 2, ActualLength: 4.95, ActualWidth: 2.05},
		{Seq: 3, ActualLength: 3.0, ActualWidth: 1.0},
	})
	require.NoError(t, err)
	assert.Equal(t, models.JobConfirmed, res.State)
	assert.True(t, res.WithinTolerance)

	var panel models.Panel
	require.NoError(t, db.First(&panel, panelID).Error)
	assert.Equal(t, models.PanelConfirmed, panel.State)

	ev := <-sub
	assert.Equal(t, events.EventJobConfirmed, ev.Type)
}

func TestSubmitActualPieces_ToleranceBoundary(t *testing.T) {
	db := setupServiceDB(t)
	co := NewCoordinator(db, nil)
	cs := NewCuttingService(db, nil)

	// Exactly 5% over on the target length: 2.0 * 1.05 = 2.1. Accepted.
	jobID, _ := seedJob(t, db, co)
	res, err := cs.SubmitActualPieces(jobID, []PieceMeasurement{
		{Seq: 1, ActualLength: 2.1, ActualWidth: 1.0},
		{Seq: 2, ActualLength: 5.0, ActualWidth: 2.0},
		{Seq: 3, ActualLength: 3.0, ActualWidth: 1.0},
	})
	require.NoError(t, err)
	assert.Equal(t, models.JobConfirmed, res.State)

	// A hair past 5% deviates.
	jobID2, panelID2 := seedJob(t, db, co)
	res, err = cs.SubmitActualPieces(jobID2, []PieceMeasurement{
		{Seq: 1, ActualLength: 2.0 * 1.050001, ActualWidth: 1.0},
		{Seq: 2, ActualLength: 5.0, ActualWidth: 2.0},
		{Seq: 3, ActualLength: 3.0, ActualWidth: 1.0},
	})
	require.NoError(t, err)
	assert.Equal(t, models.JobDeviated, res.State)
	assert.False(t, res.WithinTolerance)

	var panel models.Panel
	require.NoError(t, db.First(&panel, panelID2).Error)
	assert.Equal(t, models.PanelDeviated, panel.State)
}

func TestSubmitActualPieces_ResubmissionOverwrites(t *testing.T) {
	db := setupServiceDB(t)
	co := NewCoordinator(db, nil)
	cs := NewCuttingService(db, nil)

	jobID, _ := seedJob(t, db, co)

	// A bad first reading for the target...
	_, err := cs.SubmitActualPieces(jobID, []PieceMeasurement{
		{Seq: 1, ActualLength: 2.5, ActualWidth: 1.0},
	})
	require.NoError(t, err)

	// ...corrected before the remaining pieces come in.
	_, err = cs.SubmitActualPieces(jobID, []PieceMeasurement{
		{Seq: 1, ActualLength: 2.0, ActualWidth: 1.0},
	})
	require.NoError(t, err)

	res, err := cs.SubmitActualPieces(jobID, []PieceMeasurement{
		{Seq: 2, ActualLength: 5.0, ActualWidth: 2.0},
		{Seq: 3, ActualLength: 3.0, ActualWidth: 1.0},
	})
	require.NoError(t, err)
	assert.Equal(t, models.JobConfirmed, res.State, "overwritten reading must win")
}

func TestSubmitActualPieces_TerminalJobRejected(t *testing.T) {
	db := setupServiceDB(t)
	co := NewCoordinator(db, nil)
	cs := NewCuttingService(db, nil)

	jobID, _ := seedJob(t, db, co)
	_, err := cs.SubmitActualPieces(jobID, []PieceMeasurement{
		{Seq: 1, ActualLength: 2.0, ActualWidth: 1.0},
		{Seq: 2, ActualLength: 5.0, ActualWidth: 2.0},
		{Seq: 3, ActualLength: 3.0, ActualWidth: 1.0},
	})
	require.NoError(t, err)

	_, err = cs.SubmitActualPieces(jobID, []PieceMeasurement{
		{Seq: 1, ActualLength: 2.0, ActualWidth: 1.0},
	})
	assert.ErrorIs(t, err, apperrors.ErrInvalidState)
}

func TestSubmitActualPieces_UnknownSeqRejected(t *testing.T) {
	db := setupServiceDB(t)
	co := NewCoordinator(db, nil)
	cs := NewCuttingService(db, nil)

	jobID, _ := seedJob(t, db, co)
	_, err := cs.SubmitActualPieces(jobID, []PieceMeasurement{
		{Seq: 9, ActualLength: 2.0, ActualWidth: 1.0},
	})
	assert.ErrorIs(t, err, apperrors.ErrUnknownPiece)

	// The rejected submission must not leave the job half-advanced.
	job, err := cs.GetJob(jobID)
	require.NoError(t, err)
	assert.Equal(t, models.JobPending, job.State)
}

func TestSubmitActualPieces_MissingJob(t *testing.T) {
	db := setupServiceDB(t)
	cs := NewCuttingService(db, nil)

	_, err := cs.SubmitActualPieces(999, nil)
	assert.ErrorIs(t, err, apperrors.ErrNotFound)
}

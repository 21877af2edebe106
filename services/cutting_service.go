package services

import (
	"time"

	"gorm.io/gorm"

	"github.com/agromallas/mallas-app/apperrors"
	"github.com/agromallas/mallas-app/events"
	"github.com/agromallas/mallas-app/models"
)

// DimensionTolerance is the accepted relative deviation between a planned and
// a measured dimension. Exactly 5% passes; anything beyond deviates.
const DimensionTolerance = 0.05

// toleranceSlack absorbs float noise at the boundary so a measurement landing
// exactly on 5% is never misclassified.
const toleranceSlack = 1e-9

// CuttingService records the physical execution of cut plans and advances
// each job's state machine as measurements come in.
type CuttingService struct {
	DB         *gorm.DB
	Dispatcher *events.Dispatcher
}

func NewCuttingService(db *gorm.DB, dispatcher *events.Dispatcher) *CuttingService {
	return &CuttingService{DB: db, Dispatcher: dispatcher}
}

// PieceMeasurement is one operator-reported actual piece.
type PieceMeasurement struct {
	Seq          int     `json:"seq" binding:"required"`
	ActualLength float64 `json:"actual_length" binding:"required"`
	ActualWidth  float64 `json:"actual_width" binding:"required"`
}

// SubmissionResult reports where the job landed after a submission.
type SubmissionResult struct {
	JobID           uint            `json:"job_id"`
	State           models.JobState `json:"state"`
	WithinTolerance bool            `json:"within_tolerance"`
	PiecesMeasured  int             `json:"pieces_measured"`
	PiecesPlanned   int             `json:"pieces_planned"`
}

// SubmitActualPieces stores measurements for planned pieces and finalizes the
// job once every piece has one. Resubmitting a piece overwrites its previous
// measurement; submitting against a finished job is rejected. The state
// transition and the panel work-state update commit atomically.
func (cs *CuttingService) SubmitActualPieces(jobID uint, measurements []PieceMeasurement) (*SubmissionResult, error) {
	var result *SubmissionResult

	err := cs.DB.Transaction(func(tx *gorm.DB) error {
		var job models.CuttingJob
		if err := lockForUpdate(tx).
			First(&job, jobID).Error; err != nil {
			return apperrors.Wrap(apperrors.ErrNotFound, "cutting job %d", jobID)
		}
		if job.State.Terminal() {
			return apperrors.Wrap(apperrors.ErrInvalidState,
				"job %d already %s", job.ID, job.State)
		}

		var pieces []models.CutPiece
		if err := tx.Where("job_id = ?", job.ID).
			Order("seq ASC").
			Find(&pieces).Error; err != nil {
			return err
		}

		bySeq := make(map[int]*models.CutPiece, len(pieces))
		for i := range pieces {
			bySeq[pieces[i].Seq] = &pieces[i]
		}

		now := time.Now()
		for _, m := range measurements {
			piece, ok := bySeq[m.Seq]
			if !ok {
				return apperrors.Wrap(apperrors.ErrUnknownPiece,
					"job %d has no piece with seq %d", job.ID, m.Seq)
			}
			actualLength := m.ActualLength
			actualWidth := m.ActualWidth
			if err := tx.Model(&models.CutPiece{}).
				Where("id = ?", piece.ID).
				Updates(map[string]interface{}{
					"actual_length": actualLength,
					"actual_width":  actualWidth,
					"measured_at":   now,
					"updated_at":    now,
				}).Error; err != nil {
				return err
			}
			piece.ActualLength = &actualLength
			piece.ActualWidth = &actualWidth
			piece.MeasuredAt = &now
		}

		measured := 0
		within := true
		for i := range pieces {
			if !pieces[i].Measured() {
				continue
			}
			measured++
			if !pieceWithinTolerance(&pieces[i]) {
				within = false
			}
		}

		newState := job.State
		switch {
		case measured == len(pieces) && within:
			newState = models.JobConfirmed
		case measured == len(pieces):
			newState = models.JobDeviated
		case measured > 0:
			newState = models.JobInProgress
		}

		if newState != job.State {
			if err := tx.Model(&models.CuttingJob{}).
				Where("id = ?", job.ID).
				Updates(map[string]interface{}{
					"state":      newState,
					"updated_at": now,
				}).Error; err != nil {
				return err
			}
			if err := syncPanelState(tx, job.PanelID, newState, now); err != nil {
				return err
			}
		}

		result = &SubmissionResult{
			JobID:           job.ID,
			State:           newState,
			WithinTolerance: within,
			PiecesMeasured:  measured,
			PiecesPlanned:   len(pieces),
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	if cs.Dispatcher != nil {
		switch result.State {
		case models.JobConfirmed:
			cs.Dispatcher.Publish(events.EventJobConfirmed, result)
		case models.JobDeviated:
			cs.Dispatcher.Publish(events.EventJobDeviated, result)
		}
	}
	return result, nil
}

// GetJob loads a job with its pieces.
func (cs *CuttingService) GetJob(jobID uint) (*models.CuttingJob, error) {
	var job models.CuttingJob
	if err := cs.DB.Preload("Pieces", func(db *gorm.DB) *gorm.DB {
		return db.Order("seq ASC")
	}).First(&job, jobID).Error; err != nil {
		return nil, apperrors.Wrap(apperrors.ErrNotFound, "cutting job %d", jobID)
	}
	return &job, nil
}

// pieceWithinTolerance checks both dimensions of a measured piece against the
// plan, each independently.
func pieceWithinTolerance(p *models.CutPiece) bool {
	return dimensionWithinTolerance(*p.ActualLength, p.Length) &&
		dimensionWithinTolerance(*p.ActualWidth, p.Width)
}

func dimensionWithinTolerance(actual, planned float64) bool {
	if planned <= 0 {
		return false
	}
	deviation := actual - planned
	if deviation < 0 {
		deviation = -deviation
	}
	return deviation/planned <= DimensionTolerance+toleranceSlack
}

// syncPanelState mirrors the job state onto the panel's work-state flag.
func syncPanelState(tx *gorm.DB, panelID uint, jobState models.JobState, now time.Time) error {
	var panelState models.PanelState
	switch jobState {
	case models.JobInProgress:
		panelState = models.PanelInProgress
	case models.JobConfirmed:
		panelState = models.PanelConfirmed
	case models.JobDeviated:
		panelState = models.PanelDeviated
	default:
		return nil
	}
	return tx.Model(&models.Panel{}).
		Where("id = ?", panelID).
		Updates(map[string]interface{}{
			"state":        panelState,
			"lock_version": gorm.Expr("lock_version + 1"),
			"updated_at":   now,
		}).Error
}

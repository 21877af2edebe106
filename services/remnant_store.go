package services

import (
	"errors"
	"time"

	"gorm.io/gorm"

	"github.com/agromallas/mallas-app/apperrors"
	"github.com/agromallas/mallas-app/models"
	"github.com/agromallas/mallas-app/planner"
)

// RemnantStore persists the remnant strips a committed cut plan leaves behind
// and finds reusable remnants for future requests. Remnants live their own
// lifecycle, independent of the parent panel.
type RemnantStore struct {
	DB *gorm.DB
}

func NewRemnantStore(db *gorm.DB) *RemnantStore {
	return &RemnantStore{DB: db}
}

// StoreFromPlan writes one Remnant row per planned remnant piece, inside the
// caller's transaction. Pieces at or below the discard threshold are recorded
// as Discarded for traceability.
func (rs *RemnantStore) StoreFromPlan(tx *gorm.DB, panelID uint, orderID, jobID *uint, plan planner.Plan) ([]models.Remnant, error) {
	now := time.Now()
	remnants := make([]models.Remnant, 0, len(plan.Remnants))
	for _, piece := range plan.Remnants {
		status := models.RemnantAvailable
		if piece.Discard {
			status = models.RemnantDiscarded
		}
		remnants = append(remnants, models.Remnant{
			PanelID:       panelID,
			SourceOrderID: orderID,
			CuttingJobID:  jobID,
			Length:        piece.Length,
			Width:         piece.Width,
			Status:        status,
			CreatedAt:     now,
			UpdatedAt:     now,
		})
	}
	if len(remnants) == 0 {
		return remnants, nil
	}
	if err := tx.Create(&remnants).Error; err != nil {
		return nil, err
	}
	return remnants, nil
}

// FindCandidate returns the Available remnant with the smallest sufficient
// area that contains the request (directly or rotated), or ErrNotFound.
// Best-fit keeps large remnants intact for large future requests.
func (rs *RemnantStore) FindCandidate(reqLength, reqWidth float64) (*models.Remnant, error) {
	var remnants []models.Remnant
	if err := rs.DB.
		Where("status = ?", models.RemnantAvailable).
		Order("length * width ASC, id ASC").
		Find(&remnants).Error; err != nil {
		return nil, err
	}
	for i := range remnants {
		if planner.Fits(remnants[i].Length, remnants[i].Width, reqLength, reqWidth) {
			return &remnants[i], nil
		}
	}
	return nil, apperrors.Wrap(apperrors.ErrNotFound,
		"no remnant fits %.4f x %.4f", reqLength, reqWidth)
}

// IsNotFound reports whether err is the store's miss result.
func IsNotFound(err error) bool {
	return errors.Is(err, apperrors.ErrNotFound)
}

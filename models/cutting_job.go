package models

import (
	"time"
)

// JobState is the execution state of a cutting job.
type JobState string

const (
	JobPending    JobState = "pendiente"
	JobInProgress JobState = "en_progreso"
	JobConfirmed  JobState = "confirmado"
	JobDeviated   JobState = "desviado"
)

// Terminal reports whether a job state accepts no further submissions.
func (s JobState) Terminal() bool {
	return s == JobConfirmed || s == JobDeviated
}

// PieceRole tags a planned piece as the requested target or a remnant strip.
type PieceRole string

const (
	RoleTarget  PieceRole = "objetivo"
	RoleRemnant PieceRole = "remanente"
)

// CuttingJob binds an order to a planned cut on a specific panel. It owns its
// CutPiece rows (the persisted plan plus, once the operator reports back, the
// measured pieces) and advances Pending -> InProgress -> Confirmed/Deviated.
type CuttingJob struct {
	ID        uint            `gorm:"primaryKey" json:"id"`
	OrderID   uint            `gorm:"not null;index" json:"order_id"`
	Order     ProductionOrder `gorm:"foreignKey:OrderID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE" json:"-"`
	PanelID   uint            `gorm:"not null;index" json:"panel_id"`
	Panel     Panel           `gorm:"foreignKey:PanelID" json:"-"`
	State     JobState        `gorm:"type:varchar(20);not null;default:'pendiente'" json:"state"`
	Pieces    []CutPiece      `gorm:"foreignKey:JobID" json:"pieces"`
	CreatedAt time.Time       `gorm:"not null" json:"created_at"`
	UpdatedAt time.Time       `gorm:"not null" json:"updated_at"`
}

// CutPiece is one rectangle of a persisted cut plan. Seq is stable and unique
// within the job (1 is always the target). Actual dimensions stay nil until
// the operator submits a measurement for that piece; resubmission overwrites.
type CutPiece struct {
	ID           uint       `gorm:"primaryKey" json:"id"`
	JobID        uint       `gorm:"not null;index:idx_job_seq,unique" json:"job_id"`
	Seq          int        `gorm:"not null;index:idx_job_seq,unique" json:"seq"`
	Role         PieceRole  `gorm:"type:varchar(20);not null" json:"role"`
	Length       float64    `gorm:"not null" json:"length"`
	Width        float64    `gorm:"not null" json:"width"`
	Discarded    bool       `gorm:"not null;default:false" json:"discarded"`
	ActualLength *float64   `json:"actual_length,omitempty"`
	ActualWidth  *float64   `json:"actual_width,omitempty"`
	MeasuredAt   *time.Time `json:"measured_at,omitempty"`
	CreatedAt    time.Time  `gorm:"not null" json:"created_at"`
	UpdatedAt    time.Time  `gorm:"not null" json:"updated_at"`
}

// Measured reports whether the operator has submitted actuals for this piece.
func (p *CutPiece) Measured() bool {
	return p.ActualLength != nil && p.ActualWidth != nil
}

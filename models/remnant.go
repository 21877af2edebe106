package models

import (
	"time"
)

// RemnantStatus marks whether a remnant is still usable stock.
type RemnantStatus string

const (
	RemnantAvailable RemnantStatus = "disponible"
	RemnantDiscarded RemnantStatus = "descartado"
	RemnantConsumed  RemnantStatus = "consumido"
)

// Remnant is a rectangular offcut left over after committing a cut plan.
// It keeps a reference to the panel it came from and to the order whose cut
// produced it, so cancelling that order can delete it again. Remnants below
// the discard threshold are still recorded for traceability, just flagged
// Discarded.
type Remnant struct {
	ID            uint          `gorm:"primaryKey" json:"id"`
	PanelID       uint          `gorm:"not null;index" json:"panel_id"`
	Panel         Panel         `gorm:"foreignKey:PanelID" json:"-"`
	SourceOrderID *uint         `gorm:"index" json:"source_order_id,omitempty"`
	CuttingJobID  *uint         `gorm:"index" json:"cutting_job_id,omitempty"`
	Length        float64       `gorm:"not null" json:"length"`
	Width         float64       `gorm:"not null" json:"width"`
	Status        RemnantStatus `gorm:"type:varchar(20);not null;default:'disponible'" json:"status"`
	CreatedAt     time.Time     `gorm:"not null" json:"created_at"`
	UpdatedAt     time.Time     `gorm:"not null" json:"updated_at"`
}

// Area returns the remnant area in square meters.
func (r *Remnant) Area() float64 {
	return r.Length * r.Width
}

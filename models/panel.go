package models

import (
	"time"
)

// PanelState is the work-state flag of a physical fabric panel.
type PanelState string

const (
	PanelFree       PanelState = "libre"
	PanelReserved   PanelState = "reservado"
	PanelInProgress PanelState = "en_progreso"
	PanelConfirmed  PanelState = "confirmado"
	PanelDeviated   PanelState = "desviado"
)

// Panel is a fixed-size fabric panel in inventory. Dimensions are the current
// usable rectangle in meters; they shrink as cuts are committed and are put
// back by order restoration. Area is always derived, never stored.
type Panel struct {
	ID          uint       `gorm:"primaryKey" json:"id"`
	Code        string     `gorm:"type:varchar(40);uniqueIndex" json:"code"`
	Length      float64    `gorm:"not null" json:"length"`
	Width       float64    `gorm:"not null" json:"width"`
	State       PanelState `gorm:"type:varchar(20);not null;default:'libre'" json:"state"`
	LockVersion uint       `gorm:"not null;default:0" json:"-"`
	CreatedAt   time.Time  `gorm:"not null" json:"created_at"`
	UpdatedAt   time.Time  `gorm:"not null" json:"updated_at"`
}

// Area returns the usable area in square meters.
func (p *Panel) Area() float64 {
	return p.Length * p.Width
}

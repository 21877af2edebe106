package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// MaterialKind is the catalog a material row belongs to. The source data kept
// these in four separate tables and probed each one by id; here the kind is an
// explicit discriminant resolved once at consumption time.
type MaterialKind string

const (
	KindNylon         MaterialKind = "nylon"
	KindLona          MaterialKind = "lona"
	KindPolipropileno MaterialKind = "polipropileno"
	KindMallaSombra   MaterialKind = "malla_sombra"
	KindHerramienta   MaterialKind = "herramienta"
)

// ValidMaterialKind reports whether k names a known catalog.
func ValidMaterialKind(k MaterialKind) bool {
	switch k {
	case KindNylon, KindLona, KindPolipropileno, KindMallaSombra, KindHerramienta:
		return true
	}
	return false
}

// Material is a countable stock item (thread spools, tarp rolls, tools...)
// consumed by orders alongside panel cuts. Stock is decimal so that repeated
// consume/restore cycles round-trip exactly.
type Material struct {
	ID        uint            `gorm:"primaryKey" json:"id"`
	Kind      MaterialKind    `gorm:"type:varchar(20);not null;index" json:"kind"`
	Name      string          `gorm:"type:varchar(120);not null" json:"name"`
	Unit      string          `gorm:"type:varchar(20);not null;default:'unidad'" json:"unit"`
	Stock     decimal.Decimal `gorm:"type:decimal(14,4);not null" json:"stock"`
	CreatedAt time.Time       `gorm:"not null" json:"created_at"`
	UpdatedAt time.Time       `gorm:"not null" json:"updated_at"`
}

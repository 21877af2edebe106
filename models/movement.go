package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// MovementType says why a movement happened.
type MovementType string

const (
	MovementConsumo      MovementType = "consumo"
	MovementRestauracion MovementType = "restauracion"
)

// MovementRecord is one immutable row of the inventory ledger. Negative
// quantities are consumption, positive ones restoration. Rows are only ever
// appended; cancellation adds compensating rows instead of touching old ones.
// For panel movements the record also keeps the panel's dimensions before the
// cut, which is what restoration replays.
type MovementRecord struct {
	ID         uint            `gorm:"primaryKey" json:"id"`
	Reference  string          `gorm:"type:varchar(40);uniqueIndex" json:"reference"`
	OrderID    uint            `gorm:"not null;index" json:"order_id"`
	ItemType   DetailItemType  `gorm:"type:varchar(20);not null" json:"item_type"`
	ItemID     uint            `gorm:"not null;index" json:"item_id"`
	Type       MovementType    `gorm:"type:varchar(20);not null" json:"type"`
	Quantity   decimal.Decimal `gorm:"type:decimal(14,4);not null" json:"quantity"`
	Unit       string          `gorm:"type:varchar(20);not null" json:"unit"`
	PrevLength *float64        `json:"prev_length,omitempty"`
	PrevWidth  *float64        `json:"prev_width,omitempty"`
	CreatedAt  time.Time       `gorm:"not null" json:"created_at"`
}

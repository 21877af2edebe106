package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// DetailItemType discriminates what an order detail row consumed.
type DetailItemType string

const (
	ItemPanel    DetailItemType = "panel"
	ItemRemnant  DetailItemType = "remanente"
	ItemMaterial DetailItemType = "material"
)

// OrderDetail links an order to one consumed item. Panel/remnant rows carry
// the cut dimensions; material rows carry the decremented quantity. Details
// are deleted outright when the order is cancelled, mirroring the inventory
// restoration.
type OrderDetail struct {
	ID        uint            `gorm:"primaryKey" json:"id"`
	OrderID   uint            `gorm:"not null;index" json:"order_id"`
	Order     ProductionOrder `gorm:"foreignKey:OrderID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE" json:"-"`
	ItemType  DetailItemType  `gorm:"type:varchar(20);not null" json:"item_type"`
	ItemID    uint            `gorm:"not null;index" json:"item_id"`
	Kind      MaterialKind    `gorm:"type:varchar(20)" json:"kind,omitempty"`
	Length    float64         `json:"length,omitempty"`
	Width     float64         `json:"width,omitempty"`
	Quantity  decimal.Decimal `gorm:"type:decimal(14,4)" json:"quantity"`
	CreatedAt time.Time       `gorm:"not null" json:"created_at"`
	UpdatedAt time.Time       `gorm:"not null" json:"updated_at"`
}

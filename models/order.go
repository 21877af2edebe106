package models

import (
	"time"
)

// OrderStatus is the lifecycle state of a production order.
type OrderStatus string

const (
	OrderPorAprobar OrderStatus = "por_aprobar"
	OrderEnProceso  OrderStatus = "en_proceso"
	OrderCompletada OrderStatus = "completada"
	OrderCancelada  OrderStatus = "cancelada"
	OrderPausada    OrderStatus = "pausada"
)

// allowedTransitions is the authoritative lifecycle table. Completada and
// Cancelada are terminal; Pausada is a hold that can resume or cancel.
var allowedTransitions = map[OrderStatus][]OrderStatus{
	OrderPorAprobar: {OrderEnProceso, OrderCancelada},
	OrderEnProceso:  {OrderCompletada, OrderCancelada, OrderPausada},
	OrderPausada:    {OrderEnProceso, OrderCancelada},
}

// CanTransition reports whether an order may move from one status to another.
func CanTransition(from, to OrderStatus) bool {
	for _, s := range allowedTransitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// ProductionOrder is a client order for manufactured netting/fabric products.
// Inventory consumption and restoration always reference the order, never the
// individual cut.
type ProductionOrder struct {
	ID          uint          `gorm:"primaryKey" json:"id"`
	Folio       string        `gorm:"type:varchar(40);uniqueIndex" json:"folio"`
	ClientName  string        `gorm:"type:varchar(120);not null" json:"client_name"`
	Status      OrderStatus   `gorm:"type:varchar(20);not null;default:'por_aprobar'" json:"status"`
	Notes       string        `gorm:"type:text" json:"notes"`
	CreatedAt   time.Time     `gorm:"not null" json:"created_at"`
	UpdatedAt   time.Time     `gorm:"not null" json:"updated_at"`
	Details     []OrderDetail `gorm:"foreignKey:OrderID" json:"details,omitempty"`
	CuttingJobs []CuttingJob  `gorm:"foreignKey:OrderID" json:"cutting_jobs,omitempty"`
}

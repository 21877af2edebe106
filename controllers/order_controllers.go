package controllers

import (
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/agromallas/mallas-app/models"
	"github.com/agromallas/mallas-app/services"
	"github.com/agromallas/mallas-app/utils"
)

type OrderController struct {
	DB          *gorm.DB
	Coordinator *services.Coordinator
}

func NewOrderController(db *gorm.DB, co *services.Coordinator) *OrderController {
	return &OrderController{DB: db, Coordinator: co}
}

// GetAllOrders -> list orders with their details.
func (oc *OrderController) GetAllOrders(c *gin.Context) {
	query := oc.DB.Preload("Details").Order("id asc")
	if status := c.Query("status"); status != "" {
		query = query.Where("status = ?", status)
	}
	var orders []models.ProductionOrder
	if err := query.Find(&orders).Error; err != nil {
		utils.RespondError(c, http.StatusInternalServerError, err)
		return
	}
	utils.RespondJSON(c, http.StatusOK, "List of orders", orders)
}

// CreateOrder -> register an order awaiting approval. No inventory is touched
// until the order consumes items.
func (oc *OrderController) CreateOrder(c *gin.Context) {
	type ReqBody struct {
		ClientName string `json:"client_name" binding:"required"`
		Notes      string `json:"notes"`
	}
	var body ReqBody
	if err := c.ShouldBindJSON(&body); err != nil {
		utils.RespondError(c, http.StatusBadRequest, err)
		return
	}

	order := models.ProductionOrder{
		Folio:      "OP-" + uuid.New().String()[:8],
		ClientName: body.ClientName,
		Notes:      body.Notes,
		Status:     models.OrderPorAprobar,
		CreatedAt:  time.Now(),
		UpdatedAt:  time.Now(),
	}
	if err := oc.DB.Create(&order).Error; err != nil {
		utils.RespondError(c, http.StatusInternalServerError, err)
		return
	}
	utils.RespondJSON(c, http.StatusCreated, "Order created", order)
}

// GetOrderByID -> one order with details and cutting jobs.
func (oc *OrderController) GetOrderByID(c *gin.Context) {
	id, err := strconv.Atoi(c.Param("order_id"))
	if err != nil {
		utils.RespondError(c, http.StatusBadRequest, fmt.Errorf("invalid order id"))
		return
	}

	var order models.ProductionOrder
	if err := oc.DB.Preload("Details").
		Preload("CuttingJobs").
		Preload("CuttingJobs.Pieces").
		First(&order, id).Error; err != nil {
		utils.RespondError(c, http.StatusNotFound, err)
		return
	}
	utils.RespondJSON(c, http.StatusOK, "Order detail", order)
}

// ConsumeForOrder -> reserve and consume every requested item atomically.
func (oc *OrderController) ConsumeForOrder(c *gin.Context) {
	id, err := strconv.Atoi(c.Param("order_id"))
	if err != nil {
		utils.RespondError(c, http.StatusBadRequest, fmt.Errorf("invalid order id"))
		return
	}

	type ReqBody struct {
		Items []services.ConsumeItem `json:"items" binding:"required,min=1"`
	}
	var body ReqBody
	if err := c.ShouldBindJSON(&body); err != nil {
		utils.RespondError(c, http.StatusBadRequest, err)
		return
	}

	result, err := oc.Coordinator.ConsumeForOrder(uint(id), body.Items)
	if err != nil {
		utils.RespondError(c, httpStatusFor(err), err)
		return
	}
	utils.RespondJSON(c, http.StatusOK, "Order consumption committed", result)
}

// UpdateOrderStatus -> drive the order lifecycle. Cancelling restores all
// consumed inventory and reports what was put back.
func (oc *OrderController) UpdateOrderStatus(c *gin.Context) {
	id, err := strconv.Atoi(c.Param("order_id"))
	if err != nil {
		utils.RespondError(c, http.StatusBadRequest, fmt.Errorf("invalid order id"))
		return
	}

	type ReqBody struct {
		Status models.OrderStatus `json:"status" binding:"required"`
	}
	var body ReqBody
	if err := c.ShouldBindJSON(&body); err != nil {
		utils.RespondError(c, http.StatusBadRequest, err)
		return
	}

	summary, err := oc.Coordinator.Transition(uint(id), body.Status)
	if err != nil {
		utils.RespondError(c, httpStatusFor(err), err)
		return
	}

	if summary != nil {
		utils.RespondJSON(c, http.StatusOK, "Order cancelled, inventory restored", summary)
		return
	}
	utils.RespondJSON(c, http.StatusOK, "Order status updated", gin.H{
		"order_id": id,
		"status":   body.Status,
	})
}

package controllers

import (
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/agromallas/mallas-app/models"
	"github.com/agromallas/mallas-app/services"
	"github.com/agromallas/mallas-app/utils"
)

type PanelController struct {
	DB          *gorm.DB
	Coordinator *services.Coordinator
}

func NewPanelController(db *gorm.DB, co *services.Coordinator) *PanelController {
	return &PanelController{DB: db, Coordinator: co}
}

// GetAllPanels -> list panels, optionally filtered by state.
func (pc *PanelController) GetAllPanels(c *gin.Context) {
	query := pc.DB.Order("id asc")
	if state := c.Query("state"); state != "" {
		query = query.Where("state = ?", state)
	}
	var panels []models.Panel
	if err := query.Find(&panels).Error; err != nil {
		utils.RespondError(c, http.StatusInternalServerError, err)
		return
	}
	utils.RespondJSON(c, http.StatusOK, "List of panels", panels)
}

// CreatePanel -> register a new panel in inventory.
func (pc *PanelController) CreatePanel(c *gin.Context) {
	type ReqBody struct {
		Code   string  `json:"code" binding:"required"`
		Length float64 `json:"length" binding:"required,gt=0"`
		Width  float64 `json:"width" binding:"required,gt=0"`
	}
	var body ReqBody
	if err := c.ShouldBindJSON(&body); err != nil {
		utils.RespondError(c, http.StatusBadRequest, err)
		return
	}

	panel := models.Panel{
		Code:      body.Code,
		Length:    body.Length,
		Width:     body.Width,
		State:     models.PanelFree,
		CreatedAt: time.Now(),
		UpdatedAt: time.Now(),
	}
	if err := pc.DB.Create(&panel).Error; err != nil {
		utils.RespondError(c, http.StatusInternalServerError, err)
		return
	}
	utils.RespondJSON(c, http.StatusCreated, "Panel created", panel)
}

// GetPanelByID -> one panel with its remnants.
func (pc *PanelController) GetPanelByID(c *gin.Context) {
	id, err := strconv.Atoi(c.Param("panel_id"))
	if err != nil {
		utils.RespondError(c, http.StatusBadRequest, fmt.Errorf("invalid panel id"))
		return
	}

	var panel models.Panel
	if err := pc.DB.First(&panel, id).Error; err != nil {
		utils.RespondError(c, http.StatusNotFound, err)
		return
	}
	var remnants []models.Remnant
	if err := pc.DB.Where("panel_id = ?", panel.ID).Find(&remnants).Error; err != nil {
		utils.RespondError(c, http.StatusInternalServerError, err)
		return
	}

	utils.RespondJSON(c, http.StatusOK, "Panel detail", gin.H{
		"panel":    panel,
		"remnants": remnants,
	})
}

// PlanCut -> preview a cut plan on a panel without committing anything.
// The React diagram renders straight from this response.
func (pc *PanelController) PlanCut(c *gin.Context) {
	id, err := strconv.Atoi(c.Param("panel_id"))
	if err != nil {
		utils.RespondError(c, http.StatusBadRequest, fmt.Errorf("invalid panel id"))
		return
	}

	type ReqBody struct {
		ReqLength        float64 `json:"req_length" binding:"required,gt=0"`
		ReqWidth         float64 `json:"req_width" binding:"required,gt=0"`
		DiscardThreshold float64 `json:"discard_threshold"`
	}
	var body ReqBody
	if err := c.ShouldBindJSON(&body); err != nil {
		utils.RespondError(c, http.StatusBadRequest, err)
		return
	}

	plan, err := pc.Coordinator.PlanCut(uint(id), body.ReqLength, body.ReqWidth, body.DiscardThreshold)
	if err != nil {
		utils.RespondError(c, httpStatusFor(err), err)
		return
	}
	utils.RespondJSON(c, http.StatusOK, "Cut plan", plan)
}

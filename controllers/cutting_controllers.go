package controllers

import (
	"fmt"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/agromallas/mallas-app/models"
	"github.com/agromallas/mallas-app/services"
	"github.com/agromallas/mallas-app/utils"
)

type CuttingController struct {
	DB          *gorm.DB
	Service     *services.CuttingService
	Coordinator *services.Coordinator
}

func NewCuttingController(db *gorm.DB, cs *services.CuttingService, co *services.Coordinator) *CuttingController {
	return &CuttingController{DB: db, Service: cs, Coordinator: co}
}

// GetJob -> one cutting job with its planned and measured pieces.
func (cc *CuttingController) GetJob(c *gin.Context) {
	id, err := strconv.Atoi(c.Param("job_id"))
	if err != nil {
		utils.RespondError(c, http.StatusBadRequest, fmt.Errorf("invalid job id"))
		return
	}

	job, err := cc.Service.GetJob(uint(id))
	if err != nil {
		utils.RespondError(c, httpStatusFor(err), err)
		return
	}
	utils.RespondJSON(c, http.StatusOK, "Cutting job detail", job)
}

// SubmitPieces -> operator reports measured pieces for a job.
func (cc *CuttingController) SubmitPieces(c *gin.Context) {
	id, err := strconv.Atoi(c.Param("job_id"))
	if err != nil {
		utils.RespondError(c, http.StatusBadRequest, fmt.Errorf("invalid job id"))
		return
	}

	type ReqBody struct {
		Pieces []services.PieceMeasurement `json:"pieces" binding:"required,min=1"`
	}
	var body ReqBody
	if err := c.ShouldBindJSON(&body); err != nil {
		utils.RespondError(c, http.StatusBadRequest, err)
		return
	}

	result, err := cc.Service.SubmitActualPieces(uint(id), body.Pieces)
	if err != nil {
		utils.RespondError(c, httpStatusFor(err), err)
		return
	}
	utils.RespondJSON(c, http.StatusOK, "Pieces recorded", result)
}

// GetAllRemnants -> list remnants, optionally by status.
func (cc *CuttingController) GetAllRemnants(c *gin.Context) {
	query := cc.DB.Order("id asc")
	if status := c.Query("status"); status != "" {
		query = query.Where("status = ?", status)
	}
	var remnants []models.Remnant
	if err := query.Find(&remnants).Error; err != nil {
		utils.RespondError(c, http.StatusInternalServerError, err)
		return
	}
	utils.RespondJSON(c, http.StatusOK, "List of remnants", remnants)
}

// FindRemnantCandidate -> best-fit available remnant for a requested cut.
func (cc *CuttingController) FindRemnantCandidate(c *gin.Context) {
	length, err1 := strconv.ParseFloat(c.Query("length"), 64)
	width, err2 := strconv.ParseFloat(c.Query("width"), 64)
	if err1 != nil || err2 != nil || length <= 0 || width <= 0 {
		utils.RespondError(c, http.StatusBadRequest, fmt.Errorf("length and width query params are required"))
		return
	}

	remnant, err := cc.Coordinator.Remnants.FindCandidate(length, width)
	if err != nil {
		utils.RespondError(c, httpStatusFor(err), err)
		return
	}
	utils.RespondJSON(c, http.StatusOK, "Remnant candidate", remnant)
}

// ReconcileOrphans -> on-demand run of the idempotent orphan sweep.
func (cc *CuttingController) ReconcileOrphans(c *gin.Context) {
	freed, err := cc.Coordinator.ReconcileOrphans()
	if err != nil {
		utils.RespondError(c, http.StatusInternalServerError, err)
		return
	}
	utils.RespondJSON(c, http.StatusOK, "Orphan reconciliation finished", gin.H{
		"panels_freed": freed,
	})
}

package controllers

import (
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/agromallas/mallas-app/models"
	"github.com/agromallas/mallas-app/utils"
)

type MaterialController struct {
	DB *gorm.DB
}

func NewMaterialController(db *gorm.DB) *MaterialController {
	return &MaterialController{DB: db}
}

// GetAllMaterials -> list materials, optionally by kind.
func (mc *MaterialController) GetAllMaterials(c *gin.Context) {
	query := mc.DB.Order("id asc")
	if kind := c.Query("kind"); kind != "" {
		query = query.Where("kind = ?", kind)
	}
	var materials []models.Material
	if err := query.Find(&materials).Error; err != nil {
		utils.RespondError(c, http.StatusInternalServerError, err)
		return
	}
	utils.RespondJSON(c, http.StatusOK, "List of materials", materials)
}

// CreateMaterial -> register a stock item in one of the material catalogs.
func (mc *MaterialController) CreateMaterial(c *gin.Context) {
	type ReqBody struct {
		Kind  models.MaterialKind `json:"kind" binding:"required"`
		Name  string              `json:"name" binding:"required"`
		Unit  string              `json:"unit"`
		Stock string              `json:"stock" binding:"required"`
	}
	var body ReqBody
	if err := c.ShouldBindJSON(&body); err != nil {
		utils.RespondError(c, http.StatusBadRequest, err)
		return
	}
	if !models.ValidMaterialKind(body.Kind) {
		utils.RespondError(c, http.StatusBadRequest, fmt.Errorf("unknown material kind %q", body.Kind))
		return
	}
	stock, err := decimal.NewFromString(body.Stock)
	if err != nil || stock.IsNegative() {
		utils.RespondError(c, http.StatusBadRequest, fmt.Errorf("stock must be a non-negative number"))
		return
	}

	unit := body.Unit
	if unit == "" {
		unit = "unidad"
	}
	material := models.Material{
		Kind:      body.Kind,
		Name:      body.Name,
		Unit:      unit,
		Stock:     stock,
		CreatedAt: time.Now(),
		UpdatedAt: time.Now(),
	}
	if err := mc.DB.Create(&material).Error; err != nil {
		utils.RespondError(c, http.StatusInternalServerError, err)
		return
	}
	utils.RespondJSON(c, http.StatusCreated, "Material created", material)
}

// GetMaterialByID -> one material row.
func (mc *MaterialController) GetMaterialByID(c *gin.Context) {
	id, err := strconv.Atoi(c.Param("material_id"))
	if err != nil {
		utils.RespondError(c, http.StatusBadRequest, fmt.Errorf("invalid material id"))
		return
	}

	var material models.Material
	if err := mc.DB.First(&material, id).Error; err != nil {
		utils.RespondError(c, http.StatusNotFound, err)
		return
	}
	utils.RespondJSON(c, http.StatusOK, "Material detail", material)
}

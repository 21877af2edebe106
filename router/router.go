package router

import (
	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/agromallas/mallas-app/controllers"
	"github.com/agromallas/mallas-app/events"
	"github.com/agromallas/mallas-app/services"
)

// SetupRouter wires controllers over the shared coordinator and cutting
// service. Auth, PDF generation and webhook delivery are handled by other
// layers; this surface only exposes the inventory core.
func SetupRouter(db *gorm.DB, dispatcher *events.Dispatcher) *gin.Engine {
	r := gin.Default()

	coordinator := services.NewCoordinator(db, dispatcher)
	cuttingService := services.NewCuttingService(db, dispatcher)

	panelCtrl := controllers.NewPanelController(db, coordinator)
	orderCtrl := controllers.NewOrderController(db, coordinator)
	cuttingCtrl := controllers.NewCuttingController(db, cuttingService, coordinator)
	materialCtrl := controllers.NewMaterialController(db)

	api := r.Group("/api/v1")
	{
		api.GET("/panels", panelCtrl.GetAllPanels)
		api.POST("/panels", panelCtrl.CreatePanel)
		api.GET("/panels/:panel_id", panelCtrl.GetPanelByID)
		api.POST("/panels/:panel_id/plan", panelCtrl.PlanCut)

		api.GET("/materials", materialCtrl.GetAllMaterials)
		api.POST("/materials", materialCtrl.CreateMaterial)
		api.GET("/materials/:material_id", materialCtrl.GetMaterialByID)

		api.GET("/orders", orderCtrl.GetAllOrders)
		api.POST("/orders", orderCtrl.CreateOrder)
		api.GET("/orders/:order_id", orderCtrl.GetOrderByID)
		api.POST("/orders/:order_id/consume", orderCtrl.ConsumeForOrder)
		api.PATCH("/orders/:order_id/status", orderCtrl.UpdateOrderStatus)

		api.GET("/cutting-jobs/:job_id", cuttingCtrl.GetJob)
		api.POST("/cutting-jobs/:job_id/pieces", cuttingCtrl.SubmitPieces)

		api.GET("/remnants", cuttingCtrl.GetAllRemnants)
		api.GET("/remnants/candidate", cuttingCtrl.FindRemnantCandidate)

		api.POST("/maintenance/reconcile-orphans", cuttingCtrl.ReconcileOrphans)
	}

	return r
}

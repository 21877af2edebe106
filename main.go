package main

import (
	"log"
	"os"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"gorm.io/gorm"

	"github.com/agromallas/mallas-app/config"
	"github.com/agromallas/mallas-app/events"
	"github.com/agromallas/mallas-app/models"
	"github.com/agromallas/mallas-app/router"
	"github.com/agromallas/mallas-app/services"
	"github.com/agromallas/mallas-app/utils"
)

func init() {
	if err := godotenv.Load(); err != nil {
		log.Printf("Warning: .env file not found or error loading: %v", err)
	}
	utils.InitLogger()
}

func main() {
	db, err := config.InitDB()
	if err != nil {
		utils.ErrorLogger.Fatalf("Failed to connect to database: %v", err)
	}

	if os.Getenv("GIN_MODE") == "release" {
		gin.SetMode(gin.ReleaseMode)
	}

	autoMigrate(db)

	// The dispatcher feeds post-commit events to downstream consumers
	// (webhook bridge, PDF worker). They subscribe here and run on their own;
	// the inventory core never waits on them.
	dispatcher := events.NewDispatcher()
	defer dispatcher.Close()
	go drainEvents(dispatcher.Subscribe(64))

	coordinator := services.NewCoordinator(db, dispatcher)
	monitor := services.NewOrphanMonitor(coordinator)
	monitor.Interval = 5 * time.Minute
	monitor.Start()
	defer monitor.Stop()

	r := router.SetupRouter(db, dispatcher)

	port := os.Getenv("PORT")
	if port == "" {
		port = "8080"
	}
	utils.InfoLogger.Printf("Listening on port %s", port)
	if err := r.Run(":" + port); err != nil {
		utils.ErrorLogger.Fatal(err)
	}
}

// drainEvents logs core events until the downstream consumers are attached.
// TODO: replace with the n8n webhook bridge once its endpoint is provisioned.
func drainEvents(ch <-chan events.Event) {
	for ev := range ch {
		utils.InfoLogger.Printf("event %s at %s", ev.Type, ev.OccurredAt.Format(time.RFC3339))
	}
}

func autoMigrate(db *gorm.DB) {
	err := db.AutoMigrate(
		&models.Panel{},
		&models.Remnant{},
		&models.Material{},
		&models.ProductionOrder{},
		&models.OrderDetail{},
		&models.CuttingJob{},
		&models.CutPiece{},
		&models.MovementRecord{},
	)
	if err != nil {
		utils.ErrorLogger.Fatalf("Failed to AutoMigrate: %v", err)
	}
	utils.InfoLogger.Println("AutoMigrate completed.")
}

package main

import (
	"time"

	"securevault/config"
	"securevault/models"
	"securevault/routes"
	"securevault/utils"
)

func main() {
	cfg := config.Load()

	// Initialize logger early
	if err := utils.InitLogger(cfg); err != nil {
		panic(err)
	}

	db := config.InitDatabase(&models.User{}, &models.File{})

	r := routes.SetupRouter(db)

	// Background sweep for orphaned payloads and expired volatile state
	utils.StartJanitor(db, cfg.UploadDir, 5*time.Minute)

	utils.Sugar.Infof("Starting server on port %s (graceful)", cfg.AppPort)
	if err := utils.GraceServer(":"+cfg.AppPort, r); err != nil {
		utils.Sugar.Fatalf("server stopped with error: %v", err)
	}
}

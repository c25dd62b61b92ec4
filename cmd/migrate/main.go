package main

import (
	"github.com/sirupsen/logrus"

	"trading-challenges/internal/config"
	"trading-challenges/internal/database"
	"trading-challenges/internal/logger"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		logrus.Fatalf("Failed to load config: %v", err)
	}
	log := logger.Init(cfg.Log.Level, cfg.Log.Format)

	// Connect to database
	if err := database.Connect(cfg.Database.Driver, cfg.GetDSN()); err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}

	for group, models := range database.ModelGroups() {
		log.WithFields(logrus.Fields{"group": group, "models": len(models)}).Info("migrating")
	}
	if err := database.AutoMigrate(); err != nil {
		log.Fatalf("Failed to apply migrations: %v", err)
	}

	log.Info("Migrations applied successfully")
}

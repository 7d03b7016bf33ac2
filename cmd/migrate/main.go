package main

import (
	"chat-sync/internal/config"
	"chat-sync/internal/database"
	"chat-sync/pkg/logger"
)

func main() {
	cfg, _ := config.LoadConfig()
	log := logger.New(logger.Options{Level: cfg.Log.Level, Format: cfg.Log.Format})

	log.Info("Starting database migration...", "driver", cfg.Database.Driver)

	db, err := database.Open(&cfg.Database, log)
	if err != nil {
		log.Fatal("Failed to connect to database", "error", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		log.Fatal("Failed to get database instance", "error", err)
	}
	defer sqlDB.Close()

	if err := sqlDB.Ping(); err != nil {
		log.Fatal("Failed to ping database", "error", err)
	}

	log.Info("Running GORM auto-migration...")
	if err := database.Migrate(db); err != nil {
		log.Fatal("Migration failed", "error", err)
	}

	log.Info("Database migration completed successfully!")
}

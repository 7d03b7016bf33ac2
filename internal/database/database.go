package database

import (
	"fmt"
	"time"

	"chat-sync/internal/config"
	"chat-sync/internal/models"
	"chat-sync/pkg/logger"

	"gorm.io/driver/mysql"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

// DSN renders the connection string for the configured driver.
func DSN(cfg *config.DatabaseConfig) (string, error) {
	switch cfg.Driver {
	case "postgres", "":
		return fmt.Sprintf("host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
			cfg.Host, cfg.Port, cfg.User, cfg.Password, cfg.DBName, cfg.SSLMode), nil
	case "mysql":
		return fmt.Sprintf("%s:%s@tcp(%s:%s)/%s?charset=utf8mb4&parseTime=True&loc=UTC",
			cfg.User, cfg.Password, cfg.Host, cfg.Port, cfg.DBName), nil
	case "sqlite":
		return cfg.Path, nil
	default:
		return "", fmt.Errorf("unsupported database driver %q", cfg.Driver)
	}
}

func dialector(driver, dsn string) gorm.Dialector {
	switch driver {
	case "mysql":
		return mysql.Open(dsn)
	case "sqlite":
		return sqlite.Open(dsn)
	default:
		return postgres.Open(dsn)
	}
}

// Open connects with the configured driver, retrying a few times while the
// database comes up.
func Open(cfg *config.DatabaseConfig, log *logger.Logger) (*gorm.DB, error) {
	dsn, err := DSN(cfg)
	if err != nil {
		return nil, err
	}

	var db *gorm.DB
	maxRetries := 5
	retryDelay := 2 * time.Second
	for i := 0; i < maxRetries; i++ {
		db, err = OpenDialector(dialector(cfg.Driver, dsn))
		if err == nil {
			break
		}
		log.Warn("Failed to connect to database", "driver", cfg.Driver, "attempt", i+1, "error", err)
		time.Sleep(retryDelay)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database after %d attempts: %w", maxRetries, err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get database instance: %w", err)
	}
	if cfg.Driver != "sqlite" {
		sqlDB.SetMaxIdleConns(10)
		sqlDB.SetMaxOpenConns(50)
		sqlDB.SetConnMaxLifetime(time.Hour)
	}

	log.Info("Database connection established", "driver", cfg.Driver)
	return db, nil
}

// OpenDialector opens gorm with the settings every driver shares.
func OpenDialector(d gorm.Dialector) (*gorm.DB, error) {
	return gorm.Open(d, &gorm.Config{
		DisableForeignKeyConstraintWhenMigrating: true,
		TranslateError:                           true,
		AllowGlobalUpdate:                        false,
		Logger:                                   gormlogger.Default.LogMode(gormlogger.Silent),
	})
}

// Migrate creates or updates the schema.
func Migrate(db *gorm.DB) error {
	modelsToMigrate := []interface{}{
		&models.User{},
		&models.Relationship{},
		&models.Message{},
	}

	for _, model := range modelsToMigrate {
		if err := db.AutoMigrate(model); err != nil {
			return fmt.Errorf("failed to migrate model: %w", err)
		}
	}

	return addIndexes(db)
}

func addIndexes(db *gorm.DB) error {
	indexes := []struct {
		table   string
		columns []string
	}{
		{"relationships", []string{"user_id", "friend_id"}},
		{"messages", []string{"sender_id", "receiver_id"}},
	}

	for _, idx := range indexes {
		for _, column := range idx.columns {
			name := fmt.Sprintf("idx_%s_%s", idx.table, column)
			if db.Migrator().HasIndex(idx.table, name) {
				continue
			}
			if err := db.Exec(fmt.Sprintf("CREATE INDEX %s ON %s (%s)", name, idx.table, column)).Error; err != nil {
				return fmt.Errorf("failed to add index %s: %w", name, err)
			}
		}
	}

	return nil
}

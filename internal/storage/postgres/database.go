package postgres

import (
	"fmt"

	"github.com/VitaminP8/commentree/internal/config"
	"github.com/VitaminP8/commentree/models"
	"github.com/jinzhu/gorm"
	_ "github.com/jinzhu/gorm/dialects/postgres"
	"go.uber.org/zap"
)

var DB *gorm.DB

// GetDB returns the global connection (used by tests).
func GetDB() *gorm.DB {
	return DB
}

// InitDB connects to PostgreSQL, migrates the schema and sets the global DB.
func InitDB(cfg config.Database, logger *zap.Logger) error {
	dsn := fmt.Sprintf(
		"host=%s user=%s password=%s dbname=%s port=%s sslmode=%s",
		cfg.Host,
		cfg.User,
		cfg.Password,
		cfg.Name,
		cfg.Port,
		cfg.SSLMode,
	)

	db, err := gorm.Open("postgres", dsn)
	if err != nil {
		return fmt.Errorf("failed to connect to the database: %w", err)
	}
	if err := Migrate(db); err != nil {
		db.Close()
		return err
	}

	DB = db
	logger.Info("connected to the database", zap.String("host", cfg.Host), zap.String("name", cfg.Name))
	return nil
}

// Migrate creates or updates the tables of every model.
func Migrate(db *gorm.DB) error {
	if err := db.AutoMigrate(models.All()...).Error; err != nil {
		return fmt.Errorf("failed to migrate database schema: %w", err)
	}
	return nil
}

// CloseDB closes the global connection.
func CloseDB() error {
	if DB == nil {
		return nil
	}

	err := DB.Close()
	if err != nil {
		return fmt.Errorf("failed to close the database connection: %w", err)
	}

	DB = nil
	return nil
}

// InitDBWithConnection injects an existing connection (used by tests).
func InitDBWithConnection(db *gorm.DB) {
	DB = db
}

package database

import (
	"fmt"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormLogger "gorm.io/gorm/logger"

	"dsst-etl/config"
	"dsst-etl/models"
)

// Open verbindet sich mit PostgreSQL. Der Aufrufer besitzt die Verbindung und schließt sie mit Close.
func Open(cfg *config.Config, log *zap.Logger) (*gorm.DB, error) {
	db, err := gorm.Open(postgres.Open(cfg.DSN()), &gorm.Config{
		Logger: NewLogger(log, cfg),
	})
	if err != nil {
		return nil, fmt.Errorf("connect to postgres: %w", err)
	}
	if err := ConfigurePool(db, cfg); err != nil {
		return nil, err
	}
	log.Info("Successfully connected to database.", zap.String("host", cfg.DBHost), zap.String("db", cfg.DBName))
	return db, nil
}

// NewLogger leitet gorm-Meldungen ab Warn-Level (Fehler und langsame Queries) an zap weiter.
func NewLogger(log *zap.Logger, cfg *config.Config) gormLogger.Interface {
	writer, err := zap.NewStdLogAt(log.Named("gorm"), zapcore.WarnLevel)
	if err != nil {
		// nur bei ungültigem Level
		return gormLogger.Discard
	}
	return gormLogger.New(writer, gormLogger.Config{
		SlowThreshold:             cfg.DBSlowThreshold,
		LogLevel:                  gormLogger.Warn,
		IgnoreRecordNotFoundError: true,
		Colorful:                  false,
	})
}

// ConfigurePool setzt die Grenzen des Verbindungspools. Werte <= 0 lassen die Voreinstellung.
func ConfigurePool(db *gorm.DB, cfg *config.Config) error {
	sqlDB, err := db.DB()
	if err != nil {
		return fmt.Errorf("sql db: %w", err)
	}
	if cfg.DBMaxOpenConns > 0 {
		sqlDB.SetMaxOpenConns(cfg.DBMaxOpenConns)
	}
	if cfg.DBMaxIdleConns > 0 {
		sqlDB.SetMaxIdleConns(cfg.DBMaxIdleConns)
	}
	if cfg.DBConnMaxLifetime > 0 {
		sqlDB.SetConnMaxLifetime(cfg.DBConnMaxLifetime)
	}
	return nil
}

// Migrate legt fehlende Tabellen, Indizes und Fremdschlüssel an.
func Migrate(db *gorm.DB, log *zap.Logger) error {
	log.Info("Running database auto-migration...")
	if err := db.AutoMigrate(models.All()...); err != nil {
		return fmt.Errorf("auto-migrate: %w", err)
	}
	return nil
}

// Close gibt den zugrundeliegenden Verbindungspool frei.
func Close(db *gorm.DB) error {
	sqlDB, err := db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

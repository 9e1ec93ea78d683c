package db

import (
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "github.com/go-sql-driver/mysql"
	"github.com/glebarez/sqlite"
	_ "github.com/lib/pq"
	"gorm.io/driver/mysql"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// Open connects gorm to the configured store. Supported drivers are
// sqlite (pure Go, the default), postgres (lib/pq) and mysql.
func Open(driver, dsn string, log *slog.Logger) (*gorm.DB, error) {
	cfg := &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
		NowFunc: func() time.Time {
			return time.Now().UTC()
		},
	}

	var dialector gorm.Dialector
	switch strings.ToLower(driver) {
	case "", "sqlite":
		if dsn != ":memory:" && !strings.HasPrefix(dsn, "file:") {
			if err := os.MkdirAll(filepath.Dir(dsn), 0o700); err != nil {
				return nil, fmt.Errorf("create database dir: %w", err)
			}
		}
		dialector = sqlite.Open(dsn)

	case "postgres":
		sqlDB, err := sql.Open("postgres", dsn)
		if err != nil {
			return nil, fmt.Errorf("failed to open postgres: %w", err)
		}
		dialector = postgres.New(postgres.Config{Conn: sqlDB})

	case "mysql":
		sqlDB, err := sql.Open("mysql", dsn)
		if err != nil {
			return nil, fmt.Errorf("failed to open mysql: %w", err)
		}
		dialector = mysql.New(mysql.Config{Conn: sqlDB})

	default:
		return nil, fmt.Errorf("unsupported storage driver: %s", driver)
	}

	database, err := gorm.Open(dialector, cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to connect %s database: %w", driver, err)
	}

	if log != nil {
		log.Info("Database connected", "driver", driver)
	}
	return database, nil
}

// AutoMigrate creates the conversation and message tables.
func AutoMigrate(database *gorm.DB) error {
	return database.AutoMigrate(&Conversation{}, &Message{})
}

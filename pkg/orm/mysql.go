package orm

import (
	"fmt"
	"time"

	mysqldrv "github.com/go-sql-driver/mysql"
	"gorm.io/driver/mysql"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

type Config struct {
	Driver      string // mysql | postgres
	DSN         string
	MaxIdle     int
	MaxOpen     int
	MaxLifetime int // seconds
	LogLevel    string
}

// Open connects with the configured driver and tunes the pool. The caller owns the
// returned handle.
func Open(c *Config) (*gorm.DB, error) {
	var dialector gorm.Dialector
	switch c.Driver {
	case "", "mysql":
		dsn, err := normalizeMySQLDSN(c.DSN)
		if err != nil {
			return nil, err
		}
		dialector = mysql.Open(dsn)
	case "postgres":
		dialector = postgres.Open(c.DSN)
	default:
		return nil, fmt.Errorf("unsupported db driver %q", c.Driver)
	}

	db, err := gorm.Open(dialector, &gorm.Config{
		Logger:         logger.Default.LogMode(gormLogLevel(c.LogLevel)),
		TranslateError: true,
	})
	if err != nil {
		return nil, fmt.Errorf("connect database: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	sqlDB.SetMaxIdleConns(c.MaxIdle)
	sqlDB.SetMaxOpenConns(c.MaxOpen)
	sqlDB.SetConnMaxLifetime(time.Duration(c.MaxLifetime) * time.Second)

	return db, nil
}

// NewMySQL panics on failure; used by entrypoints that cannot run without a store.
func NewMySQL(c *Config) *gorm.DB {
	db, err := Open(c)
	if err != nil {
		panic("failed to connect database: " + err.Error())
	}
	return db
}

// Amounts and timestamps are scanned into time.Time / decimal, so parseTime must be on.
func normalizeMySQLDSN(dsn string) (string, error) {
	cfg, err := mysqldrv.ParseDSN(dsn)
	if err != nil {
		return "", fmt.Errorf("parse mysql dsn: %w", err)
	}
	cfg.ParseTime = true
	if cfg.Loc == nil || cfg.Loc == time.Local {
		cfg.Loc = time.UTC
	}
	return cfg.FormatDSN(), nil
}

func gormLogLevel(level string) logger.LogLevel {
	switch level {
	case "silent":
		return logger.Silent
	case "error":
		return logger.Error
	case "info":
		return logger.Info
	default:
		return logger.Warn
	}
}

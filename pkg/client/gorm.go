package client

import (
	"fmt"
	"time"

	"bookly/pkg/logger"

	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

func gormConfig() *gorm.Config {
	return &gorm.Config{
		Logger:         gormlogger.Default.LogMode(gormlogger.Warn),
		TranslateError: true,
		NowFunc: func() time.Time {
			return time.Now().UTC()
		},
	}
}

func OpenPostgres(dsn string) (*gorm.DB, error) {
	db, err := gorm.Open(postgres.Open(dsn), gormConfig())
	if err != nil {
		return nil, fmt.Errorf("gorm open postgres: %w", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("db.DB(): %w", err)
	}
	sqlDB.SetMaxOpenConns(20)
	sqlDB.SetMaxIdleConns(5)
	sqlDB.SetConnMaxLifetime(30 * time.Minute)
	return db, nil
}

// OpenSQLite opens path (":memory:" for a throwaway database). SQLite
// serializes writers anyway, so the pool is capped at one connection; this
// also keeps an in-memory database alive across calls.
func OpenSQLite(path string) (*gorm.DB, error) {
	dsn := path
	if path != ":memory:" {
		dsn = "file:" + path + "?_busy_timeout=5000&_journal_mode=WAL"
	}
	db, err := gorm.Open(sqlite.Open(dsn), gormConfig())
	if err != nil {
		return nil, fmt.Errorf("gorm open sqlite: %w", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("db.DB(): %w", err)
	}
	sqlDB.SetMaxOpenConns(1)
	return db, nil
}

func (c *Client) SetPostgres(log *logger.Logger, dsn string) {
	db, err := OpenPostgres(dsn)
	if err != nil {
		log.Fatal("Failed to connect to Postgres", "error", err)
	}
	log.Info("Successfully connected to Postgres")
	c.SQL = db
}

func (c *Client) SetSQLite(log *logger.Logger, path string) {
	db, err := OpenSQLite(path)
	if err != nil {
		log.Fatal("Failed to open SQLite database", "error", err, "path", path)
	}
	log.Info("Successfully opened SQLite database", "path", path)
	c.SQL = db
}

package store

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"tunnel-panel/internal/config"
	"tunnel-panel/internal/logger"
	"tunnel-panel/internal/models"

	"gorm.io/driver/mysql"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

var (
	ErrNotFound         = errors.New("record not found")
	ErrRevisionConflict = errors.New("revision conflict")
	ErrDuplicate        = errors.New("record already exists")
)

// Store persists tunnels and nodes
type Store struct {
	db *gorm.DB
}

// gormLogger 把gorm日志转发到面板日志，忽略ErrRecordNotFound
type gormLogger struct {
	level         gormlogger.LogLevel
	slowThreshold time.Duration
}

func (l *gormLogger) LogMode(level gormlogger.LogLevel) gormlogger.Interface {
	return &gormLogger{level: level, slowThreshold: l.slowThreshold}
}

func (l *gormLogger) Info(ctx context.Context, msg string, data ...interface{}) {
	if l.level >= gormlogger.Info {
		logger.Debugf("gorm: "+msg, data...)
	}
}

func (l *gormLogger) Warn(ctx context.Context, msg string, data ...interface{}) {
	if l.level >= gormlogger.Warn {
		logger.Warnf("gorm: "+msg, data...)
	}
}

func (l *gormLogger) Error(ctx context.Context, msg string, data ...interface{}) {
	if l.level >= gormlogger.Error {
		logger.Errorf("gorm: "+msg, data...)
	}
}

func (l *gormLogger) Trace(ctx context.Context, begin time.Time, fc func() (string, int64), err error) {
	if l.level <= gormlogger.Silent {
		return
	}
	elapsed := time.Since(begin)
	switch {
	case err != nil && !errors.Is(err, gorm.ErrRecordNotFound) && l.level >= gormlogger.Error:
		sql, rows := fc()
		logger.Errorf("gorm: %v [%s] rows:%d %s", err, elapsed, rows, sql)
	case l.slowThreshold > 0 && elapsed > l.slowThreshold && l.level >= gormlogger.Warn:
		sql, rows := fc()
		logger.Warnf("gorm: slow query [%s] rows:%d %s", elapsed, rows, sql)
	case l.level >= gormlogger.Info:
		sql, rows := fc()
		logger.Debugf("gorm: [%s] rows:%d %s", elapsed, rows, sql)
	}
}

func dialector(cfg config.DatabaseConfig) (gorm.Dialector, error) {
	switch cfg.Type {
	case "", "sqlite", "sqlite3":
		if cfg.DSN != "" && cfg.DSN != ":memory:" && !strings.HasPrefix(cfg.DSN, "file:") {
			if err := os.MkdirAll(filepath.Dir(cfg.DSN), 0755); err != nil {
				return nil, fmt.Errorf("create database directory: %w", err)
			}
		}
		return sqlite.Open(cfg.DSN), nil
	case "mysql":
		return mysql.Open(cfg.DSN), nil
	case "postgres", "postgresql":
		return postgres.Open(cfg.DSN), nil
	default:
		return nil, fmt.Errorf("unsupported database type: %s (supported: sqlite, mysql, postgres)", cfg.Type)
	}
}

/**
 * Open the configured database and migrate the schema
 * @param {config.DatabaseConfig} cfg - Database settings
 * @returns {*Store} Ready to use store
 * @description
 * - sqlite is the default, mysql and postgres are selected by database.type
 * - gorm logs go through the panel logger, debug enables SQL tracing
 */
func Open(cfg config.DatabaseConfig) (*Store, error) {
	dial, err := dialector(cfg)
	if err != nil {
		return nil, err
	}
	level := gormlogger.Warn
	if cfg.Debug {
		level = gormlogger.Info
	}
	gl := &gormLogger{slowThreshold: 500 * time.Millisecond}
	db, err := gorm.Open(dial, &gorm.Config{Logger: gl.LogMode(level)})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get underlying sql.DB: %w", err)
	}
	if cfg.MaxOpenConns > 0 {
		sqlDB.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	if cfg.Type == "" || cfg.Type == "sqlite" || cfg.Type == "sqlite3" {
		// sqlite只允许单写
		sqlDB.SetMaxOpenConns(1)
	}
	return New(db)
}

// New wraps an opened gorm connection and migrates the schema
func New(db *gorm.DB) (*Store, error) {
	if err := db.AutoMigrate(&models.Node{}, &models.Tunnel{}); err != nil {
		return nil, fmt.Errorf("failed to migrate schema: %w", err)
	}
	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

func wrapNotFound(err error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return ErrNotFound
	}
	return err
}

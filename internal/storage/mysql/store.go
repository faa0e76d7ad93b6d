// Package mysql хранит снимок датасета в MySQL через GORM.
package mysql

import (
	"context"
	"errors"
	"fmt"
	"time"

	log "github.com/sirupsen/logrus"
	"gorm.io/driver/mysql"
	"gorm.io/gorm"
)

const (
	defaultConnTimeout     = 5 * time.Second
	defaultMaxOpenConns    = 10
	defaultMaxIdleConns    = 5
	defaultConnMaxLifetime = 10 * time.Minute
	defaultConnMaxIdleTime = 5 * time.Minute
)

// Open подключается к MySQL и проверяет доступность базы.
// DSN в формате go-sql-driver, например user:pass@tcp(host:3306)/oda?parseTime=true.
func Open(ctx context.Context, dsn string, logger *log.Entry) (*gorm.DB, error) {
	if dsn == "" {
		return nil, errors.New("mysql dsn is empty")
	}
	if logger == nil {
		logger = log.WithField("component", "mysql")
	}

	db, err := gorm.Open(mysql.Open(dsn), &gorm.Config{
		Logger: NewGormLogger(logger),
	})
	if err != nil {
		return nil, fmt.Errorf("open mysql connection: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("get underlying sql.DB: %w", err)
	}
	sqlDB.SetMaxOpenConns(defaultMaxOpenConns)
	sqlDB.SetMaxIdleConns(defaultMaxIdleConns)
	sqlDB.SetConnMaxLifetime(defaultConnMaxLifetime)
	sqlDB.SetConnMaxIdleTime(defaultConnMaxIdleTime)

	pingCtx, cancel := context.WithTimeout(ctx, defaultConnTimeout)
	defer cancel()
	if err := sqlDB.PingContext(pingCtx); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("ping mysql: %w", err)
	}

	return db, nil
}

// AutoMigrate создаёт или дополняет таблицу order_records.
func AutoMigrate(ctx context.Context, db *gorm.DB) error {
	if err := db.WithContext(ctx).AutoMigrate(&OrderRecordPO{}); err != nil {
		return fmt.Errorf("automigrate order_records: %w", err)
	}
	return nil
}

// Close закрывает пул соединений.
func Close(db *gorm.DB) error {
	if db == nil {
		return nil
	}
	sqlDB, err := db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

package mysql

import (
	"context"
	"errors"
	"fmt"
	"time"

	log "github.com/sirupsen/logrus"
	gormlogger "gorm.io/gorm/logger"
)

const slowQueryThreshold = 500 * time.Millisecond

// gormLogger перенаправляет журнал GORM в logrus.
type gormLogger struct {
	level  gormlogger.LogLevel
	logger *log.Entry
	slow   time.Duration
}

// NewGormLogger возвращает адаптер с уровнем Warn: в журнал попадают ошибки и медленные запросы.
func NewGormLogger(logger *log.Entry) gormlogger.Interface {
	return &gormLogger{level: gormlogger.Warn, logger: logger, slow: slowQueryThreshold}
}

func (l *gormLogger) LogMode(level gormlogger.LogLevel) gormlogger.Interface {
	clone := *l
	clone.level = level
	return &clone
}

func (l *gormLogger) Info(_ context.Context, msg string, args ...interface{}) {
	if l.level >= gormlogger.Info {
		l.logger.Info(fmt.Sprintf(msg, args...))
	}
}

func (l *gormLogger) Warn(_ context.Context, msg string, args ...interface{}) {
	if l.level >= gormlogger.Warn {
		l.logger.Warn(fmt.Sprintf(msg, args...))
	}
}

func (l *gormLogger) Error(_ context.Context, msg string, args ...interface{}) {
	if l.level >= gormlogger.Error {
		l.logger.Error(fmt.Sprintf(msg, args...))
	}
}

func (l *gormLogger) Trace(_ context.Context, begin time.Time, fc func() (string, int64), err error) {
	if l.level <= gormlogger.Silent {
		return
	}

	elapsed := time.Since(begin)
	query, rows := fc()
	entry := l.logger.WithFields(log.Fields{
		"sql":     query,
		"rows":    rows,
		"elapsed": elapsed.String(),
	})

	switch {
	case err != nil && !errors.Is(err, gormlogger.ErrRecordNotFound) && l.level >= gormlogger.Error:
		entry.WithError(err).Error("sql запрос завершился ошибкой")
	case l.slow > 0 && elapsed > l.slow && l.level >= gormlogger.Warn:
		entry.Warn("медленный sql запрос")
	case l.level >= gormlogger.Info:
		entry.Debug("sql запрос выполнен")
	}
}

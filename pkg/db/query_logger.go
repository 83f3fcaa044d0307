package db

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/angelmondragon/storefront-backend/pkg/logger"
)

// QueryLogger routes gorm diagnostics through the service logger so slow or
// failing statements carry the request's fields. Successful fast queries and
// record-not-found misses are not logged.
type QueryLogger struct {
	logg          *logger.Logger
	slowThreshold time.Duration
	level         gormlogger.LogLevel
}

// NewQueryLogger returns a gorm logger. A nil logger silences gorm entirely
// and a zero threshold disables slow query warnings.
func NewQueryLogger(logg *logger.Logger, slowThreshold time.Duration) gormlogger.Interface {
	level := gormlogger.Warn
	if logg == nil {
		level = gormlogger.Silent
	}
	return &QueryLogger{logg: logg, slowThreshold: slowThreshold, level: level}
}

func (q *QueryLogger) LogMode(level gormlogger.LogLevel) gormlogger.Interface {
	clone := *q
	clone.level = level
	return &clone
}

func (q *QueryLogger) Info(ctx context.Context, msg string, args ...any) {
	if q.enabled(gormlogger.Info) {
		q.logg.Info(ctx, fmt.Sprintf(msg, args...))
	}
}

func (q *QueryLogger) Warn(ctx context.Context, msg string, args ...any) {
	if q.enabled(gormlogger.Warn) {
		q.logg.Warn(ctx, fmt.Sprintf(msg, args...))
	}
}

func (q *QueryLogger) Error(ctx context.Context, msg string, args ...any) {
	if q.enabled(gormlogger.Error) {
		q.logg.Error(ctx, fmt.Sprintf(msg, args...), nil)
	}
}

func (q *QueryLogger) Trace(ctx context.Context, begin time.Time, fc func() (string, int64), err error) {
	if q.level <= gormlogger.Silent || q.logg == nil {
		return
	}
	elapsed := time.Since(begin)
	failed := err != nil && !errors.Is(err, gorm.ErrRecordNotFound)
	slow := q.slowThreshold > 0 && elapsed > q.slowThreshold
	if !failed && !slow && q.level < gormlogger.Info {
		return
	}

	sql, rows := fc()
	logCtx := q.logg.WithFields(ctx, map[string]any{
		"sql":        sql,
		"rows":       rows,
		"elapsed_ms": elapsed.Milliseconds(),
	})
	switch {
	case failed && q.level >= gormlogger.Error:
		q.logg.Error(logCtx, "db.query_failed", err)
	case slow && q.level >= gormlogger.Warn:
		q.logg.Warn(q.logg.WithField(logCtx, "threshold_ms", q.slowThreshold.Milliseconds()), "db.slow_query")
	case q.level >= gormlogger.Info:
		q.logg.Info(logCtx, "db.query")
	}
}

// ParamsFilter drops bind values so logged SQL never carries row data.
func (q *QueryLogger) ParamsFilter(_ context.Context, sql string, _ ...any) (string, []any) {
	return sql, nil
}

func (q *QueryLogger) enabled(level gormlogger.LogLevel) bool {
	return q.logg != nil && q.level >= level
}

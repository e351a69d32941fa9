package logging

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	gormlogger "gorm.io/gorm/logger"
	"gorm.io/gorm/utils"
)

// GormLogger implements gorm's logger.Interface on zap. Statements log at
// debug, slow ones at warn, failures at error. Record-not-found is not a
// failure: resource lookups miss all the time.
type GormLogger struct {
	Logger        *zap.Logger
	LogLevel      gormlogger.LogLevel
	SlowThreshold time.Duration
	// Parameterized drops bound values from logged SQL.
	Parameterized bool
}

var _ gormlogger.Interface = (*GormLogger)(nil)

// NewGormLogger wraps l. The gorm level follows l's own level so one
// switch controls both.
func NewGormLogger(l *zap.Logger, slow time.Duration) *GormLogger {
	return &GormLogger{
		Logger:        l.WithOptions(zap.AddCallerSkip(3)).Named("sql"),
		LogLevel:      GormLevel(l.Level()),
		SlowThreshold: slow,
		Parameterized: true,
	}
}

// GormLevel maps a zap level onto gorm's coarser scale.
func GormLevel(l zapcore.Level) gormlogger.LogLevel {
	switch {
	case l <= zapcore.InfoLevel:
		return gormlogger.Info
	case l == zapcore.WarnLevel:
		return gormlogger.Warn
	case l <= zapcore.FatalLevel:
		return gormlogger.Error
	}
	return gormlogger.Silent
}

func (l *GormLogger) LogMode(level gormlogger.LogLevel) gormlogger.Interface {
	cp := *l
	cp.LogLevel = level
	return &cp
}

func (l *GormLogger) Info(ctx context.Context, msg string, data ...interface{}) {
	if l.LogLevel >= gormlogger.Info {
		l.with(ctx).Info(fmt.Sprintf(msg, data...), zap.String("file", utils.FileWithLineNum()))
	}
}

func (l *GormLogger) Warn(ctx context.Context, msg string, data ...interface{}) {
	if l.LogLevel >= gormlogger.Warn {
		l.with(ctx).Warn(fmt.Sprintf(msg, data...), zap.String("file", utils.FileWithLineNum()))
	}
}

func (l *GormLogger) Error(ctx context.Context, msg string, data ...interface{}) {
	if l.LogLevel >= gormlogger.Error {
		l.with(ctx).Error(fmt.Sprintf(msg, data...), zap.String("file", utils.FileWithLineNum()))
	}
}

func (l *GormLogger) Trace(ctx context.Context, begin time.Time, fc func() (sql string, rowsAffected int64), err error) {
	if l.LogLevel <= gormlogger.Silent {
		return
	}
	elapsed := time.Since(begin)
	sql, rows := fc()
	fields := []zap.Field{
		zap.String("file", utils.FileWithLineNum()),
		zap.Duration("elapsed", elapsed),
		zap.String("sql", sql),
	}
	if rows != -1 {
		fields = append(fields, zap.Int64("rows", rows))
	}
	log := l.with(ctx)
	switch {
	case err != nil && !errors.Is(err, gormlogger.ErrRecordNotFound) && l.LogLevel >= gormlogger.Error:
		log.Error("sql failed", append(fields, zap.Error(err))...)
	case l.SlowThreshold > 0 && elapsed > l.SlowThreshold && l.LogLevel >= gormlogger.Warn:
		log.Warn("slow sql", append(fields, zap.Duration("threshold", l.SlowThreshold))...)
	case l.LogLevel >= gormlogger.Info:
		log.Debug("sql", fields...)
	}
}

// ParamsFilter implements gorm's ParamsFilter hook.
func (l *GormLogger) ParamsFilter(_ context.Context, sql string, params ...interface{}) (string, []interface{}) {
	if l.Parameterized {
		return sql, nil
	}
	return sql, params
}

func (l *GormLogger) with(ctx context.Context) *zap.Logger {
	if id := RequestID(ctx); id != "" {
		return l.Logger.With(zap.String("request_id", id))
	}
	return l.Logger
}

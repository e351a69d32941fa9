// Package pg persists resources in PostgreSQL: a gorm-backed store and
// DDL derived from resource definitions.
package pg

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"resourcekit/internal/logging"
)

// Pool bounds the connection pool.
type Pool struct {
	MaxOpen     int
	MaxIdle     int
	MaxLifetime time.Duration
}

// DefaultPool is used when Open gets a zero Pool.
var DefaultPool = Pool{MaxOpen: 10, MaxIdle: 5, MaxLifetime: 30 * time.Minute}

// Open connects through pgx, logs statements through log and pings
// before returning.
func Open(ctx context.Context, url string, log *zap.Logger, slow time.Duration, pool Pool) (*gorm.DB, error) {
	if pool == (Pool{}) {
		pool = DefaultPool
	}
	db, err := gorm.Open(postgres.Open(url), &gorm.Config{
		Logger:                 logging.NewGormLogger(log, slow),
		SkipDefaultTransaction: true,
		NowFunc:                func() time.Time { return time.Now().UTC() },
	})
	if err != nil {
		return nil, fmt.Errorf("pg: open: %w", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	sqlDB.SetConnMaxLifetime(pool.MaxLifetime)
	sqlDB.SetMaxOpenConns(pool.MaxOpen)
	sqlDB.SetMaxIdleConns(pool.MaxIdle)

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := sqlDB.PingContext(ctx); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("pg: ping: %w", err)
	}
	return db, nil
}

// Close releases the pool behind db.
func Close(db *gorm.DB) error {
	sqlDB, err := db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

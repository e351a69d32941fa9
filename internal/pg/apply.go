package pg

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/jackc/pgx/v5/pgconn"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// skippable are duplicate_object and duplicate_table: constraints and
// tables a previous run already created.
var skippable = map[string]bool{"42710": true, "42P07": true}

// ApplyDDL runs the statements of GenerateDDL in key order. Statements are
// idempotent; objects that already exist are skipped.
func ApplyDDL(ctx context.Context, db *gorm.DB, ddl map[string]string, log *zap.Logger) error {
	keys := make([]string, 0, len(ddl))
	for k := range ddl {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, k := range keys {
		for _, stmt := range statements(ddl[k]) {
			if err := db.WithContext(ctx).Exec(stmt).Error; err != nil {
				var pgErr *pgconn.PgError
				if errors.As(err, &pgErr) && skippable[pgErr.Code] {
					log.Debug("ddl skipped, object exists", zap.String("phase", k), zap.String("detail", strings.TrimSpace(pgErr.Message)))
					continue
				}
				return fmt.Errorf("pg: ddl %s: %w", k, err)
			}
		}
		log.Info("ddl applied", zap.String("phase", k))
	}
	return nil
}

// statements splits on the ";\n" GenerateDDL ends every statement with.
func statements(sql string) []string {
	var out []string
	for _, s := range strings.Split(sql, ";\n") {
		if s = strings.TrimSpace(strings.TrimSuffix(strings.TrimSpace(s), ";")); s != "" {
			out = append(out, s)
		}
	}
	return out
}

package pg

import (
	"fmt"
	"sort"
	"strings"

	"resourcekit/internal/field"
	"resourcekit/internal/resource"
	"resourcekit/internal/store"
	"resourcekit/internal/validation"
)

// OnDelete is the referential action of a foreign key.
type OnDelete string

const (
	OnDeleteRestrict OnDelete = "RESTRICT"
	OnDeleteSetNull  OnDelete = "SET NULL"
	OnDeleteCascade  OnDelete = "CASCADE"
)

// DDL phase keys; ApplyDDL runs them in this order.
const (
	PhaseTables      = "000_tables"
	PhasePivots      = "100_pivots"
	PhaseForeignKeys = "200_foreign_keys"
)

func sqlIdent(s string) string { return `"` + strings.ReplaceAll(s, `"`, `""`) + `"` }

// columnType maps a field onto a column type; ok is false for fields that
// own no column.
func columnType(f *field.Field) (typ string, ok bool) {
	if !f.IsPersisted() || f.IsRelational() {
		return "", false
	}
	if f.StoresJSON() {
		return "jsonb", true
	}
	switch f.Kind {
	case field.KindNumber:
		return "double precision", true
	case field.KindBoolean:
		return "boolean", true
	case field.KindDate:
		return "date", true
	case field.KindDateTime:
		return "timestamp with time zone", true
	}
	return "text", true
}

type foreignKey struct {
	table, name, column, refTable string
	onDelete                      OnDelete
}

// GenerateDDL derives tables, unique indexes, pivot tables and foreign keys
// from definitions. Every statement is idempotent. Foreign keys only point
// at tables that are part of the same set.
func GenerateDDL(defs []*resource.Definition) (map[string]string, error) {
	sorted := append([]*resource.Definition(nil), defs...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Model.Table < sorted[j].Model.Table })

	tables := map[string]bool{}
	for _, d := range sorted {
		if !store.ValidIdentifier(d.Model.Table) {
			return nil, fmt.Errorf("%s: invalid table %q", d.Key, d.Model.Table)
		}
		tables[d.Model.Table] = true
	}

	var phaseA, phaseB strings.Builder
	var fks []foreignKey
	pivots := map[string]bool{}

	for _, d := range sorted {
		tbl := d.Model.Table
		cols := []string{
			`"id" text primary key`,
			`"created_at" timestamp with time zone not null default now()`,
			`"updated_at" timestamp with time zone not null default now()`,
		}
		seen := map[string]struct{}{"id": {}, "created_at": {}, "updated_at": {}}
		var uniques []string

		for _, f := range d.Fields() {
			typ, ok := columnType(f)
			if !ok {
				continue
			}
			if !store.ValidIdentifier(f.Attribute) {
				return nil, fmt.Errorf("%s.%s: attribute is not a column name", d.Key, f.Attribute)
			}
			if _, dup := seen[f.Attribute]; dup {
				continue
			}
			seen[f.Attribute] = struct{}{}

			// required is conditional on visibility, so columns stay nullable
			def := ""
			if lit, ok := literal(f.Default, typ); ok {
				def = " default " + lit
			}
			cols = append(cols, fmt.Sprintf("%s %s null%s", sqlIdent(f.Attribute), typ, def))

			if uniqueOnOwnColumn(f, tbl) {
				uniques = append(uniques, f.Attribute)
			}
			if f.Kind == field.KindBelongsTo {
				if rel, ok := d.Model.Relation(f.RelationName()); ok && tables[rel.Table] {
					onDelete := OnDeleteRestrict
					if f.Nullable {
						onDelete = OnDeleteSetNull
					}
					fks = append(fks, foreignKey{table: tbl, name: tbl + "_" + f.Attribute + "_fk", column: f.Attribute, refTable: rel.Table, onDelete: onDelete})
				}
			}
		}

		fmt.Fprintf(&phaseA, "create table if not exists %s (\n  %s\n);\n", sqlIdent(tbl), strings.Join(cols, ",\n  "))
		for _, col := range uniques {
			fmt.Fprintf(&phaseA, "create unique index if not exists %s on %s(%s);\n",
				sqlIdent(tbl+"_"+col+"_uq"), sqlIdent(tbl), sqlIdent(col))
		}

		for _, name := range relationNames(d.Model) {
			rel := d.Model.Relations[name]
			if rel.Kind != store.BelongsToMany || rel.Pivot == nil || pivots[rel.Pivot.Table] {
				continue
			}
			p := rel.Pivot
			if err := validPivot(*p); err != nil {
				return nil, fmt.Errorf("%s.%s: %w", d.Key, name, err)
			}
			pivots[p.Table] = true
			fmt.Fprintf(&phaseB, "create table if not exists %s (\n  %s text not null,\n  %s text not null,\n  primary key (%s, %s)\n);\n",
				sqlIdent(p.Table), sqlIdent(p.ParentKey), sqlIdent(p.RelatedKey), sqlIdent(p.ParentKey), sqlIdent(p.RelatedKey))
			fmt.Fprintf(&phaseB, "create index if not exists %s on %s(%s);\n",
				sqlIdent(p.Table+"_"+p.RelatedKey+"_idx"), sqlIdent(p.Table), sqlIdent(p.RelatedKey))
			fks = append(fks, foreignKey{table: p.Table, name: p.Table + "_" + p.ParentKey + "_fk", column: p.ParentKey, refTable: tbl, onDelete: OnDeleteCascade})
			if tables[rel.Table] {
				fks = append(fks, foreignKey{table: p.Table, name: p.Table + "_" + p.RelatedKey + "_fk", column: p.RelatedKey, refTable: rel.Table, onDelete: OnDeleteCascade})
			}
		}
	}

	out := map[string]string{PhaseTables: phaseA.String()}
	if phaseB.Len() > 0 {
		out[PhasePivots] = phaseB.String()
	}
	var phaseC strings.Builder
	for _, fk := range fks {
		fmt.Fprintf(&phaseC, "alter table %s add constraint %s foreign key (%s) references %s(\"id\") on delete %s;\n",
			sqlIdent(fk.table), sqlIdent(fk.name), sqlIdent(fk.column), sqlIdent(fk.refTable), fk.onDelete)
	}
	if phaseC.Len() > 0 {
		out[PhaseForeignKeys] = phaseC.String()
	}
	return out, nil
}

// uniqueOnOwnColumn reports a unique rule checked against this table and
// column, which the database can then enforce too.
func uniqueOnOwnColumn(f *field.Field, table string) bool {
	for _, r := range validation.Parse(f.Rules) {
		if r.Name != "unique" {
			continue
		}
		if len(r.Params) > 0 && r.Params[0] != "" && r.Params[0] != table {
			continue
		}
		if len(r.Params) > 1 && r.Params[1] != "" && r.Params[1] != f.Attribute {
			continue
		}
		return true
	}
	return false
}

func literal(v any, typ string) (string, bool) {
	switch t := v.(type) {
	case nil:
		return "", false
	case bool:
		if typ != "boolean" {
			return "", false
		}
		if t {
			return "true", true
		}
		return "false", true
	case int, int64, float64:
		if typ != "double precision" {
			return "", false
		}
		return fmt.Sprint(t), true
	case string:
		if typ != "text" {
			return "", false
		}
		return "'" + strings.ReplaceAll(t, "'", "''") + "'", true
	}
	return "", false
}

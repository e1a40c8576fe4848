package builder

import (
	"fmt"
	"strings"

	"github.com/Lumos-Labs-HQ/flashgate/internal/schema"
)

// CreateTable returns the statements that create a table with the shared
// column layout. They must be executed as one batch.
func (b *Builder) CreateTable(table string, c1Unique bool) []Statement {
	cols := schema.Columns()
	lines := []string{fmt.Sprintf("CREATE TABLE IF NOT EXISTS %s (", schema.Quote(table))}

	for i, col := range cols {
		comma := ","
		if i == len(cols)-1 {
			comma = ""
		}
		lines = append(lines, fmt.Sprintf("  %s %s%s", schema.Quote(col.Name), b.columnType(col, c1Unique), comma))
	}
	lines = append(lines, ")")

	stmts := []Statement{{Text: strings.Join(lines, "\n")}}
	if !c1Unique {
		stmts = append(stmts, b.createIndex(table, schema.UniqueColumn, false))
	}
	return append(stmts, b.createIndex(table, schema.ModifiedColumn, false))
}

func (b *Builder) columnType(col schema.Column, c1Unique bool) string {
	if col.Kind == schema.KindIdentity {
		return b.cfg.identity
	}

	parts := []string{b.cfg.types[col.Kind]}
	if col.Name == schema.UniqueColumn && c1Unique {
		parts = append(parts, "UNIQUE")
	}
	if col.Name == schema.ModifiedColumn {
		parts = append(parts, "DEFAULT CURRENT_TIMESTAMP")
	}
	return strings.Join(parts, " ")
}

// DropTable is idempotent: dropping a missing table is not an error.
func (b *Builder) DropTable(table string) Statement {
	return Statement{Text: fmt.Sprintf("DROP TABLE IF EXISTS %s", schema.Quote(table))}
}

// ListTables returns user tables, excluding engine-internal names.
func (b *Builder) ListTables() (Statement, error) {
	return toStatement(b.cfg.listTables(b.qb))
}

func (b *Builder) CreateIndex(table, column string, unique bool) (Statement, error) {
	if !schema.IsAllowedColumn(column) {
		return Statement{}, invalid(column, "column is not allowed")
	}
	return b.createIndex(table, column, unique), nil
}

func (b *Builder) createIndex(table, column string, unique bool) Statement {
	kind := "INDEX"
	if unique {
		kind = "UNIQUE INDEX"
	}
	return Statement{Text: fmt.Sprintf("CREATE %s IF NOT EXISTS %s ON %s (%s)",
		kind, schema.Quote(schema.IndexName(table, column)), schema.Quote(table), schema.Quote(column))}
}

func (b *Builder) DropIndex(table, column string) (Statement, error) {
	if !schema.IsAllowedColumn(column) {
		return Statement{}, invalid(column, "column is not allowed")
	}
	return Statement{Text: fmt.Sprintf("DROP INDEX IF EXISTS %s", schema.Quote(schema.IndexName(table, column)))}, nil
}

func (b *Builder) ListIndices(table string) (Statement, error) {
	return b.cfg.listIndices(b.qb, table)
}

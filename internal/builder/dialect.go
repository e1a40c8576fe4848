package builder

import (
	"fmt"

	"github.com/Lumos-Labs-HQ/flashgate/internal/schema"
	"github.com/Masterminds/squirrel"
)

type Dialect string

const (
	SQLite   Dialect = "sqlite"
	Postgres Dialect = "postgres"
)

// ParseDialect maps a configured provider name onto a dialect.
func ParseDialect(provider string) (Dialect, error) {
	switch provider {
	case "sqlite", "sqlite3":
		return SQLite, nil
	case "postgresql", "postgres":
		return Postgres, nil
	default:
		return "", fmt.Errorf("unsupported database provider: %s", provider)
	}
}

type dialectConfig struct {
	placeholder squirrel.PlaceholderFormat
	identity    string
	types       map[schema.ColumnKind]string

	// Identifier prefixes of the engine's own catalog, blocked in exec.
	catalogPrefixes []string

	// Reserved names are filtered by the gateway, not here.
	listTables  func(qb squirrel.StatementBuilderType) squirrel.SelectBuilder
	listIndices func(qb squirrel.StatementBuilderType, table string) (Statement, error)
}

var dialects = map[Dialect]dialectConfig{
	SQLite: {
		placeholder:     squirrel.Question,
		identity:        "INTEGER PRIMARY KEY AUTOINCREMENT",
		catalogPrefixes: []string{"sqlite_"},
		types: map[schema.ColumnKind]string{
			schema.KindShortText: "TEXT",
			schema.KindInteger:   "INTEGER",
			schema.KindFloat:     "REAL",
			schema.KindLongText:  "TEXT",
			schema.KindTimestamp: "TIMESTAMP",
		},
		listTables: func(qb squirrel.StatementBuilderType) squirrel.SelectBuilder {
			return qb.Select("name").
				From("sqlite_master").
				Where(squirrel.Eq{"type": "table"}).
				OrderBy("name")
		},
		listIndices: func(_ squirrel.StatementBuilderType, table string) (Statement, error) {
			return Statement{Text: fmt.Sprintf("PRAGMA index_list(%s)", schema.Quote(table))}, nil
		},
	},
	Postgres: {
		placeholder:     squirrel.Dollar,
		identity:        "BIGSERIAL PRIMARY KEY",
		catalogPrefixes: []string{"pg_"},
		types: map[schema.ColumnKind]string{
			schema.KindShortText: "VARCHAR(255)",
			schema.KindInteger:   "BIGINT",
			schema.KindFloat:     "DOUBLE PRECISION",
			schema.KindLongText:  "TEXT",
			schema.KindTimestamp: "TIMESTAMP",
		},
		listTables: func(qb squirrel.StatementBuilderType) squirrel.SelectBuilder {
			return qb.Select("table_name AS name").
				From("information_schema.tables").
				Where("table_schema = current_schema()").
				Where(squirrel.Eq{"table_type": "BASE TABLE"}).
				OrderBy("table_name")
		},
		listIndices: func(qb squirrel.StatementBuilderType, table string) (Statement, error) {
			return toStatement(qb.Select("indexname AS name", "indexdef AS definition").
				From("pg_indexes").
				Where("schemaname = current_schema()").
				Where(squirrel.Eq{"tablename": table}).
				OrderBy("indexname"))
		},
	},
}

package schema

import (
	"fmt"
	"sort"
	"strings"
)

const (
	// IDColumn is the identity column every table carries.
	IDColumn = "id"
	// ModifiedColumn is refreshed on insert and on every update.
	ModifiedColumn = "d2"
	// UniqueColumn is the column create_table can make UNIQUE.
	UniqueColumn = "c1"

	// TableNameKey is the payload key naming the target table.
	TableNameKey = "table_name"
	// AnyTable is accepted by actions that do not target a single table.
	AnyTable = "*"
)

// ColumnKind describes the storage class of a column.
type ColumnKind string

const (
	KindIdentity  ColumnKind = "identity"
	KindShortText ColumnKind = "short_text"
	KindInteger   ColumnKind = "integer"
	KindFloat     ColumnKind = "float"
	KindLongText  ColumnKind = "long_text"
	KindTimestamp ColumnKind = "timestamp"
)

type Column struct {
	Name string
	Kind ColumnKind
}

// columns is the fixed layout shared by every table, in DDL order.
var columns = []Column{
	{IDColumn, KindIdentity},
	{"c1", KindShortText}, {"c2", KindShortText}, {"c3", KindShortText},
	{"i1", KindInteger}, {"i2", KindInteger}, {"i3", KindInteger},
	{"f1", KindFloat}, {"f2", KindFloat}, {"f3", KindFloat},
	{"t1", KindLongText}, {"t2", KindLongText}, {"t3", KindLongText},
	{"d1", KindTimestamp}, {ModifiedColumn, KindTimestamp}, {"d3", KindTimestamp},
}

// Query option names accepted by get.
const (
	OptOrder   = "order"
	OptOrderBy = "orderby"
	OptLimit   = "limit"
	OptOffset  = "offset"
	OptMinID   = "minId"
)

var (
	allowedColumns = newSet()
	allowedOptions = newSet(OptOrder, OptOrderBy, OptLimit, OptOffset, OptMinID)

	// Storage-engine internal tables. Compared lowercased.
	reservedTables = newSet(
		"sqlite_master",
		"sqlite_schema",
		"sqlite_temp_master",
		"sqlite_temp_schema",
		"sqlite_sequence",
		"sqlite_stat1",
		"_cf_kv",
		"d1_migrations",
		"pg_catalog",
		"information_schema",
	)

	reservedPrefixes = []string{"sqlite_", "pg_"}
)

func init() {
	for _, c := range columns {
		allowedColumns[c.Name] = struct{}{}
	}
}

type set map[string]struct{}

func newSet(items ...string) set {
	s := make(set, len(items))
	for _, item := range items {
		s[item] = struct{}{}
	}
	return s
}

func (s set) has(name string) bool {
	_, ok := s[name]
	return ok
}

// Columns returns the table layout in declaration order.
func Columns() []Column {
	out := make([]Column, len(columns))
	copy(out, columns)
	return out
}

func IsAllowedColumn(name string) bool {
	return allowedColumns.has(name)
}

func IsAllowedQueryOption(name string) bool {
	return allowedOptions.has(name)
}

// IsForbiddenTableName reports whether name refers to a storage-engine
// internal relation. The check is case-insensitive.
func IsForbiddenTableName(name string) bool {
	lower := strings.ToLower(strings.TrimSpace(name))
	if reservedTables.has(lower) {
		return true
	}
	for _, prefix := range reservedPrefixes {
		if strings.HasPrefix(lower, prefix) {
			return true
		}
	}
	return false
}

// ReservedTables returns the storage-engine internal table names, sorted.
func ReservedTables() []string {
	out := make([]string, 0, len(reservedTables))
	for name := range reservedTables {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// ResolveTableName extracts and trims payload["table_name"]. It returns false
// when the value is missing, not a string, blank or reserved. No SQL that
// references a table may be built before this succeeds.
func ResolveTableName(payload map[string]any) (string, bool) {
	raw, ok := payload[TableNameKey].(string)
	if !ok {
		return "", false
	}
	name := strings.TrimSpace(raw)
	if name == "" || IsForbiddenTableName(name) {
		return "", false
	}
	return name, true
}

// IndexName derives the canonical index name for a table column.
func IndexName(table, column string) string {
	return fmt.Sprintf("idx_%s_%s", table, column)
}

// Quote double-quotes an identifier, doubling any embedded quote.
func Quote(identifier string) string {
	return `"` + strings.ReplaceAll(identifier, `"`, `""`) + `"`
}

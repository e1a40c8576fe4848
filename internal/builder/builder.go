// Package builder translates gateway actions into parameterized SQL.
//
// Every function here is pure: it validates its input against the schema
// registry and returns Statement values without touching a database. User
// values only ever travel in Statement.Args; the SQL text interpolates
// identifiers that have already been validated and quoted.
package builder

import (
	"encoding/json"
	"fmt"
	"math"
	"sort"

	"github.com/Lumos-Labs-HQ/flashgate/internal/schema"
	"github.com/Masterminds/squirrel"
)

const (
	DefaultLimit = 100
	MaxLimit     = 500
)

// Statement is SQL text with the ordered values to bind to its placeholders.
type Statement struct {
	Text string `json:"text"`
	Args []any  `json:"args"`
}

// ValidationError reports a payload the builder refuses to translate.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Reason
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Reason)
}

func invalid(field, format string, args ...any) error {
	return &ValidationError{Field: field, Reason: fmt.Sprintf(format, args...)}
}

type Builder struct {
	dialect Dialect
	cfg     dialectConfig
	qb      squirrel.StatementBuilderType
}

func New(d Dialect) (*Builder, error) {
	cfg, ok := dialects[d]
	if !ok {
		return nil, fmt.Errorf("unknown dialect: %q", d)
	}
	return &Builder{
		dialect: d,
		cfg:     cfg,
		qb:      squirrel.StatementBuilder.PlaceholderFormat(cfg.placeholder),
	}, nil
}

func (b *Builder) Dialect() Dialect {
	return b.dialect
}

type sqlizer interface {
	ToSql() (string, []any, error)
}

func toStatement(q sqlizer) (Statement, error) {
	text, args, err := q.ToSql()
	if err != nil {
		return Statement{}, fmt.Errorf("failed to build statement: %w", err)
	}
	return Statement{Text: text, Args: args}, nil
}

// scalar normalizes a decoded JSON value into something a driver can bind.
// Integral floats become int64 so integer columns round-trip exactly.
func scalar(field string, v any) (any, error) {
	switch x := v.(type) {
	case nil, string, bool, int64, int32, int:
		return x, nil
	case float64:
		if x == math.Trunc(x) && math.Abs(x) <= 1<<53 {
			return int64(x), nil
		}
		return x, nil
	case json.Number:
		if i, err := x.Int64(); err == nil {
			return i, nil
		}
		f, err := x.Float64()
		if err != nil {
			return nil, invalid(field, "invalid number %q", x.String())
		}
		return f, nil
	default:
		return nil, invalid(field, "value must be a string, number, boolean or null")
	}
}

// columnValues validates that every key of fields is a whitelisted column and
// normalizes its value. Keys for which skip returns true are ignored. The
// first unknown key rejects the whole set.
func columnValues(fields map[string]any, skip func(string) bool) (map[string]any, []string, error) {
	values := make(map[string]any, len(fields))
	keys := make([]string, 0, len(fields))
	for key, raw := range fields {
		if skip != nil && skip(key) {
			continue
		}
		if !schema.IsAllowedColumn(key) {
			return nil, nil, invalid(key, "column is not allowed")
		}
		v, err := scalar(key, raw)
		if err != nil {
			return nil, nil, err
		}
		values[key] = v
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return values, keys, nil
}

func skipTableName(key string) bool {
	return key == schema.TableNameKey
}

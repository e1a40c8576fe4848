package builder

import (
	"fmt"
	"math"
	"strings"

	"github.com/Lumos-Labs-HQ/flashgate/internal/schema"
	"github.com/Masterminds/squirrel"
)

// ConfirmKey lets a delete without filters opt in to wiping the table.
const ConfirmKey = "confirm"

var currentTimestamp = squirrel.Expr("CURRENT_TIMESTAMP")

// Insert builds one INSERT for record. The table_name key is ignored; any
// other key that is not a whitelisted column rejects the record.
func (b *Builder) Insert(table string, record map[string]any) (Statement, error) {
	values, keys, err := columnValues(record, skipTableName)
	if err != nil {
		return Statement{}, err
	}

	returning := "RETURNING " + schema.Quote(schema.IDColumn)
	if len(keys) == 0 {
		return Statement{Text: fmt.Sprintf("INSERT INTO %s DEFAULT VALUES %s", schema.Quote(table), returning)}, nil
	}

	cols := make([]string, len(keys))
	args := make([]any, len(keys))
	for i, key := range keys {
		cols[i] = schema.Quote(key)
		args[i] = values[key]
	}
	return toStatement(b.qb.Insert(schema.Quote(table)).Columns(cols...).Values(args...).Suffix(returning))
}

// BatchInsert builds an INSERT per record. A single invalid record fails the
// whole batch and no statements are returned.
func (b *Builder) BatchInsert(table string, records []map[string]any) ([]Statement, error) {
	if len(records) == 0 {
		return nil, invalid("records", "at least one record is required")
	}
	stmts := make([]Statement, 0, len(records))
	for i, record := range records {
		stmt, err := b.Insert(table, record)
		if err != nil {
			return nil, fmt.Errorf("record %d: %w", i, err)
		}
		stmts = append(stmts, stmt)
	}
	return stmts, nil
}

// Update sets every supplied column on the row with the given id and always
// refreshes the last-modified column. With no fields it only touches the row.
func (b *Builder) Update(table string, id any, fields map[string]any) (Statement, error) {
	values, keys, err := columnValues(fields, func(key string) bool {
		return key == schema.TableNameKey || key == schema.IDColumn
	})
	if err != nil {
		return Statement{}, err
	}

	q := b.qb.Update(schema.Quote(table))
	for _, key := range keys {
		// The refresh below wins over a client supplied value.
		if key == schema.ModifiedColumn {
			continue
		}
		q = q.Set(schema.Quote(key), values[key])
	}
	q = q.Set(schema.Quote(schema.ModifiedColumn), currentTimestamp).
		Where(squirrel.Eq{schema.Quote(schema.IDColumn): id})
	return toStatement(q)
}

// Select builds a filtered, ordered and bounded read. Keys that are not query
// options are equality filters and must be whitelisted columns.
func (b *Builder) Select(table string, payload map[string]any) (Statement, error) {
	if payload[schema.OptOffset] != nil && payload[schema.OptMinID] != nil {
		return Statement{}, invalid("", "offset and minId cannot be combined")
	}

	values, keys, err := columnValues(payload, func(key string) bool {
		return key == schema.TableNameKey || schema.IsAllowedQueryOption(key)
	})
	if err != nil {
		return Statement{}, err
	}

	orderBy := schema.IDColumn
	if raw, ok := payload[schema.OptOrderBy]; ok && raw != nil {
		col, isString := raw.(string)
		if !isString || !schema.IsAllowedColumn(col) {
			return Statement{}, invalid(schema.OptOrderBy, "sort column is not allowed")
		}
		orderBy = col
	}

	desc := false
	if dir, ok := payload[schema.OptOrder].(string); ok && strings.EqualFold(strings.TrimSpace(dir), "desc") {
		desc = true
	}

	q := b.qb.Select("*").From(schema.Quote(table))
	for _, key := range keys {
		q = q.Where(squirrel.Eq{schema.Quote(key): values[key]})
	}

	bound, hasBound := payload[schema.OptMinID], payload[schema.OptMinID] != nil
	if !hasBound {
		bound, hasBound = payload[schema.OptOffset], payload[schema.OptOffset] != nil
	}
	if hasBound {
		v, err := scalar("bound", bound)
		if err != nil {
			return Statement{}, err
		}
		if desc {
			q = q.Where(squirrel.Lt{schema.Quote(orderBy): v})
		} else {
			q = q.Where(squirrel.Gt{schema.Quote(orderBy): v})
		}
	}

	direction := "ASC"
	if desc {
		direction = "DESC"
	}
	q = q.OrderBy(schema.Quote(orderBy) + " " + direction).Limit(ClampLimit(payload[schema.OptLimit]))
	return toStatement(q)
}

// ClampLimit returns DefaultLimit for absent, non-integer or non-positive
// values and caps everything else at MaxLimit.
func ClampLimit(raw any) uint64 {
	var n float64
	switch x := raw.(type) {
	case float64:
		n = x
	case int:
		n = float64(x)
	case int64:
		n = float64(x)
	default:
		return DefaultLimit
	}
	if n != math.Trunc(n) || n <= 0 {
		return DefaultLimit
	}
	if n > MaxLimit {
		return MaxLimit
	}
	return uint64(n)
}

// Delete builds a DELETE with an equality condition per supplied column.
// wildcard is true when no filters were supplied and every row will go.
func (b *Builder) Delete(table string, filters map[string]any) (stmt Statement, wildcard bool, err error) {
	values, keys, err := columnValues(filters, func(key string) bool {
		return key == schema.TableNameKey || key == ConfirmKey
	})
	if err != nil {
		return Statement{}, false, err
	}

	q := b.qb.Delete(schema.Quote(table))
	for _, key := range keys {
		q = q.Where(squirrel.Eq{schema.Quote(key): values[key]})
	}
	stmt, err = toStatement(q)
	return stmt, len(keys) == 0, err
}

package gateway

import (
	"context"
	"encoding/json"
	"math"

	"github.com/Lumos-Labs-HQ/flashgate/internal/builder"
	"github.com/Lumos-Labs-HQ/flashgate/internal/database/common"
	"github.com/Lumos-Labs-HQ/flashgate/internal/logsink"
	"github.com/Lumos-Labs-HQ/flashgate/internal/schema"
	"go.uber.org/zap"
)

func (g *Gateway) createTable(ctx context.Context, c *call) (Result, error) {
	unique, err := optionalBool(c.Payload, "c1_unique")
	if err != nil {
		return nil, err
	}
	stmts := g.builder.CreateTable(c.table, unique)
	c.stage = StageValidated

	if _, err := g.store.Batch(ctx, stmts); err != nil {
		return nil, g.storeFailure(c, err)
	}
	c.stage = StageExecuted
	return Result{"table": c.table, "created": true}, nil
}

func (g *Gateway) dropTable(ctx context.Context, c *call) (Result, error) {
	c.stage = StageValidated
	if _, err := g.store.Exec(ctx, g.builder.DropTable(c.table)); err != nil {
		return nil, g.storeFailure(c, err)
	}
	c.stage = StageExecuted
	return Result{"table": c.table, "dropped": true}, nil
}

func (g *Gateway) listTables(ctx context.Context, c *call) (Result, error) {
	stmt, err := g.builder.ListTables()
	if err != nil {
		return nil, fromBuild(err)
	}
	c.stage = StageValidated

	out, err := g.store.Query(ctx, stmt)
	if err != nil {
		return nil, g.storeFailure(c, err)
	}
	c.stage = StageExecuted

	tables := make([]string, 0, len(out.Rows))
	for _, row := range out.Rows {
		if name, ok := row["name"].(string); ok && !schema.IsForbiddenTableName(name) {
			tables = append(tables, name)
		}
	}
	return Result{"tables": tables}, nil
}

func (g *Gateway) createIndex(ctx context.Context, c *call) (Result, error) {
	column, err := requiredString(c.Payload, "column")
	if err != nil {
		return nil, err
	}
	unique, err := optionalBool(c.Payload, "unique")
	if err != nil {
		return nil, err
	}
	stmt, err := g.builder.CreateIndex(c.table, column, unique)
	if err != nil {
		return nil, fromBuild(err)
	}
	c.stage = StageValidated

	if _, err := g.store.Exec(ctx, stmt); err != nil {
		return nil, g.storeFailure(c, err)
	}
	c.stage = StageExecuted
	return Result{"index": schema.IndexName(c.table, column), "unique": unique}, nil
}

func (g *Gateway) dropIndex(ctx context.Context, c *call) (Result, error) {
	column, err := requiredString(c.Payload, "column")
	if err != nil {
		return nil, err
	}
	stmt, err := g.builder.DropIndex(c.table, column)
	if err != nil {
		return nil, fromBuild(err)
	}
	c.stage = StageValidated

	if _, err := g.store.Exec(ctx, stmt); err != nil {
		return nil, g.storeFailure(c, err)
	}
	c.stage = StageExecuted
	return Result{"index": schema.IndexName(c.table, column), "dropped": true}, nil
}

func (g *Gateway) listIndices(ctx context.Context, c *call) (Result, error) {
	stmt, err := g.builder.ListIndices(c.table)
	if err != nil {
		return nil, fromBuild(err)
	}
	c.stage = StageValidated

	out, err := g.store.Query(ctx, stmt)
	if err != nil {
		return nil, g.storeFailure(c, err)
	}
	c.stage = StageExecuted
	return Result{"indices": rows(out)}, nil
}

func (g *Gateway) post(ctx context.Context, c *call) (Result, error) {
	stmt, err := g.builder.Insert(c.table, c.Payload)
	if err != nil {
		return nil, fromBuild(err)
	}
	c.stage = StageValidated

	out, err := g.store.Query(ctx, stmt)
	if err != nil {
		return nil, g.storeFailure(c, err)
	}
	c.stage = StageExecuted

	var id any
	if len(out.Rows) > 0 {
		id = out.Rows[0][schema.IDColumn]
	}
	return Result{"id": id, "changes": len(out.Rows)}, nil
}

func (g *Gateway) batchPost(ctx context.Context, c *call) (Result, error) {
	raw, ok := c.Payload["records"].([]any)
	if !ok {
		return nil, validation("records must be an array of objects")
	}
	records := make([]map[string]any, 0, len(raw))
	for i, item := range raw {
		record, ok := item.(map[string]any)
		if !ok {
			return nil, validation("record %d must be an object", i)
		}
		records = append(records, record)
	}

	stmts, err := g.builder.BatchInsert(c.table, records)
	if err != nil {
		return nil, fromBuild(err)
	}
	c.stage = StageValidated

	results, err := g.store.Batch(ctx, stmts)
	if err != nil {
		return nil, g.storeFailure(c, err)
	}
	c.stage = StageExecuted
	return Result{"inserted": len(results)}, nil
}

func (g *Gateway) put(ctx context.Context, c *call) (Result, error) {
	id, err := recordID(c.Payload[schema.IDColumn])
	if err != nil {
		return nil, err
	}
	stmt, err := g.builder.Update(c.table, id, c.Payload)
	if err != nil {
		return nil, fromBuild(err)
	}
	c.stage = StageValidated

	out, err := g.store.Exec(ctx, stmt)
	if err != nil {
		return nil, g.storeFailure(c, err)
	}
	c.stage = StageExecuted

	if out.RowsAffected == 0 {
		return nil, NewError(KindNotFound, "record not found")
	}
	return Result{"id": id, "changes": out.RowsAffected}, nil
}

func (g *Gateway) get(ctx context.Context, c *call) (Result, error) {
	stmt, err := g.builder.Select(c.table, c.Payload)
	if err != nil {
		return nil, fromBuild(err)
	}
	c.stage = StageValidated

	out, err := g.store.Query(ctx, stmt)
	if err != nil {
		return nil, g.storeFailure(c, err)
	}
	c.stage = StageExecuted

	list := rows(out)
	return Result{"rows": list, "count": len(list)}, nil
}

func (g *Gateway) delete(ctx context.Context, c *call) (Result, error) {
	stmt, wildcard, err := g.builder.Delete(c.table, c.Payload)
	if err != nil {
		return nil, fromBuild(err)
	}

	if wildcard {
		confirmed, _ := c.Payload[builder.ConfirmKey].(bool)
		if g.opts.RequireWipeConfirm && !confirmed {
			return nil, validation("deleting every row requires %q: true", builder.ConfirmKey)
		}
		g.log.Warn("deleting every row",
			zap.String("request_id", c.ID),
			zap.String("table", c.table))
		g.sink.Send(logsink.Event{
			Level:   "warn",
			Message: "destructive_delete",
			Fields:  map[string]any{"request_id": c.ID, "table": c.table},
		})
	}
	c.stage = StageValidated

	out, err := g.store.Exec(ctx, stmt)
	if err != nil {
		return nil, g.storeFailure(c, err)
	}
	c.stage = StageExecuted
	return Result{"deleted": out.RowsAffected, "wildcard": wildcard}, nil
}

func (g *Gateway) exec(ctx context.Context, c *call) (Result, error) {
	text, err := requiredString(c.Payload, "sql")
	if err != nil {
		return nil, err
	}
	var params []any
	if raw, ok := c.Payload["params"]; ok && raw != nil {
		if params, ok = raw.([]any); !ok {
			return nil, validation("params must be an array")
		}
	}

	stmt, err := g.builder.Exec(text, params)
	if err != nil {
		return nil, fromBuild(err)
	}
	c.stage = StageValidated

	if builder.IsQuery(stmt.Text) {
		out, err := g.store.Query(ctx, stmt)
		if err != nil {
			return nil, g.storeFailure(c, err)
		}
		c.stage = StageExecuted
		list := rows(out)
		return Result{"rows": list, "count": len(list)}, nil
	}

	out, err := g.store.Exec(ctx, stmt)
	if err != nil {
		return nil, g.storeFailure(c, err)
	}
	c.stage = StageExecuted
	return Result{"changes": out.RowsAffected}, nil
}

func rows(out *common.QueryResult) []map[string]any {
	if out == nil || out.Rows == nil {
		return []map[string]any{}
	}
	return out.Rows
}

func requiredString(payload map[string]any, key string) (string, error) {
	s, ok := payload[key].(string)
	if !ok || s == "" {
		return "", validation("%s is required", key)
	}
	return s, nil
}

func optionalBool(payload map[string]any, key string) (bool, error) {
	raw, ok := payload[key]
	if !ok || raw == nil {
		return false, nil
	}
	b, ok := raw.(bool)
	if !ok {
		return false, validation("%s must be a boolean", key)
	}
	return b, nil
}

// recordID accepts an integral JSON number.
func recordID(raw any) (int64, error) {
	switch x := raw.(type) {
	case nil:
		return 0, validation("id is required")
	case float64:
		if x == math.Trunc(x) && math.Abs(x) <= 1<<53 {
			return int64(x), nil
		}
	case int64:
		return x, nil
	case int:
		return int64(x), nil
	case json.Number:
		if n, err := x.Int64(); err == nil {
			return n, nil
		}
	}
	return 0, validation("id must be an integer")
}

// Package gateway dispatches envelope actions to the statement builder and
// the store, and normalizes outcomes into results or typed errors.
package gateway

import (
	"context"
	"fmt"
	"sort"

	"github.com/Lumos-Labs-HQ/flashgate/internal/builder"
	"github.com/Lumos-Labs-HQ/flashgate/internal/database"
	"github.com/Lumos-Labs-HQ/flashgate/internal/logsink"
	"github.com/Lumos-Labs-HQ/flashgate/internal/schema"
	"go.uber.org/zap"
)

// Result is the payload of a successful action.
type Result = map[string]any

// Request is one decoded envelope.
type Request struct {
	ID      string
	Action  string
	Payload map[string]any
}

// Stage tracks how far a request progressed before it finished.
type Stage string

const (
	StageReceived      Stage = "RECEIVED"
	StageTableResolved Stage = "TABLE_RESOLVED"
	StageValidated     Stage = "VALIDATED"
	StageExecuted      Stage = "EXECUTED"
	StageNormalized    Stage = "NORMALIZED"
)

// call is the per-request state handed down the handler chain.
type call struct {
	Request
	table string
	stage Stage
}

type handler struct {
	// tableOptional actions accept a missing table_name or the "*" sentinel.
	tableOptional bool
	run           func(g *Gateway, ctx context.Context, c *call) (Result, error)
}

type Options struct {
	// RequireWipeConfirm makes delete without filters demand "confirm": true.
	RequireWipeConfirm bool
}

type Gateway struct {
	store    database.Store
	builder  *builder.Builder
	log      *zap.Logger
	sink     logsink.Sink
	opts     Options
	handlers map[string]handler
}

func New(store database.Store, b *builder.Builder, log *zap.Logger, sink logsink.Sink, opts Options) *Gateway {
	if log == nil {
		log = zap.NewNop()
	}
	if sink == nil {
		sink = logsink.Nop{}
	}
	return &Gateway{
		store:    store,
		builder:  b,
		log:      log,
		sink:     sink,
		opts:     opts,
		handlers: handlers(),
	}
}

func handlers() map[string]handler {
	return map[string]handler{
		"create_table": {run: (*Gateway).createTable},
		"drop_table":   {run: (*Gateway).dropTable},
		"list_tables":  {run: (*Gateway).listTables, tableOptional: true},
		"create_index": {run: (*Gateway).createIndex},
		"drop_index":   {run: (*Gateway).dropIndex},
		"list_indices": {run: (*Gateway).listIndices},
		"post":         {run: (*Gateway).post},
		"batch_post":   {run: (*Gateway).batchPost},
		"put":          {run: (*Gateway).put},
		"get":          {run: (*Gateway).get},
		"delete":       {run: (*Gateway).delete},
		"exec":         {run: (*Gateway).exec, tableOptional: true},
	}
}

// Actions returns the supported action names, sorted.
func (g *Gateway) Actions() []string {
	names := make([]string, 0, len(g.handlers))
	for name := range g.handlers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Dispatch runs a single request. Every failure is returned as an *Error;
// store failures never escape as panics or raw driver errors.
func (g *Gateway) Dispatch(ctx context.Context, req Request) (res Result, err error) {
	c := &call{Request: req, stage: StageReceived}

	defer func() {
		if r := recover(); r != nil {
			res, err = nil, g.storeFailure(c, fmt.Errorf("panic: %v", r))
		}
	}()

	h, ok := g.handlers[req.Action]
	if !ok {
		return nil, NewError(KindUnknownAction, fmt.Sprintf("unknown action: %q", req.Action))
	}
	if req.Payload == nil {
		return nil, malformed("payload is required")
	}

	if !h.tableOptional {
		table, ok := schema.ResolveTableName(req.Payload)
		if !ok || table == schema.AnyTable {
			return nil, malformed("table_name is missing or not allowed")
		}
		c.table = table
	}
	c.stage = StageTableResolved

	res, err = h.run(g, ctx, c)
	if err != nil {
		g.log.Debug("action failed",
			zap.String("request_id", c.ID),
			zap.String("action", c.Action),
			zap.String("stage", string(c.stage)),
			zap.Error(err))
		return nil, err
	}
	c.stage = StageNormalized
	return res, nil
}

// storeFailure logs err, forwards it to the sink and converts it into a
// DB_ERROR.
func (g *Gateway) storeFailure(c *call, err error) *Error {
	g.log.Error("store operation failed",
		zap.String("request_id", c.ID),
		zap.String("action", c.Action),
		zap.String("table", c.table),
		zap.Error(err))
	g.sink.Send(logsink.Event{
		Level:   "error",
		Message: "store operation failed",
		Fields: map[string]any{
			"request_id": c.ID,
			"action":     c.Action,
			"table":      c.table,
			"error":      err.Error(),
		},
	})
	return &Error{Kind: KindStore, Code: CodeDBError, Message: "operation failed: " + err.Error(), Err: err}
}

package gateway

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"

	"github.com/Lumos-Labs-HQ/flashgate/internal/builder"
	"github.com/Lumos-Labs-HQ/flashgate/internal/database/common"
	"github.com/Lumos-Labs-HQ/flashgate/internal/database/sqlite"
	"github.com/Lumos-Labs-HQ/flashgate/internal/logsink"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeStore records every statement it receives.
type fakeStore struct {
	mu       sync.Mutex
	calls    []builder.Statement
	queryRes *common.QueryResult
	execRes  common.ExecResult
	err      error
}

func (f *fakeStore) record(stmts ...builder.Statement) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, stmts...)
}

func (f *fakeStore) Connect(context.Context, string) error { return nil }

func (f *fakeStore) Close() error { return nil }

func (f *fakeStore) Ping(context.Context) error { return nil }

func (f *fakeStore) Query(_ context.Context, stmt builder.Statement) (*common.QueryResult, error) {
	f.record(stmt)
	if f.err != nil {
		return nil, f.err
	}
	if f.queryRes == nil {
		return &common.QueryResult{}, nil
	}
	return f.queryRes, nil
}

func (f *fakeStore) Exec(_ context.Context, stmt builder.Statement) (common.ExecResult, error) {
	f.record(stmt)
	return f.execRes, f.err
}

func (f *fakeStore) Batch(_ context.Context, stmts []builder.Statement) ([]common.ExecResult, error) {
	f.record(stmts...)
	if f.err != nil {
		return nil, f.err
	}
	return make([]common.ExecResult, len(stmts)), nil
}

type captureSink struct {
	mu     sync.Mutex
	events []logsink.Event
}

func (s *captureSink) Send(ev logsink.Event) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, ev)
}

func (s *captureSink) Close(context.Context) error { return nil }

func newFakeGateway(t *testing.T, store *fakeStore, opts Options) (*Gateway, *captureSink) {
	t.Helper()
	b, err := builder.New(builder.SQLite)
	require.NoError(t, err)
	sink := &captureSink{}
	return New(store, b, nil, sink, opts), sink
}

func requireKind(t *testing.T, err error, kind Kind, code string) *Error {
	t.Helper()
	require.Error(t, err)
	var gerr *Error
	require.True(t, errors.As(err, &gerr), "expected *Error, got %T", err)
	assert.Equal(t, kind, gerr.Kind)
	assert.Equal(t, code, gerr.Code)
	return gerr
}

func TestDispatch_UnknownAction(t *testing.T) {
	store := &fakeStore{}
	g, _ := newFakeGateway(t, store, Options{})

	_, err := g.Dispatch(context.Background(), Request{Action: "truncate", Payload: map[string]any{"table_name": "t"}})
	requireKind(t, err, KindUnknownAction, CodeRequestFailed)
	assert.Empty(t, store.calls)
}

func TestDispatch_TableResolution(t *testing.T) {
	store := &fakeStore{}
	g, _ := newFakeGateway(t, store, Options{})
	ctx := context.Background()

	for _, name := range []any{nil, "", "   ", "sqlite_master", "SQLITE_SEQUENCE", "*", 42} {
		payload := map[string]any{}
		if name != nil {
			payload["table_name"] = name
		}
		_, err := g.Dispatch(ctx, Request{Action: "get", Payload: payload})
		requireKind(t, err, KindMalformed, CodeInvalidField)
	}

	_, err := g.Dispatch(ctx, Request{Action: "get"})
	requireKind(t, err, KindMalformed, CodeInvalidField)
	assert.Empty(t, store.calls)

	_, err = g.Dispatch(ctx, Request{Action: "list_tables", Payload: map[string]any{"table_name": "*"}})
	require.NoError(t, err)
	_, err = g.Dispatch(ctx, Request{Action: "list_tables", Payload: map[string]any{}})
	require.NoError(t, err)
}

func TestDispatch_DisallowedColumnsNeverReachStore(t *testing.T) {
	ctx := context.Background()
	cases := []struct {
		action  string
		payload map[string]any
	}{
		{"post", map[string]any{"c1": "a", "password": "x"}},
		{"put", map[string]any{"id": float64(1), "owner": "x"}},
		{"delete", map[string]any{"c1": "a", "role": "admin"}},
		{"get", map[string]any{"email": "a@b.c"}},
		{"get", map[string]any{"orderby": "email"}},
		{"batch_post", map[string]any{"records": []any{
			map[string]any{"c1": "ok"},
			map[string]any{"c1": "ok", "evil": true},
		}}},
		{"create_index", map[string]any{"column": "email"}},
		{"drop_index", map[string]any{"column": "email"}},
	}

	for _, tc := range cases {
		t.Run(tc.action, func(t *testing.T) {
			store := &fakeStore{}
			g, _ := newFakeGateway(t, store, Options{})
			tc.payload["table_name"] = "notes"

			_, err := g.Dispatch(ctx, Request{Action: tc.action, Payload: tc.payload})
			requireKind(t, err, KindValidation, CodeInvalidField)
			assert.Empty(t, store.calls)
		})
	}
}

func TestDispatch_GetRejectsOffsetWithMinID(t *testing.T) {
	store := &fakeStore{}
	g, _ := newFakeGateway(t, store, Options{})

	_, err := g.Dispatch(context.Background(), Request{Action: "get", Payload: map[string]any{
		"table_name": "notes", "offset": float64(10), "minId": float64(5),
	}})
	requireKind(t, err, KindValidation, CodeInvalidField)
	assert.Empty(t, store.calls)
}

func TestDispatch_PutRequiresIntegerID(t *testing.T) {
	store := &fakeStore{}
	g, _ := newFakeGateway(t, store, Options{})
	ctx := context.Background()

	for _, id := range []any{nil, "7", 1.5, true} {
		payload := map[string]any{"table_name": "notes"}
		if id != nil {
			payload["id"] = id
		}
		_, err := g.Dispatch(ctx, Request{Action: "put", Payload: payload})
		requireKind(t, err, KindValidation, CodeInvalidField)
	}
	assert.Empty(t, store.calls)
}

func TestDispatch_PutNotFound(t *testing.T) {
	store := &fakeStore{execRes: common.ExecResult{RowsAffected: 0}}
	g, _ := newFakeGateway(t, store, Options{})

	_, err := g.Dispatch(context.Background(), Request{Action: "put", Payload: map[string]any{
		"table_name": "notes", "id": float64(404),
	}})
	gerr := requireKind(t, err, KindNotFound, CodeRequestFailed)
	assert.Equal(t, "record not found", gerr.Message)
	require.Len(t, store.calls, 1)
}

func TestDispatch_StoreErrorIsWrapped(t *testing.T) {
	store := &fakeStore{err: errors.New("disk I/O error")}
	g, sink := newFakeGateway(t, store, Options{})

	_, err := g.Dispatch(context.Background(), Request{ID: "r1", Action: "drop_table", Payload: map[string]any{"table_name": "notes"}})
	gerr := requireKind(t, err, KindStore, CodeDBError)
	assert.Equal(t, "operation failed: disk I/O error", gerr.Message)
	assert.ErrorIs(t, err, store.err)

	require.Len(t, sink.events, 1)
	assert.Equal(t, "error", sink.events[0].Level)
	assert.Equal(t, "r1", sink.events[0].Fields["request_id"])
}

func TestDispatch_ExecBlocksInternalTables(t *testing.T) {
	store := &fakeStore{}
	g, _ := newFakeGateway(t, store, Options{})
	ctx := context.Background()

	for _, sql := range []string{
		"SELECT * FROM sqlite_master",
		"select name from SQLITE_MASTER",
		"SELECT * FROM sqlite_ master",
		"select * from pg_catalog.pg_tables",
		"SELECT * FROM sqlite_stat1",
		"SELECT * FROM d1_migrations",
	} {
		_, err := g.Dispatch(ctx, Request{Action: "exec", Payload: map[string]any{"sql": sql}})
		requireKind(t, err, KindValidation, CodeInvalidField)
	}
	assert.Empty(t, store.calls)

	_, err := g.Dispatch(ctx, Request{Action: "exec", Payload: map[string]any{"sql": "SELECT 1", "params": "nope"}})
	requireKind(t, err, KindValidation, CodeInvalidField)
}

func TestDispatch_WildcardDelete(t *testing.T) {
	ctx := context.Background()

	t.Run("allowed with signal", func(t *testing.T) {
		store := &fakeStore{execRes: common.ExecResult{RowsAffected: 3}}
		g, sink := newFakeGateway(t, store, Options{})

		res, err := g.Dispatch(ctx, Request{Action: "delete", Payload: map[string]any{"table_name": "notes"}})
		require.NoError(t, err)
		assert.Equal(t, int64(3), res["deleted"])
		assert.Equal(t, true, res["wildcard"])

		require.Len(t, sink.events, 1)
		assert.Equal(t, "destructive_delete", sink.events[0].Message)
		require.Len(t, store.calls, 1)
		assert.Equal(t, `DELETE FROM "notes"`, store.calls[0].Text)
	})

	t.Run("confirmation required", func(t *testing.T) {
		store := &fakeStore{}
		g, sink := newFakeGateway(t, store, Options{RequireWipeConfirm: true})

		_, err := g.Dispatch(ctx, Request{Action: "delete", Payload: map[string]any{"table_name": "notes"}})
		requireKind(t, err, KindValidation, CodeInvalidField)
		assert.Empty(t, store.calls)
		assert.Empty(t, sink.events)

		_, err = g.Dispatch(ctx, Request{Action: "delete", Payload: map[string]any{"table_name": "notes", "confirm": true}})
		require.NoError(t, err)
		assert.Len(t, store.calls, 1)
	})
}

func TestDispatch_RecoversFromPanics(t *testing.T) {
	g, _ := newFakeGateway(t, &fakeStore{}, Options{})
	g.store = nil

	_, err := g.Dispatch(context.Background(), Request{Action: "drop_table", Payload: map[string]any{"table_name": "notes"}})
	requireKind(t, err, KindStore, CodeDBError)
}

func TestActions(t *testing.T) {
	g, _ := newFakeGateway(t, &fakeStore{}, Options{})
	assert.Equal(t, []string{
		"batch_post", "create_index", "create_table", "delete", "drop_index", "drop_table",
		"exec", "get", "list_indices", "list_tables", "post", "put",
	}, g.Actions())
}

func newSQLiteGateway(t *testing.T) *Gateway {
	t.Helper()
	store := sqlite.New()
	require.NoError(t, store.Connect(context.Background(), "sqlite://"+filepath.Join(t.TempDir(), "gateway.db")))
	t.Cleanup(func() { store.Close() })

	b, err := builder.New(builder.SQLite)
	require.NoError(t, err)
	return New(store, b, nil, nil, Options{})
}

func dispatch(t *testing.T, g *Gateway, action string, payload map[string]any) Result {
	t.Helper()
	res, err := g.Dispatch(context.Background(), Request{ID: "test", Action: action, Payload: payload})
	require.NoError(t, err, "%s failed", action)
	return res
}

func TestSQLite_TableRoundTrip(t *testing.T) {
	g := newSQLiteGateway(t)

	dispatch(t, g, "create_table", map[string]any{"table_name": " notes ", "c1_unique": true})
	res := dispatch(t, g, "list_tables", map[string]any{"table_name": "*"})
	assert.Contains(t, res["tables"], "notes")

	dispatch(t, g, "drop_table", map[string]any{"table_name": "notes"})
	res = dispatch(t, g, "list_tables", map[string]any{})
	assert.NotContains(t, res["tables"], "notes")

	// Dropping again is not an error.
	dispatch(t, g, "drop_table", map[string]any{"table_name": "notes"})
}

func TestSQLite_ListTablesKeepsLookalikeNames(t *testing.T) {
	g := newSQLiteGateway(t)

	names := []string{"sqlitebackup", "acf_log", "pgxusers", "notes"}
	for _, name := range names {
		dispatch(t, g, "create_table", map[string]any{"table_name": name})
	}

	res := dispatch(t, g, "list_tables", map[string]any{})
	assert.ElementsMatch(t, names, res["tables"])
}

func TestDispatch_ListTablesHidesReservedNames(t *testing.T) {
	store := &fakeStore{queryRes: &common.QueryResult{Rows: []map[string]any{
		{"name": "_cf_KV"},
		{"name": "d1_migrations"},
		{"name": "notes"},
		{"name": "sqlite_sequence"},
		{"name": "sqlitebackup"},
	}}}
	g, _ := newFakeGateway(t, store, Options{})

	res, err := g.Dispatch(context.Background(), Request{Action: "list_tables", Payload: map[string]any{}})
	require.NoError(t, err)
	assert.Equal(t, []string{"notes", "sqlitebackup"}, res["tables"])
}

func TestSQLite_ExecCommentDoesNotMakeAQuery(t *testing.T) {
	g := newSQLiteGateway(t)
	dispatch(t, g, "create_table", map[string]any{"table_name": "customers"})
	dispatch(t, g, "post", map[string]any{"table_name": "customers", "c1": "old"})

	res := dispatch(t, g, "exec", map[string]any{
		"sql":    "UPDATE customers SET c1 = ? WHERE id = 1 -- returning customers",
		"params": []any{"new"},
	})
	assert.Equal(t, Result{"changes": int64(1)}, res)

	res = dispatch(t, g, "get", map[string]any{"table_name": "customers", "c1": "new"})
	assert.Equal(t, 1, res["count"])
}

func TestSQLite_RowLifecycle(t *testing.T) {
	g := newSQLiteGateway(t)
	dispatch(t, g, "create_table", map[string]any{"table_name": "notes"})

	res := dispatch(t, g, "batch_post", map[string]any{"table_name": "notes", "records": []any{
		map[string]any{"c1": "a", "i1": float64(1)},
		map[string]any{"c1": "b", "i1": float64(2)},
		map[string]any{"c1": "c", "i1": float64(3)},
	}})
	assert.Equal(t, 3, res["inserted"])

	res = dispatch(t, g, "post", map[string]any{"table_name": "notes", "c1": "d", "f1": 1.5})
	assert.Equal(t, int64(4), res["id"])

	res = dispatch(t, g, "get", map[string]any{"table_name": "notes", "order": "desc", "limit": float64(2)})
	rows := res["rows"].([]map[string]any)
	require.Len(t, rows, 2)
	assert.Equal(t, "d", rows[0]["c1"])

	res = dispatch(t, g, "get", map[string]any{"table_name": "notes", "minId": float64(2)})
	assert.Equal(t, 2, res["count"])

	// A touch with no fields still succeeds.
	res = dispatch(t, g, "put", map[string]any{"table_name": "notes", "id": float64(1)})
	assert.Equal(t, int64(1), res["changes"])
	dispatch(t, g, "put", map[string]any{"table_name": "notes", "id": float64(1), "c2": "edited"})

	res = dispatch(t, g, "get", map[string]any{"table_name": "notes", "c2": "edited"})
	assert.Equal(t, 1, res["count"])

	_, err := g.Dispatch(context.Background(), Request{Action: "put", Payload: map[string]any{"table_name": "notes", "id": float64(99)}})
	requireKind(t, err, KindNotFound, CodeRequestFailed)

	res = dispatch(t, g, "delete", map[string]any{"table_name": "notes", "c1": "a"})
	assert.Equal(t, int64(1), res["deleted"])

	res = dispatch(t, g, "exec", map[string]any{"sql": "SELECT COUNT(*) AS n FROM notes WHERE i1 >= ?", "params": []any{float64(2)}})
	rows = res["rows"].([]map[string]any)
	require.Len(t, rows, 1)
	assert.Equal(t, int64(2), rows[0]["n"])

	res = dispatch(t, g, "exec", map[string]any{"sql": "UPDATE notes SET i2 = ?", "params": []any{float64(9)}})
	assert.Equal(t, int64(3), res["changes"])

	res = dispatch(t, g, "delete", map[string]any{"table_name": "notes"})
	assert.Equal(t, int64(3), res["deleted"])
}

func TestSQLite_BatchIsAtomic(t *testing.T) {
	g := newSQLiteGateway(t)
	dispatch(t, g, "create_table", map[string]any{"table_name": "notes", "c1_unique": true})

	_, err := g.Dispatch(context.Background(), Request{Action: "batch_post", Payload: map[string]any{
		"table_name": "notes",
		"records":    []any{map[string]any{"c1": "same"}, map[string]any{"c1": "same"}},
	}})
	requireKind(t, err, KindStore, CodeDBError)

	res := dispatch(t, g, "get", map[string]any{"table_name": "notes"})
	assert.Equal(t, 0, res["count"])
}

func TestSQLite_Indices(t *testing.T) {
	g := newSQLiteGateway(t)
	dispatch(t, g, "create_table", map[string]any{"table_name": "notes", "c1_unique": true})

	res := dispatch(t, g, "create_index", map[string]any{"table_name": "notes", "column": "i1", "unique": true})
	assert.Equal(t, "idx_notes_i1", res["index"])
	// Idempotent.
	dispatch(t, g, "create_index", map[string]any{"table_name": "notes", "column": "i1"})

	res = dispatch(t, g, "list_indices", map[string]any{"table_name": "notes"})
	var names []any
	for _, row := range res["indices"].([]map[string]any) {
		names = append(names, row["name"])
	}
	assert.Contains(t, names, "idx_notes_i1")
	assert.Contains(t, names, "idx_notes_d2")

	dispatch(t, g, "drop_index", map[string]any{"table_name": "notes", "column": "i1"})
	res = dispatch(t, g, "list_indices", map[string]any{"table_name": "notes"})
	names = nil
	for _, row := range res["indices"].([]map[string]any) {
		names = append(names, row["name"])
	}
	assert.NotContains(t, names, "idx_notes_i1")
}

package server

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	"github.com/Lumos-Labs-HQ/flashgate/internal/builder"
	"github.com/Lumos-Labs-HQ/flashgate/internal/database/sqlite"
	"github.com/Lumos-Labs-HQ/flashgate/internal/gateway"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testToken = "s3cret"

func newTestServer(t *testing.T) *Server {
	t.Helper()
	store := sqlite.New()
	require.NoError(t, store.Connect(context.Background(), "sqlite://"+filepath.Join(t.TempDir(), "server.db")))
	t.Cleanup(func() { store.Close() })

	b, err := builder.New(builder.SQLite)
	require.NoError(t, err)

	gw := gateway.New(store, b, nil, nil, gateway.Options{})
	return New(gw, nil, Options{Token: testToken, Service: "flashgate", Version: "test"})
}

type envelope struct {
	Type      string         `json:"type"`
	RequestID string         `json:"request_id"`
	Payload   map[string]any `json:"payload"`
}

func do(t *testing.T, s *Server, method, path, auth, body string) (int, envelope) {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	if auth != "" {
		req.Header.Set("Authorization", auth)
	}

	resp, err := s.App().Test(req, -1)
	require.NoError(t, err)
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	var env envelope
	if len(raw) > 0 {
		require.NoError(t, json.Unmarshal(raw, &env), string(raw))
	}
	return resp.StatusCode, env
}

func api(t *testing.T, s *Server, body string) (int, envelope) {
	t.Helper()
	return do(t, s, http.MethodPost, "/api", "Bearer "+testToken, body)
}

func assertNack(t *testing.T, status int, env envelope, code string) {
	t.Helper()
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Equal(t, "nack", env.Type)
	assert.Equal(t, "error", env.Payload["status"])
	assert.Equal(t, code, env.Payload["code"])
}

func TestAPI_Auth(t *testing.T) {
	s := newTestServer(t)
	body := `{"request_id":"r-1","action":"list_tables","payload":{}}`

	status, env := do(t, s, http.MethodPost, "/api", "", body)
	assertNack(t, status, env, gateway.CodeUnauthorized)
	assert.Equal(t, "r-1", env.RequestID)

	status, env = do(t, s, http.MethodPost, "/api", "Basic abc", body)
	assertNack(t, status, env, gateway.CodeUnauthorized)

	status, env = do(t, s, http.MethodPost, "/api", "Bearer wrong", body)
	assertNack(t, status, env, gateway.CodeInvalidToken)
	assert.Equal(t, "r-1", env.RequestID)
}

func TestAPI_EnvelopeErrors(t *testing.T) {
	s := newTestServer(t)

	status, env := api(t, s, `{not json`)
	assertNack(t, status, env, gateway.CodeInvalidJSON)
	assert.Equal(t, UnknownRequestID, env.RequestID)

	status, env = api(t, s, `{"request_id":"r-2","action":"get"}`)
	assertNack(t, status, env, gateway.CodeInvalidField)
	assert.Equal(t, "r-2", env.RequestID)

	status, env = api(t, s, `{"action":"get","payload":[1,2]}`)
	assertNack(t, status, env, gateway.CodeInvalidField)

	status, env = api(t, s, `{"action":"explode","payload":{"table_name":"t"}}`)
	assertNack(t, status, env, gateway.CodeRequestFailed)
	assert.Equal(t, UnknownRequestID, env.RequestID)
}

func TestAPI_RoundTrip(t *testing.T) {
	s := newTestServer(t)

	status, env := api(t, s, `{"request_id":"a","action":"create_table","payload":{"table_name":"notes","c1_unique":true}}`)
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, "ack", env.Type)
	assert.Equal(t, "a", env.RequestID)

	status, env = api(t, s, `{"request_id":7,"action":"post","payload":{"table_name":"notes","c1":"hello","i1":3}}`)
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, "7", env.RequestID)
	assert.Equal(t, float64(1), env.Payload["id"])

	status, env = api(t, s, `{"action":"post","payload":{"table_name":"notes","c1":"x","secret":1}}`)
	assertNack(t, status, env, gateway.CodeInvalidField)

	status, env = api(t, s, `{"action":"post","payload":{"table_name":"notes","c1":"hello"}}`)
	assertNack(t, status, env, gateway.CodeDBError)
	assert.Contains(t, env.Payload["message"], "operation failed:")

	status, env = api(t, s, `{"action":"get","payload":{"table_name":"notes","c1":"hello"}}`)
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, float64(1), env.Payload["count"])

	status, env = api(t, s, `{"action":"put","payload":{"table_name":"notes","id":42}}`)
	assertNack(t, status, env, gateway.CodeRequestFailed)
	assert.Equal(t, "record not found", env.Payload["message"])

	status, env = api(t, s, `{"action":"list_tables","payload":{"table_name":"*"}}`)
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, []any{"notes"}, env.Payload["tables"])
}

func TestTransportErrors(t *testing.T) {
	s := newTestServer(t)

	status, _ := do(t, s, http.MethodGet, "/api", "Bearer "+testToken, "")
	assert.Equal(t, http.StatusMethodNotAllowed, status)

	status, _ = do(t, s, http.MethodPut, "/api", "Bearer "+testToken, "{}")
	assert.Equal(t, http.StatusMethodNotAllowed, status)

	status, _ = do(t, s, http.MethodPost, "/elsewhere", "Bearer "+testToken, "{}")
	assert.Equal(t, http.StatusNotFound, status)
}

func TestMeta(t *testing.T) {
	s := newTestServer(t)

	req := httptest.NewRequest(http.MethodGet, "/meta", nil)
	resp, err := s.App().Test(req, -1)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var meta map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&meta))
	assert.Equal(t, "flashgate", meta["service"])
	assert.Equal(t, "test", meta["version"])
	assert.Equal(t, s.Instance(), meta["instance"])
	assert.Contains(t, meta["actions"], "batch_post")
}

func TestParseEnvelope(t *testing.T) {
	req, gerr := parseEnvelope([]byte(`{"request_id":"x","action":"get","payload":{"table_name":"t"}}`))
	require.Nil(t, gerr)
	assert.Equal(t, "x", req.ID)
	assert.Equal(t, "get", req.Action)
	assert.Equal(t, "t", req.Payload["table_name"])

	req, gerr = parseEnvelope([]byte(`{"request_id":null,"action":"get","payload":null}`))
	require.NotNil(t, gerr)
	assert.Equal(t, gateway.CodeInvalidField, gerr.Code)
	assert.Equal(t, UnknownRequestID, req.ID)

	_, gerr = parseEnvelope([]byte(`{"action":5,"payload":{}}`))
	require.NotNil(t, gerr)
	assert.Equal(t, gateway.CodeInvalidField, gerr.Code)

	_, gerr = parseEnvelope([]byte(`null`))
	require.NotNil(t, gerr)
	assert.Equal(t, gateway.CodeInvalidJSON, gerr.Code)
}

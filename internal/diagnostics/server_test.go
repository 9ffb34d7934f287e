package diagnostics_test

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/guarapi/guaradict/internal/diagnostics"
	"github.com/guarapi/guaradict/internal/oplog"
	"github.com/guarapi/guaradict/internal/replica"
)

type fakeLog struct {
	ops []oplog.Operation
}

func (f *fakeLog) Len() int { return len(f.ops) }

func (f *fakeLog) Tail(n int) []oplog.Operation {
	if n <= 0 || len(f.ops) == 0 {
		return nil
	}
	if n > len(f.ops) {
		n = len(f.ops)
	}
	return f.ops[len(f.ops)-n:]
}

type fakeReplicas struct {
	snap []replica.Snapshot
}

func (f *fakeReplicas) Snapshot() []replica.Snapshot { return f.snap }

func doRequest(t *testing.T, srv *diagnostics.Server, method, target string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, target, nil)
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, req)
	return rec
}

func TestHealthzReturnsOK(t *testing.T) {
	srv := diagnostics.New(":0", &fakeLog{}, &fakeReplicas{}, zap.NewNop())

	rec := doRequest(t, srv, http.MethodGet, "/healthz")
	assert.Equal(t, http.StatusOK, rec.Code)

	var body map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "ok", body["status"])
}

func TestStatusReturnsReplicaSnapshot(t *testing.T) {
	replicas := &fakeReplicas{snap: []replica.Snapshot{
		{Name: "r1", Addr: "10.0.0.1:9000", Ready: true},
	}}
	srv := diagnostics.New(":0", &fakeLog{}, replicas, zap.NewNop())

	rec := doRequest(t, srv, http.MethodGet, "/status")
	assert.Equal(t, http.StatusOK, rec.Code)

	var body []replica.Snapshot
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Len(t, body, 1)
	assert.Equal(t, "r1", body[0].Name)
	assert.True(t, body[0].Ready)
}

func TestOplogDefaultsToFifty(t *testing.T) {
	ops := make([]oplog.Operation, 0, 60)
	for i := 0; i < 60; i++ {
		ops = append(ops, oplog.Operation{Kind: oplog.Insert, Key: oplog.StringKey("k")})
	}
	srv := diagnostics.New(":0", &fakeLog{ops: ops}, &fakeReplicas{}, zap.NewNop())

	rec := doRequest(t, srv, http.MethodGet, "/oplog")
	assert.Equal(t, http.StatusOK, rec.Code)

	var body []map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Len(t, body, 50)
}

func TestOplogTailParamIsCapped(t *testing.T) {
	ops := make([]oplog.Operation, 0, 600)
	for i := 0; i < 600; i++ {
		ops = append(ops, oplog.Operation{Kind: oplog.Insert, Key: oplog.StringKey("k")})
	}
	srv := diagnostics.New(":0", &fakeLog{ops: ops}, &fakeReplicas{}, zap.NewNop())

	rec := doRequest(t, srv, http.MethodGet, "/oplog?tail=1000")
	assert.Equal(t, http.StatusOK, rec.Code)

	var body []map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Len(t, body, 500)
}

func TestOplogRejectsInvalidTail(t *testing.T) {
	srv := diagnostics.New(":0", &fakeLog{}, &fakeReplicas{}, zap.NewNop())

	rec := doRequest(t, srv, http.MethodGet, "/oplog?tail=banana")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

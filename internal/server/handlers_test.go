package server

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	_ "modernc.org/sqlite"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aristath/alphaledger/internal/modules/sizing"
	"github.com/aristath/alphaledger/internal/pipeline"
	"github.com/aristath/alphaledger/internal/scheduler"
)

const cacheSchema = `
CREATE TABLE price_blocks (
	symbol TEXT PRIMARY KEY,
	reason TEXT NOT NULL,
	blocked_at INTEGER NOT NULL,
	expires_at INTEGER NOT NULL
);
CREATE TABLE pass_snapshots (
	pass_id TEXT PRIMARY KEY,
	created_at INTEGER NOT NULL,
	snapshot BLOB NOT NULL
);`

type stubJob struct {
	runs int
	err  error
}

func (j *stubJob) Run() error {
	j.runs++
	return j.err
}

func (j *stubJob) Name() string { return "pipeline_pass" }

func newTestServer(t *testing.T) (*Server, *pipeline.SnapshotRepository, *sizing.ExclusionList, *stubJob) {
	t.Helper()
	db, err := sql.Open("sqlite", ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	_, err = db.Exec(cacheSchema)
	require.NoError(t, err)

	nop := zerolog.Nop()
	snapshots := pipeline.NewSnapshotRepository(db, nop)
	exclusions := sizing.NewExclusionList(db, 168*time.Hour, nop)
	job := &stubJob{}

	srv := New(Config{
		Log:        nop,
		Port:       0,
		DevMode:    true,
		Snapshots:  snapshots,
		Exclusions: exclusions,
		PassJob:    job,
		Scheduler:  scheduler.New(nop),
	})
	return srv, snapshots, exclusions, job
}

func doRequest(t *testing.T, srv *Server, method, path string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, nil)
	rec := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, req)
	return rec
}

func TestHandleHealth(t *testing.T) {
	srv, _, _, _ := newTestServer(t)

	rec := doRequest(t, srv, http.MethodGet, "/health")
	assert.Equal(t, http.StatusOK, rec.Code)

	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "ok", body["status"])
}

func TestHandleLatestPassEmpty(t *testing.T) {
	srv, _, _, _ := newTestServer(t)

	rec := doRequest(t, srv, http.MethodGet, "/api/pass/latest")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestHandleLatestPassReturnsSnapshot(t *testing.T) {
	srv, snapshots, _, _ := newTestServer(t)
	require.NoError(t, snapshots.Save(&pipeline.PassResult{
		ID:            "pass-1",
		CompletedAt:   time.Now(),
		GrossExposure: "0.12",
	}))

	rec := doRequest(t, srv, http.MethodGet, "/api/pass/latest")
	assert.Equal(t, http.StatusOK, rec.Code)

	var body pipeline.PassResult
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "pass-1", body.ID)
	assert.Equal(t, "0.12", body.GrossExposure)
}

func TestHandleGetPassByID(t *testing.T) {
	srv, snapshots, _, _ := newTestServer(t)
	require.NoError(t, snapshots.Save(&pipeline.PassResult{ID: "pass-7", CompletedAt: time.Now()}))

	rec := doRequest(t, srv, http.MethodGet, "/api/pass/pass-7")
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = doRequest(t, srv, http.MethodGet, "/api/pass/unknown")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestHandleRunPassTriggersJob(t *testing.T) {
	srv, _, _, job := newTestServer(t)

	rec := doRequest(t, srv, http.MethodPost, "/api/pass/run")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 1, job.runs)
}

func TestHandleRunPassReportsJobFailure(t *testing.T) {
	srv, _, _, job := newTestServer(t)
	job.err = fmt.Errorf("equity fetch failed")

	rec := doRequest(t, srv, http.MethodPost, "/api/pass/run")
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}

func TestHandleExclusions(t *testing.T) {
	srv, _, exclusions, _ := newTestServer(t)
	require.NoError(t, exclusions.Block("GHOST", "no current price available"))

	rec := doRequest(t, srv, http.MethodGet, "/api/exclusions")
	assert.Equal(t, http.StatusOK, rec.Code)

	var body struct {
		Exclusions []struct {
			InstrumentID string `json:"instrument_id"`
			Reason       string `json:"reason"`
		} `json:"exclusions"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Len(t, body.Exclusions, 1)
	assert.Equal(t, "GHOST", body.Exclusions[0].InstrumentID)
}

package server

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/san-kum/tanksim/internal/config"
	"github.com/san-kum/tanksim/internal/dynamo"
	"github.com/san-kum/tanksim/internal/storage"
)

func seeded(t *testing.T) (*Server, string) {
	t.Helper()
	st := storage.New(t.TempDir())
	require.NoError(t, st.Init())

	res := &dynamo.Result{
		Trajectory: dynamo.Trajectory{
			{Time: 0, Temperature: 20, Command: 0, Setpoint: 25},
			{Time: 1, Temperature: 20.5, Command: 10, Setpoint: 25},
		},
		Status:  dynamo.StatusCompleted,
		Metrics: map[string]float64{"iae": 4.75},
	}
	id, err := st.Save(config.Preset("lab-step"), res)
	require.NoError(t, err)
	return New(st, nil), id
}

func get(t *testing.T, h http.Handler, path string) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
	return rec
}

func TestHealth(t *testing.T) {
	s, _ := seeded(t)
	rec := get(t, s.Router(), "/health")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())
}

func TestListAndGetRun(t *testing.T) {
	s, id := seeded(t)
	r := s.Router()

	rec := get(t, r, "/runs")
	require.Equal(t, http.StatusOK, rec.Code)
	var runs []storage.RunMetadata
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &runs))
	require.Len(t, runs, 1)
	assert.Equal(t, id, runs[0].ID)

	rec = get(t, r, "/runs/"+id)
	require.Equal(t, http.StatusOK, rec.Code)
	var meta storage.RunMetadata
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &meta))
	assert.Equal(t, "lab-step", meta.Name)
	assert.Equal(t, 4.75, meta.Metrics["iae"])
}

func TestGetTrajectory(t *testing.T) {
	s, id := seeded(t)
	r := s.Router()

	rec := get(t, r, "/runs/"+id+"/trajectory")
	require.Equal(t, http.StatusOK, rec.Code)
	var tr dynamo.Trajectory
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &tr))
	require.Len(t, tr, 2)
	assert.Equal(t, 20.5, tr[1].Temperature)

	rec = get(t, r, "/runs/"+id+"/trajectory?format=csv")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "text/csv", rec.Header().Get("Content-Type"))
	assert.True(t, strings.HasPrefix(rec.Body.String(), "t,temperature,command,setpoint"))

	rec = get(t, r, "/runs/"+id+"/trajectory?format=xml")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestGetConfigAndPlot(t *testing.T) {
	s, id := seeded(t)
	r := s.Router()

	rec := get(t, r, "/runs/"+id+"/config")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "name: lab-step")

	rec = get(t, r, "/runs/"+id+"/plot.svg")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "<svg")
}

func TestUnknownRun(t *testing.T) {
	s, _ := seeded(t)
	for _, path := range []string{"/runs/missing", "/runs/missing/trajectory", "/runs/missing/config"} {
		rec := get(t, s.Router(), path)
		assert.Equal(t, http.StatusNotFound, rec.Code, path)
	}
}

func TestInvalidRunID(t *testing.T) {
	s, _ := seeded(t)
	rec := get(t, s.Router(), "/runs/a%5Cb")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestMethodNotAllowed(t *testing.T) {
	s, _ := seeded(t)
	rec := httptest.NewRecorder()
	s.Router().ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/runs", nil))
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestAccessLog(t *testing.T) {
	s, _ := seeded(t)
	var buf bytes.Buffer
	get(t, s.Handler(&buf), "/health")
	assert.Contains(t, buf.String(), "GET /health")
}

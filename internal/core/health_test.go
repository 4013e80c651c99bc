package core

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubPinger struct {
	err error
}

func (p stubPinger) Ping(ctx context.Context) error {
	return p.err
}

func TestHandleHealth_AllChecksPass(t *testing.T) {
	s := newTestServer(t)
	s.Config.Build.Version = "1.2.3"
	s.Pinger = stubPinger{}

	w := httptest.NewRecorder()
	s.HandleHealth(w, httptest.NewRequest(http.MethodGet, "/health", nil))

	assert.Equal(t, http.StatusOK, w.Code)

	var resp healthResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "ok", resp.Status)
	assert.Equal(t, "1.2.3", resp.Version)
	assert.Equal(t, "ok", resp.Checks["database"])
}

func TestHandleHealth_DatabaseDownIsDegraded(t *testing.T) {
	s := newTestServer(t)
	s.Pinger = stubPinger{err: errors.New("connection refused")}

	w := httptest.NewRecorder()
	s.HandleHealth(w, httptest.NewRequest(http.MethodGet, "/health", nil))

	assert.Equal(t, http.StatusServiceUnavailable, w.Code)

	var resp healthResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "degraded", resp.Status)
	assert.Equal(t, "down", resp.Checks["database"])
}

func TestHandleHealth_NoPingerSkipsCheck(t *testing.T) {
	s := newTestServer(t)

	w := httptest.NewRecorder()
	s.HandleHealth(w, httptest.NewRequest(http.MethodGet, "/health", nil))

	assert.Equal(t, http.StatusOK, w.Code)

	var resp healthResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "skipped", resp.Checks["database"])
}

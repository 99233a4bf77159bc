package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"GraphMind/internal/agent"
	"GraphMind/internal/models"
	"GraphMind/internal/orchestrator_service/store"
	"GraphMind/pkg/logger"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeRunStore serves canned run records for handler tests.
type fakeRunStore struct {
	runs map[string]*models.RunRecord
	err  error
}

func (f *fakeRunStore) SaveRun(ctx context.Context, record *models.RunRecord) error {
	return f.err
}

func (f *fakeRunStore) GetByID(ctx context.Context, id string) (*models.RunRecord, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.runs[id], nil
}

func (f *fakeRunStore) GetSessionRuns(ctx context.Context, sessionID string, limit int) ([]*models.RunRecord, error) {
	if f.err != nil {
		return nil, f.err
	}
	var out []*models.RunRecord
	for _, r := range f.runs {
		if r.SessionID == sessionID {
			out = append(out, r)
		}
	}
	return out, nil
}

func newRunRouter(runs store.RunStore) *gin.Engine {
	gin.SetMode(gin.TestMode)
	a := NewAPI(nil, agent.NewRegistry(), nil, nil, nil, runs, logger.New("test", ""))
	router := gin.New()
	RegisterRoutes(router, a)
	return router
}

func TestGetRunReturnsArchivedRecord(t *testing.T) {
	record := &models.RunRecord{ID: "run-1", SessionID: "session-1", Question: "q", Answer: "a"}
	router := newRunRouter(&fakeRunStore{runs: map[string]*models.RunRecord{"run-1": record}})

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/api/runs/run-1", nil)
	router.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	var body struct {
		Run models.RunRecord `json:"run"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, "run-1", body.Run.ID)
	assert.Equal(t, "a", body.Run.Answer)
}

func TestGetRunUnknownIDIsNotFound(t *testing.T) {
	router := newRunRouter(&fakeRunStore{runs: map[string]*models.RunRecord{}})

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/api/runs/missing", nil)
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestGetRunWithoutArchiveIsUnavailable(t *testing.T) {
	router := newRunRouter(nil)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/api/runs/run-1", nil)
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}

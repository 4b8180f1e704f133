// handlers/handler_test.go
package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/b3yotch/spyder/models"
	"github.com/b3yotch/spyder/services"
)

type stubStore struct {
	docs      []models.Document
	queryErr  error
	gotParams models.QueryParams
	runs      []models.IngestRun
	pingErr   error
}

func (s *stubStore) QueryDocuments(ctx context.Context, p models.QueryParams) ([]models.Document, error) {
	s.gotParams = p
	return s.docs, s.queryErr
}

func (s *stubStore) ListIngestRuns(ctx context.Context, limit int) ([]models.IngestRun, error) {
	return s.runs, nil
}

func (s *stubStore) Ping(ctx context.Context) error { return s.pingErr }

type stubPipeline struct {
	ran chan services.RunOptions
}

func (s *stubPipeline) Run(ctx context.Context, opts services.RunOptions) error {
	s.ran <- opts
	return nil
}

type stubAgent struct {
	answer string
	err    error
}

func (s *stubAgent) Answer(ctx context.Context, question string) (string, error) {
	return s.answer, s.err
}

func newTestMux(h *Handler) *http.ServeMux {
	mux := http.NewServeMux()
	h.RegisterRoutes(mux)
	return mux
}

func TestGetDocumentsHandler(t *testing.T) {
	t.Run("returns matching documents as JSON", func(t *testing.T) {
		store := &stubStore{docs: []models.Document{{
			ID:             1,
			DocumentNumber: "2025-00042",
			Title:          "Safety Zone",
			AgencyNames:    []string{"Coast Guard"},
		}}}
		mux := newTestMux(&Handler{Store: store})

		rr := httptest.NewRecorder()
		mux.ServeHTTP(rr, httptest.NewRequest(http.MethodGet,
			"/api/documents?start_date=2025-06-01&keyword=zone&limit=5", nil))

		require.Equal(t, http.StatusOK, rr.Code)
		assert.Equal(t, "application/json", rr.Header().Get("Content-Type"))

		var docs []models.Document
		require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &docs))
		require.Len(t, docs, 1)
		assert.Equal(t, "2025-00042", docs[0].DocumentNumber)

		assert.Equal(t, "2025-06-01", store.gotParams.StartDate)
		assert.Equal(t, "zone", store.gotParams.Keyword)
		assert.Equal(t, 5, store.gotParams.Limit)
	})

	t.Run("no matches yields an empty array, not null", func(t *testing.T) {
		mux := newTestMux(&Handler{Store: &stubStore{}})
		rr := httptest.NewRecorder()
		mux.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/api/documents", nil))

		require.Equal(t, http.StatusOK, rr.Code)
		assert.Equal(t, "[]", strings.TrimSpace(rr.Body.String()))
	})

	t.Run("malformed date is a client error", func(t *testing.T) {
		mux := newTestMux(&Handler{Store: &stubStore{}})
		rr := httptest.NewRecorder()
		mux.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/api/documents?start_date=junk", nil))

		assert.Equal(t, http.StatusBadRequest, rr.Code)
		assert.Contains(t, rr.Body.String(), "start_date")
	})

	t.Run("store failure is a server error", func(t *testing.T) {
		mux := newTestMux(&Handler{Store: &stubStore{queryErr: assert.AnError}})
		rr := httptest.NewRecorder()
		mux.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/api/documents", nil))
		assert.Equal(t, http.StatusInternalServerError, rr.Code)
	})

	t.Run("wrong method is rejected", func(t *testing.T) {
		mux := newTestMux(&Handler{Store: &stubStore{}})
		rr := httptest.NewRecorder()
		mux.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/api/documents", nil))
		assert.Equal(t, http.StatusMethodNotAllowed, rr.Code)
	})
}

func TestExportDocumentsHandler(t *testing.T) {
	store := &stubStore{docs: []models.Document{{
		DocumentNumber: "2025-00042",
		Title:          "Safety Zone",
		AgencyNames:    []string{"Coast Guard"},
	}}}
	mux := newTestMux(&Handler{Store: store})

	rr := httptest.NewRecorder()
	mux.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/api/documents/export", nil))

	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "text/csv", rr.Header().Get("Content-Type"))
	assert.Contains(t, rr.Header().Get("Content-Disposition"), "documents.csv")

	lines := strings.Split(strings.TrimSpace(rr.Body.String()), "\n")
	require.Len(t, lines, 2)
	assert.True(t, strings.HasPrefix(lines[0], "document_number,title"))
	assert.Contains(t, lines[1], "2025-00042")
}

func TestRefreshPipelineHandler(t *testing.T) {
	t.Run("accepts and runs in the background", func(t *testing.T) {
		pipe := &stubPipeline{ran: make(chan services.RunOptions, 1)}
		mux := newTestMux(&Handler{Store: &stubStore{}, Pipeline: pipe})

		body := strings.NewReader(`{"start_date": "2025-06-01", "end_date": "2025-06-07", "full_refresh": true}`)
		rr := httptest.NewRecorder()
		mux.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/api/admin/refresh", body))

		require.Equal(t, http.StatusAccepted, rr.Code)

		select {
		case opts := <-pipe.ran:
			assert.Equal(t, "2025-06-01", opts.StartDate)
			assert.Equal(t, "2025-06-07", opts.EndDate)
			assert.False(t, opts.Incremental)
		case <-time.After(time.Second):
			t.Fatal("pipeline was never started")
		}
	})

	t.Run("empty body runs an incremental update", func(t *testing.T) {
		pipe := &stubPipeline{ran: make(chan services.RunOptions, 1)}
		mux := newTestMux(&Handler{Store: &stubStore{}, Pipeline: pipe})

		rr := httptest.NewRecorder()
		mux.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/api/admin/refresh", nil))

		require.Equal(t, http.StatusAccepted, rr.Code)
		select {
		case opts := <-pipe.ran:
			assert.True(t, opts.Incremental)
			assert.Empty(t, opts.StartDate)
		case <-time.After(time.Second):
			t.Fatal("pipeline was never started")
		}
	})

	t.Run("malformed date never reaches the pipeline", func(t *testing.T) {
		pipe := &stubPipeline{ran: make(chan services.RunOptions, 1)}
		mux := newTestMux(&Handler{Store: &stubStore{}, Pipeline: pipe})

		body := strings.NewReader(`{"start_date": "June 1st"}`)
		rr := httptest.NewRecorder()
		mux.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/api/admin/refresh", body))

		assert.Equal(t, http.StatusBadRequest, rr.Code)
		assert.Empty(t, pipe.ran)
	})
}

func TestListIngestRunsHandler(t *testing.T) {
	store := &stubStore{runs: []models.IngestRun{{ID: 1, StartDate: "2025-06-01", EndDate: "2025-06-07"}}}
	mux := newTestMux(&Handler{Store: store})

	rr := httptest.NewRecorder()
	mux.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/api/admin/runs", nil))

	require.Equal(t, http.StatusOK, rr.Code)
	var runs []models.IngestRun
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &runs))
	require.Len(t, runs, 1)
	assert.Equal(t, "2025-06-01", runs[0].StartDate)
}

func TestAskHandler(t *testing.T) {
	t.Run("answers the question", func(t *testing.T) {
		mux := newTestMux(&Handler{Store: &stubStore{}, Agent: &stubAgent{answer: "Two rules were published."}})

		body := strings.NewReader(`{"question": "How many rules last week?"}`)
		rr := httptest.NewRecorder()
		mux.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/api/ask", body))

		require.Equal(t, http.StatusOK, rr.Code)
		var resp map[string]string
		require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
		assert.Equal(t, "Two rules were published.", resp["answer"])
	})

	t.Run("unavailable without an agent", func(t *testing.T) {
		mux := newTestMux(&Handler{Store: &stubStore{}})
		rr := httptest.NewRecorder()
		mux.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/api/ask", strings.NewReader(`{"question": "hi"}`)))
		assert.Equal(t, http.StatusServiceUnavailable, rr.Code)
	})

	t.Run("missing question is a client error", func(t *testing.T) {
		mux := newTestMux(&Handler{Store: &stubStore{}, Agent: &stubAgent{}})
		rr := httptest.NewRecorder()
		mux.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/api/ask", strings.NewReader(`{}`)))
		assert.Equal(t, http.StatusBadRequest, rr.Code)
	})

	t.Run("agent failure is a server error", func(t *testing.T) {
		mux := newTestMux(&Handler{Store: &stubStore{}, Agent: &stubAgent{err: assert.AnError}})
		rr := httptest.NewRecorder()
		mux.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/api/ask", strings.NewReader(`{"question": "hi"}`)))
		assert.Equal(t, http.StatusInternalServerError, rr.Code)
	})
}

func TestHealthHandler(t *testing.T) {
	t.Run("healthy", func(t *testing.T) {
		mux := newTestMux(&Handler{Store: &stubStore{}})
		rr := httptest.NewRecorder()
		mux.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/api/health", nil))
		require.Equal(t, http.StatusOK, rr.Code)
		assert.JSONEq(t, `{"status": "ok"}`, rr.Body.String())
	})

	t.Run("database down", func(t *testing.T) {
		mux := newTestMux(&Handler{Store: &stubStore{pingErr: assert.AnError}})
		rr := httptest.NewRecorder()
		mux.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/api/health", nil))
		assert.Equal(t, http.StatusInternalServerError, rr.Code)
	})
}

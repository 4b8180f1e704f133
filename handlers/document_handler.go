// handlers/document_handler.go
package handlers

import (
	"context"
	"fmt"
	"net/http"
	"strconv"

	"github.com/b3yotch/spyder/models"
	"github.com/b3yotch/spyder/services"
)

// DocumentQuerier is the store surface the read endpoints depend on.
type DocumentQuerier interface {
	QueryDocuments(ctx context.Context, p models.QueryParams) ([]models.Document, error)
	ListIngestRuns(ctx context.Context, limit int) ([]models.IngestRun, error)
	Ping(ctx context.Context) error
}

// Asker answers a natural-language question over the stored documents.
type Asker interface {
	Answer(ctx context.Context, question string) (string, error)
}

// Handler bundles the HTTP surface's dependencies. Nil Agent disables /api/ask.
type Handler struct {
	Store    DocumentQuerier
	Pipeline PipelineRunner
	Agent    Asker
}

// GetDocumentsHandler serves GET /api/documents with the full filter set.
// Malformed start_date/end_date reject the whole request before any I/O;
// every other unknown or unparsable parameter is simply ignored.
func (h *Handler) GetDocumentsHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		respondWithError(w, http.StatusMethodNotAllowed, "Only GET method is allowed")
		return
	}

	params, err := parseQueryParams(r)
	if err != nil {
		respondWithError(w, http.StatusBadRequest, err.Error())
		return
	}

	docs, err := h.Store.QueryDocuments(r.Context(), params)
	if err != nil {
		respondWithError(w, http.StatusInternalServerError, fmt.Sprintf("Failed to query documents: %v", err))
		return
	}
	if docs == nil {
		docs = []models.Document{}
	}
	respondWithJSON(w, http.StatusOK, docs)
}

// ExportDocumentsHandler serves GET /api/documents/export: the same filtered
// query, rendered as a CSV download.
func (h *Handler) ExportDocumentsHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		respondWithError(w, http.StatusMethodNotAllowed, "Only GET method is allowed")
		return
	}

	params, err := parseQueryParams(r)
	if err != nil {
		respondWithError(w, http.StatusBadRequest, err.Error())
		return
	}

	docs, err := h.Store.QueryDocuments(r.Context(), params)
	if err != nil {
		respondWithError(w, http.StatusInternalServerError, fmt.Sprintf("Failed to query documents: %v", err))
		return
	}

	w.Header().Set("Content-Type", "text/csv")
	w.Header().Set("Content-Disposition", `attachment; filename="documents.csv"`)
	if err := services.WriteDocumentsCSV(w, docs); err != nil {
		// Headers are already out; nothing useful left to send.
		fmt.Fprintf(w, "\nexport failed: %v\n", err)
	}
}

// HealthHandler reports process and database health.
func (h *Handler) HealthHandler(w http.ResponseWriter, r *http.Request) {
	if err := h.Store.Ping(r.Context()); err != nil {
		respondWithError(w, http.StatusInternalServerError, "database connection error")
		return
	}
	respondWithJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// parseQueryParams maps the request's query string onto models.QueryParams.
func parseQueryParams(r *http.Request) (models.QueryParams, error) {
	q := r.URL.Query()
	params := models.QueryParams{
		DocumentNumber: q.Get("document_number"),
		StartDate:      q.Get("start_date"),
		EndDate:        q.Get("end_date"),
		DocumentType:   q.Get("document_type"),
		Keyword:        q.Get("keyword"),
		Agency:         q.Get("agency"),
		OrderBy:        q.Get("order_by"),
		OrderDir:       q.Get("order_dir"),
	}
	if v, err := strconv.ParseInt(q.Get("id"), 10, 64); err == nil {
		params.ID = v
	}
	if v, err := strconv.Atoi(q.Get("limit")); err == nil {
		params.Limit = v
	}
	if err := params.Validate(); err != nil {
		return models.QueryParams{}, err
	}
	return params, nil
}

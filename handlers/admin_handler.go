// handlers/admin_handler.go
package handlers

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"strconv"
	"time"

	"github.com/b3yotch/spyder/models"
	"github.com/b3yotch/spyder/services"
)

// PipelineRunner kicks one ingestion run for a window.
type PipelineRunner interface {
	Run(ctx context.Context, opts services.RunOptions) error
}

// RefreshRequest is the optional body of POST /api/admin/refresh. An empty
// body runs an incremental update.
type RefreshRequest struct {
	StartDate   string `json:"start_date,omitempty"`
	EndDate     string `json:"end_date,omitempty"`
	DaysBack    int    `json:"days_back,omitempty"`
	FullRefresh bool   `json:"full_refresh,omitempty"`
}

// RefreshPipelineHandler validates the requested window and starts the
// pipeline in the background, responding 202 immediately.
func (h *Handler) RefreshPipelineHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		respondWithError(w, http.StatusMethodNotAllowed, "Only POST method is allowed")
		return
	}

	var req RefreshRequest
	if r.Body != nil {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil && err.Error() != "EOF" {
			respondWithError(w, http.StatusBadRequest, "Invalid request body: "+err.Error())
			return
		}
		defer r.Body.Close()
	}

	for _, d := range []string{req.StartDate, req.EndDate} {
		if d == "" {
			continue
		}
		if _, err := time.Parse("2006-01-02", d); err != nil {
			respondWithError(w, http.StatusBadRequest, fmt.Sprintf("Invalid date %q. Use YYYY-MM-DD.", d))
			return
		}
	}

	opts := services.RunOptions{
		StartDate:   req.StartDate,
		EndDate:     req.EndDate,
		DaysBack:    req.DaysBack,
		Incremental: !req.FullRefresh,
	}

	go func() {
		if err := h.Pipeline.Run(context.Background(), opts); err != nil {
			log.Printf("ERROR Handler: Background pipeline run failed: %v", err)
		} else {
			log.Println("Handler: Background pipeline run completed successfully.")
		}
	}()

	respondWithJSON(w, http.StatusAccepted, map[string]string{
		"message": "Pipeline refresh initiated in background.",
	})
}

// ListIngestRunsHandler serves GET /api/admin/runs.
func (h *Handler) ListIngestRunsHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		respondWithError(w, http.StatusMethodNotAllowed, "Only GET method is allowed")
		return
	}

	limit := 0
	if v, err := strconv.Atoi(r.URL.Query().Get("limit")); err == nil {
		limit = v
	}

	runs, err := h.Store.ListIngestRuns(r.Context(), limit)
	if err != nil {
		respondWithError(w, http.StatusInternalServerError, fmt.Sprintf("Failed to list ingest runs: %v", err))
		return
	}
	if runs == nil {
		runs = []models.IngestRun{}
	}
	respondWithJSON(w, http.StatusOK, runs)
}

// handlers/ask_handler.go
package handlers

import (
	"encoding/json"
	"fmt"
	"net/http"
)

// AskHandler serves POST /api/ask {"question": ...}: a natural-language
// question answered by the tool-calling agent over the document store.
func (h *Handler) AskHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		respondWithError(w, http.StatusMethodNotAllowed, "Only POST method is allowed")
		return
	}
	if h.Agent == nil {
		respondWithError(w, http.StatusServiceUnavailable, "Agent is not configured (missing API key)")
		return
	}

	var req struct {
		Question string `json:"question"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondWithError(w, http.StatusBadRequest, "Invalid request body: "+err.Error())
		return
	}
	defer r.Body.Close()

	if req.Question == "" {
		respondWithError(w, http.StatusBadRequest, "Missing 'question' in request body")
		return
	}

	answer, err := h.Agent.Answer(r.Context(), req.Question)
	if err != nil {
		respondWithError(w, http.StatusInternalServerError, fmt.Sprintf("Failed to answer question: %v", err))
		return
	}
	respondWithJSON(w, http.StatusOK, map[string]string{"answer": answer})
}

// RegisterRoutes wires every endpoint onto the mux.
func (h *Handler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/api/health", h.HealthHandler)
	mux.HandleFunc("/api/documents", h.GetDocumentsHandler)
	mux.HandleFunc("/api/documents/export", h.ExportDocumentsHandler)
	mux.HandleFunc("/api/admin/refresh", h.RefreshPipelineHandler)
	mux.HandleFunc("/api/admin/runs", h.ListIngestRunsHandler)
	mux.HandleFunc("/api/ask", h.AskHandler)
}

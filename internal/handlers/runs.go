package handlers

import (
	"net/http"
	"strings"
)

func (h *Handler) HandleRuns(w http.ResponseWriter, r *http.Request) {
	if r.Method != "GET" {
		h.writeError(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	h.writeJSON(w, h.runStore.All())
}

// HandleRunDetail serves /api/runs/{id}; "latest" is the most recent run.
func (h *Handler) HandleRunDetail(w http.ResponseWriter, r *http.Request) {
	if r.Method != "GET" {
		h.writeError(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	runID := strings.TrimPrefix(r.URL.Path, "/api/runs/")
	if runID == "latest" {
		run, ok := h.runStore.Latest()
		if !ok {
			h.writeError(w, "No runs yet", http.StatusNotFound)
			return
		}
		h.writeJSON(w, run)
		return
	}

	run, ok := h.runStore.Get(runID)
	if !ok {
		h.writeError(w, "Run not found", http.StatusNotFound)
		return
	}
	h.writeJSON(w, run)
}

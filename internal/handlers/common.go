package handlers

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/arcticwatch/arcticwatch/internal/corpus"
	"github.com/arcticwatch/arcticwatch/internal/storage"
)

type Handler struct {
	runStore *storage.RunStore
	corpus   *corpus.Corpus
}

func New(runStore *storage.RunStore, c *corpus.Corpus) *Handler {
	return &Handler{
		runStore: runStore,
		corpus:   c,
	}
}

// Routes returns the status API.
func (h *Handler) Routes() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/runs", h.HandleRuns)
	mux.HandleFunc("/api/runs/", h.HandleRunDetail)
	mux.HandleFunc("/api/corpus", h.HandleCorpus)
	mux.HandleFunc("/corpus/", h.HandleCorpusImage)
	mux.HandleFunc("/healthcheck", func(w http.ResponseWriter, r *http.Request) {
		if _, err := w.Write([]byte("OK")); err != nil {
			slog.Error("Unable to write healthcheck", "err", err)
		}
	})
	return mux
}

// Response helpers
func (h *Handler) writeJSON(w http.ResponseWriter, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(data); err != nil {
		slog.Error("Unable to encode JSON response", "err", err)
		http.Error(w, "Internal server error", http.StatusInternalServerError)
	}
}

func (h *Handler) writeError(w http.ResponseWriter, message string, code int) {
	slog.Error(message)
	http.Error(w, message, code)
}

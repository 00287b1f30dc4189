package handlers

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/arcticwatch/arcticwatch/internal/images"
	"github.com/arcticwatch/arcticwatch/internal/models"
)

func (h *Handler) HandleCorpus(w http.ResponseWriter, r *http.Request) {
	if r.Method != "GET" {
		h.writeError(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	entries, err := h.corpus.Entries()
	if err != nil {
		h.writeError(w, "Failed to list corpus: "+err.Error(), http.StatusInternalServerError)
		return
	}

	list := make([]models.CorpusEntry, 0, len(entries))
	for _, e := range entries {
		list = append(list, models.CorpusEntry{
			Name:    e.Name,
			URL:     "/corpus/" + e.Name,
			Size:    e.Size,
			AddedAt: e.AddedAt,
		})
	}
	h.writeJSON(w, list)
}

// HandleCorpusImage serves a corpus entry. ?max=N returns a thumbnail whose
// longest side is at most N pixels.
func (h *Handler) HandleCorpusImage(w http.ResponseWriter, r *http.Request) {
	if r.Method != "GET" {
		h.writeError(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	name := strings.TrimPrefix(r.URL.Path, "/corpus/")
	// Prevent directory traversal attacks
	if name == "" || strings.Contains(name, "..") || strings.Contains(name, "/") {
		http.Error(w, "Invalid file path", http.StatusBadRequest)
		return
	}

	entries, err := h.corpus.Entries()
	if err != nil {
		h.writeError(w, "Failed to list corpus: "+err.Error(), http.StatusInternalServerError)
		return
	}

	for _, e := range entries {
		if e.Name != name {
			continue
		}

		maxSide, _ := strconv.Atoi(r.URL.Query().Get("max"))
		if maxSide <= 0 {
			w.Header().Set("Content-Type", "image/png")
			http.ServeFile(w, r, e.Path)
			return
		}

		shot, err := images.Load(e.Path)
		if err != nil {
			h.writeError(w, "Failed to read corpus entry: "+err.Error(), http.StatusInternalServerError)
			return
		}
		data, err := images.ThumbnailPNG(shot, maxSide)
		if err != nil {
			h.writeError(w, "Failed to render thumbnail: "+err.Error(), http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "image/png")
		_, _ = w.Write(data)
		return
	}

	h.writeError(w, "Corpus entry not found", http.StatusNotFound)
}

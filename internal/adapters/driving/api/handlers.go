package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/custodia-labs/ragdoll/internal/core/ports/driving"
	"github.com/custodia-labs/ragdoll/internal/logger"
)

// queryRequest is the POST /query body.
type queryRequest struct {
	Prompt     string  `json:"prompt"`
	History    string  `json:"history,omitempty"`
	Threshold  float64 `json:"threshold,omitempty"`
	Collection string  `json:"collection,omitempty"`
}

// mediaTypes maps source extensions to Content-Type values for
// /fetch responses.
var mediaTypes = map[string]string{
	".pdf":  "application/pdf",
	".docx": "application/vnd.openxmlformats-officedocument.wordprocessingml.document",
	".doc":  "application/msword",
	".odt":  "application/vnd.oasis.opendocument.text",
	".txt":  "text/plain",
	".md":   "text/markdown",
	".png":  "image/png",
	".jpg":  "image/jpeg",
	".jpeg": "image/jpeg",
	".gif":  "image/gif",
	".bmp":  "image/bmp",
	".tiff": "image/tiff",
	".tif":  "image/tiff",
}

func (s *Server) handleCollections(w http.ResponseWriter, _ *http.Request) {
	names, err := s.admin.Collections()
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to list collections")
		logger.Error("collections listing failed: %v", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"collections": names})
}

func (s *Server) handleQueryGet(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	req := queryRequest{
		Prompt:     q.Get("prompt"),
		History:    q.Get("history"),
		Collection: q.Get("collection"),
	}
	if raw := q.Get("threshold"); raw != "" {
		t, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid threshold %q", raw))
			return
		}
		req.Threshold = t
	}
	s.runQuery(w, r, req)
}

func (s *Server) handleQueryPost(w http.ResponseWriter, r *http.Request) {
	var req queryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	s.runQuery(w, r, req)
}

func (s *Server) runQuery(w http.ResponseWriter, r *http.Request, req queryRequest) {
	if strings.TrimSpace(req.Prompt) == "" {
		writeError(w, http.StatusBadRequest, "prompt is required")
		return
	}

	resp, err := s.query.Query(r.Context(), req.Prompt, driving.QueryOptions{
		Collection:      req.Collection,
		Threshold:       req.Threshold,
		History:         req.History,
		ExpandNeighbors: true,
	})
	if err != nil {
		writeError(w, http.StatusInternalServerError, "query failed")
		logger.Error("query failed: %v", err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleFetch(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "collection")
	file := chi.URLParam(r, "*")
	if unescaped, err := url.PathUnescape(file); err == nil {
		file = unescaped
	}

	known, err := s.registry.Discover()
	if err != nil || !slices.Contains(known, name) {
		writeError(w, http.StatusNotFound, fmt.Sprintf("collection not found: %s", name))
		return
	}
	col, err := s.registry.Get(name)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to open collection")
		return
	}

	base := col.SourcesDir()
	path := filepath.Join(base, filepath.FromSlash(file))

	// Only files inside the sources directory are reachable.
	rel, err := filepath.Rel(base, path)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		writeError(w, http.StatusForbidden, "path outside sources directory")
		return
	}

	info, err := os.Stat(path)
	if err != nil || info.IsDir() {
		writeError(w, http.StatusNotFound, fmt.Sprintf("source file not found: %s", file))
		return
	}

	if mt, ok := mediaTypes[strings.ToLower(filepath.Ext(path))]; ok {
		w.Header().Set("Content-Type", mt)
	} else {
		w.Header().Set("Content-Type", "application/octet-stream")
	}
	w.Header().Set("Content-Disposition", fmt.Sprintf("inline; filename=%q", filepath.Base(path)))
	http.ServeFile(w, r, path)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger.Warn("failed to encode response: %v", err)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

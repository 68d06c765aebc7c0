package server

import (
	"encoding/json"
	"net/http"
	"path/filepath"
	"strconv"

	"github.com/google/uuid"
	"github.com/widyatma/loratag/pkg/hub"
	"github.com/widyatma/loratag/pkg/tags"
)

// registerAPIRoutes mounts the REST surface. These routes mirror the
// websocket operations for collaborators that prefer plain HTTP.
func (s *Server) registerAPIRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/status", s.withRequestID(s.handleStatus))
	mux.HandleFunc("GET /api/tags", s.withRequestID(s.handleListTags))
	mux.HandleFunc("POST /api/tags", s.withRequestID(s.handleAddTagHTTP))
	mux.HandleFunc("DELETE /api/tags/{tag}", s.withRequestID(s.handleDeleteTagHTTP))
	mux.HandleFunc("GET /api/images/{id}", s.withRequestID(s.handleGetImageHTTP))
	mux.HandleFunc("GET /api/images/{id}/file", s.withRequestID(s.handleGetImageFile))
}

// withRequestID tags every API request with a unique id for log correlation.
func (s *Server) withRequestID(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		requestID := r.Header.Get("X-Request-Id")
		if requestID == "" {
			requestID = uuid.NewString()
		}
		w.Header().Set("X-Request-Id", requestID)

		s.logger.Debug().
			Str("requestId", requestID).
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Msg("API request")

		next(w, r)
	}
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	snap := s.app.Store().Snapshot()
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"total_images":     s.app.ImageCount(),
		"processed_images": snap.Stats.ProcessedImages,
		"current_position": snap.CurrentPosition,
		"last_updated":     snap.LastUpdated,
		"version":          snap.Version,
		"clients":          s.app.Hub().Infos(s.cfg.Hub.IdleTimeoutDuration()),
		"queue":            s.app.Queue().Stats(),
	})
}

func (s *Server) handleListTags(w http.ResponseWriter, r *http.Request) {
	list := s.app.Store().Snapshot().Tags

	if query := r.URL.Query().Get("q"); query != "" {
		list = tags.Search(list, query, false)
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"tags": list})
}

func (s *Server) handleAddTagHTTP(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Tag string `json:"tag"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]interface{}{"error": "invalid request body"})
		return
	}

	reply, broadcasts := handleAddTag(r.Context(), s.app, map[string]interface{}{"tag": body.Tag})
	for _, b := range broadcasts {
		_ = s.app.Hub().Broadcast(b)
	}

	switch reply.Type {
	case hub.TypeTagAdded:
		writeJSON(w, http.StatusCreated, reply.Data)
	case hub.TypeTagExists:
		writeJSON(w, http.StatusConflict, reply.Data)
	default:
		writeJSON(w, http.StatusBadRequest, reply.Data)
	}
}

func (s *Server) handleDeleteTagHTTP(w http.ResponseWriter, r *http.Request) {
	reply, broadcasts := handleDeleteTag(r.Context(), s.app, map[string]interface{}{"tag": r.PathValue("tag")})
	for _, b := range broadcasts {
		_ = s.app.Hub().Broadcast(b)
	}

	switch reply.Type {
	case hub.TypeTagDeleted:
		writeJSON(w, http.StatusOK, reply.Data)
	case hub.TypeTagNotFound:
		writeJSON(w, http.StatusNotFound, reply.Data)
	default:
		writeJSON(w, http.StatusBadRequest, reply.Data)
	}
}

func (s *Server) handleGetImageHTTP(w http.ResponseWriter, r *http.Request) {
	index, err := strconv.Atoi(r.PathValue("id"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]interface{}{"error": "image id must be an integer"})
		return
	}

	reply, _ := handleGetImage(r.Context(), s.app, map[string]interface{}{"index": index})
	if reply.Type == hub.TypeError {
		writeJSON(w, http.StatusNotFound, reply.Data)
		return
	}
	writeJSON(w, http.StatusOK, reply.Data)
}

// handleGetImageFile serves the renamed image bytes from the output
// directory.
func (s *Server) handleGetImageFile(w http.ResponseWriter, r *http.Request) {
	index, err := strconv.Atoi(r.PathValue("id"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]interface{}{"error": "image id must be an integer"})
		return
	}

	original, ok := s.app.imageAt(index)
	if !ok {
		writeJSON(w, http.StatusNotFound, map[string]interface{}{"error": "image index out of range"})
		return
	}
	if err := s.app.processImage(r.Context(), original); err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]interface{}{"error": err.Error()})
		return
	}
	dest, _, ok := s.app.imagePaths(original)
	if !ok {
		writeJSON(w, http.StatusNotFound, map[string]interface{}{"error": "image has no recorded destination"})
		return
	}

	http.ServeFile(w, r, filepath.Clean(dest))
}

func writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/hyperjump/kensaku/internal/apperr"
	"github.com/hyperjump/kensaku/internal/index"
	"github.com/hyperjump/kensaku/internal/models"
	"github.com/hyperjump/kensaku/internal/storage"
	"go.uber.org/zap"
)

// recentBuilds is how many history entries the status response carries.
const recentBuilds = 10

func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	var query models.SearchQuery
	if err := json.NewDecoder(r.Body).Decode(&query); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	s.logger.Debug("search request", zap.String("query", query.Query), zap.Int("limit", query.Limit))
	response, err := s.engine.Search(r.Context(), &query)
	if err != nil {
		s.respondErr(w, "search", err)
		return
	}
	s.respondJSON(w, http.StatusOK, response)
}

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	var req models.IndexRequest
	if r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			s.respondError(w, http.StatusBadRequest, "invalid request body")
			return
		}
	}
	cfg := s.config.Index
	if req.Directory == "" {
		req.Directory = cfg.Directory
	}
	if req.Directory == "" {
		s.respondError(w, http.StatusBadRequest, "directory is required")
		return
	}
	if req.Suffix == "" {
		req.Suffix = cfg.Suffix
	}
	recursive := cfg.RecursiveOrDefault()
	if req.Recursive != nil {
		recursive = *req.Recursive
	}
	mode := index.Create
	if req.Append {
		mode = index.CreateOrAppend
	}
	s.logger.Info("index request",
		zap.String("directory", req.Directory),
		zap.String("suffix", req.Suffix),
		zap.Bool("recursive", recursive),
		zap.Stringer("mode", mode))

	res, err := s.builder.IndexDirectory(r.Context(), req.Directory, req.Suffix, recursive, mode)
	if err != nil {
		s.respondErr(w, "index", err)
		return
	}
	if _, err := s.engine.Refresh(r.Context()); err != nil {
		s.respondErr(w, "refresh", err)
		return
	}
	s.respondJSON(w, http.StatusCreated, res)
}

func (s *Server) handleDump(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	opts := index.DumpOptions{Field: q.Get("field")}
	opts.Postings, _ = strconv.ParseBool(q.Get("postings"))
	opts.Stored, _ = strconv.ParseBool(q.Get("stored"))

	snap, err := s.engine.Acquire(r.Context())
	if err != nil {
		s.respondErr(w, "dump", err)
		return
	}
	defer snap.DecRef()
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	if err := index.Dump(w, snap, opts); err != nil {
		// Headers are gone; the truncated body is all the client gets.
		s.logger.Error("dump failed", zap.Error(err))
	}
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	st, err := storage.Status(r.Context(), s.engine.Dir(), s.history, recentBuilds)
	if err != nil {
		s.respondErr(w, "status", err)
		return
	}
	s.respondJSON(w, http.StatusOK, st)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) respondJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func (s *Server) respondError(w http.ResponseWriter, status int, message string) {
	s.respondJSON(w, status, map[string]string{"error": message})
}

// errorBody is the JSON error response. Offset is set for query syntax
// errors.
type errorBody struct {
	Error  string `json:"error"`
	Kind   string `json:"kind"`
	Offset *int   `json:"offset,omitempty"`
}

// respondErr maps err to a status by its kind.
func (s *Server) respondErr(w http.ResponseWriter, op string, err error) {
	status := apperr.HTTPStatusCode(err)
	if errors.Is(err, models.ErrInvalidRequest) {
		status = http.StatusBadRequest
	}
	body := errorBody{Error: err.Error(), Kind: apperr.Kind(err)}
	if off := apperr.Offset(err); off >= 0 {
		body.Offset = &off
	}
	if status >= http.StatusInternalServerError {
		s.logger.Error(op+" failed", zap.Error(err))
	} else {
		s.logger.Debug(op+" rejected", zap.Error(err))
	}
	s.respondJSON(w, status, body)
}

package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/hyperjump/cordsearch/internal/filter"
	"github.com/hyperjump/cordsearch/internal/indexer"
	"github.com/hyperjump/cordsearch/internal/models"
	"github.com/hyperjump/cordsearch/internal/search"
	"github.com/hyperjump/cordsearch/internal/storage"
)

var (
	errRecacheDisabled = errors.New("re-cache not available")
	errRecordsDisabled = errors.New("record lookup not available")
)

func (s *Server) handleSearchPost(w http.ResponseWriter, r *http.Request) {
	var query models.SearchQuery
	if err := json.NewDecoder(r.Body).Decode(&query); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	s.search(w, r, &query)
}

func (s *Server) handleSearchGet(w http.ResponseWriter, r *http.Request) {
	query, err := parseSearchParams(r)
	if err != nil {
		s.respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	s.search(w, r, query)
}

func (s *Server) search(w http.ResponseWriter, r *http.Request, query *models.SearchQuery) {
	if err := query.Validate(s.config.Search.Limits()); err != nil {
		s.respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	s.logger.Debug("search request",
		zap.String("request_id", requestIDFrom(r.Context())),
		zap.String("query", query.Query),
		zap.Int("k", *query.K))
	spec := filter.Spec{DateMin: query.DateMin, DateMax: query.DateMax, Language: query.Language}
	response, err := s.engine.Ask(r.Context(), query.Query, spec, *query.K)
	if err != nil {
		s.fail(w, r, "search failed", err)
		return
	}
	s.respondJSON(w, http.StatusOK, response)
}

// parseSearchParams reads a SearchQuery from URL parameters: q, k, date_min, date_max, language.
func parseSearchParams(r *http.Request) (*models.SearchQuery, error) {
	v := r.URL.Query()
	q := &models.SearchQuery{
		Query:    v.Get("q"),
		Language: v.Get("language"),
	}
	if q.Query == "" {
		q.Query = v.Get("query")
	}
	var err error
	if q.K, err = intParam(v.Get("k"), "k"); err != nil {
		return nil, err
	}
	if q.DateMin, err = intParam(v.Get("date_min"), "date_min"); err != nil {
		return nil, err
	}
	if q.DateMax, err = intParam(v.Get("date_max"), "date_max"); err != nil {
		return nil, err
	}
	return q, nil
}

func intParam(raw, name string) (*int, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return nil, fmt.Errorf("%w: %s must be an integer, got %q", models.ErrValidation, name, raw)
	}
	return &n, nil
}

func (s *Server) handleGetRecord(w http.ResponseWriter, r *http.Request) {
	if s.storage == nil {
		s.fail(w, r, "get record failed", errRecordsDisabled)
		return
	}
	id := chi.URLParam(r, "id")
	rec, err := s.storage.GetRecord(r.Context(), id)
	if err != nil {
		s.fail(w, r, "get record failed", err)
		return
	}
	s.respondJSON(w, http.StatusOK, rec)
}

func (s *Server) handleRecache(w http.ResponseWriter, r *http.Request) {
	force, _ := strconv.ParseBool(r.URL.Query().Get("force"))
	s.logger.Info("recache requested",
		zap.String("request_id", requestIDFrom(r.Context())),
		zap.Bool("force", force))
	report, err := s.Recache(r.Context(), force)
	if err != nil {
		s.fail(w, r, "recache failed", err)
		return
	}
	s.respondJSON(w, http.StatusOK, map[string]interface{}{
		"report": report,
		"engine": s.engine.Stats(),
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	st := s.engine.State()
	if st != search.StateReady {
		s.respondJSON(w, http.StatusServiceUnavailable, map[string]string{"status": st.String()})
		return
	}
	s.respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	resp := map[string]interface{}{
		"engine": s.engine.Stats(),
	}
	if s.storage != nil {
		meta, err := s.storage.Meta(ctx)
		if err != nil {
			s.fail(w, r, "status: read cache metadata failed", err)
			return
		}
		resp["cache"] = meta
	}

	cfg := s.config
	configInfo := map[string]interface{}{
		"source_path":          cfg.Corpus.SourcePath,
		"database_path":        cfg.Storage.DatabasePath,
		"vectors_path":         cfg.Storage.VectorsPath,
		"embedding_provider":   cfg.Embedding.Provider,
		"embedding_dimensions": cfg.Embedding.Dimensions,
		"default_k":            cfg.Search.DefaultK,
		"max_k":                cfg.Search.MaxK,
		"watch_enabled":        cfg.Watch.Enabled,
	}
	if diskBytes, err := storage.DiskUsageBytes(cfg.Storage.DatabasePath, cfg.Storage.VectorsPath); err == nil {
		resp["disk_usage_bytes"] = diskBytes
	}
	resp["config"] = configInfo
	s.respondJSON(w, http.StatusOK, resp)
}

// statusFor maps an error to an HTTP status.
func statusFor(err error) int {
	switch {
	case errors.Is(err, models.ErrValidation):
		return http.StatusBadRequest
	case errors.Is(err, storage.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, indexer.ErrRecacheInProgress):
		return http.StatusConflict
	case errors.Is(err, errRecacheDisabled), errors.Is(err, errRecordsDisabled):
		return http.StatusNotImplemented
	case errors.Is(err, models.ErrNotReady), errors.Is(err, models.ErrAlignment):
		return http.StatusServiceUnavailable
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

func (s *Server) fail(w http.ResponseWriter, r *http.Request, msg string, err error) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		s.logger.Error(msg, zap.String("request_id", requestIDFrom(r.Context())), zap.Error(err))
	} else {
		s.logger.Debug(msg, zap.String("request_id", requestIDFrom(r.Context())), zap.Error(err))
	}
	s.respondError(w, status, err.Error())
}

func (s *Server) respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func (s *Server) respondError(w http.ResponseWriter, status int, message string) {
	s.respondJSON(w, status, map[string]string{"error": message})
}

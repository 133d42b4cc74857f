// Copyright 2025 Esteban Alvarez. All Rights Reserved.
//
// Created: October 2025
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package api implements the public-facing HTTP/JSON server for the
// autocomplete service. It parses requests, delegates to the core
// service, and maps the error taxonomy onto status codes.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"go.uber.org/zap"

	"typeahead/internal/suggest/core"
)

// statusClientClosedRequest mirrors nginx's code for a client that gave
// up before the response was ready.
const statusClientClosedRequest = 499

// Server handles the HTTP surface.
type Server struct {
	svc *core.Service
	log *zap.Logger
}

// NewServer creates the API server around a wired service.
func NewServer(svc *core.Service, log *zap.Logger) *Server {
	if log == nil {
		log = zap.NewNop()
	}
	return &Server{svc: svc, log: log}
}

// RegisterRoutes mounts all handlers on the given mux.
func (s *Server) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /suggest", s.handleSuggest)
	mux.HandleFunc("POST /search", s.handleLogSearch)
	mux.HandleFunc("GET /trending", s.handleTrending)
	mux.HandleFunc("POST /admin/rebuild", s.handleRebuild)
	mux.HandleFunc("POST /admin/verify", s.handleVerify)
	mux.HandleFunc("POST /admin/cache/clear", s.handleClearCache)
	mux.HandleFunc("POST /admin/phrases", s.handleAddPhrase)
	mux.HandleFunc("POST /admin/filter", s.handleFilterPhrase)
	mux.HandleFunc("DELETE /admin/filter", s.handleUnfilterPhrase)
	mux.HandleFunc("GET /stats", s.handleStats)
	mux.HandleFunc("GET /healthz", s.handleHealthz)
}

// ListenAndServe runs the server until ctx is done, then shuts down
// gracefully.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	mux := http.NewServeMux()
	s.RegisterRoutes(mux)
	httpServer := &http.Server{
		Addr:         addr,
		Handler:      mux,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  120 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		s.log.Info("api server listening", zap.String("addr", addr))
		errCh <- httpServer.ListenAndServe()
	}()
	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return httpServer.Shutdown(shutdownCtx)
	}
}

func (s *Server) handleSuggest(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	limit := 10
	if raw := q.Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 1 {
			s.writeError(w, core.ErrInvalidInput)
			return
		}
		limit = parsed
	}
	resp, err := s.svc.Suggest(r.Context(), core.SuggestRequest{
		Prefix: q.Get("prefix"),
		Limit:  limit,
		UserID: q.Get("user_id"),
		Fuzzy:  q.Get("fuzzy") == "true" || q.Get("fuzzy") == "1",
	})
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, resp)
}

type logSearchRequest struct {
	Query     string `json:"query"`
	UserID    string `json:"userID"`
	SessionID string `json:"sessionID"`
}

func (s *Server) handleLogSearch(w http.ResponseWriter, r *http.Request) {
	var req logSearchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, core.ErrInvalidInput)
		return
	}
	if err := s.svc.LogSearch(r.Context(), req.Query, req.UserID, req.SessionID); err != nil {
		s.writeError(w, err)
		return
	}
	// Acknowledgement only: buffer overflow is counted, never surfaced.
	w.WriteHeader(http.StatusAccepted)
}

func (s *Server) handleTrending(w http.ResponseWriter, r *http.Request) {
	limit := 10
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 1 {
			s.writeError(w, core.ErrInvalidInput)
			return
		}
		limit = parsed
	}
	entries, err := s.svc.Trending(r.Context(), limit)
	if err != nil {
		s.writeError(w, err)
		return
	}
	type item struct {
		Phrase string  `json:"phrase"`
		Score  float64 `json:"score"`
	}
	out := make([]item, 0, len(entries))
	for _, e := range entries {
		out = append(out, item{Phrase: e.Phrase, Score: e.Score})
	}
	s.writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleRebuild(w http.ResponseWriter, r *http.Request) {
	if err := s.svc.Rebuild(r.Context()); err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "rebuilt"})
}

func (s *Server) handleVerify(w http.ResponseWriter, r *http.Request) {
	err := s.svc.VerifyIndex(r.Context())
	switch {
	case err == nil:
		s.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	case errors.Is(err, core.ErrFatalInvariant):
		// A breach was found and repaired by the forced rebuild.
		s.log.Warn("index invariant breach repaired", zap.Error(err))
		s.writeJSON(w, http.StatusOK, map[string]string{"status": "rebuilt"})
	default:
		s.writeError(w, err)
	}
}

func (s *Server) handleClearCache(w http.ResponseWriter, r *http.Request) {
	if err := s.svc.ClearCache(r.Context()); err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "cleared"})
}

type addPhraseRequest struct {
	Phrase string `json:"phrase"`
	Count  int64  `json:"count"`
}

func (s *Server) handleAddPhrase(w http.ResponseWriter, r *http.Request) {
	var req addPhraseRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, core.ErrInvalidInput)
		return
	}
	if err := s.svc.AddPhrase(r.Context(), req.Phrase, req.Count); err != nil {
		s.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusCreated)
}

type filterRequest struct {
	Phrase string `json:"phrase"`
	Reason string `json:"reason"`
}

func (s *Server) handleFilterPhrase(w http.ResponseWriter, r *http.Request) {
	var req filterRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, core.ErrInvalidInput)
		return
	}
	if err := s.svc.FilterPhrase(r.Context(), req.Phrase, req.Reason); err != nil {
		s.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleUnfilterPhrase(w http.ResponseWriter, r *http.Request) {
	var req filterRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, core.ErrInvalidInput)
		return
	}
	if err := s.svc.UnfilterPhrase(r.Context(), req.Phrase); err != nil {
		s.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	stats, overflow, dead := s.svc.Stats()
	s.writeJSON(w, http.StatusOK, map[string]any{
		"phraseCount": stats.PhraseCount,
		"nodeCount":   stats.NodeCount,
		"maxDepth":    stats.MaxDepth,
		"maxCount":    stats.MaxCount,
		"overflow":    overflow,
		"deadLetters": dead,
	})
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.log.Debug("response encode failed", zap.Error(err))
	}
}

// writeError maps the error taxonomy onto HTTP status codes.
func (s *Server) writeError(w http.ResponseWriter, err error) {
	var status int
	var code string
	switch {
	case errors.Is(err, core.ErrInvalidInput):
		status, code = http.StatusBadRequest, "invalid-input"
	case errors.Is(err, core.ErrNotFound):
		status, code = http.StatusNotFound, "not-found"
	case errors.Is(err, core.ErrRebuildInProgress):
		status, code = http.StatusConflict, "rebuild-in-progress"
	case errors.Is(err, core.ErrPersistenceUnavailable):
		status, code = http.StatusServiceUnavailable, "persistence-unavailable"
	case errors.Is(err, core.ErrCacheUnavailable):
		status, code = http.StatusServiceUnavailable, "cache-unavailable"
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		status, code = statusClientClosedRequest, "cancelled"
	default:
		status, code = http.StatusInternalServerError, "internal"
		s.log.Error("request failed", zap.Error(err))
	}
	s.writeJSON(w, status, map[string]string{"error": code, "message": err.Error()})
}

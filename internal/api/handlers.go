package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/raaihank/termswap/internal/engine"
	"github.com/raaihank/termswap/internal/errs"
	"github.com/raaihank/termswap/internal/rules"
	"github.com/raaihank/termswap/internal/websocket"
)

// textRequest carries text for the in-memory endpoints. Text is optional for
// check and find-terms, which fall back to the working text.
type textRequest struct {
	Text *string `json:"text"`
}

type operationRequest struct {
	Preview bool `json:"preview"`
}

type translateFileRequest struct {
	Path      string `json:"path"`
	Direction string `json:"direction"`
}

// errorResponse carries the error kind and, for multi-step operations, the
// work committed before the failure.
type errorResponse struct {
	Error   string      `json:"error"`
	Kind    string      `json:"kind"`
	Partial interface{} `json:"partial,omitempty"`
}

// handleHealth handles health check requests
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"status":    "healthy",
		"timestamp": time.Now().Format(time.RFC3339),
	})
}

// handleInfo handles info requests
func (s *Server) handleInfo(w http.ResponseWriter, r *http.Request) {
	info := map[string]interface{}{
		"name":            "termswap",
		"version":         apiVersion,
		"uptime":          time.Since(s.started).Round(time.Second).String(),
		"rules_loaded":    s.engine.Table().Len(),
		"rate_limit":      s.limiter != nil,
		"history_backend": s.config.Storage.History,
		"map_backend":     s.config.Storage.ObfuscationMap,
	}
	if s.wsHub != nil {
		info["websocket"] = s.wsHub.GetStats()
	}
	writeJSON(w, http.StatusOK, info)
}

func (s *Server) handleSanitize(w http.ResponseWriter, r *http.Request) {
	s.translate(w, r, engine.Forward)
}

func (s *Server) handleRestore(w http.ResponseWriter, r *http.Request) {
	s.translate(w, r, engine.Reverse)
}

func (s *Server) translate(w http.ResponseWriter, r *http.Request, dir engine.Direction) {
	var req textRequest
	if !s.decode(w, r, &req) {
		return
	}
	if req.Text == nil {
		s.badRequest(w, r, "text is required")
		return
	}
	writeJSON(w, http.StatusOK, s.engine.Translate(*req.Text, dir))
}

func (s *Server) handleCheck(w http.ResponseWriter, r *http.Request) {
	var req textRequest
	if !s.decode(w, r, &req) {
		return
	}
	if req.Text != nil {
		writeJSON(w, http.StatusOK, s.engine.CheckText(*req.Text))
		return
	}
	result, err := s.engine.IsClean(r.Context())
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (s *Server) handleFindTerms(w http.ResponseWriter, r *http.Request) {
	var req textRequest
	if !s.decode(w, r, &req) {
		return
	}
	if req.Text != nil {
		writeJSON(w, http.StatusOK, map[string]interface{}{"findings": s.engine.FindTerms(*req.Text)})
		return
	}
	findings, err := s.engine.FindTermsInWork(r.Context())
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"findings": findings})
}

func (s *Server) handleEncode(w http.ResponseWriter, r *http.Request) {
	s.operation(w, r, s.engine.Encode)
}

func (s *Server) handleDecode(w http.ResponseWriter, r *http.Request) {
	s.operation(w, r, s.engine.Decode)
}

func (s *Server) handleObfuscate(w http.ResponseWriter, r *http.Request) {
	s.operation(w, r, s.engine.Obfuscate)
}

func (s *Server) operation(w http.ResponseWriter, r *http.Request, run func(ctx context.Context, opts engine.Options) (engine.Result, error)) {
	var req operationRequest
	if !s.decode(w, r, &req) {
		return
	}
	result, err := run(r.Context(), engine.Options{Preview: req.Preview})
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (s *Server) handleDeobfuscate(w http.ResponseWriter, r *http.Request) {
	result, err := s.engine.Deobfuscate(r.Context())
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (s *Server) handleFull(w http.ResponseWriter, r *http.Request) {
	result, err := s.engine.Full(r.Context())
	if err != nil && result.Committed() {
		s.writeErrorWith(w, r, err, result)
		return
	}
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (s *Server) handleUndo(w http.ResponseWriter, r *http.Request) {
	result, err := s.engine.Undo(r.Context())
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (s *Server) handleTranslateFile(w http.ResponseWriter, r *http.Request) {
	var req translateFileRequest
	if !s.decode(w, r, &req) {
		return
	}
	if req.Path == "" {
		s.badRequest(w, r, "path is required")
		return
	}
	if req.Direction == "" {
		req.Direction = string(engine.Forward)
	}
	dir, err := engine.ParseDirection(req.Direction)
	if err != nil {
		s.badRequest(w, r, err.Error())
		return
	}
	result, err := s.engine.TranslateFile(r.Context(), req.Path, dir)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	stats, err := s.engine.Stats(r.Context())
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	entries, err := s.engine.History(r.Context())
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"entries": entries})
}

func (s *Server) handleRules(w http.ResponseWriter, r *http.Request) {
	category := r.URL.Query().Get("category")
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"category": category,
		"rules":    s.engine.Rules(category),
	})
}

func (s *Server) handleReload(w http.ResponseWriter, r *http.Request) {
	table, err := s.engine.Reload()
	s.NotifyReload(table, err)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"rules": table.Len()})
}

// NotifyReload publishes a reload attempt. table is the table in effect
// afterwards.
func (s *Server) NotifyReload(table *rules.Table, err error) {
	if s.wsHub == nil {
		return
	}
	event := websocket.RulesReloadedEvent{Rules: table.Len()}
	if err != nil {
		event.Error = err.Error()
	}
	s.wsHub.BroadcastEvent(websocket.Event{
		Type:      websocket.EventTypeRulesReloaded,
		Timestamp: time.Now(),
		Data:      event,
	})
}

func (s *Server) handleValidate(w http.ResponseWriter, r *http.Request) {
	violations := s.engine.ValidateConfig()
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"valid":      len(violations) == 0,
		"violations": violations,
	})
}

func (s *Server) handleCompletions(w http.ResponseWriter, r *http.Request) {
	prefix := r.URL.Query().Get("prefix")
	completions := s.engine.Completions(prefix)
	if limit := r.URL.Query().Get("limit"); limit != "" {
		n, err := strconv.Atoi(limit)
		if err != nil || n <= 0 {
			s.badRequest(w, r, "limit must be a positive integer")
			return
		}
		if n < len(completions) {
			completions = completions[:n]
		}
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"completions": completions})
}

// decode reads an optional JSON body into v. It writes the error response
// and returns false when the body is unusable.
func (s *Server) decode(w http.ResponseWriter, r *http.Request, v interface{}) bool {
	r.Body = http.MaxBytesReader(w, r.Body, s.config.Server.MaxBodyBytes)
	err := json.NewDecoder(r.Body).Decode(v)
	if err == nil || errors.Is(err, io.EOF) {
		return true
	}

	var tooLarge *http.MaxBytesError
	if errors.As(err, &tooLarge) {
		writeJSON(w, http.StatusRequestEntityTooLarge, errorResponse{Error: "request body too large", Kind: "too_large"})
		return false
	}
	s.badRequest(w, r, "invalid JSON body: "+err.Error())
	return false
}

func (s *Server) badRequest(w http.ResponseWriter, r *http.Request, msg string) {
	writeJSON(w, http.StatusBadRequest, errorResponse{Error: msg, Kind: "bad_request"})
}

// writeError maps engine errors onto HTTP statuses
func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	s.writeErrorWith(w, r, err, nil)
}

func (s *Server) writeErrorWith(w http.ResponseWriter, r *http.Request, err error, partial interface{}) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, errs.ErrConflict):
		status = http.StatusConflict
	case errors.Is(err, errs.ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, errs.ErrInvalid):
		status = http.StatusBadRequest
	}

	if status == http.StatusInternalServerError {
		s.logger.WithRequestID(getRequestID(r.Context())).Error("Request failed",
			zap.String("path", r.URL.Path),
			zap.Error(err),
		)
	}
	writeJSON(w, status, errorResponse{Error: err.Error(), Kind: errs.Kind(err), Partial: partial})
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

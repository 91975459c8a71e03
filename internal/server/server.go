/*
 * This file is part of Loqa (https://github.com/loqalabs/loqa).
 * Copyright (C) 2025 Loqa Labs
 *
 * This program is free software: you can redistribute it and/or modify
 * it under the terms of the GNU Affero General Public License as published by
 * the Free Software Foundation, either version 3 of the License, or
 * (at your option) any later version.
 *
 * This program is distributed in the hope that it will be useful,
 * but WITHOUT ANY WARRANTY; without even the implied warranty of
 * MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
 * GNU Affero General Public License for more details.
 *
 * You should have received a copy of the GNU Affero General Public License
 * along with this program. If not, see <https://www.gnu.org/licenses/>.
 */

package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/loqalabs/loqa-voicechat/internal/api"
	"github.com/loqalabs/loqa-voicechat/internal/audio"
	"github.com/loqalabs/loqa-voicechat/internal/config"
	"github.com/loqalabs/loqa-voicechat/internal/conversation"
	"github.com/loqalabs/loqa-voicechat/internal/errs"
	grpcservice "github.com/loqalabs/loqa-voicechat/internal/grpc"
	"github.com/loqalabs/loqa-voicechat/internal/health"
	"github.com/loqalabs/loqa-voicechat/internal/logging"
	"github.com/loqalabs/loqa-voicechat/internal/metrics"
	"github.com/loqalabs/loqa-voicechat/internal/pipeline"
	"github.com/loqalabs/loqa-voicechat/internal/security"
)

const reapInterval = time.Minute

// Server serves the voice chat UI, its JSON API and the gRPC health service
type Server struct {
	cfg        *config.Config
	mux        *http.ServeMux
	server     *http.Server
	grpcServer *grpcservice.HealthServer

	pipeline *pipeline.Pipeline
	sessions *conversation.Manager
	audio    *audio.TempStore
	events   *api.TurnEventsHandler
	checker  *health.Checker
	metrics  *metrics.Metrics
	closers  []func() error

	// Server context for graceful shutdown
	ctx    context.Context
	cancel context.CancelFunc
}

// New creates a server and every client it depends on
func New(cfg *config.Config) (*Server, error) {
	deps, err := buildDependencies(cfg)
	if err != nil {
		return nil, err
	}
	return NewWithDependencies(cfg, deps), nil
}

// NewWithDependencies creates a server from prepared components
func NewWithDependencies(cfg *config.Config, deps *Dependencies) *Server {
	ctx, cancel := context.WithCancel(context.Background())

	s := &Server{
		cfg:      cfg,
		mux:      http.NewServeMux(),
		pipeline: deps.Pipeline,
		audio:    deps.Audio,
		events:   api.NewTurnEventsHandler(deps.Events),
		checker:  deps.Checker,
		metrics:  deps.Metrics,
		closers:  deps.Closers,
		ctx:      ctx,
		cancel:   cancel,
	}
	s.sessions = conversation.NewManager(cfg.Server.SessionIdleTTL, s.endSession)
	s.grpcServer = grpcservice.NewHealthServer(s.checker)

	s.server = &http.Server{
		Addr:         net.JoinHostPort(cfg.Server.Host, strconv.Itoa(cfg.Server.Port)),
		Handler:      s.mux,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  60 * time.Second,
	}

	s.routes()
	return s
}

// Start runs background services and serves HTTP until Stop is called
func (s *Server) Start() error {
	go s.checker.Start(s.ctx)
	go s.sessions.Run(s.ctx, reapInterval)

	if s.cfg.Server.GRPCPort > 0 {
		lis, err := net.Listen("tcp", net.JoinHostPort(s.cfg.Server.Host, strconv.Itoa(s.cfg.Server.GRPCPort)))
		if err != nil {
			return fmt.Errorf("failed to listen on gRPC port %d: %w", s.cfg.Server.GRPCPort, err)
		}
		go func() {
			if err := s.grpcServer.Serve(lis); err != nil {
				logging.LogError(err, "gRPC health server stopped")
			}
		}()
	}

	logging.Sugar.Infow("🚀 Voice chat server starting",
		"addr", s.server.Addr,
		"grpc_port", s.cfg.Server.GRPCPort,
		"stt_provider", s.cfg.STT.Provider,
		"llm_provider", s.cfg.LLM.Provider,
	)

	if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("HTTP server failed: %w", err)
	}

	return nil
}

// Stop gracefully shuts down the server, ends every session and releases
// its audio files
func (s *Server) Stop() error {
	if logging.Sugar != nil {
		logging.Sugar.Infow("🛑 Shutting down voice chat server")
	}

	s.cancel()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	err := s.server.Shutdown(shutdownCtx)
	s.grpcServer.Stop()
	s.sessions.Close()
	closeAll(s.closers)

	if err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}

	if logging.Sugar != nil {
		logging.Sugar.Infow("✅ Voice chat server shut down successfully")
	}
	return nil
}

// Handler returns the HTTP handler, mainly for tests
func (s *Server) Handler() http.Handler {
	return s.mux
}

// routes sets up HTTP routing
func (s *Server) routes() {
	s.handle("GET /{$}", s.handleIndex)
	s.handle("GET /health", s.handleHealth)
	s.mux.Handle("GET /metrics", s.metrics.Handler())

	s.handle("POST /api/sessions", s.handleCreateSession)
	s.handle("DELETE /api/sessions/{id}", s.handleEndSession)
	s.handle("GET /api/sessions/{id}/conversation", s.handleConversation)
	s.handle("POST /api/sessions/{id}/turns", s.handleTurn)
	s.handle("POST /api/sessions/{id}/turns/{turnID}/played", s.handlePlayed)
	s.handle("POST /api/sessions/{id}/new-chat", s.handleNewChat)
	s.handle("GET /api/sessions/{id}/archive", s.handleArchive)
	s.handle("POST /api/sessions/{id}/archive/{index}/select", s.handleSelect)

	s.handle("GET /audio/{handle}", s.handleAudio)

	s.handle("GET /api/turn-events", s.events.HandleList)
	s.handle("GET /api/turn-events/{id}", s.events.HandleGet)
}

// handle registers fn and records request metrics under pattern
func (s *Server) handle(pattern string, fn http.HandlerFunc) {
	s.mux.HandleFunc(pattern, func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}

		fn(rec, r)

		s.metrics.RecordHTTPRequest(r.Method, pattern, strconv.Itoa(rec.status), time.Since(start))
		if logging.Logger != nil {
			logging.Logger.Debug("HTTP request",
				zap.String("route", pattern),
				zap.Int("status", rec.status),
				zap.Duration("elapsed", time.Since(start)),
			)
		}
	})
}

// handleHealth reports dependency health; 503 when a critical dependency is down
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	report := s.checker.Report()

	status := http.StatusOK
	if !report.Serving() {
		status = http.StatusServiceUnavailable
	}

	writeJSON(w, status, map[string]any{
		"status":             report.Status,
		"timestamp":          time.Now(),
		"services":           report.Services,
		"host":               report.Host,
		"last_checked":       report.LastChecked,
		"degradation_reason": report.DegradationReason,
		"active_sessions":    s.sessions.Len(),
	})
}

// endSession releases the audio of a finished session
func (s *Server) endSession(session *conversation.Session, reason string) {
	s.audio.Release(session.AudioHandles()...)
	s.metrics.RecordSessionEnded(reason)
	s.metrics.SetActiveSessions(s.sessions.Len())
}

// statusRecorder captures the response status for metrics
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

// Helper functions

type errorResponse struct {
	Error  string `json:"error"`
	Reason string `json:"reason,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		logging.LogError(err, "Failed to write JSON response")
	}
}

// writeError maps domain errors to HTTP status codes
func writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, security.ErrInvalidID):
		status = http.StatusBadRequest
	case errors.Is(err, errs.ErrSessionNotFound),
		errors.Is(err, errs.ErrArchiveIndex),
		errors.Is(err, errs.ErrTurnNotFound),
		errors.Is(err, audio.ErrUnknownHandle):
		status = http.StatusNotFound
	case errors.Is(err, errs.ErrIngest):
		status = http.StatusBadRequest
	case errors.Is(err, errs.ErrAudioTooLarge):
		status = http.StatusRequestEntityTooLarge
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		status = http.StatusRequestTimeout
	}

	if status == http.StatusInternalServerError {
		logging.LogError(err, "Request failed")
	}

	resp := errorResponse{Error: err.Error()}
	if reason := errs.Reason(err); reason != errs.ReasonUnknown {
		resp.Reason = string(reason)
	}
	writeJSON(w, status, resp)
}

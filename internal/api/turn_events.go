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

package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/loqalabs/loqa-voicechat/internal/events"
	"github.com/loqalabs/loqa-voicechat/internal/logging"
	"github.com/loqalabs/loqa-voicechat/internal/security"
	"github.com/loqalabs/loqa-voicechat/internal/storage"
)

const (
	defaultPageSize = 20
	maxPageSize     = 100
)

// TurnEventsHandler serves the turn event log
type TurnEventsHandler struct {
	store *storage.TurnEventsStore
}

// NewTurnEventsHandler creates a new turn events handler
func NewTurnEventsHandler(store *storage.TurnEventsStore) *TurnEventsHandler {
	return &TurnEventsHandler{store: store}
}

// ListTurnEventsResponse represents the response for listing turn events
type ListTurnEventsResponse struct {
	Events     []*events.TurnEvent `json:"events"`
	Total      int64               `json:"total"`
	Page       int                 `json:"page"`
	PageSize   int                 `json:"page_size"`
	TotalPages int                 `json:"total_pages"`
}

// HandleList handles GET /api/turn-events
func (h *TurnEventsHandler) HandleList(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()

	page := max(parseIntParam(query.Get("page"), 1), 1)
	pageSize := min(max(parseIntParam(query.Get("page_size"), defaultPageSize), 1), maxPageSize)

	options := storage.ListOptions{
		SessionID:   query.Get("session_id"),
		ErrorReason: query.Get("error_reason"),
		Limit:       pageSize,
		Offset:      (page - 1) * pageSize,
		SortBy:      query.Get("sort_by"),
		SortOrder:   strings.ToUpper(query.Get("sort_order")),
	}

	if successStr := query.Get("success"); successStr != "" {
		if success, err := strconv.ParseBool(successStr); err == nil {
			options.Success = &success
		}
	}

	if startTimeStr := query.Get("start_time"); startTimeStr != "" {
		if startTime, err := time.Parse(time.RFC3339, startTimeStr); err == nil {
			options.StartTime = &startTime
		}
	}
	if endTimeStr := query.Get("end_time"); endTimeStr != "" {
		if endTime, err := time.Parse(time.RFC3339, endTimeStr); err == nil {
			options.EndTime = &endTime
		}
	}

	ctx := r.Context()

	list, err := h.store.List(ctx, options)
	if errors.Is(err, storage.ErrInvalidListOptions) {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if err != nil {
		logging.LogError(err, "Failed to list turn events")
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	total, err := h.store.Count(ctx, options)
	if err != nil {
		logging.LogError(err, "Failed to count turn events")
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	response := ListTurnEventsResponse{
		Events:     list,
		Total:      total,
		Page:       page,
		PageSize:   pageSize,
		TotalPages: int((total + int64(pageSize) - 1) / int64(pageSize)),
	}

	if logging.Sugar != nil {
		logging.Sugar.Infow("Turn events API request",
			"endpoint", "list",
			"page", page,
			"page_size", pageSize,
			"total_results", total,
			"session_id", security.SanitizeLogInput(options.SessionID),
		)
	}

	writeJSON(w, http.StatusOK, response)
}

// HandleGet handles GET /api/turn-events/{id}
func (h *TurnEventsHandler) HandleGet(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if err := security.ValidateID(id); err != nil {
		http.Error(w, "Invalid event ID", http.StatusBadRequest)
		return
	}

	event, err := h.store.GetByUUID(r.Context(), id)
	if errors.Is(err, storage.ErrEventNotFound) {
		http.Error(w, "Turn event not found", http.StatusNotFound)
		return
	}
	if err != nil {
		logging.LogError(err, "Failed to get turn event", zap.String("uuid", id))
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusOK, event)
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		logging.LogError(err, "Failed to encode response")
	}
}

// parseIntParam parses integer parameter with default value
func parseIntParam(param string, defaultValue int) int {
	if param == "" {
		return defaultValue
	}

	if value, err := strconv.Atoi(param); err == nil {
		return value
	}

	return defaultValue
}

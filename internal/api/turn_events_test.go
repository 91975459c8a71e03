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
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/loqalabs/loqa-voicechat/internal/errs"
	"github.com/loqalabs/loqa-voicechat/internal/events"
	"github.com/loqalabs/loqa-voicechat/internal/storage"
)

func newTestHandler(t *testing.T) (*TurnEventsHandler, *http.ServeMux, []*events.TurnEvent) {
	t.Helper()

	db, err := storage.NewDatabase(storage.DatabaseConfig{Path: storage.MemoryPath})
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	store := storage.NewTurnEventsStore(db)
	base := time.Date(2025, 5, 1, 9, 0, 0, 0, time.UTC)

	var seeded []*events.TurnEvent
	for i := 0; i < 25; i++ {
		sessionID := "session-a"
		if i%5 == 0 {
			sessionID = "session-b"
		}
		event := events.NewTurnEvent(sessionID, "conv")
		event.Timestamp = base.Add(time.Duration(i) * time.Second)
		if i == 3 {
			event.SetError(errs.Wrap(errs.ErrGeneration, errs.ReasonGeneration))
		}
		require.NoError(t, store.Insert(context.Background(), event))
		seeded = append(seeded, event)
	}

	h := NewTurnEventsHandler(store)
	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/turn-events", h.HandleList)
	mux.HandleFunc("GET /api/turn-events/{id}", h.HandleGet)
	return h, mux, seeded
}

func TestHandleList(t *testing.T) {
	_, mux, _ := newTestHandler(t)

	tests := []struct {
		name       string
		query      string
		wantCount  int
		wantTotal  int64
		wantPages  int
		wantPage   int
		wantSize   int
		wantStatus int
	}{
		{name: "default page", query: "", wantCount: 20, wantTotal: 25, wantPages: 2, wantPage: 1, wantSize: 20, wantStatus: http.StatusOK},
		{name: "second page", query: "?page=2", wantCount: 5, wantTotal: 25, wantPages: 2, wantPage: 2, wantSize: 20, wantStatus: http.StatusOK},
		{name: "page size capped", query: "?page_size=1000", wantCount: 25, wantTotal: 25, wantPages: 1, wantPage: 1, wantSize: 100, wantStatus: http.StatusOK},
		{name: "bad numbers fall back", query: "?page=-3&page_size=abc", wantCount: 20, wantTotal: 25, wantPages: 2, wantPage: 1, wantSize: 20, wantStatus: http.StatusOK},
		{name: "session filter", query: "?session_id=session-b", wantCount: 5, wantTotal: 5, wantPages: 1, wantPage: 1, wantSize: 20, wantStatus: http.StatusOK},
		{name: "failures only", query: "?success=false", wantCount: 1, wantTotal: 1, wantPages: 1, wantPage: 1, wantSize: 20, wantStatus: http.StatusOK},
		{name: "error reason filter", query: "?error_reason=generation", wantCount: 1, wantTotal: 1, wantPages: 1, wantPage: 1, wantSize: 20, wantStatus: http.StatusOK},
		{name: "time window", query: "?start_time=2025-05-01T09:00:10Z&end_time=2025-05-01T09:00:14Z", wantCount: 5, wantTotal: 5, wantPages: 1, wantPage: 1, wantSize: 20, wantStatus: http.StatusOK},
		{name: "unknown sort field", query: "?sort_by=audio_hash", wantStatus: http.StatusBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/turn-events"+tt.query, nil))

			require.Equal(t, tt.wantStatus, rec.Code, rec.Body.String())
			if tt.wantStatus != http.StatusOK {
				return
			}

			assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))

			var resp ListTurnEventsResponse
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
			assert.Len(t, resp.Events, tt.wantCount)
			assert.Equal(t, tt.wantTotal, resp.Total)
			assert.Equal(t, tt.wantPages, resp.TotalPages)
			assert.Equal(t, tt.wantPage, resp.Page)
			assert.Equal(t, tt.wantSize, resp.PageSize)
		})
	}
}

func TestHandleList_NewestFirst(t *testing.T) {
	_, mux, seeded := newTestHandler(t)

	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/turn-events?page_size=2", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var resp ListTurnEventsResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Len(t, resp.Events, 2)
	assert.Equal(t, seeded[24].UUID, resp.Events[0].UUID)
	assert.Equal(t, seeded[23].UUID, resp.Events[1].UUID)
}

func TestHandleGet(t *testing.T) {
	_, mux, seeded := newTestHandler(t)

	tests := []struct {
		name       string
		id         string
		wantStatus int
	}{
		{name: "existing event", id: seeded[3].UUID, wantStatus: http.StatusOK},
		{name: "unknown event", id: uuid.NewString(), wantStatus: http.StatusNotFound},
		{name: "malformed id", id: "not-a-uuid", wantStatus: http.StatusBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/turn-events/"+tt.id, nil))
			require.Equal(t, tt.wantStatus, rec.Code)

			if tt.wantStatus == http.StatusOK {
				var event events.TurnEvent
				require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &event))
				assert.Equal(t, tt.id, event.UUID)
				assert.False(t, event.Success)
				assert.Equal(t, "generation", event.ErrorReason)
			}
		})
	}
}

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

package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/loqalabs/loqa-voicechat/internal/events"
	"github.com/loqalabs/loqa-voicechat/internal/logging"
)

// ErrEventNotFound is returned when no turn event has the requested UUID
var ErrEventNotFound = errors.New("turn event not found")

// ErrInvalidListOptions is returned for unknown sort fields or orders
var ErrInvalidListOptions = errors.New("invalid list options")

const turnEventColumns = `uuid, session_id, conversation_id, timestamp,
	audio_hash, audio_bytes, audio_duration_ms, chunk_count,
	transcription, response_text, silent_reply,
	processing_time_ms, success, error_reason, error_message`

// sortColumns maps accepted sort keys to columns
var sortColumns = map[string]string{
	"timestamp":       "timestamp",
	"processing_time": "processing_time_ms",
	"audio_duration":  "audio_duration_ms",
}

// TurnEventsStore handles database operations for turn events
type TurnEventsStore struct {
	db *Database
}

// NewTurnEventsStore creates a new turn events store
func NewTurnEventsStore(db *Database) *TurnEventsStore {
	return &TurnEventsStore{db: db}
}

// Insert stores a new turn event in the database
func (s *TurnEventsStore) Insert(ctx context.Context, event *events.TurnEvent) error {
	if err := event.IsValid(); err != nil {
		return fmt.Errorf("invalid turn event: %w", err)
	}

	query := `INSERT INTO turn_events (` + turnEventColumns + `) VALUES (
		?, ?, ?, ?,
		?, ?, ?, ?,
		?, ?, ?,
		?, ?, ?, ?
	)`

	_, err := s.db.DB().ExecContext(ctx, query,
		event.UUID, event.SessionID, event.ConversationID, event.Timestamp.UnixMilli(),
		event.AudioHash, event.AudioBytes, event.AudioDurationMS, event.ChunkCount,
		event.Transcription, event.ResponseText, event.SilentReply,
		event.ProcessingTime, event.Success, event.ErrorReason, event.ErrorMessage,
	)
	if err != nil {
		return fmt.Errorf("failed to insert turn event: %w", err)
	}

	logging.LogDatabaseOperation("insert", "turn_events",
		zap.String("uuid", event.UUID),
		zap.String("session_id", event.SessionID),
		zap.Bool("success", event.Success),
	)
	return nil
}

// GetByUUID retrieves a turn event by its UUID
func (s *TurnEventsStore) GetByUUID(ctx context.Context, uuid string) (*events.TurnEvent, error) {
	query := `SELECT ` + turnEventColumns + ` FROM turn_events WHERE uuid = ?`

	event, err := scanTurnEvent(s.db.DB().QueryRowContext(ctx, query, uuid))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrEventNotFound, uuid)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load turn event: %w", err)
	}
	return event, nil
}

// List retrieves turn events with pagination and filtering
func (s *TurnEventsStore) List(ctx context.Context, options ListOptions) ([]*events.TurnEvent, error) {
	query, args, err := buildListQuery(options)
	if err != nil {
		return nil, err
	}

	rows, err := s.db.DB().QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query turn events: %w", err)
	}
	defer rows.Close()

	eventsList := make([]*events.TurnEvent, 0)
	for rows.Next() {
		event, err := scanTurnEvent(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan turn event: %w", err)
		}
		eventsList = append(eventsList, event)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating turn events: %w", err)
	}

	return eventsList, nil
}

// Count returns the total number of turn events matching the filter
func (s *TurnEventsStore) Count(ctx context.Context, options ListOptions) (int64, error) {
	options.Limit = 0
	options.Offset = 0
	query, args, err := buildListQuery(options)
	if err != nil {
		return 0, err
	}

	countQuery := "SELECT COUNT(*) FROM (" + query + ") AS filtered"

	var count int64
	if err := s.db.DB().QueryRowContext(ctx, countQuery, args...).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count turn events: %w", err)
	}

	return count, nil
}

// ListOptions defines filtering and pagination options
type ListOptions struct {
	// Filtering
	SessionID   string
	ErrorReason string
	Success     *bool // nil = all, true = success only, false = errors only
	StartTime   *time.Time
	EndTime     *time.Time

	// Pagination
	Limit  int
	Offset int

	// Sorting
	SortBy    string // "timestamp", "processing_time", "audio_duration"
	SortOrder string // "ASC", "DESC"
}

// buildListQuery constructs the SQL query based on ListOptions
func buildListQuery(options ListOptions) (string, []any, error) {
	query := `SELECT ` + turnEventColumns + ` FROM turn_events WHERE 1=1`

	var args []any

	if options.SessionID != "" {
		query += " AND session_id = ?"
		args = append(args, options.SessionID)
	}

	if options.ErrorReason != "" {
		query += " AND error_reason = ?"
		args = append(args, options.ErrorReason)
	}

	if options.Success != nil {
		query += " AND success = ?"
		args = append(args, *options.Success)
	}

	if options.StartTime != nil {
		query += " AND timestamp >= ?"
		args = append(args, options.StartTime.UnixMilli())
	}

	if options.EndTime != nil {
		query += " AND timestamp <= ?"
		args = append(args, options.EndTime.UnixMilli())
	}

	sortBy := options.SortBy
	if sortBy == "" {
		sortBy = "timestamp"
	}
	column, ok := sortColumns[sortBy]
	if !ok {
		return "", nil, fmt.Errorf("%w: unsupported sort field %q", ErrInvalidListOptions, sortBy)
	}

	sortOrder := strings.ToUpper(options.SortOrder)
	switch sortOrder {
	case "":
		sortOrder = "DESC"
	case "ASC", "DESC":
	default:
		return "", nil, fmt.Errorf("%w: unsupported sort order %q", ErrInvalidListOptions, options.SortOrder)
	}

	// uuid breaks ties between events logged in the same millisecond
	query += fmt.Sprintf(" ORDER BY %s %s, uuid %s", column, sortOrder, sortOrder)

	if options.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, options.Limit)

		if options.Offset > 0 {
			query += " OFFSET ?"
			args = append(args, options.Offset)
		}
	}

	return query, args, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

// scanTurnEvent scans a database row into a TurnEvent struct
func scanTurnEvent(row rowScanner) (*events.TurnEvent, error) {
	var (
		event     events.TurnEvent
		timestamp int64
	)

	err := row.Scan(
		&event.UUID, &event.SessionID, &event.ConversationID, &timestamp,
		&event.AudioHash, &event.AudioBytes, &event.AudioDurationMS, &event.ChunkCount,
		&event.Transcription, &event.ResponseText, &event.SilentReply,
		&event.ProcessingTime, &event.Success, &event.ErrorReason, &event.ErrorMessage,
	)
	if err != nil {
		return nil, err
	}

	event.Timestamp = time.UnixMilli(timestamp)
	return &event, nil
}
